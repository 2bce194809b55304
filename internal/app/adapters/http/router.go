package http

import (
	"context"
	"errors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"log/slog"
	"net/http"
	"time"
	"twitchbot/internal/app/adapters/http/handlers"
	"twitchbot/internal/app/adapters/http/middlewares"
	"twitchbot/internal/app/infrastructure/config"
	"twitchbot/pkg/logger"
)

type Router struct {
	router      *gin.Engine
	handlers    *handlers.Handlers
	middlewares *middlewares.Middlewares

	log logger.Logger
	cfg *config.Config
}

func NewRouter(log logger.Logger, cfg *config.Config, status handlers.StatusSource, enrol *handlers.Enrolment) (*Router, error) {
	h, err := handlers.New(log, status, enrol)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		router:      gin.New(),
		handlers:    h,
		middlewares: middlewares.New(log),
		log:         log,
		cfg:         cfg,
	}
	r.router.Use(gin.Recovery(), r.middlewares.Logger())

	protected := r.router.Group("/")
	if cfg.App.AuthToken != "" {
		protected.Use(gin.BasicAuth(gin.Accounts{
			"admin": cfg.App.AuthToken,
		}))
	}
	pprof.Register(protected)
	protected.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.router.GET("/healthz", r.handlers.HealthHandler)

	if enrol != nil {
		local := r.router.Group("/", r.middlewares.LocalOnly())
		local.GET("/", r.handlers.IndexHandler)
		local.GET("/callback", r.handlers.CallbackHandler)
	}

	return r, nil
}

func (r *Router) Handler() http.Handler {
	return r.router
}

// Run serves on addr until ctx is done.
func (r *Router) Run(ctx context.Context, addr string) error {
	srv := r.newServer(addr, r.router)

	errCh := make(chan error, 1)
	go func() {
		r.log.Info("Observability server listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (r *Router) newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
}
