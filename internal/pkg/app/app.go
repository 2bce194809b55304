package app

import (
	"context"
	"errors"
	"fmt"
	"github.com/joho/godotenv"
	"golang.org/x/net/proxy"
	"golang.org/x/sync/errgroup"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	router "twitchbot/internal/app/adapters/http"
	"twitchbot/internal/app/adapters/http/handlers"
	"twitchbot/internal/app/adapters/platform/twitch/api"
	"twitchbot/internal/app/infrastructure/config"
	"twitchbot/internal/app/infrastructure/storage"
	"twitchbot/internal/app/overseer"
	"twitchbot/pkg/logger"
)

const (
	DefaultConfigPath = "config.json"
	DefaultEnvPath    = ".env"
)

var (
	ErrNoSessions       = errors.New("no sessions to run")
	ErrNoSessionStarted = errors.New("no session could be started")
)

// App holds the wired components shared by every CLI command.
type App struct {
	Log      logger.Logger
	Manager  *config.Manager
	Store    *storage.Store
	API      *api.Twitch
	Overseer *overseer.Overseer
}

// New loads envPath (if present) and configPath, then wires the store, the
// identity API client and the overseer.
func New(configPath, envPath string) (*App, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	manager, err := config.New(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := manager.Get()

	log := logger.New(cfg.App.LogFile)
	log.SetLogLevel(cfg.App.LogLevel)

	client, err := newHTTPClient(cfg.Proxy)
	if err != nil {
		return nil, err
	}

	store := storage.NewStore(cfg.App.DataDir)
	tw := api.NewTwitch(log, client, cfg.App.TokenURL)

	o := overseer.New(log, cfg, store, tw)
	o.SetAppCredentials(manager.AppCredentials())

	return &App{
		Log:      log,
		Manager:  manager,
		Store:    store,
		API:      tw,
		Overseer: o,
	}, nil
}

func newHTTPClient(p *config.Proxy) (*http.Client, error) {
	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: http.DefaultTransport,
	}

	if p != nil && p.Address != "" && p.Port != 0 {
		dialer, err := proxy.SOCKS5("tcp", net.JoinHostPort(p.Address, strconv.Itoa(p.Port)), nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 proxy: %w", err)
		}

		client.Transport = &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			},
		}
	}

	return client, nil
}

// Run starts the named sessions (every stored session when names is empty)
// and serves until ctx is done.
func (a *App) Run(ctx context.Context, names []string) error {
	cfg := a.Manager.Get()

	if len(names) == 0 {
		known, err := a.Overseer.KnownSessions(ctx)
		if err != nil {
			return err
		}
		names = known
	}
	if len(names) == 0 {
		return ErrNoSessions
	}

	var r *router.Router
	if cfg.App.MetricsAddr != "" {
		var err error
		if r, err = router.NewRouter(a.Log, cfg, a.Overseer, a.enrolment()); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Overseer.Run(gctx)
	})
	if r != nil {
		g.Go(func() error {
			return r.Run(gctx, cfg.App.MetricsAddr)
		})
	}

	var errs []error
	for _, name := range names {
		if err := a.Overseer.StartSession(gctx, name); err != nil {
			a.Log.Error("Failed to start session", err, slog.String("session", name))
			errs = append(errs, err)
		}
	}

	started := len(names) - len(errs)
	if started == 0 {
		cancel()
		_ = g.Wait()
		return fmt.Errorf("%w: %w", ErrNoSessionStarted, errors.Join(errs...))
	}
	a.Log.Info("Bot running", slog.Int("sessions", started))

	return g.Wait()
}

func (a *App) enrolment() *handlers.Enrolment {
	cfg := a.Manager.Get()
	if cfg.App.RedirectURL == "" {
		return nil
	}

	clientID, clientSecret := a.Manager.AppCredentials()
	return &handlers.Enrolment{
		Auth:         a.API,
		Store:        a.Store,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  cfg.App.RedirectURL,
		Scopes:       strings.Fields(cfg.App.Scopes),
	}
}
