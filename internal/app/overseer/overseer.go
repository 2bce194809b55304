// Package overseer owns every running session. It starts and stops them,
// and when the server rejects a session's credential it renews the
// credential and starts a replacement session.
package overseer

import (
	"context"
	"errors"
	"fmt"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"log/slog"
	"sort"
	"sync"
	"time"
	"twitchbot/internal/app/adapters/metrics"
	"twitchbot/internal/app/adapters/platform/twitch/irc"
	"twitchbot/internal/app/adapters/protocol"
	"twitchbot/internal/app/domain/credential"
	"twitchbot/internal/app/infrastructure/config"
	"twitchbot/internal/app/infrastructure/storage"
	"twitchbot/internal/app/ports"
	"twitchbot/pkg/logger"
)

const eventBuffer = 64

var (
	ErrAlreadyRunning = errors.New("session is already running")
	ErrNotRunning     = errors.New("session is not running")
	ErrClosed         = errors.New("overseer is shut down")

	ErrRejectedAfterRenewal = errors.New("renewed credential was rejected")
)

type DialerFunc func(transport string, proxy *config.Proxy) (irc.Dialer, error)

type Option func(*Overseer)

// WithDialer replaces how sessions open their connections.
func WithDialer(fn DialerFunc) Option {
	return func(o *Overseer) {
		o.dial = fn
	}
}

type Status struct {
	Name       string    `json:"name"`
	Instance   string    `json:"instance"`
	Credential string    `json:"credential"`
	Addr       string    `json:"addr"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	LastError  string    `json:"last_error,omitempty"`
}

// Failure is a session that ended and will not be started again automatically.
type Failure struct {
	Session    string
	Credential string
	Err        error
	At         time.Time
}

type running struct {
	session *irc.Session
	cancel  context.CancelFunc
	// access token the session authenticated with
	accessToken string
	// started by a respawn after its credential was renewed
	renewed bool
}

type Overseer struct {
	log      logger.Logger
	cfg      *config.Config
	store    ports.StorePort
	renewer  ports.RenewerPort
	protocol *protocol.Table
	dial     DialerFunc

	events   chan irc.Event
	renewals singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	clientID     string
	clientSecret string
	sessions     map[string]*running
	failures     []Failure
	closed       bool
}

func New(log logger.Logger, cfg *config.Config, store ports.StorePort, renewer ports.RenewerPort, opts ...Option) *Overseer {
	ctx, cancel := context.WithCancel(context.Background())

	o := &Overseer{
		log:          log,
		cfg:          cfg,
		store:        store,
		renewer:      renewer,
		protocol:     protocol.NewTable(),
		dial:         irc.NewDialer,
		events:       make(chan irc.Event, eventBuffer),
		ctx:          ctx,
		cancel:       cancel,
		clientID:     cfg.App.ClientID,
		clientSecret: cfg.App.ClientSecret,
		sessions:     make(map[string]*running),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// SetAppCredentials sets the OAuth client used for renewals.
func (o *Overseer) SetAppCredentials(clientID, clientSecret string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.clientID, o.clientSecret = clientID, clientSecret
}

func (o *Overseer) appCredentials() (string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.clientID, o.clientSecret
}

// CreateSession stores a new session record. Empty destination fields take
// the configured defaults; the referenced credential must exist.
func (o *Overseer) CreateSession(ctx context.Context, name string, rec storage.SessionRecord) error {
	if rec.Transport == "" {
		rec.Transport = o.cfg.IRC.Transport
	}
	if rec.Host == "" {
		rec.Host = o.cfg.IRC.Host
	}
	if rec.Port == 0 {
		if rec.Transport == o.cfg.IRC.Transport {
			rec.Port = o.cfg.IRC.Port
		} else {
			rec.Port = config.DefaultPort(rec.Transport)
		}
	}

	if !config.ValidTransport(rec.Transport) {
		return fmt.Errorf("%w: %q", irc.ErrUnknownTransport, rec.Transport)
	}

	if err := o.store.CreateSession(ctx, name, rec); err != nil {
		return fmt.Errorf("create session %s: %w", name, err)
	}

	o.log.Info("Session created", slog.String("session", name), slog.String("credential", rec.Credential), slog.String("addr", rec.Addr()))
	return nil
}

// DeleteSession stops the session if it runs and removes its record.
func (o *Overseer) DeleteSession(ctx context.Context, name string) error {
	if err := o.StopSession(name); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return o.store.DeleteSession(ctx, name)
}

// StartSession loads the named session and its credential and runs it.
func (o *Overseer) StartSession(ctx context.Context, name string) error {
	return o.startStored(ctx, name, false)
}

func (o *Overseer) startStored(ctx context.Context, name string, renewed bool) error {
	rec, err := o.store.LoadSession(ctx, name)
	if err != nil {
		return fmt.Errorf("load session %s: %w", name, err)
	}

	cred, err := o.store.LoadCredential(ctx, rec.Credential)
	if err != nil {
		return fmt.Errorf("load credential %s for session %s: %w", rec.Credential, name, err)
	}

	dialer, err := o.dial(rec.Transport, o.cfg.Proxy)
	if err != nil {
		return fmt.Errorf("session %s: %w", name, err)
	}

	return o.start(name, rec, cred, dialer, renewed)
}

func (o *Overseer) start(name string, rec storage.SessionRecord, cred credential.Credential, dialer irc.Dialer, renewed bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrClosed
	}
	if _, ok := o.sessions[name]; ok {
		return fmt.Errorf("%s: %w", name, ErrAlreadyRunning)
	}

	s := irc.New(o.log, irc.Options{
		Name:         name,
		Record:       rec,
		Credential:   cred,
		Capabilities: o.cfg.IRC.Capabilities,
		Backoff:      o.cfg.Backoff,
		Limiter:      o.cfg.IRC.Limiter,
		Dialer:       dialer,
		Protocol:     o.protocol,
		Events:       o.events,
	})

	ctx, cancel := context.WithCancel(o.ctx)
	o.sessions[name] = &running{session: s, cancel: cancel, accessToken: cred.AccessToken, renewed: renewed}
	metrics.SessionsRunning.Inc()

	go s.Run(ctx)

	o.log.Info("Session started", slog.String("session", name), slog.String("instance", s.ID().String()))
	return nil
}

// StopSession cancels the session and waits for it to finish.
func (o *Overseer) StopSession(name string) error {
	o.mu.Lock()
	r, ok := o.sessions[name]
	if ok {
		delete(o.sessions, name)
	}
	o.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", name, ErrNotRunning)
	}

	metrics.SessionsRunning.Dec()
	r.cancel()
	<-r.session.Done()

	o.log.Info("Session stopped", slog.String("session", name))
	return nil
}

func (o *Overseer) Sessions() []Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Status, 0, len(o.sessions))
	for name, r := range o.sessions {
		st := Status{
			Name:       name,
			Instance:   r.session.ID().String(),
			Credential: r.session.Record().Credential,
			Addr:       r.session.Record().Addr(),
			State:      r.session.State().String(),
			StartedAt:  r.session.StartedAt(),
		}
		if err := r.session.Err(); err != nil {
			st.LastError = err.Error()
		}
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (o *Overseer) Failures() []Failure {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Failure, len(o.failures))
	copy(out, o.failures)
	return out
}

// KnownSessions lists every stored session, running or not.
func (o *Overseer) KnownSessions(ctx context.Context) ([]string, error) {
	return o.store.ListSessions(ctx)
}

func (o *Overseer) Credentials(ctx context.Context) ([]string, error) {
	return o.store.ListCredentials(ctx)
}

func (o *Overseer) SaveCredential(ctx context.Context, name string, cred credential.Credential) error {
	return o.store.SaveCredential(ctx, name, cred)
}

func (o *Overseer) DeleteCredential(ctx context.Context, name string) error {
	return o.store.DeleteCredential(ctx, name)
}

// Run handles session events on the configured number of workers until ctx
// is done, then stops every session and waits for them.
func (o *Overseer) Run(ctx context.Context) error {
	workers := o.cfg.App.Workers
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			o.worker(gctx)
			return nil
		})
	}

	err := g.Wait()
	o.shutdown()
	return err
}

func (o *Overseer) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.events:
			o.handle(ctx, ev)
		}
	}
}

func (o *Overseer) shutdown() {
	o.mu.Lock()
	o.closed = true
	sessions := o.sessions
	o.sessions = make(map[string]*running)
	o.mu.Unlock()

	o.cancel()
	for name, r := range sessions {
		<-r.session.Done()
		metrics.SessionsRunning.Dec()
		o.log.Debug("Session joined", slog.String("session", name))
	}
	o.log.Info("Overseer stopped")
}

// release forgets the session that produced ev, unless ev comes from an
// instance that has already been replaced or stopped.
func (o *Overseer) release(ev irc.Event) (*running, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.sessions[ev.Session]
	if !ok || r.session.ID() != ev.Instance {
		return nil, false
	}

	delete(o.sessions, ev.Session)
	metrics.SessionsRunning.Dec()
	return r, true
}

func (o *Overseer) handle(ctx context.Context, ev irc.Event) {
	r, ok := o.release(ev)
	if !ok {
		o.log.Debug("Ignoring event from a retired session", slog.String("session", ev.Session), slog.String("kind", ev.Kind.String()))
		return
	}

	switch ev.Kind {
	case irc.EventStopped:
		o.log.Info("Session ended", slog.String("session", ev.Session))
	case irc.EventFatal:
		o.fail(ev.Session, ev.Credential, ev.Err)
	case irc.EventAuthFailed:
		// A fresh token that never got past login will not do better after
		// another renewal.
		if r.renewed && !ev.Authenticated {
			o.fail(ev.Session, ev.Credential, fmt.Errorf("%w: %s: %w", ErrRejectedAfterRenewal, ev.Credential, ev.Err))
			return
		}
		o.respawn(ctx, ev, r.accessToken)
	}
}

func (o *Overseer) respawn(ctx context.Context, ev irc.Event, rejected string) {
	o.log.Warn("Credential rejected, renewing", slog.String("session", ev.Session), slog.String("credential", ev.Credential))

	if err := o.renew(ctx, ev.Credential, rejected); err != nil {
		o.fail(ev.Session, ev.Credential, err)
		return
	}

	if err := o.startStored(ctx, ev.Session, true); err != nil {
		o.fail(ev.Session, ev.Credential, fmt.Errorf("restart after renewal: %w", err))
	}
}

// renew replaces the stored credential unless it already changed since the
// rejected token was issued. Concurrent renewals of one credential share a
// single exchange.
func (o *Overseer) renew(ctx context.Context, name, rejected string) error {
	_, err, _ := o.renewals.Do(name, func() (any, error) {
		cred, err := o.store.LoadCredential(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load credential %s: %w", name, err)
		}
		if cred.AccessToken != rejected {
			o.log.Info("Credential was already renewed", slog.String("credential", name))
			return nil, nil
		}

		clientID, clientSecret := o.appCredentials()
		pair, err := o.renewer.Renew(ctx, cred.RefreshToken, clientID, clientSecret)
		if err != nil {
			return nil, fmt.Errorf("renew credential %s: %w", name, err)
		}

		if err := o.store.SaveCredential(ctx, name, cred.Renewed(pair.AccessToken, pair.RefreshToken)); err != nil {
			return nil, fmt.Errorf("save renewed credential %s: %w", name, err)
		}

		o.log.Info("Credential renewed", slog.String("credential", name))
		return nil, nil
	})
	return err
}

func (o *Overseer) fail(session, cred string, err error) {
	o.log.Error("Session will not be restarted", err, slog.String("session", session))

	o.mu.Lock()
	defer o.mu.Unlock()

	o.failures = append(o.failures, Failure{
		Session:    session,
		Credential: cred,
		Err:        err,
		At:         time.Now(),
	})
}
