// Package irc runs one chat connection per Session: connect with backoff,
// authenticate, then read and dispatch lines until the connection ends.
package irc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"twitchbot/internal/app/adapters/commands"
	"twitchbot/internal/app/adapters/metrics"
	"twitchbot/internal/app/adapters/protocol"
	"twitchbot/internal/app/domain/credential"
	"twitchbot/internal/app/domain/message"
	"twitchbot/internal/app/infrastructure/config"
	"twitchbot/internal/app/infrastructure/storage"
	"twitchbot/pkg/logger"
	"unicode/utf8"
)

const (
	maxMessageLength = 500
	outboundBuffer   = 64
)

type Options struct {
	Name         string
	Record       storage.SessionRecord
	Credential   credential.Credential
	Capabilities string
	Backoff      config.Backoff
	Limiter      config.Limiter
	Dialer       Dialer
	Protocol     *protocol.Table

	// Events receives exactly one Event when Run returns. May be nil.
	Events chan<- Event
}

// connection is what the write path needs of the live connection.
type connection struct {
	out  chan string
	done <-chan struct{}
}

type Session struct {
	id   uuid.UUID
	name string
	log  logger.Logger

	record   storage.SessionRecord
	cred     credential.Credential
	caps     string
	dialer   Dialer
	backoff  *Backoff
	limiter  *rate.Limiter
	protocol *protocol.Table
	commands *commands.Table
	events   chan<- Event

	state         atomic.Int32
	authenticated atomic.Bool
	startedAt     time.Time
	done          chan struct{}

	mu      sync.Mutex
	conn    *connection
	lastErr error
}

func New(log logger.Logger, opts Options) *Session {
	id := uuid.New()
	log = logger.NewPrefixedLogger(log, opts.Name).With(slog.String("instance", id.String()))

	s := &Session{
		id:       id,
		name:     opts.Name,
		log:      log,
		record:   opts.Record,
		cred:     opts.Credential,
		caps:     opts.Capabilities,
		dialer:   opts.Dialer,
		backoff:  NewBackoff(opts.Backoff),
		limiter:  newLimiter(opts.Limiter),
		protocol: opts.Protocol,
		commands: commands.NewTable(log),
		events:   opts.Events,

		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.state.Store(int32(StateDisconnected))

	return s
}

func newLimiter(cfg config.Limiter) *rate.Limiter {
	if cfg.Requests <= 0 || cfg.Per <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(cfg.Per/time.Duration(cfg.Requests)), cfg.Requests)
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) Nick() string {
	return s.cred.Username
}

func (s *Session) Record() storage.SessionRecord {
	return s.record
}

func (s *Session) Commands() *commands.Table {
	return s.commands
}

func (s *Session) Logger() logger.Logger {
	return s.log
}

func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) setState(state State) {
	prev := State(s.state.Swap(int32(state)))
	if prev == state {
		return
	}

	metrics.SessionState.WithLabelValues(s.name, prev.String()).Set(0)
	metrics.SessionState.WithLabelValues(s.name, state.String()).Set(1)
	s.log.Debug("State changed", slog.String("from", prev.String()), slog.String("to", state.String()))
}

// Run drives the session until its context is cancelled, the credential is
// rejected, or reconnecting is given up. It then reports one Event.
// A credential without a username is a fatal error: renewing cannot fix it.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	err := s.run(ctx)

	ev := Event{
		Session:    s.name,
		Instance:   s.id,
		Credential: s.record.Credential,
		Err:        err,

		Authenticated: s.authenticated.Load(),
	}
	switch {
	case errors.Is(err, protocol.ErrAuthFailed):
		ev.Kind = EventAuthFailed
		s.setState(StateFailed)
		s.log.Warn("Credential rejected, handing over for renewal", slog.String("credential", s.record.Credential))
	case ctx.Err() != nil:
		ev.Kind = EventStopped
		ev.Err = nil
		s.setState(StateStopped)
		s.log.Info("Session stopped")
	default:
		ev.Kind = EventFatal
		s.setState(StateFailed)
		s.log.Error("Session failed", err)
	}

	s.mu.Lock()
	s.lastErr = ev.Err
	s.mu.Unlock()

	s.emit(ctx, ev)
}

func (s *Session) emit(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}

	if ev.Kind == EventStopped {
		select {
		case s.events <- ev:
		default:
		}
		return
	}

	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}

func (s *Session) run(ctx context.Context) error {
	if err := s.cred.Validate(); err != nil {
		if errors.Is(err, credential.ErrNoAccessToken) {
			return fmt.Errorf("%w: %w", protocol.ErrAuthFailed, err)
		}
		return err
	}

	var lost error
	for {
		conn, err := s.connect(ctx, lost)
		if err != nil {
			return err
		}

		err = s.serve(ctx, conn)
		lost = err
		switch {
		case errors.Is(err, protocol.ErrAuthFailed):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, protocol.ErrReconnect):
			s.log.Info("Reconnecting on server request")
		default:
			s.log.Warn("Connection lost, reconnecting", slog.String("error", errString(err)))
		}
		s.setState(StateDisconnected)
	}
}

// connect dials until it succeeds or the backoff runs out. lost is why the
// previous connection ended, if there was one.
func (s *Session) connect(ctx context.Context, lost error) (net.Conn, error) {
	s.setState(StateConnecting)

	lastErr := lost
	for {
		delay, err := s.backoff.Next()
		if err != nil {
			if lastErr == nil {
				return nil, err
			}
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectExhausted, s.backoff.Attempts(), lastErr)
		}

		if delay > 0 {
			s.log.Info("Waiting before reconnect", slog.Duration("delay", delay), slog.Int("attempt", s.backoff.Attempts()))
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		conn, err := s.dialer.Dial(ctx, s.record.Host, s.record.Port)
		if err == nil {
			metrics.ConnectAttempts.WithLabelValues(s.name, "ok").Inc()
			s.log.Info("Connected", slog.String("addr", s.record.Addr()))
			return conn, nil
		}

		metrics.ConnectAttempts.WithLabelValues(s.name, "error").Inc()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("Connect failed", slog.String("addr", s.record.Addr()), slog.String("error", err.Error()))
		lastErr = err
	}
}

// serve authenticates on conn and reads until the connection ends. Only this
// goroutine reads and dispatches; only the writer goroutine writes.
func (s *Session) serve(ctx context.Context, conn net.Conn) error {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	s.setState(StateAuthenticating)
	if err := s.authenticate(conn); err != nil {
		return err
	}

	s.setState(StateServing)

	out := make(chan string, outboundBuffer)
	s.mu.Lock()
	s.conn = &connection{out: out, done: connCtx.Done()}
	s.mu.Unlock()

	writeErr := make(chan error, 1)
	go func() {
		writeErr <- s.writeLoop(connCtx, cancel, conn, out)
	}()

	for _, ch := range s.record.Channels {
		s.Write("JOIN " + channelName(ch))
	}

	err := s.readLoop(conn)

	cancel()
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()

	if werr := <-writeErr; werr != nil && !errors.Is(err, protocol.ErrAuthFailed) {
		return werr
	}
	return err
}

func (s *Session) authenticate(conn net.Conn) error {
	batch := "CAP REQ :" + s.caps + "\r\n" +
		"PASS " + s.cred.Password() + "\r\n" +
		"NICK " + s.cred.Username + "\r\n"

	if _, err := io.WriteString(conn, batch); err != nil {
		return fmt.Errorf("send authentication: %w", err)
	}
	return nil
}

// readLoop resets the backoff on the first line dispatched without error.
// Reaching Serving alone proves nothing: a server may accept the login batch
// and drop the connection right after.
func (s *Session) readLoop(conn net.Conn) error {
	reader := bufio.NewReader(conn)
	healthy := false

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		start := time.Now()
		msg, err := message.Parse(line)
		if err != nil {
			metrics.LinesReceived.WithLabelValues(s.name, "false").Inc()
			s.log.Debug("Dropped line", slog.String("line", strings.TrimRight(line, "\r\n")))
			continue
		}
		metrics.LinesReceived.WithLabelValues(s.name, "true").Inc()

		err = s.protocol.Dispatch(msg, s)
		metrics.LineProcessingTime.Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}

		if !healthy {
			healthy = true
			s.authenticated.Store(true)
			s.backoff.Reset()
			s.log.Debug("Connection healthy, backoff reset", slog.String("command", msg.Command))
		}
	}
}

func (s *Session) writeLoop(ctx context.Context, cancel context.CancelFunc, conn net.Conn, out <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-out:
			if strings.HasPrefix(line, "PRIVMSG ") {
				if err := s.limiter.Wait(ctx); err != nil {
					return nil
				}
			}

			if _, err := io.WriteString(conn, line+"\r\n"); err != nil {
				s.log.Error("Write failed", err)
				cancel()
				return fmt.Errorf("write: %w", err)
			}
			metrics.LinesSent.WithLabelValues(s.name).Inc()
			s.log.Trace("Sent", slog.String("line", line))
		}
	}
}

// Write queues one protocol line behind earlier writes. Lines written while
// the session is not serving are dropped.
func (s *Session) Write(line string) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		s.log.Warn("Dropped write, session is not serving", slog.String("line", line))
		return
	}

	select {
	case conn.out <- line:
	case <-conn.done:
	}
}

func (s *Session) Say(channel, text string) {
	if utf8.RuneCountInString(text) > maxMessageLength {
		s.log.Warn("Reply truncated", slog.Int("length", utf8.RuneCountInString(text)))
		text = string([]rune(text)[:maxMessageLength])
	}

	s.Write("PRIVMSG " + channelName(channel) + " :" + text)
}

func (s *Session) Timeout(channel, user string, seconds int) {
	s.Write(fmt.Sprintf("PRIVMSG %s :/timeout %s %d", channelName(channel), user, seconds))
}

func channelName(channel string) string {
	if !strings.HasPrefix(channel, "#") {
		return "#" + channel
	}
	return channel
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
