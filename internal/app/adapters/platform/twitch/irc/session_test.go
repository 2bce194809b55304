package irc

import (
	"bufio"
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
	"twitchbot/internal/app/adapters/protocol"
	"twitchbot/internal/app/domain/credential"
	"twitchbot/internal/app/infrastructure/config"
	"twitchbot/internal/app/infrastructure/storage"
	"twitchbot/pkg/logger"
)

const wait = 5 * time.Second

const authBatch = "CAP REQ :twitch.tv/commands\r\nPASS oauth:secret\r\nNICK botnick\r\n"

type fakeServer struct {
	ln    net.Listener
	conns chan *serverConn
}

type serverConn struct {
	net.Conn
	r *bufio.Reader
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &fakeServer{ln: ln, conns: make(chan *serverConn, 4)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.conns <- &serverConn{Conn: conn, r: bufio.NewReader(conn)}
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })

	return srv
}

func (s *fakeServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeServer) accept(t *testing.T) *serverConn {
	t.Helper()

	select {
	case c := <-s.conns:
		t.Cleanup(func() { _ = c.Close() })
		return c
	case <-time.After(wait):
		require.FailNow(t, "no connection")
		return nil
	}
}

func (c *serverConn) readLine(t *testing.T) string {
	t.Helper()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(wait)))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return line
}

// readAuth consumes the authentication batch and the JOIN that follows it.
func (c *serverConn) readAuth(t *testing.T) {
	t.Helper()

	var got strings.Builder
	for i := 0; i < 3; i++ {
		got.WriteString(c.readLine(t))
	}
	require.Equal(t, authBatch, got.String())
	require.Equal(t, "JOIN #chan\r\n", c.readLine(t))
}

func (c *serverConn) send(t *testing.T, line string) {
	t.Helper()

	_, err := io.WriteString(c, line)
	require.NoError(t, err)
}

func testOptions(t *testing.T, port int, events chan Event) Options {
	t.Helper()

	dialer, err := NewDialer(config.TransportTCP, nil)
	require.NoError(t, err)

	return Options{
		Name: "bot1",
		Record: storage.SessionRecord{
			Credential: "main",
			Host:       "127.0.0.1",
			Port:       port,
			Transport:  config.TransportTCP,
			Channels:   []string{"chan"},
		},
		Credential:   credential.Credential{Username: "botnick", AccessToken: "secret", RefreshToken: "refresh"},
		Capabilities: "twitch.tv/commands",
		Backoff:      config.Backoff{MaxDelaySecs: 3, Unit: time.Millisecond},
		Limiter:      config.Limiter{Requests: 20, Per: 30 * time.Second},
		Dialer:       dialer,
		Protocol:     protocol.NewTable(),
		Events:       events,
	}
}

func start(t *testing.T, opts Options) (*Session, context.CancelFunc) {
	t.Helper()

	s := New(logger.NewWithWriter(io.Discard), opts)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	t.Cleanup(func() {
		cancel()
		select {
		case <-s.Done():
		case <-time.After(wait):
			t.Error("session did not stop")
		}
	})

	return s, cancel
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case ev := <-events:
		return ev
	case <-time.After(wait):
		require.FailNow(t, "no event")
		return Event{}
	}
}

func TestSessionSendsAuthBatchThenJoins(t *testing.T) {
	srv := newFakeServer(t)
	s, _ := start(t, testOptions(t, srv.port(), nil))

	conn := srv.accept(t)
	conn.readAuth(t)

	assert.Eventually(t, func() bool { return s.State() == StateServing }, wait, 5*time.Millisecond)
}

func TestSessionEchoEndToEnd(t *testing.T) {
	srv := newFakeServer(t)
	start(t, testOptions(t, srv.port(), nil))

	conn := srv.accept(t)
	conn.readAuth(t)

	conn.send(t, ":bob!bob@bob.tmi.twitch.tv PRIVMSG #chan :!echo hello\r\n")
	assert.Equal(t, "PRIVMSG #chan :hello\r\n", conn.readLine(t))

	// Nothing else was written for that line.
	conn.send(t, "PING :marker\r\n")
	assert.Equal(t, "PONG :marker\r\n", conn.readLine(t))
}

func TestSessionAnswersPing(t *testing.T) {
	srv := newFakeServer(t)
	start(t, testOptions(t, srv.port(), nil))

	conn := srv.accept(t)
	conn.readAuth(t)

	conn.send(t, "PING :tmi.twitch.tv\r\n")
	assert.Equal(t, "PONG :tmi.twitch.tv\r\n", conn.readLine(t))
}

func TestSessionDropsUnparseableLines(t *testing.T) {
	srv := newFakeServer(t)
	s, _ := start(t, testOptions(t, srv.port(), nil))

	conn := srv.accept(t)
	conn.readAuth(t)

	conn.send(t, "@ broken\r\n")
	conn.send(t, ":only-a-prefix\r\n")
	conn.send(t, "PING :still-alive\r\n")

	assert.Equal(t, "PONG :still-alive\r\n", conn.readLine(t))
	assert.Equal(t, StateServing, s.State())
}

func TestSessionAuthFailureStopsAndReports(t *testing.T) {
	srv := newFakeServer(t)
	events := make(chan Event, 1)
	s, _ := start(t, testOptions(t, srv.port(), events))

	conn := srv.accept(t)
	conn.readAuth(t)
	conn.send(t, ":tmi.twitch.tv NOTICE * :Login authentication failed\r\n")

	ev := nextEvent(t, events)
	assert.Equal(t, EventAuthFailed, ev.Kind)
	assert.Equal(t, "bot1", ev.Session)
	assert.Equal(t, "main", ev.Credential)
	assert.Equal(t, s.ID(), ev.Instance)
	assert.ErrorIs(t, ev.Err, protocol.ErrAuthFailed)
	assert.False(t, ev.Authenticated)

	<-s.Done()
	assert.Equal(t, StateFailed, s.State())

	// The session must not come back on its own with the same credential.
	select {
	case <-srv.conns:
		t.Fatal("session reconnected after auth failure")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSessionWithoutAccessTokenNeverDials(t *testing.T) {
	events := make(chan Event, 1)
	opts := testOptions(t, 1, events)
	opts.Credential.AccessToken = ""
	dialer := &countingDialer{err: errors.New("unreachable")}
	opts.Dialer = dialer

	start(t, opts)

	ev := nextEvent(t, events)
	assert.Equal(t, EventAuthFailed, ev.Kind)
	assert.ErrorIs(t, ev.Err, credential.ErrNoAccessToken)
	assert.Equal(t, 0, dialer.calls())
}

func TestSessionWithoutUsernameIsFatal(t *testing.T) {
	events := make(chan Event, 1)
	opts := testOptions(t, 1, events)
	opts.Credential.Username = ""
	dialer := &countingDialer{err: errors.New("unreachable")}
	opts.Dialer = dialer

	start(t, opts)

	ev := nextEvent(t, events)
	assert.Equal(t, EventFatal, ev.Kind)
	assert.ErrorIs(t, ev.Err, credential.ErrNoUsername)
	assert.NotErrorIs(t, ev.Err, protocol.ErrAuthFailed)
	assert.Equal(t, 0, dialer.calls())
}

func TestSessionRejectedAfterLoginReportsAuthenticated(t *testing.T) {
	srv := newFakeServer(t)
	events := make(chan Event, 1)
	start(t, testOptions(t, srv.port(), events))

	conn := srv.accept(t)
	conn.readAuth(t)
	conn.send(t, "PING :tmi.twitch.tv\r\n")
	assert.Equal(t, "PONG :tmi.twitch.tv\r\n", conn.readLine(t))
	conn.send(t, ":tmi.twitch.tv NOTICE * :Login authentication failed\r\n")

	ev := nextEvent(t, events)
	assert.Equal(t, EventAuthFailed, ev.Kind)
	assert.True(t, ev.Authenticated)
}

func TestSessionReconnectsOnRequest(t *testing.T) {
	srv := newFakeServer(t)
	start(t, testOptions(t, srv.port(), nil))

	first := srv.accept(t)
	first.readAuth(t)
	first.send(t, ":tmi.twitch.tv RECONNECT\r\n")

	second := srv.accept(t)
	second.readAuth(t)
}

func TestSessionReconnectsAfterConnectionLoss(t *testing.T) {
	srv := newFakeServer(t)
	start(t, testOptions(t, srv.port(), nil))

	first := srv.accept(t)
	first.readAuth(t)
	require.NoError(t, first.Close())

	second := srv.accept(t)
	second.readAuth(t)
}

type countingDialer struct {
	mu    sync.Mutex
	times []time.Time
	err   error
}

func (d *countingDialer) Dial(context.Context, string, int) (net.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.times = append(d.times, time.Now())
	return nil, d.err
}

func (d *countingDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.times)
}

func TestSessionGivesUpAfterBackoff(t *testing.T) {
	events := make(chan Event, 1)
	opts := testOptions(t, 1, events)
	opts.Backoff = config.Backoff{MaxDelaySecs: 15, Unit: time.Millisecond}
	dialer := &countingDialer{err: errors.New("connection refused")}
	opts.Dialer = dialer

	s, _ := start(t, opts)

	ev := nextEvent(t, events)
	assert.Equal(t, EventFatal, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrConnectExhausted)
	assert.ErrorIs(t, s.Err(), ErrConnectExhausted)

	// Delays 0, 1, 3, 7, 15 units, then 31 is past the ceiling.
	require.Equal(t, 5, dialer.calls())
	for i, want := range []time.Duration{1, 3, 7, 15} {
		gap := dialer.times[i+1].Sub(dialer.times[i])
		assert.GreaterOrEqual(t, gap, want*time.Millisecond, "gap %d", i)
	}
}

// tcpCountingDialer dials for real and counts the dials.
type tcpCountingDialer struct {
	inner Dialer
	mu    sync.Mutex
	n     int
}

func (d *tcpCountingDialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	d.mu.Lock()
	d.n++
	d.mu.Unlock()
	return d.inner.Dial(ctx, host, port)
}

func (d *tcpCountingDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n
}

func TestSessionGivesUpOnFlappingServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()

	events := make(chan Event, 1)
	opts := testOptions(t, ln.Addr().(*net.TCPAddr).Port, events)
	opts.Backoff = config.Backoff{MaxDelaySecs: 3, MaxAttempts: 3, Unit: time.Millisecond}
	dialer := &tcpCountingDialer{inner: opts.Dialer}
	opts.Dialer = dialer

	s, _ := start(t, opts)

	ev := nextEvent(t, events)
	assert.Equal(t, EventFatal, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrConnectExhausted)
	assert.False(t, ev.Authenticated)
	assert.Equal(t, 3, dialer.calls())
	assert.Equal(t, StateFailed, s.State())
}

func TestSessionHealthyConnectionResetsBackoff(t *testing.T) {
	srv := newFakeServer(t)
	opts := testOptions(t, srv.port(), nil)
	opts.Backoff = config.Backoff{MaxDelaySecs: 3, MaxAttempts: 2, Unit: time.Millisecond}
	start(t, opts)

	// More healthy connections than MaxAttempts: each one starts the count over.
	for i := 0; i < 4; i++ {
		conn := srv.accept(t)
		conn.readAuth(t)
		conn.send(t, "PING :alive\r\n")
		assert.Equal(t, "PONG :alive\r\n", conn.readLine(t))
		require.NoError(t, conn.Close())
	}

	srv.accept(t).readAuth(t)
}

func TestSessionStopWhileBackingOff(t *testing.T) {
	events := make(chan Event, 1)
	opts := testOptions(t, 1, events)
	opts.Backoff = config.Backoff{MaxDelaySecs: 100, Unit: time.Hour}
	opts.Dialer = &countingDialer{err: errors.New("connection refused")}

	s, cancel := start(t, opts)
	assert.Eventually(t, func() bool { return opts.Dialer.(*countingDialer).calls() == 1 }, wait, time.Millisecond)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(wait):
		t.Fatal("session blocked in backoff after stop")
	}

	ev := nextEvent(t, events)
	assert.Equal(t, EventStopped, ev.Kind)
	assert.NoError(t, ev.Err)
	assert.Equal(t, StateStopped, s.State())
}

func TestSessionStopWhileServing(t *testing.T) {
	srv := newFakeServer(t)
	events := make(chan Event, 1)
	s, cancel := start(t, testOptions(t, srv.port(), events))

	conn := srv.accept(t)
	conn.readAuth(t)

	cancel()
	<-s.Done()
	assert.Equal(t, EventStopped, nextEvent(t, events).Kind)

	// The server side sees the connection closed.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, err := conn.r.ReadString('\n')
	assert.Error(t, err)
}

func TestSessionWritesAreNotInterleaved(t *testing.T) {
	srv := newFakeServer(t)
	s, _ := start(t, testOptions(t, srv.port(), nil))

	conn := srv.accept(t)
	conn.readAuth(t)
	require.Eventually(t, func() bool { return s.State() == StateServing }, wait, time.Millisecond)

	const writers, perWriter = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Write("PONG :" + strings.Repeat("x", 200))
			}
		}()
	}
	wg.Wait()

	for i := 0; i < writers*perWriter; i++ {
		assert.Equal(t, "PONG :"+strings.Repeat("x", 200)+"\r\n", conn.readLine(t))
	}
}

func TestSayTruncatesLongReplies(t *testing.T) {
	srv := newFakeServer(t)
	s, _ := start(t, testOptions(t, srv.port(), nil))

	conn := srv.accept(t)
	conn.readAuth(t)
	require.Eventually(t, func() bool { return s.State() == StateServing }, wait, time.Millisecond)

	s.Say("chan", strings.Repeat("é", 600))
	assert.Equal(t, "PRIVMSG #chan :"+strings.Repeat("é", 500)+"\r\n", conn.readLine(t))
}

func TestTimeoutLine(t *testing.T) {
	srv := newFakeServer(t)
	start(t, testOptions(t, srv.port(), nil))

	conn := srv.accept(t)
	conn.readAuth(t)

	conn.send(t, ":alice!alice@alice.tmi.twitch.tv PRIVMSG #chan :!purge\r\n")
	assert.Equal(t, "PRIVMSG #chan :/timeout alice 1\r\n", conn.readLine(t))
}

func TestWriteWhileNotServingIsDropped(t *testing.T) {
	s := New(logger.NewWithWriter(io.Discard), testOptions(t, 1, nil))

	done := make(chan struct{})
	go func() {
		s.Write("PING :x")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(wait):
		t.Fatal("write blocked on an idle session")
	}
}
