package irc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"
	"twitchbot/internal/app/infrastructure/config"
)

const dialTimeout = 10 * time.Second

var ErrUnknownTransport = errors.New("unknown transport")

// Dialer opens the byte stream a session speaks the chat protocol over.
type Dialer interface {
	Dial(ctx context.Context, host string, port int) (net.Conn, error)
}

// NewDialer builds the dialer for a transport name from the config.
// A non-empty proxy routes every connection through SOCKS5.
func NewDialer(transport string, p *config.Proxy) (Dialer, error) {
	base := &tcpDialer{
		resolver: net.DefaultResolver,
		dialer:   &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second},
	}

	if p != nil && p.Address != "" {
		pd, err := proxy.SOCKS5("tcp", net.JoinHostPort(p.Address, strconv.Itoa(p.Port)), nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("socks5 proxy: %w", err)
		}
		cd, ok := pd.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("socks5 proxy: dialer does not accept a context")
		}
		base.proxy = cd
	}

	switch transport {
	case config.TransportTCP:
		return base, nil
	case config.TransportTLS:
		return &tlsDialer{tcp: base, config: &tls.Config{MinVersion: tls.VersionTLS12}}, nil
	case config.TransportWS:
		return &wsDialer{
			secure: true,
			dialer: &websocket.Dialer{
				HandshakeTimeout: dialTimeout,
				NetDialContext:   base.dialContext,
				TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
			},
		}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, transport)
}

type tcpDialer struct {
	resolver *net.Resolver
	dialer   *net.Dialer
	proxy    proxy.ContextDialer
}

// Dial resolves host itself and tries each address in turn. Through a proxy
// the name is resolved on the proxy side.
func (d *tcpDialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	if d.proxy != nil {
		return d.proxy.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	}

	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}

	var errs []error
	for _, addr := range addrs {
		conn, err := d.dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err == nil {
			return conn, nil
		}
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("connect %s: %w", host, errors.Join(errs...))
}

func (d *tcpDialer) dialContext(ctx context.Context, _, addr string) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("bad port in %q: %w", addr, err)
	}
	return d.Dial(ctx, host, port)
}

type tlsDialer struct {
	tcp    *tcpDialer
	config *tls.Config
}

func (d *tlsDialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	raw, err := d.tcp.Dial(ctx, host, port)
	if err != nil {
		return nil, err
	}

	cfg := d.config.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = host
	}

	conn := tls.Client(raw, cfg)
	if err := conn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("tls handshake with %s: %w", host, err)
	}
	return conn, nil
}

type wsDialer struct {
	dialer *websocket.Dialer
	secure bool
}

func (d *wsDialer) Dial(ctx context.Context, host string, port int) (net.Conn, error) {
	u := url.URL{Scheme: "ws", Host: net.JoinHostPort(host, strconv.Itoa(port)), Path: "/"}
	if d.secure {
		u.Scheme = "wss"
	}

	ws, resp, err := d.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket %s: %w", u.String(), err)
	}

	return &wsConn{ws: ws}, nil
}

// wsConn exposes a websocket as a byte stream. Every Write is sent as one
// text frame; Read concatenates incoming frames.
type wsConn struct {
	ws     *websocket.Conn
	reader io.Reader
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}
