// Package protocol maps protocol command names to the handlers a session runs
// for each received line. One Table is built at startup and shared read-only
// by every session.
package protocol

import (
	"errors"
	"log/slog"
	"twitchbot/internal/app/adapters/commands"
	"twitchbot/internal/app/adapters/metrics"
	"twitchbot/internal/app/domain/message"
	"twitchbot/internal/app/ports"
	"twitchbot/pkg/logger"
)

var (
	ErrAuthFailed = errors.New("login authentication failed")
	ErrReconnect  = errors.New("server requested reconnect")
)

// Session is the view of a session that handlers get.
type Session interface {
	ports.SessionPort

	Commands() *commands.Table
	Logger() logger.Logger
}

type Handler interface {
	Handle(msg *message.Message, s Session) error
}

type HandlerFunc func(msg *message.Message, s Session) error

func (f HandlerFunc) Handle(msg *message.Message, s Session) error {
	return f(msg, s)
}

type Table struct {
	handlers map[string]Handler
}

func NewTable() *Table {
	t := &Table{handlers: make(map[string]Handler)}

	t.Register("PING", &Ping{})
	t.Register("NOTICE", &Notice{})
	t.Register("PRIVMSG", &PrivMsg{})
	t.Register("RECONNECT", &Reconnect{})

	observe := &Observe{}
	for _, cmd := range []string{"001", "CAP", "JOIN", "PART", "USERNOTICE", "CLEARCHAT"} {
		t.Register(cmd, observe)
	}

	return t
}

// Register adds or replaces a handler. It must not be called once sessions
// are dispatching through the table.
func (t *Table) Register(command string, h Handler) {
	t.handlers[command] = h
}

func (t *Table) Lookup(command string) (Handler, bool) {
	h, ok := t.handlers[command]
	return h, ok
}

// Dispatch runs the handler registered for msg.Command. Lines without a
// handler are ignored. Returned errors end the session's connection.
func (t *Table) Dispatch(msg *message.Message, s Session) error {
	h, ok := t.handlers[msg.Command]
	if !ok {
		s.Logger().Trace("No handler for command", slog.String("command", msg.Command))
		return nil
	}

	metrics.ProtocolCommands.WithLabelValues(msg.Command).Inc()
	return h.Handle(msg, s)
}
