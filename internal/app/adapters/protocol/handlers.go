package protocol

import (
	"log/slog"
	"twitchbot/internal/app/adapters/commands"
	"twitchbot/internal/app/domain/message"
)

// Trailing payloads of a NOTICE that mean the credential was refused.
var authFailureNotices = map[string]struct{}{
	"Login authentication failed": {},
	"Improperly formatted auth":   {},
}

type Ping struct{}

func (h *Ping) Handle(msg *message.Message, s Session) error {
	switch {
	case msg.HasTrailing:
		s.Write("PONG :" + msg.Trailing)
	case msg.Params != "":
		s.Write("PONG " + msg.Params)
	default:
		s.Write("PONG")
	}
	return nil
}

type Notice struct{}

func (h *Notice) Handle(msg *message.Message, s Session) error {
	if _, ok := authFailureNotices[msg.Trailing]; ok {
		s.Logger().Warn("Server rejected credential", slog.String("notice", msg.Trailing))
		return ErrAuthFailed
	}

	s.Logger().Info("Notice", slog.String("target", msg.Params), slog.String("text", msg.Trailing))
	return nil
}

// PrivMsg runs bot commands found in chat messages against the session's own
// command table.
type PrivMsg struct{}

func (h *PrivMsg) Handle(msg *message.Message, s Session) error {
	inv, ok := commands.ParseInvocation(msg.Trailing)
	if !ok {
		return nil
	}

	s.Commands().Invoke(msg, inv, s)
	return nil
}

type Reconnect struct{}

func (h *Reconnect) Handle(_ *message.Message, s Session) error {
	s.Logger().Info("Server asked for a reconnect")
	return ErrReconnect
}

// Observe only logs the line.
type Observe struct{}

func (h *Observe) Handle(msg *message.Message, s Session) error {
	s.Logger().Debug("Received",
		slog.String("command", msg.Command),
		slog.String("params", msg.Params),
		slog.String("trailing", msg.Trailing),
	)
	return nil
}
