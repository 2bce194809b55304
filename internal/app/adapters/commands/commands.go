// Package commands holds the bot commands chat users invoke with "!name args".
// Every session owns a fresh Table, so queue state never leaks between sessions.
package commands

import (
	"log/slog"
	"regexp"
	"time"
	"twitchbot/internal/app/adapters/metrics"
	"twitchbot/internal/app/domain/message"
	"twitchbot/internal/app/domain/queue"
	"twitchbot/internal/app/ports"
	"twitchbot/pkg/logger"
)

var invocationRe = regexp.MustCompile(`^!(\w+)\s*(.*)$`)

// Invocation is the "!name args" part of a chat message.
type Invocation struct {
	Name string
	Args string
}

func ParseInvocation(body string) (Invocation, bool) {
	m := invocationRe.FindStringSubmatch(body)
	if m == nil {
		return Invocation{}, false
	}
	return Invocation{Name: m[1], Args: m[2]}, true
}

// Command handles one bot command. It may write replies through the session
// and returns a short description of what it did, for the log.
type Command interface {
	Execute(msg *message.Message, inv Invocation, s ports.SessionPort) string
}

type Table struct {
	log      logger.Logger
	queues   *queue.Set
	commands map[string]Command
}

func NewTable(log logger.Logger) *Table {
	t := &Table{
		log:    log,
		queues: queue.NewSet(),
	}

	t.commands = map[string]Command{
		"test":    &Test{},
		"echo":    &Echo{},
		"endorse": &Endorse{},
		"purge":   &Purge{},
		"ping":    &Ping{started: time.Now()},
		"startQ":  &StartQ{queues: t.queues},
		"listQ":   &ListQ{queues: t.queues},
		"joinQ":   &JoinQ{queues: t.queues},
		"popQ":    &PopQ{queues: t.queues},
	}

	return t
}

// Invoke runs the command named by inv. Unknown names are ignored.
func (t *Table) Invoke(msg *message.Message, inv Invocation, s ports.SessionPort) (string, bool) {
	cmd, ok := t.commands[inv.Name]
	if !ok {
		t.log.Trace("Unknown bot command", slog.String("command", inv.Name))
		return "", false
	}

	metrics.UserCommands.WithLabelValues(s.Name(), inv.Name).Inc()

	result := cmd.Execute(msg, inv, s)
	t.log.Info("Command fired", slog.String("command", inv.Name), slog.String("user", msg.Nick()), slog.String("result", result))
	return result, true
}

func (t *Table) Queues() *queue.Set {
	return t.queues
}

func (t *Table) Names() []string {
	names := make([]string, 0, len(t.commands))
	for name := range t.commands {
		names = append(names, name)
	}
	return names
}
