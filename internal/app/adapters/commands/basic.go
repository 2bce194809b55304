package commands

import (
	"fmt"
	"github.com/dlclark/regexp2"
	"github.com/shirou/gopsutil/cpu"
	"runtime"
	"strings"
	"time"
	"twitchbot/internal/app/domain/message"
	"twitchbot/internal/app/ports"
)

// ServiceHost is the host part of every chat user's prefix.
const ServiceHost = "tmi.twitch.tv"

var purgeUserRe = regexp2.MustCompile(`^(\w+)!\1@\1\.`+regexp2.Escape(ServiceHost)+`$`, regexp2.None)

type Test struct{}

func (c *Test) Execute(msg *message.Message, _ Invocation, s ports.SessionPort) string {
	s.Say(msg.Params, "This is a test")
	return `Command "test" fired`
}

type Echo struct{}

func (c *Echo) Execute(msg *message.Message, inv Invocation, s ports.SessionPort) string {
	s.Say(msg.Params, inv.Args)
	return `Command "echo" fired, echoed: ` + inv.Args
}

type Endorse struct{}

func (c *Endorse) Execute(msg *message.Message, inv Invocation, s ports.SessionPort) string {
	target := strings.TrimSpace(inv.Args)
	if target == "" {
		s.Say(msg.Params, "Specify who to endorse")
		return `Command "endorse" had nobody to endorse`
	}

	s.Say(msg.Params, target+" is pretty cool")
	return `Command "endorse" fired, endorsed: ` + target
}

// Purge times the invoking user out for one second, which clears their messages.
type Purge struct{}

func (c *Purge) Execute(msg *message.Message, _ Invocation, s ports.SessionPort) string {
	user, ok := PurgeTarget(msg.Prefix)
	if !ok {
		s.Say(msg.Params, "Could not find user")
		return `Command "purge" could not find the user to purge`
	}

	s.Timeout(msg.Params, user, 1)
	return `Command "purge" purged ` + user + ` from the chat`
}

// PurgeTarget extracts the identity from a prefix of the form name!name@name.<ServiceHost>.
func PurgeTarget(prefix string) (string, bool) {
	m, err := purgeUserRe.FindStringMatch(prefix)
	if err != nil || m == nil {
		return "", false
	}
	return m.GroupByNumber(1).String(), true
}

var startApp = time.Now()

// Ping reports uptime and resource usage of the bot process.
type Ping struct {
	started time.Time
}

func (c *Ping) Execute(msg *message.Message, _ Invocation, s ports.SessionPort) string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	percent, _ := cpu.Percent(0, false)
	if len(percent) == 0 {
		percent = append(percent, 0)
	}

	s.Say(msg.Params, fmt.Sprintf("session up %v • process up %v • CPU %.2f%% • RAM %v MB",
		time.Since(c.started).Truncate(time.Second), time.Since(startApp).Truncate(time.Second), percent[0], m.Sys/1024/1024))
	return `Command "ping" fired`
}
