package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"twitchbot/internal/app/domain/message"
	"twitchbot/internal/app/domain/queue"
	"twitchbot/internal/app/ports"
)

const multiWordReply = "Queue names are a single word"

// queueName is the one-word name shared by startQ, joinQ and popQ. An empty
// name is passed through so the queue set can report it.
func queueName(args string) (string, bool) {
	fields := strings.Fields(args)
	switch len(fields) {
	case 0:
		return "", true
	case 1:
		return fields[0], true
	default:
		return "", false
	}
}

type StartQ struct {
	queues *queue.Set
}

func (c *StartQ) Execute(msg *message.Message, inv Invocation, s ports.SessionPort) string {
	name, ok := queueName(inv.Args)
	if !ok {
		s.Say(msg.Params, multiWordReply)
		return `Command "startQ" did not create a queue: ` + strconv.Quote(inv.Args) + ` is more than one word`
	}

	_, err := c.queues.Start(name, msg.Nick())
	switch {
	case errors.Is(err, queue.ErrEmptyName):
		s.Say(msg.Params, "Specify a queue name")
		return `Command "startQ" did not create a queue: "" attempted as name`
	case errors.Is(err, queue.ErrExists):
		s.Say(msg.Params, "Queue "+name+" already exists")
		return `Command "startQ" did not create a queue: ` + name + ` already exists`
	case err != nil:
		s.Say(msg.Params, "Could not create queue "+name)
		return `Command "startQ" failed: ` + err.Error()
	}

	s.Say(msg.Params, "Created Queue: "+name)
	return `Command "startQ" created queue: ` + name
}

type ListQ struct {
	queues *queue.Set
}

func (c *ListQ) Execute(msg *message.Message, _ Invocation, s ports.SessionPort) string {
	if c.queues.Len() == 0 {
		s.Say(msg.Params, "There are no queues")
		return `Command "listQ" had no queues to list`
	}

	s.Say(msg.Params, "Queues: "+strings.Join(c.queues.Names(), ", "))
	return fmt.Sprintf(`Command "listQ" listed %d queues`, c.queues.Len())
}

type JoinQ struct {
	queues *queue.Set
}

func (c *JoinQ) Execute(msg *message.Message, inv Invocation, s ports.SessionPort) string {
	name, ok := queueName(inv.Args)
	if !ok {
		s.Say(msg.Params, multiWordReply)
		return `Command "joinQ" failed: ` + strconv.Quote(inv.Args) + ` is more than one word`
	}
	user := msg.Nick()

	pos, err := c.queues.Join(name, user)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		s.Say(msg.Params, fmt.Sprintf("%q is not a queue", name))
		return `Command "joinQ" failed: ` + name + ` is not a queue`
	case errors.Is(err, queue.ErrAlreadyJoined):
		s.Say(msg.Params, "@"+user+", you are already in "+name)
		return `Command "joinQ" ignored duplicate join by ` + user
	case err != nil:
		s.Say(msg.Params, "Could not join "+name)
		return `Command "joinQ" failed: ` + err.Error()
	}

	s.Say(msg.Params, fmt.Sprintf("@%s joined %s at position %d", user, name, pos))
	return `Command "joinQ" added ` + user + ` to ` + name
}

type PopQ struct {
	queues *queue.Set
}

func (c *PopQ) Execute(msg *message.Message, inv Invocation, s ports.SessionPort) string {
	name, count, ok := parsePopArgs(inv.Args)
	if !ok {
		s.Say(msg.Params, "Could not pop: use !popQ <name> [count]")
		return `Command "popQ" could not parse: ` + inv.Args
	}

	popped, err := c.queues.Pop(name, count)
	switch {
	case errors.Is(err, queue.ErrNotFound):
		s.Say(msg.Params, fmt.Sprintf("%q is not a queue", name))
		return `Command "popQ" failed: ` + name + ` is not a queue`
	case errors.Is(err, queue.ErrEmpty):
		s.Say(msg.Params, "Queue "+name+" is empty")
		return `Command "popQ" found ` + name + ` empty`
	case err != nil:
		s.Say(msg.Params, "Could not pop from "+name)
		return `Command "popQ" failed: ` + err.Error()
	}

	reply := "Next from " + name + ": " + strings.Join(popped, ", ")
	if len(popped) < count {
		reply += fmt.Sprintf(" (only %d of %d requested were queued)", len(popped), count)
	}
	s.Say(msg.Params, reply)
	return fmt.Sprintf(`Command "popQ" popped %d from %s`, len(popped), name)
}

func parsePopArgs(args string) (string, int, bool) {
	fields := strings.Fields(args)
	switch len(fields) {
	case 1:
		return fields[0], 1, true
	case 2:
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 1 {
			return "", 0, false
		}
		return fields[0], n, true
	default:
		return "", 0, false
	}
}
