// Package message implements the line grammar of the chat protocol:
//
//	[@tags SP] [:prefix SP] command [SP params] [SP :trailing] CRLF
//
// Parsing is a pure function of the line. A line that is not consumed
// whole by the grammar is rejected with ErrNoMatch.
package message

import (
	"errors"
	"strings"
)

var ErrNoMatch = errors.New("line does not match the message grammar")

type Message struct {
	Tags    string // raw tag block without '@', empty when absent
	Prefix  string // source without ':', empty when absent
	Command string
	Params  string // middle parameters as sent, outer spaces trimmed

	Trailing    string
	HasTrailing bool
}

// Parse parses one line, with or without its CRLF terminator.
func Parse(line string) (*Message, error) {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	if line == "" || strings.ContainsAny(line, "\r\n\x00") {
		return nil, ErrNoMatch
	}

	msg := &Message{}
	rest := line

	if rest[0] == '@' {
		sp := strings.IndexByte(rest, ' ')
		if sp == -1 {
			return nil, ErrNoMatch
		}
		msg.Tags = rest[1:sp]
		if !validTags(msg.Tags) {
			return nil, ErrNoMatch
		}
		rest = strings.TrimLeft(rest[sp:], " ")
	}

	if rest != "" && rest[0] == ':' {
		sp := strings.IndexByte(rest, ' ')
		if sp <= 1 {
			return nil, ErrNoMatch
		}
		msg.Prefix = rest[1:sp]
		rest = strings.TrimLeft(rest[sp:], " ")
	}

	if rest == "" || rest[0] == ':' || rest[0] == '@' {
		return nil, ErrNoMatch
	}

	sp := strings.IndexByte(rest, ' ')
	if sp == -1 {
		msg.Command = rest
		return msg, nil
	}
	msg.Command = rest[:sp]
	rest = rest[sp:]

	// The first " :" opens the trailing parameter; anything after it,
	// including further " :" sequences, belongs to the trailing text.
	if i := strings.Index(rest, " :"); i != -1 {
		msg.Params = strings.Trim(rest[:i], " ")
		msg.Trailing = rest[i+2:]
		msg.HasTrailing = true
	} else {
		msg.Params = strings.Trim(rest, " ")
	}

	return msg, nil
}

func validTags(raw string) bool {
	if raw == "" {
		return false
	}
	for _, tag := range strings.Split(raw, ";") {
		key, _, _ := strings.Cut(tag, "=")
		if key == "" {
			return false
		}
	}
	return true
}

// Nick returns the prefix up to the first '!'.
func (m *Message) Nick() string {
	nick, _, _ := strings.Cut(m.Prefix, "!")
	return nick
}

func (m *Message) ParamList() []string {
	return strings.Fields(m.Params)
}

// Tag returns the raw value of a tag. Values are not unescaped.
func (m *Message) Tag(key string) (string, bool) {
	if m.Tags == "" {
		return "", false
	}
	for _, tag := range strings.Split(m.Tags, ";") {
		k, v, _ := strings.Cut(tag, "=")
		if k == key {
			return v, true
		}
	}
	return "", false
}

// String renders the message back into wire form without the terminator.
func (m *Message) String() string {
	var b strings.Builder
	if m.Tags != "" {
		b.WriteByte('@')
		b.WriteString(m.Tags)
		b.WriteByte(' ')
	}
	if m.Prefix != "" {
		b.WriteByte(':')
		b.WriteString(m.Prefix)
		b.WriteByte(' ')
	}
	b.WriteString(m.Command)
	if m.Params != "" {
		b.WriteByte(' ')
		b.WriteString(m.Params)
	}
	if m.HasTrailing {
		b.WriteString(" :")
		b.WriteString(m.Trailing)
	}
	return b.String()
}
