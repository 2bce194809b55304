package ports

// SessionPort is what dispatch handlers see of the session a line arrived on.
// Writes are queued and sent in order by the session's single writer.
type SessionPort interface {
	ModerationPort

	Name() string
	Nick() string
	Write(line string)
	Say(channel, text string)
}
