package ports

type ModerationPort interface {
	Timeout(channel, user string, seconds int)
}
