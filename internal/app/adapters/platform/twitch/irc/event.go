package irc

import "github.com/google/uuid"

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateServing
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateServing:
		return "serving"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

type EventKind int

const (
	// EventAuthFailed: the server rejected the credential. The session
	// is done; a new one needs a renewed credential.
	EventAuthFailed EventKind = iota + 1
	// EventFatal: reconnecting was given up.
	EventFatal
	// EventStopped: the session's context was cancelled.
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventAuthFailed:
		return "auth_failed"
	case EventFatal:
		return "fatal"
	case EventStopped:
		return "stopped"
	}
	return "unknown"
}

// Event is how a finished session reports to its owner. Instance tells apart
// sessions that share a name across restarts.
type Event struct {
	Kind       EventKind
	Session    string
	Instance   uuid.UUID
	Credential string
	Err        error
	// Authenticated is set once any connection of the instance got past
	// login, i.e. the server answered a line without rejecting it.
	Authenticated bool
}
