package irc

import (
	"errors"
	"time"
	"twitchbot/internal/app/infrastructure/config"
)

var ErrConnectExhausted = errors.New("connection attempts exhausted")

// Backoff yields reconnect delays d0=0, d(n+1)=2*d(n)+1 in units, until the
// next delay passes MaxDelaySecs or MaxAttempts attempts were made.
type Backoff struct {
	maxDelay    int
	maxAttempts int
	unit        time.Duration

	attempts int
	delay    int
}

func NewBackoff(cfg config.Backoff) *Backoff {
	unit := cfg.Unit
	if unit <= 0 {
		unit = time.Second
	}

	return &Backoff{
		maxDelay:    cfg.MaxDelaySecs,
		maxAttempts: cfg.MaxAttempts,
		unit:        unit,
	}
}

// Next returns the wait before the next attempt, or ErrConnectExhausted.
func (b *Backoff) Next() (time.Duration, error) {
	if b.maxAttempts > 0 && b.attempts >= b.maxAttempts {
		return 0, ErrConnectExhausted
	}
	if b.delay > b.maxDelay {
		return 0, ErrConnectExhausted
	}

	d := b.delay
	b.attempts++
	b.delay = 2*d + 1

	return time.Duration(d) * b.unit, nil
}

func (b *Backoff) Attempts() int {
	return b.attempts
}

func (b *Backoff) Reset() {
	b.attempts = 0
	b.delay = 0
}
