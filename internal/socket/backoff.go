package socket

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays: min(Base*2^attempt, Max), optionally jittered.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
	// Jitter spreads every delay by up to ±Jitter of its value, within [0, Max].
	Jitter float64
}

// Default backoff settings.
const (
	DefaultBaseDelay = 200 * time.Millisecond
	DefaultMaxDelay  = 30 * time.Second
)

// Delay returns the delay before reconnect attempt, counted from zero.
func (b Backoff) Delay(attempt int) time.Duration {
	base, ceil := b.Base, b.Max
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if ceil <= 0 {
		ceil = DefaultMaxDelay
	}
	if base > ceil {
		base = ceil
	}
	d := base
	for i := 0; i < attempt && d < ceil; i++ {
		d *= 2
	}
	if d > ceil {
		d = ceil
	}
	if b.Jitter <= 0 {
		return d
	}
	j := b.Jitter
	if j > 1 {
		j = 1
	}
	d += time.Duration(float64(d) * j * (2*rand.Float64() - 1))
	if d < 0 {
		d = 0
	}
	if d > ceil {
		d = ceil
	}
	return d
}
