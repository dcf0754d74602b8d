package session

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// Reconnect backoff defaults. Instruments come back within seconds
// after a settings reload and within tens of seconds after a reboot,
// so delays start short and cap low.
const (
	DefaultInitialDelay = 1 * time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
	DefaultJitter       = 0.25
)

// BackoffConfig tunes the reconnect delay sequence. Zero values
// select the defaults; Jitter may be set negative to disable the
// random spread entirely.
type BackoffConfig struct {
	// InitialDelay before the first reconnect attempt.
	InitialDelay time.Duration

	// MaxDelay caps the delay growth.
	MaxDelay time.Duration

	// Multiplier grows the delay after every attempt.
	Multiplier float64

	// Jitter is the fraction of the delay added at random, spreading
	// reconnect storms when many clients lose the same device.
	Jitter float64
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = DefaultMultiplier
	}
	if c.Jitter == 0 {
		c.Jitter = DefaultJitter
	} else if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Backoff produces the delay before each reconnect attempt:
// exponential growth from InitialDelay up to MaxDelay, with a random
// jitter fraction on top. Safe for concurrent use, though a redial
// loop is its usual single caller.
type Backoff struct {
	config BackoffConfig

	mu       sync.Mutex
	delay    time.Duration
	attempts int
}

// NewBackoff creates a backoff sequence. Zero config fields take the
// defaults.
func NewBackoff(config BackoffConfig) *Backoff {
	config = config.withDefaults()
	return &Backoff{config: config, delay: config.InitialDelay}
}

// Next returns the delay to wait before the next attempt and advances
// the sequence.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.jittered(b.delay)
	b.attempts++
	next := time.Duration(float64(b.delay) * b.config.Multiplier)
	if next > b.config.MaxDelay || next < b.delay {
		next = b.config.MaxDelay
	}
	b.delay = next
	return d
}

// Peek returns the delay Next would produce without advancing the
// sequence. The jitter makes repeated calls differ.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jittered(b.delay)
}

// Reset restarts the sequence at InitialDelay, after a successful
// reconnect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay = b.config.InitialDelay
	b.attempts = 0
}

// Attempts returns how many delays were handed out since the last
// Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.config.Jitter <= 0 {
		return d
	}
	extra := float64(d) * b.config.Jitter * rand.Float64()
	if extra > math.MaxInt64-float64(d) {
		return time.Duration(math.MaxInt64)
	}
	return d + time.Duration(extra)
}
