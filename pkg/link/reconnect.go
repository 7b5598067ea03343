package link

import (
	"math/rand"
	"time"
)

// Reconnect policy defaults.
const (
	DefaultReconnectBase    = 2 * time.Second
	DefaultReconnectCeiling = 300 * time.Second
	DefaultReconnectJitter  = 0.2
)

// ReconnectPolicy computes exponential-backoff delays for client links.
// The delay for attempt n is base * 2^n clamped to [base, ceiling], then
// multiplied by a uniform jitter factor in [1-j, 1+j].
//
// Not safe for concurrent use; each Runtime owns one policy and accesses
// it under its own mutex.
type ReconnectPolicy struct {
	Base    time.Duration
	Ceiling time.Duration
	Jitter  float64

	attempts int

	// rng yields uniform samples in [0, 1). Injectable for tests.
	rng func() float64
}

// NewReconnectPolicy creates a policy. Non-positive or out-of-range
// parameters fall back to the defaults.
func NewReconnectPolicy(base, ceiling time.Duration, jitter float64) *ReconnectPolicy {
	if base <= 0 {
		base = DefaultReconnectBase
	}
	if ceiling < base {
		ceiling = DefaultReconnectCeiling
	}
	if jitter < 0 || jitter >= 1 {
		jitter = DefaultReconnectJitter
	}
	return &ReconnectPolicy{
		Base:    base,
		Ceiling: ceiling,
		Jitter:  jitter,
		rng:     rand.Float64,
	}
}

// NextDelay returns the delay to wait before the next connect attempt
// and advances the attempt counter.
func (p *ReconnectPolicy) NextDelay() time.Duration {
	d := p.delayFor(p.attempts)
	p.attempts++
	return d
}

func (p *ReconnectPolicy) delayFor(attempt int) time.Duration {
	// Doubling stops at the ceiling, which also keeps 2^attempt from
	// overflowing a Duration.
	d := p.Base
	for i := 0; i < attempt && d < p.Ceiling; i++ {
		d *= 2
	}
	if d > p.Ceiling {
		d = p.Ceiling
	}

	factor := 1 - p.Jitter + 2*p.Jitter*p.rng()
	return time.Duration(float64(d) * factor)
}

// Attempts returns the number of delays handed out since the last reset.
func (p *ReconnectPolicy) Attempts() int {
	return p.attempts
}

// Reset clears the attempt counter. Called on successful connect and on
// explicit stop.
func (p *ReconnectPolicy) Reset() {
	p.attempts = 0
}
