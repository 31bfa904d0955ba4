// Package backoff computes exponential retry delays for the positioning source
// and the supply cache on top of cenkalti/backoff.
package backoff

import (
	"math"
	"time"

	cb "github.com/cenkalti/backoff/v4"
)

// Defaults shared by both retrying components.
const (
	DefaultBase        = time.Second
	DefaultMaxDelay    = 5 * time.Minute
	DefaultMaxAttempts = 5
	Factor             = 2
)

// Policy describes one retry schedule. The n-th consecutive failure (1-based)
// waits Base * Factor^n.
type Policy struct {
	Base     time.Duration
	MaxDelay time.Duration

	// MaxAttempts bounds how many retries are scheduled; 0 = unbounded.
	MaxAttempts int

	// StopAtMax makes a delay above MaxDelay terminal instead of holding at
	// the cap.
	StopAtMax bool
}

// withDefaults fills zero fields.
func (p Policy) withDefaults() Policy {
	if p.Base <= 0 {
		p.Base = DefaultBase
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.MaxAttempts < 0 {
		p.MaxAttempts = 0
	}
	return p
}

// Retrier tracks consecutive failures against a Policy.
// Not safe for concurrent use; owners call it from their serialized queue.
type Retrier struct {
	p        Policy
	b        cb.BackOff
	attempts int
}

// New builds a Retrier in its reset state.
func New(p Policy) *Retrier {
	p = p.withDefaults()

	exp := cb.NewExponentialBackOff()
	exp.InitialInterval = p.Base * Factor
	exp.Multiplier = Factor
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Duration(math.MaxInt64)
	exp.MaxElapsedTime = 0

	var b cb.BackOff = exp
	if p.MaxAttempts > 0 {
		b = cb.WithMaxRetries(exp, uint64(p.MaxAttempts))
	}
	b.Reset()
	return &Retrier{p: p, b: b}
}

// Next records a failure and returns the delay before the next attempt.
// ok is false once the policy is exhausted; the caller should stop retrying
// (and usually Reset).
func (r *Retrier) Next() (delay time.Duration, ok bool) {
	d := r.b.NextBackOff()
	if d == cb.Stop {
		return 0, false
	}
	if d > r.p.MaxDelay || d < 0 {
		if r.p.StopAtMax {
			return 0, false
		}
		d = r.p.MaxDelay
	}
	r.attempts++
	return d, true
}

// Reset returns the Retrier to its base delay and zero attempts.
func (r *Retrier) Reset() {
	r.b.Reset()
	r.attempts = 0
}

// Attempts returns the number of retries scheduled since the last Reset.
func (r *Retrier) Attempts() int { return r.attempts }

// Policy returns the effective policy (defaults applied).
func (r *Retrier) Policy() Policy { return r.p }
