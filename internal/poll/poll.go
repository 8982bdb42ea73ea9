// Package poll waits on asynchronous remote work with an explicit policy:
// interval, optional backoff, attempt cap and deadline. Every wait honours
// context cancellation.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMaxAttempts is returned once Policy.MaxAttempts waits have been used.
	ErrMaxAttempts = errors.New("poll: attempt limit reached")
	// ErrTimeout is returned when the next wait would cross Policy.Timeout.
	ErrTimeout = errors.New("poll: timed out")
)

// DefaultInterval is the fixed wait between status checks.
const DefaultInterval = time.Second

// DefaultTimeout bounds a single wait-for-completion.
const DefaultTimeout = 10 * time.Minute

// Policy controls a poll loop. The zero value polls every DefaultInterval
// forever.
type Policy struct {
	Interval time.Duration
	// MaxInterval caps backoff growth. Ignored unless Multiplier > 1.
	MaxInterval time.Duration
	// Multiplier grows the interval after each wait. Values <= 1 keep it fixed.
	Multiplier float64
	// MaxAttempts caps the number of waits; 0 means unlimited.
	MaxAttempts int
	// Timeout caps total waiting time; 0 means none.
	Timeout time.Duration
}

// DefaultPolicy keeps a fixed one second interval and adds a timeout.
func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, Timeout: DefaultTimeout}
}

// Delay returns the wait before the given 0-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Interval
	if d <= 0 {
		d = DefaultInterval
	}
	if p.Multiplier <= 1 {
		return d
	}
	f := float64(d)
	for i := 0; i < attempt; i++ {
		f *= p.Multiplier
		if p.MaxInterval > 0 && f >= float64(p.MaxInterval) {
			return p.MaxInterval
		}
	}
	return time.Duration(f)
}

// Validate rejects nonsensical policies.
func (p Policy) Validate() error {
	if p.Interval < 0 || p.MaxInterval < 0 || p.Timeout < 0 {
		return fmt.Errorf("poll: durations must not be negative")
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("poll: max attempts must not be negative")
	}
	return nil
}

// Poller tracks one loop's attempts and deadline.
type Poller struct {
	policy   Policy
	clock    Clock
	start    time.Time
	attempts int
}

// Start begins a loop. A nil clock means Real().
func (p Policy) Start(clock Clock) *Poller {
	if clock == nil {
		clock = Real()
	}
	return &Poller{policy: p, clock: clock, start: clock.Now()}
}

// Wait blocks for the next interval. It returns ErrMaxAttempts or ErrTimeout
// without waiting when the policy is exhausted, and ctx.Err() if ctx ends
// first.
func (w *Poller) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.policy.MaxAttempts > 0 && w.attempts >= w.policy.MaxAttempts {
		return fmt.Errorf("%w (%d)", ErrMaxAttempts, w.attempts)
	}
	d := w.policy.Delay(w.attempts)
	if w.policy.Timeout > 0 && w.clock.Now().Sub(w.start)+d > w.policy.Timeout {
		return fmt.Errorf("%w after %s", ErrTimeout, w.clock.Now().Sub(w.start))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.clock.After(d):
	}
	w.attempts++
	return nil
}

// Attempts is the number of completed waits.
func (w *Poller) Attempts() int { return w.attempts }

// Until waits, then calls check, until check reports done or fails.
func Until(ctx context.Context, clock Clock, policy Policy, check func(context.Context) (bool, error)) error {
	w := policy.Start(clock)
	for {
		if err := w.Wait(ctx); err != nil {
			return err
		}
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}
