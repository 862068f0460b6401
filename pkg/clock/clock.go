// Package clock is the time source shared by the resolver and the refreshers.
// Production code runs on the real clock; tests drive a fake one.
package clock

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"k8s.io/utils/clock"
)

// ErrClockFailure means the timer substrate itself misbehaved. Callers treat it as fatal.
var ErrClockFailure = errors.New("clock failure")

type Clock struct {
	base clock.Clock
}

// New wraps base, which is usually clock.RealClock or a testing.FakeClock.
func New(base clock.Clock) *Clock {
	return &Clock{base: base}
}

// Real returns a Clock backed by the system monotonic clock.
func Real() *Clock {
	return New(clock.RealClock{})
}

func (c *Clock) Now() time.Time {
	return c.base.Now()
}

func (c *Clock) NewTimer(d time.Duration) clock.Timer {
	return c.base.NewTimer(d)
}

// DelayUntil blocks until deadline or until ctx is done, in which case ctx.Err() is returned.
// A deadline that already passed yields the processor once and returns.
func (c *Clock) DelayUntil(ctx context.Context, deadline time.Time) error {
	d := deadline.Sub(c.base.Now())
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}

	timer := c.base.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-timer.C():
		if !ok {
			return fmt.Errorf("%w: timer channel closed", ErrClockFailure)
		}
	}

	if now := c.base.Now(); now.Before(deadline) {
		return fmt.Errorf("%w: woke up %s before deadline", ErrClockFailure, deadline.Sub(now))
	}

	return nil
}
