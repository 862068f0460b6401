package refresher

import (
	"errors"
	"fmt"
	"time"

	"github.com/nite-coder/refresh-dns/pkg/resolver"
)

// State is one of Init, Pending or Valid. The cycle Init -> Pending -> Valid -> Init
// has no terminal state.
type State interface {
	state()
}

// Init means nothing is outstanding and a lookup is about to be issued.
type Init struct{}

// Pending means a lookup is in flight and is given up at Deadline.
type Pending struct {
	Deadline time.Time
}

// Valid means the last outcome holds until Until; no lookup is in flight.
type Valid struct {
	Until time.Time
}

func (Init) state()    {}
func (Pending) state() {}
func (Valid) state()   {}

// Event moves a State forward.
type Event interface {
	event()
}

// Issue starts a lookup.
type Issue struct{}

// Resolved carries a lookup that completed before its deadline.
type Resolved struct {
	Result resolver.Result
}

// Failed carries a lookup error, ErrAttemptTimeout included.
type Failed struct {
	Err error
}

// Expired means the Valid deadline has passed.
type Expired struct{}

func (Issue) event()    {}
func (Resolved) event() {}
func (Failed) event()   {}
func (Expired) event()  {}

var ErrUnexpectedEvent = errors.New("unexpected event")

// Policy holds the two durations that drive the cycle.
type Policy struct {
	AttemptTimeout time.Duration
	FallbackTTL    time.Duration
}

// Next returns the state that follows current when ev happens at now.
func (p Policy) Next(current State, ev Event, now time.Time) (State, error) {
	switch current.(type) {
	case Init:
		if _, ok := ev.(Issue); ok {
			return Pending{Deadline: now.Add(p.AttemptTimeout)}, nil
		}
	case Pending:
		switch e := ev.(type) {
		case Resolved:
			return Valid{Until: notBefore(e.Result.ValidUntil, now)}, nil
		case Failed:
			return Valid{Until: p.retryAt(e.Err, now)}, nil
		}
	case Valid:
		if _, ok := ev.(Expired); ok {
			return Init{}, nil
		}
	}

	return current, fmt.Errorf("%w: %T in state %T", ErrUnexpectedEvent, ev, current)
}

// retryAt honours a "no records, retry at" hint and falls back otherwise.
func (p Policy) retryAt(err error, now time.Time) time.Time {
	var nrf *resolver.NoRecordsFoundError
	if errors.As(err, &nrf) && nrf.HasHint() {
		return notBefore(nrf.ValidUntil, now)
	}
	return now.Add(p.FallbackTTL)
}

func notBefore(t, now time.Time) time.Time {
	if t.Before(now) {
		return now
	}
	return t
}

// remaining is the whole seconds left until deadline, zero once it passed.
func remaining(deadline, now time.Time) time.Duration {
	d := deadline.Sub(now)
	if d <= 0 {
		return 0
	}
	return d.Truncate(time.Second)
}
