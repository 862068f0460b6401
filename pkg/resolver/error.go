package resolver

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("no records found")
	ErrNoServer = errors.New("no dns server available")
)

// NoRecordsFoundError is returned when the upstream answered authoritatively
// that the name has no records of the queried types. ValidUntil is derived
// from the SOA in the authority section and is zero when no SOA was sent.
type NoRecordsFoundError struct {
	ValidUntil time.Time
	Name       string
	QueryType  string
}

func (e *NoRecordsFoundError) Error() string {
	if e.ValidUntil.IsZero() {
		return fmt.Sprintf("dns: %s; name '%s', type %s", ErrNotFound, e.Name, e.QueryType)
	}
	return fmt.Sprintf("dns: %s; name '%s', type %s, retry at %s", ErrNotFound, e.Name, e.QueryType, e.ValidUntil.Format(time.RFC3339))
}

func (e *NoRecordsFoundError) Unwrap() error {
	return ErrNotFound
}

// HasHint reports whether the upstream told us when to ask again.
func (e *NoRecordsFoundError) HasHint() bool {
	return !e.ValidUntil.IsZero()
}
