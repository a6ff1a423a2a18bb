// Package system provides the wall clock used for run and row timestamps.
package system

import "time"

// Clock implements edital.Clock using time.Now in UTC.
type Clock struct {
	precision time.Duration
}

// New creates a Clock with full precision.
func New() *Clock {
	return &Clock{}
}

// NewWithPrecision creates a Clock that truncates to precision, e.g.
// time.Microsecond to match Postgres timestamptz.
func NewWithPrecision(precision time.Duration) *Clock {
	return &Clock{precision: precision}
}

// Now returns the current time.
func (c *Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.precision > 0 {
		now = now.Truncate(c.precision)
	}
	return now
}
