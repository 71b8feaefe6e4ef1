// Package clock provides the time source used by the profiler.
//
// Readings are durations since an arbitrary, clock-specific origin. Only the
// difference between two readings of the same clock is meaningful.
package clock

import (
	"sync"
	"time"
)

// Clock is a source of "now".
type Clock interface {
	Now() time.Duration
}

// Elapsed returns end - start, clamped at zero. The second result reports
// whether clamping occurred, which means the clock went backwards.
func Elapsed(start, end time.Duration) (time.Duration, bool) {
	if end < start {
		return 0, true
	}
	return end - start, false
}

// Sub subtracts child from parent without going below zero.
func Sub(parent, child time.Duration) time.Duration {
	if child > parent {
		return 0
	}
	return parent - child
}

// Manual is a clock that only moves when told to. It is used by tests and by
// trace replay, where event timestamps come from the recording.
type Manual struct {
	mu  sync.Mutex
	now time.Duration
}

// NewManual creates a manual clock reading start.
func NewManual(start time.Duration) *Manual {
	return &Manual{now: start}
}

// Now returns the current reading.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is allowed so callers can
// simulate clock anomalies.
func (m *Manual) Set(t time.Duration) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += d
	m.mu.Unlock()
}
