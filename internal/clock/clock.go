// Package clock owns the process-relative real-time counter.
//
// Ownership boundary:
// - raw tick sampling
//
// - anti-regression and sleep clamping
//
// The accumulated value never decreases and never advances more than MaxStep
// between two consecutive observations of the raw source.
package clock

import (
	"sync"
	"sync/atomic"
	"time"
)

// MaxStep is the largest advance accepted from a single raw tick delta.
// Larger jumps are treated as the process having been asleep.
const MaxStep int64 = 250

// TickSource reports raw milliseconds from a clock that is advertised as monotonic.
type TickSource interface {
	Ticks() int64
}

// TickFunc adapts a plain function to TickSource.
type TickFunc func() int64

func (f TickFunc) Ticks() int64 { return f() }

// Steady returns a monotonic source counting milliseconds since the call.
func Steady() TickSource {
	start := time.Now()
	return TickFunc(func() int64 {
		return time.Since(start).Milliseconds()
	})
}

// Tracker accumulates real time from a TickSource. Safe for concurrent use.
type Tracker struct {
	src  TickSource
	mu   sync.Mutex
	last atomic.Int64
	real atomic.Int64
}

func NewTracker(src TickSource) *Tracker {
	if src == nil {
		src = Steady()
	}
	return &Tracker{src: src}
}

// RealTime returns accumulated milliseconds.
func (t *Tracker) RealTime() int64 {
	now := t.src.Ticks()
	if now == t.last.Load() {
		return t.real.Load()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	passed := now - t.last.Load()
	if passed < 0 {
		passed = 0
	} else if passed > MaxStep {
		passed = MaxStep
	}
	// real is published before last so a lock-free reader that observes the new
	// last also observes the matching accumulator.
	t.real.Add(passed)
	t.last.Store(now)
	return t.real.Load()
}

// LastTicks returns the most recent raw value folded into the accumulator.
func (t *Tracker) LastTicks() int64 {
	return t.last.Load()
}
