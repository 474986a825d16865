package core

import (
	"fmt"
	"sync/atomic"
)

// Slot holds an optional subsystem that is published once.
type Slot[T any] struct {
	v atomic.Pointer[T]
}

// Set publishes v; it fails if the slot is already filled.
func (s *Slot[T]) Set(v T) bool {
	return s.v.CompareAndSwap(nil, &v)
}

func (s *Slot[T]) Get() (T, bool) {
	p := s.v.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

func setSlot[T any](s *Slot[T], name string, v T) error {
	if !s.Set(v) {
		return fmt.Errorf("%w: %s", ErrSubsystemSet, name)
	}
	return nil
}
