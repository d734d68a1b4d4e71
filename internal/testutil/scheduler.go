// Package testutil provides deterministic stand-ins for time-based collaborators.
package testutil

import (
	"sort"
	"sync"
	"time"
)

// ManualScheduler is a loop.Scheduler whose time only moves when Advance is called.
//
// Callbacks fire on the goroutine calling Advance, in expiry order. Callbacks with the
// same expiry fire in the order they were scheduled.
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run without the
// internal lock held, so they may schedule further callbacks.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	nextID  int64
	pending []timer
}

type timer struct {
	at time.Duration
	id int64
	fn func()
}

// NewManualScheduler creates a scheduler at virtual time 0.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc registers fn to run once virtual time reaches now+d.
// A non-positive d fires on the next Advance, including Advance(0).
func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.pending = append(s.pending, timer{at: s.now + d, id: s.nextID, fn: fn})
}

// Advance moves virtual time forward by d and fires every callback that came due.
// Callbacks scheduled by a firing callback also fire if they fall within the window.
// Returns the number of callbacks fired.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	fired := 0
	for {
		t, ok := s.popDue(target)
		if !ok {
			break
		}
		t.fn()
		fired++
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
	return fired
}

// popDue removes the earliest timer due at or before target and moves the clock to it.
func (s *ManualScheduler) popDue(target time.Duration) (timer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return timer{}, false
	}
	sort.Slice(s.pending, func(i, j int) bool {
		if s.pending[i].at != s.pending[j].at {
			return s.pending[i].at < s.pending[j].at
		}
		return s.pending[i].id < s.pending[j].id
	})
	t := s.pending[0]
	if t.at > target {
		return timer{}, false
	}
	s.pending = s.pending[1:]
	if t.at > s.now {
		s.now = t.at
	}
	return t, true
}

// Now returns the current virtual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of callbacks not yet fired.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
