// Package tick provides a deterministic deferred-action scheduler driven by
// explicit logical time instead of wall-clock timers.
package tick

import (
	"sort"
	"time"
)

// Handle identifies a scheduled action for cancellation. The zero Handle is never issued.
type Handle uint64

type entry struct {
	handle Handle
	fireAt time.Duration
	action func()
}

// Scheduler runs deferred actions once logical time reaches their fire time.
// It is not safe for concurrent use; the owning state machine drives it from
// its tick function.
//
// Invariant: every action fires at most once; actions fire in fire-time order,
// ties broken by scheduling order.
type Scheduler struct {
	now     time.Duration
	next    Handle
	pending []entry
}

// NewScheduler returns a Scheduler with logical time zero.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the current logical time.
func (s *Scheduler) Now() time.Duration { return s.now }

// Pending returns the number of actions not yet fired or cancelled.
func (s *Scheduler) Pending() int { return len(s.pending) }

// After schedules action to fire once logical time has advanced by delay.
// A non-positive delay fires on the next Advance.
//
// Precondition: action must not be nil.
// Postcondition: Returns a non-zero Handle usable with Cancel.
func (s *Scheduler) After(delay time.Duration, action func()) Handle {
	if delay < 0 {
		delay = 0
	}
	s.next++
	e := entry{handle: s.next, fireAt: s.now + delay, action: action}
	// Keep pending sorted by (fireAt, handle); handles increase monotonically.
	i := sort.Search(len(s.pending), func(i int) bool {
		return s.pending[i].fireAt > e.fireAt
	})
	s.pending = append(s.pending, entry{})
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = e
	return e.handle
}

// Cancel removes the action for h. Safe to call multiple times or with a fired handle.
//
// Postcondition: Returns true iff an unfired action was removed.
func (s *Scheduler) Cancel(h Handle) bool {
	for i, e := range s.pending {
		if e.handle == h {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops every pending action without firing it.
func (s *Scheduler) Clear() {
	s.pending = nil
}

// Advance moves logical time forward by dt and fires every due action.
// Actions scheduled by a firing action that are already due fire in the same call.
//
// Postcondition: Now() increased by max(dt, 0); no pending action has fireAt <= Now().
func (s *Scheduler) Advance(dt time.Duration) {
	if dt > 0 {
		s.now += dt
	}
	for len(s.pending) > 0 && s.pending[0].fireAt <= s.now {
		e := s.pending[0]
		s.pending = s.pending[1:]
		e.action()
	}
}

// Seconds converts a float seconds value into a Duration.
func Seconds(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
