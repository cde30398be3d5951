package encounter

import (
	"sync"
	"time"
)

// idleTimer fires a callback once a session has gone d without activity.
// It is safe for concurrent use.
type idleTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	d       time.Duration
	onFire  func()
	gen     uint64
	stopped bool
}

// newIdleTimer starts a timer that calls onFire after d unless touched or stopped.
// onFire is called in a separate goroutine.
//
// Precondition: d > 0; onFire must not be nil.
func newIdleTimer(d time.Duration, onFire func()) *idleTimer {
	it := &idleTimer{d: d, onFire: onFire}
	it.mu.Lock()
	it.arm()
	it.mu.Unlock()
	return it
}

// Touch restarts the countdown. A no-op after Stop.
func (it *idleTimer) Touch() {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.stopped {
		return
	}
	it.timer.Stop()
	it.arm()
}

// Stop prevents the callback from firing. Safe to call multiple times.
//
// Postcondition: onFire is not called unless it had already begun.
func (it *idleTimer) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.stopped = true
	it.timer.Stop()
}

// arm must be called with mu held. A callback from an earlier generation that
// already started running sees a newer gen and returns.
func (it *idleTimer) arm() {
	it.gen++
	gen := it.gen
	it.timer = time.AfterFunc(it.d, func() {
		it.mu.Lock()
		live := !it.stopped && it.gen == gen
		if live {
			it.stopped = true
		}
		it.mu.Unlock()
		if live {
			it.onFire()
		}
	})
}
