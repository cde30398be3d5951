// Package stamina implements the player's stamina pip pool.
package stamina

import "time"

const (
	// DefaultMaxPips is the pool size of a fresh Pool.
	DefaultMaxPips = 5
	// DefaultRegenDelay is the time needed to regenerate one pip.
	DefaultRegenDelay = 600 * time.Millisecond
	// MinRegenDelay is the smallest delay SetDelay accepts.
	MinRegenDelay = 10 * time.Millisecond
)

// Pool is a pip counter that regenerates one pip per regen delay while not busy.
// While busy the regen timer bleeds down at half speed so a pip does not pop
// the instant the pool goes idle again.
//
// Invariant: 0 <= Pips() <= Max().
type Pool struct {
	pips  int
	max   int
	delay time.Duration
	timer time.Duration
	busy  bool
}

// New returns a full pool of DefaultMaxPips pips with DefaultRegenDelay.
func New() *Pool {
	return NewPool(DefaultMaxPips, DefaultRegenDelay)
}

// NewPool returns a full pool of maxPips pips regenerating one pip per delay.
//
// Postcondition: maxPips and delay are clamped as by SetMax and SetDelay.
func NewPool(maxPips int, delay time.Duration) *Pool {
	p := &Pool{}
	p.SetMax(maxPips)
	p.SetDelay(delay)
	p.pips = p.max
	return p
}

func (p *Pool) Pips() int                   { return p.pips }
func (p *Pool) Max() int                    { return p.max }
func (p *Pool) Delay() time.Duration        { return p.delay }
func (p *Pool) Busy() bool                  { return p.busy }
func (p *Pool) RegenElapsed() time.Duration { return p.timer }

// Spend removes n pips, clamping at zero.
func (p *Pool) Spend(n int) {
	p.pips = clamp(p.pips-n, 0, p.max)
}

// TrySpend removes n pips only when at least n are available.
//
// Postcondition: Returns true iff the pips were removed.
func (p *Pool) TrySpend(n int) bool {
	if n < 0 || p.pips < n {
		return false
	}
	p.pips -= n
	return true
}

// Give adds n pips, clamping at Max().
func (p *Pool) Give(n int) {
	p.pips = clamp(p.pips+n, 0, p.max)
}

// SetMax sets the pool size; negative sizes become 0 and pips are clamped.
func (p *Pool) SetMax(n int) {
	if n < 0 {
		n = 0
	}
	p.max = n
	if p.pips > n {
		p.pips = n
	}
}

// SetDelay sets the per-pip regen delay, floored at MinRegenDelay.
func (p *Pool) SetDelay(d time.Duration) {
	if d < MinRegenDelay {
		d = MinRegenDelay
	}
	p.delay = d
}

// SetBusy marks the pool busy (regen paused) or idle.
func (p *Pool) SetBusy(busy bool) {
	p.busy = busy
}

// Tick advances regeneration by dt; non-positive dt is ignored.
//
// Postcondition: a full pool has a zero regen timer; an idle pool gains
// floor(elapsed/delay) pips and keeps the remainder.
func (p *Pool) Tick(dt time.Duration) {
	if dt <= 0 {
		return
	}
	if p.pips >= p.max {
		p.timer = 0
		return
	}
	if p.busy {
		p.timer = max(0, p.timer-dt/2)
		return
	}
	t := p.timer + dt
	if t < p.delay {
		p.timer = t
		return
	}
	gained := int(t / p.delay)
	p.pips = min(p.max, p.pips+gained)
	p.timer = t - time.Duration(gained)*p.delay
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
