// Package telegraph times an enemy attack's windup, exposes the evade/block
// judgement window and grades the player's timing at impact.
//
// The engine is frame driven: UpdateWindup must be called once per logical
// tick while a windup is active, and Advance once per tick to run the input
// lease and resolve timers.
package telegraph

import (
	"time"

	"github.com/cory-johannsen/soulforge/internal/config"
)

// Phase is the lifecycle position of the active telegraph.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseWindingUp Phase = "winding_up"
	PhaseImminent  Phase = "imminent"
	PhaseImpact    Phase = "impact"
	PhaseResolving Phase = "resolving"
)

// Direction is the side an attack must be evaded toward.
type Direction string

const (
	// DirectionAny accepts an evade in either direction.
	DirectionAny   Direction = ""
	DirectionLeft  Direction = "left"
	DirectionRight Direction = "right"
)

// Timing grades how close to the impact frame the telegraph was resolved.
type Timing string

const (
	TimingPerfect Timing = "PERFECT"
	TimingGood    Timing = "GOOD"
	TimingLate    Timing = "LATE"
)

// Block reductions granted per timing grade.
const (
	PerfectBlockReduction = 0.8
	GoodBlockReduction    = 0.6
	LateBlockReduction    = 0.4
)

// Config holds the engine's timing constants.
type Config struct {
	// TickRate is the logical frame rate used to place the impact frame.
	TickRate int
	// PerfectWindow and GoodWindow are frame distances from the impact frame.
	PerfectWindow int
	GoodWindow    int
	// ImminentThreshold is the windup progress at which the telegraph turns imminent.
	ImminentThreshold float64
	// WindupVariance is the symmetric random jitter added to every windup.
	WindupVariance time.Duration
	// EvadeLease is how long a dodge input stays latched.
	EvadeLease time.Duration
	// ResolveDelay is the pause between resolution and returning to idle.
	ResolveDelay time.Duration
	// HintInteractionCap is the number of successful defenses after which input hints hide.
	HintInteractionCap int
}

// DefaultConfig returns 60 ticks/s, ±2/±4 frame windows, imminent at 80%,
// ±200ms jitter, a 120ms evade lease and a 300ms resolve delay.
func DefaultConfig() Config {
	return Config{
		TickRate:           60,
		PerfectWindow:      2,
		GoodWindow:         4,
		ImminentThreshold:  0.8,
		WindupVariance:     200 * time.Millisecond,
		EvadeLease:         120 * time.Millisecond,
		ResolveDelay:       300 * time.Millisecond,
		HintInteractionCap: 3,
	}
}

// ConfigFrom maps the telegraph config section onto Config.
func ConfigFrom(c config.TelegraphConfig) Config {
	return Config{
		TickRate:           c.TickRate,
		PerfectWindow:      c.PerfectWindow,
		GoodWindow:         c.GoodWindow,
		ImminentThreshold:  c.ImminentThreshold,
		WindupVariance:     c.WindupVariance,
		EvadeLease:         c.EvadeLease,
		ResolveDelay:       c.ResolveDelay,
		HintInteractionCap: c.HintInteractionCap,
	}
}

// Outcome is the judgement produced by ResolveImpact. Evaded and Guarded are
// independent; when both are set evade takes precedence, see DamageFlags.
type Outcome struct {
	EnemyID        string
	Evaded         bool
	Guarded        bool
	BlockReduction float64
	Timing         Timing
	PerfectEvade   bool
	PerfectBlock   bool
	FrameDiff      int
	// Feedback is the player-facing label for the best defense, empty when none landed.
	Feedback string
}

// DamageFlags converts the outcome into damage pipeline flags. An evade
// overrides a simultaneous block: the block flag is cleared so the hit
// resolves as a perfect dodge.
func (o Outcome) DamageFlags() (isPerfectDodge, isBlock bool, blockReduction float64) {
	if o.Evaded {
		return true, false, 0
	}
	return false, o.Guarded, o.BlockReduction
}

// Countered reports whether the outcome earns the player a counter attack.
func (o Outcome) Countered() bool {
	return o.PerfectEvade || o.PerfectBlock
}

// Listener receives telegraph lifecycle notifications; used to trigger
// indicators, sounds and hitstop. Calls are synchronous.
type Listener interface {
	OnWindupStarted(enemyID string, duration time.Duration, dir Direction)
	OnImminent(enemyID string)
	OnImpact(enemyID string)
	OnResolved(o Outcome)
	OnEnded(enemyID string)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	WindupStarted func(enemyID string, duration time.Duration, dir Direction)
	Imminent      func(enemyID string)
	Impact        func(enemyID string)
	Resolved      func(o Outcome)
	Ended         func(enemyID string)
}

func (f ListenerFuncs) OnWindupStarted(enemyID string, d time.Duration, dir Direction) {
	if f.WindupStarted != nil {
		f.WindupStarted(enemyID, d, dir)
	}
}

func (f ListenerFuncs) OnImminent(enemyID string) {
	if f.Imminent != nil {
		f.Imminent(enemyID)
	}
}

func (f ListenerFuncs) OnImpact(enemyID string) {
	if f.Impact != nil {
		f.Impact(enemyID)
	}
}

func (f ListenerFuncs) OnResolved(o Outcome) {
	if f.Resolved != nil {
		f.Resolved(o)
	}
}

func (f ListenerFuncs) OnEnded(enemyID string) {
	if f.Ended != nil {
		f.Ended(enemyID)
	}
}
