package main

import (
	"fmt"
	"time"

	"github.com/cory-johannsen/soulforge/internal/game/combat"
	"github.com/cory-johannsen/soulforge/internal/game/encounter"
	"github.com/cory-johannsen/soulforge/internal/game/random"
	"github.com/cory-johannsen/soulforge/internal/game/telegraph"
)

// Defensive styles the bot can play.
const (
	StyleEvade = "evade"
	StyleBlock = "block"
	StyleMixed = "mixed"
)

// bot produces scripted player input from the encounter's visible state.
// It reacts to each telegraph once, LeadFrames before the impact frame, and
// misjudges the side with probability Fumble.
type bot struct {
	Style      string
	LeadFrames int
	Fumble     float64

	src      random.Source
	reacted  string
	blocking bool
	stats    botStats
}

type botStats struct {
	Ticks        int
	Attacks      int
	Hits         int
	Telegraphs   int
	Evades       int
	PerfectEvade int
	Blocks       int
	PerfectBlock int
	Kills        int
	Defeats      int
	DamageTaken  float64
}

func newBot(style string, leadFrames int, fumble float64, src random.Source) (*bot, error) {
	switch style {
	case StyleEvade, StyleBlock, StyleMixed:
	default:
		return nil, fmt.Errorf("unknown bot style %q: must be evade, block or mixed", style)
	}
	if leadFrames < 0 {
		return nil, fmt.Errorf("lead frames must not be negative, got %d", leadFrames)
	}
	if fumble < 0 || fumble > 1 {
		return nil, fmt.Errorf("fumble must be in [0, 1], got %v", fumble)
	}
	return &bot{Style: style, LeadFrames: leadFrames, Fumble: fumble, src: src}, nil
}

// Decide returns this tick's input.
func (b *bot) Decide(e *encounter.Encounter, areaID string, living func(areaID string) []string) encounter.Input {
	var in encounter.Input
	m := e.Combat()

	if m.Phase() == combat.PhaseOverworld {
		b.reacted = ""
		b.blocking = false
		if ids := living(areaID); len(ids) > 0 {
			in.Engage = ids[0]
		}
		return in
	}
	if m.Phase() != combat.PhaseInCombat {
		return in
	}

	tele := e.Telegraph()
	switch tele.Phase() {
	case telegraph.PhaseWindingUp, telegraph.PhaseImminent:
		key := fmt.Sprintf("%s@%d", tele.EnemyID(), tele.ImpactFrame())
		if key != b.reacted && tele.ImpactFrame()-tele.CurrentFrame() <= b.LeadFrames {
			b.reacted = key
			b.react(tele.Direction(), &in)
		}
	case telegraph.PhaseIdle:
		b.reacted = ""
		b.blocking = false
	}
	in.Defend = b.blocking

	if !tele.Active() || tele.Phase() == telegraph.PhaseResolving {
		if m.AttackCooldown() == 0 && e.Stamina().Pips() > 0 && !b.blocking {
			in.Attack = true
		}
	}
	return in
}

func (b *bot) react(dir telegraph.Direction, in *encounter.Input) {
	style := b.Style
	if style == StyleMixed {
		style = StyleEvade
		if b.src.Intn(2) == 0 {
			style = StyleBlock
		}
	}
	if style == StyleBlock {
		b.blocking = true
		return
	}
	side := dir
	if side == telegraph.DirectionAny {
		side = telegraph.DirectionLeft
	}
	if b.Fumble > 0 && b.src.Float64() < b.Fumble {
		side = opposite(side)
	}
	in.Evade = side
}

// Observe tallies one tick's events.
func (b *bot) Observe(ev encounter.Events) {
	b.stats.Ticks++
	if ev.AttackStarted {
		b.stats.Attacks++
	}
	if ev.PlayerHit != nil {
		b.stats.Hits++
	}
	if o := ev.Outcome; o != nil {
		b.stats.Telegraphs++
		switch {
		case o.PerfectEvade:
			b.stats.PerfectEvade++
		case o.Evaded:
			b.stats.Evades++
		case o.PerfectBlock:
			b.stats.PerfectBlock++
		case o.Guarded:
			b.stats.Blocks++
		}
	}
	if ev.EnemyHit != nil {
		b.stats.DamageTaken += float64(ev.EnemyHit.FinalDamage)
	}
	if ev.EnemyKilled != "" {
		b.stats.Kills++
	}
	if ev.PlayerDefeated {
		b.stats.Defeats++
	}
}

// Elapsed is the simulated time covered by the observed ticks.
func (b *bot) Elapsed(dt time.Duration) time.Duration {
	return time.Duration(b.stats.Ticks) * dt
}

func opposite(d telegraph.Direction) telegraph.Direction {
	if d == telegraph.DirectionLeft {
		return telegraph.DirectionRight
	}
	return telegraph.DirectionLeft
}
