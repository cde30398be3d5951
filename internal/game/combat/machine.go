// Package combat implements the player-side combat phase cycle: entering and
// leaving combat, attack cooldown gating and the defend latch.
package combat

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/soulforge/internal/config"
	"github.com/cory-johannsen/soulforge/internal/game/tick"
)

// Phase is the position in the overworld/combat cycle.
type Phase string

const (
	PhaseOverworld      Phase = "overworld"
	PhaseEnteringCombat Phase = "entering_combat"
	PhaseInCombat       Phase = "in_combat"
	PhaseExitingCombat  Phase = "exiting_combat"
)

// SubPhase refines PhaseInCombat with what the player is doing.
type SubPhase string

const (
	SubPhaseNormal    SubPhase = "normal"
	SubPhaseTiming    SubPhase = "timing"
	SubPhaseDefending SubPhase = "defending"
)

// Enemy is the opponent a combat is fought against.
type Enemy interface {
	ID() string
}

// DefeatHandler restores the player after a lost combat. It runs inside the
// delayed exit transition, before the machine returns to the overworld.
type DefeatHandler func()

// Config holds the machine's timings.
type Config struct {
	EnterDelay     time.Duration
	ExitDelay      time.Duration
	AttackWindow   time.Duration
	AttackCooldown time.Duration
	// TimingWindow narrows by TimingPenalty per corruption point, never below MinTimingWindow.
	TimingWindow    time.Duration
	TimingPenalty   time.Duration
	MinTimingWindow time.Duration
}

// DefaultConfig returns the built-in combat timings.
func DefaultConfig() Config {
	return ConfigFrom(config.Default().Combat)
}

// ConfigFrom maps the combat config section onto Config.
func ConfigFrom(c config.CombatConfig) Config {
	return Config{
		EnterDelay:      c.EnterDelay,
		ExitDelay:       c.ExitDelay,
		AttackWindow:    c.AttackWindow,
		AttackCooldown:  c.AttackCooldown,
		TimingWindow:    c.TimingWindow,
		TimingPenalty:   c.TimingPenalty,
		MinTimingWindow: c.MinTimingWindow,
	}
}

// Machine is the combat state machine for one player. It is not safe for
// concurrent use.
//
// Invariant: attack and defend inputs outside PhaseInCombat change nothing.
type Machine struct {
	cfg      Config
	logger   *zap.Logger
	onDefeat DefeatHandler
	onPhase  func(from, to Phase)
	sched    *tick.Scheduler

	phase   Phase
	enemy   Enemy
	victory bool

	attacking      bool
	attackTimer    time.Duration
	attackCooldown time.Duration
	defending      bool
	perfectTiming  bool
}

// NewMachine returns a machine in the overworld.
//
// Precondition: nil logger and onDefeat are no-ops.
func NewMachine(cfg Config, logger *zap.Logger, onDefeat DefeatHandler) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if onDefeat == nil {
		onDefeat = func() {}
	}
	return &Machine{
		cfg:      cfg,
		logger:   logger,
		onDefeat: onDefeat,
		onPhase:  func(Phase, Phase) {},
		sched:    tick.NewScheduler(),
		phase:    PhaseOverworld,
	}
}

// OnPhaseChange registers fn to run after every phase transition; nil clears it.
func (m *Machine) OnPhaseChange(fn func(from, to Phase)) {
	if fn == nil {
		fn = func(Phase, Phase) {}
	}
	m.onPhase = fn
}

func (m *Machine) Phase() Phase                  { return m.phase }
func (m *Machine) CurrentEnemy() Enemy           { return m.enemy }
func (m *Machine) IsPlayerAttacking() bool       { return m.attacking }
func (m *Machine) AttackTimer() time.Duration    { return m.attackTimer }
func (m *Machine) AttackCooldown() time.Duration { return m.attackCooldown }
func (m *Machine) IsDefending() bool             { return m.defending }
func (m *Machine) PerfectTiming() bool           { return m.perfectTiming }

// SubPhase derives the in-combat activity; an active attack shows as timing
// even while defend is held.
func (m *Machine) SubPhase() SubPhase {
	switch {
	case m.attacking:
		return SubPhaseTiming
	case m.defending:
		return SubPhaseDefending
	default:
		return SubPhaseNormal
	}
}

// InitiateCombat begins combat against e and enters PhaseInCombat after EnterDelay.
//
// Precondition: e is non-nil.
// Postcondition: Returns false and changes nothing unless the machine is in the overworld.
func (m *Machine) InitiateCombat(e Enemy) bool {
	if m.phase != PhaseOverworld || e == nil {
		m.logger.Debug("initiate combat refused", zap.String("phase", string(m.phase)))
		return false
	}
	m.enemy = e
	m.clearActions()
	m.setPhase(PhaseEnteringCombat)
	m.sched.After(m.cfg.EnterDelay, func() {
		if m.phase == PhaseEnteringCombat {
			m.setPhase(PhaseInCombat)
		}
	})
	return true
}

// ExitCombat leaves combat and returns to the overworld after ExitDelay. A
// defeat runs the DefeatHandler as part of that delayed transition.
//
// Postcondition: Returns false and changes nothing unless entering or in combat.
func (m *Machine) ExitCombat(victory bool) bool {
	if m.phase != PhaseEnteringCombat && m.phase != PhaseInCombat {
		m.logger.Debug("exit combat refused", zap.String("phase", string(m.phase)))
		return false
	}
	m.victory = victory
	m.clearActions()
	m.setPhase(PhaseExitingCombat)
	m.sched.After(m.cfg.ExitDelay, func() {
		if m.phase != PhaseExitingCombat {
			return
		}
		if !victory {
			m.onDefeat()
			m.logger.Info("player restored after defeat")
		}
		m.enemy = nil
		m.clearActions()
		m.setPhase(PhaseOverworld)
	})
	return true
}

// LastVictory reports the victory flag of the most recent ExitCombat.
func (m *Machine) LastVictory() bool { return m.victory }

// StartAttack opens the attack active window and starts the cooldown.
//
// Postcondition: Returns false and changes nothing outside PhaseInCombat or
// while the cooldown is running.
func (m *Machine) StartAttack() bool {
	if m.phase != PhaseInCombat {
		return false
	}
	if m.attackCooldown > 0 {
		m.logger.Debug("attack on cooldown", zap.Duration("remaining", m.attackCooldown))
		return false
	}
	m.attacking = true
	m.attackTimer = m.cfg.AttackWindow
	m.attackCooldown = m.cfg.AttackCooldown
	return true
}

// EndAttack closes the active window; the cooldown keeps running.
func (m *Machine) EndAttack() {
	m.attacking = false
	m.attackTimer = 0
	m.perfectTiming = false
}

// UpdateAttackTimer runs the attack window and cooldown down by dt. The
// attack ends when its window reaches zero.
func (m *Machine) UpdateAttackTimer(dt time.Duration) {
	if dt <= 0 {
		return
	}
	if m.attacking {
		m.attackTimer = max(0, m.attackTimer-dt)
		if m.attackTimer == 0 {
			m.EndAttack()
		}
	}
	if m.attackCooldown > 0 {
		m.attackCooldown = max(0, m.attackCooldown-dt)
	}
}

// StartDefend raises the defend latch; a no-op outside PhaseInCombat.
func (m *Machine) StartDefend() {
	if m.phase != PhaseInCombat {
		return
	}
	m.defending = true
}

// EndDefend lowers the defend latch; a no-op outside PhaseInCombat.
func (m *Machine) EndDefend() {
	if m.phase != PhaseInCombat {
		return
	}
	m.defending = false
}

// TimingWindow returns the attack timing window for the given corruption.
//
// Postcondition: Returns max(MinTimingWindow, TimingWindow - corruption×TimingPenalty).
func (m *Machine) TimingWindow(corruption int) time.Duration {
	w := m.cfg.TimingWindow - time.Duration(max(0, corruption))*m.cfg.TimingPenalty
	return max(m.cfg.MinTimingWindow, w)
}

// CheckAttackTiming judges an attack press offset from the ideal moment.
// A press within half the corruption-adjusted window either side counts
// and marks the current attack as perfectly timed.
func (m *Machine) CheckAttackTiming(offset time.Duration, corruption int) bool {
	if offset < 0 {
		offset = -offset
	}
	ok := offset <= m.TimingWindow(corruption)/2
	if ok {
		m.perfectTiming = true
	}
	return ok
}

// Advance runs the deferred phase transitions forward by dt.
func (m *Machine) Advance(dt time.Duration) {
	m.sched.Advance(dt)
}

// Reset drops pending transitions and returns to the overworld without
// running the DefeatHandler.
func (m *Machine) Reset() {
	m.sched.Clear()
	m.enemy = nil
	m.victory = false
	m.clearActions()
	if m.phase != PhaseOverworld {
		m.setPhase(PhaseOverworld)
	}
}

func (m *Machine) clearActions() {
	m.attacking = false
	m.attackTimer = 0
	m.attackCooldown = 0
	m.defending = false
	m.perfectTiming = false
}

func (m *Machine) setPhase(p Phase) {
	from := m.phase
	m.phase = p
	fields := []zap.Field{zap.String("from", string(from)), zap.String("to", string(p))}
	if m.enemy != nil {
		fields = append(fields, zap.String("enemy", m.enemy.ID()))
	}
	m.logger.Info("combat phase changed", fields...)
	m.onPhase(from, p)
}
