package combat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/soulforge/internal/game/combat"
)

type testEnemy string

func (e testEnemy) ID() string { return string(e) }

func newMachine(t testing.TB, onDefeat combat.DefeatHandler) *combat.Machine {
	t.Helper()
	return combat.NewMachine(combat.DefaultConfig(), nil, onDefeat)
}

// enterCombat drives m from the overworld into PhaseInCombat.
func enterCombat(t *testing.T, m *combat.Machine) {
	t.Helper()
	require.True(t, m.InitiateCombat(testEnemy("e1")))
	m.Advance(700 * time.Millisecond)
	require.Equal(t, combat.PhaseInCombat, m.Phase())
}

func TestDefaultConfig(t *testing.T) {
	cfg := combat.DefaultConfig()
	assert.Equal(t, 700*time.Millisecond, cfg.EnterDelay)
	assert.Equal(t, 1200*time.Millisecond, cfg.ExitDelay)
	assert.Equal(t, 400*time.Millisecond, cfg.AttackWindow)
	assert.Equal(t, 800*time.Millisecond, cfg.AttackCooldown)
}

func TestInitiateCombat_EntersAfterDelay(t *testing.T) {
	m := newMachine(t, nil)
	require.True(t, m.InitiateCombat(testEnemy("e1")))
	assert.Equal(t, combat.PhaseEnteringCombat, m.Phase())
	assert.Equal(t, "e1", m.CurrentEnemy().ID())

	m.Advance(699 * time.Millisecond)
	assert.Equal(t, combat.PhaseEnteringCombat, m.Phase())
	m.Advance(time.Millisecond)
	assert.Equal(t, combat.PhaseInCombat, m.Phase())
}

func TestInitiateCombat_OnlyFromOverworld(t *testing.T) {
	m := newMachine(t, nil)
	enterCombat(t, m)
	assert.False(t, m.InitiateCombat(testEnemy("e2")))
	assert.Equal(t, "e1", m.CurrentEnemy().ID())
	assert.False(t, newMachine(t, nil).InitiateCombat(nil))
}

func TestExitCombat_DuringEnter_CancelsEntry(t *testing.T) {
	m := newMachine(t, nil)
	require.True(t, m.InitiateCombat(testEnemy("e1")))
	m.Advance(300 * time.Millisecond)
	require.True(t, m.ExitCombat(true))
	m.Advance(400 * time.Millisecond)
	assert.Equal(t, combat.PhaseExitingCombat, m.Phase(), "stale enter transition must not fire")
	m.Advance(800 * time.Millisecond)
	assert.Equal(t, combat.PhaseOverworld, m.Phase())
}

func TestExitCombat_Victory(t *testing.T) {
	defeats := 0
	m := newMachine(t, func() { defeats++ })
	enterCombat(t, m)
	require.True(t, m.ExitCombat(true))
	assert.Equal(t, combat.PhaseExitingCombat, m.Phase())
	m.Advance(1199 * time.Millisecond)
	assert.Equal(t, combat.PhaseExitingCombat, m.Phase())
	m.Advance(time.Millisecond)
	assert.Equal(t, combat.PhaseOverworld, m.Phase())
	assert.Nil(t, m.CurrentEnemy())
	assert.Zero(t, defeats)
	assert.True(t, m.LastVictory())
}

func TestExitCombat_DefeatRunsHandlerOnce(t *testing.T) {
	var phaseAtDefeat combat.Phase
	defeats := 0
	var m *combat.Machine
	m = newMachine(t, func() {
		defeats++
		phaseAtDefeat = m.Phase()
	})
	enterCombat(t, m)
	require.True(t, m.ExitCombat(false))
	assert.False(t, m.ExitCombat(false), "second exit must be refused")
	assert.Zero(t, defeats, "defeat handling is deferred")
	m.Advance(1200 * time.Millisecond)
	assert.Equal(t, 1, defeats)
	assert.Equal(t, combat.PhaseExitingCombat, phaseAtDefeat)
	assert.Equal(t, combat.PhaseOverworld, m.Phase())
}

func TestExitCombat_RefusedInOverworld(t *testing.T) {
	m := newMachine(t, nil)
	assert.False(t, m.ExitCombat(false))
	assert.Equal(t, combat.PhaseOverworld, m.Phase())
}

func TestStartAttack_WindowAndCooldown(t *testing.T) {
	m := newMachine(t, nil)
	enterCombat(t, m)

	require.True(t, m.StartAttack())
	assert.True(t, m.IsPlayerAttacking())
	assert.Equal(t, combat.SubPhaseTiming, m.SubPhase())
	assert.Equal(t, 400*time.Millisecond, m.AttackTimer())
	assert.Equal(t, 800*time.Millisecond, m.AttackCooldown())

	assert.False(t, m.StartAttack(), "on cooldown")

	m.UpdateAttackTimer(400 * time.Millisecond)
	assert.False(t, m.IsPlayerAttacking())
	assert.Equal(t, combat.SubPhaseNormal, m.SubPhase())
	assert.False(t, m.StartAttack(), "cooldown still running")

	m.UpdateAttackTimer(400 * time.Millisecond)
	assert.Zero(t, m.AttackCooldown())
	assert.True(t, m.StartAttack())
}

func TestEndAttack_KeepsCooldown(t *testing.T) {
	m := newMachine(t, nil)
	enterCombat(t, m)
	require.True(t, m.StartAttack())
	m.EndAttack()
	assert.False(t, m.IsPlayerAttacking())
	assert.Equal(t, 800*time.Millisecond, m.AttackCooldown())
}

func TestDefend_LevelLatch(t *testing.T) {
	m := newMachine(t, nil)
	m.StartDefend()
	assert.False(t, m.IsDefending(), "defend outside combat is ignored")

	enterCombat(t, m)
	m.StartDefend()
	assert.True(t, m.IsDefending())
	assert.Equal(t, combat.SubPhaseDefending, m.SubPhase())
	m.EndDefend()
	assert.False(t, m.IsDefending())
	assert.Equal(t, combat.SubPhaseNormal, m.SubPhase())
}

func TestExitCombat_ClearsActions(t *testing.T) {
	m := newMachine(t, nil)
	enterCombat(t, m)
	m.StartDefend()
	require.True(t, m.StartAttack())
	require.True(t, m.ExitCombat(true))
	assert.False(t, m.IsPlayerAttacking())
	assert.False(t, m.IsDefending())
	assert.Zero(t, m.AttackCooldown())
}

func TestTimingWindow_NarrowsWithCorruption(t *testing.T) {
	m := newMachine(t, nil)
	assert.Equal(t, 300*time.Millisecond, m.TimingWindow(0))
	assert.Equal(t, 200*time.Millisecond, m.TimingWindow(2))
	assert.Equal(t, 100*time.Millisecond, m.TimingWindow(4))
	assert.Equal(t, 100*time.Millisecond, m.TimingWindow(9))
	assert.Equal(t, 300*time.Millisecond, m.TimingWindow(-1))
}

func TestCheckAttackTiming_HalfWindowEitherSide(t *testing.T) {
	m := newMachine(t, nil)
	assert.True(t, m.CheckAttackTiming(150*time.Millisecond, 0))
	assert.True(t, m.CheckAttackTiming(-150*time.Millisecond, 0))
	assert.True(t, m.PerfectTiming())
	m.EndAttack()
	assert.False(t, m.CheckAttackTiming(151*time.Millisecond, 0))
	assert.False(t, m.PerfectTiming())
	assert.False(t, m.CheckAttackTiming(60*time.Millisecond, 4))
}

func TestReset_DropsPendingTransitions(t *testing.T) {
	defeats := 0
	m := newMachine(t, func() { defeats++ })
	enterCombat(t, m)
	require.True(t, m.ExitCombat(false))
	m.Reset()
	m.Advance(2 * time.Second)
	assert.Equal(t, combat.PhaseOverworld, m.Phase())
	assert.Zero(t, defeats)
}

func TestOnPhaseChange_FullCycle(t *testing.T) {
	m := newMachine(t, nil)
	var seen []combat.Phase
	m.OnPhaseChange(func(_, to combat.Phase) { seen = append(seen, to) })
	enterCombat(t, m)
	m.ExitCombat(true)
	m.Advance(2 * time.Second)
	assert.Equal(t, []combat.Phase{
		combat.PhaseEnteringCombat, combat.PhaseInCombat,
		combat.PhaseExitingCombat, combat.PhaseOverworld,
	}, seen)
}

func TestPhaseTransitions_LoggedAtInfo(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := combat.NewMachine(combat.DefaultConfig(), zap.New(core), nil)
	m.InitiateCombat(testEnemy("e9"))
	entries := logs.FilterMessage("combat phase changed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "entering_combat", entries[0].ContextMap()["to"])
	assert.Equal(t, "e9", entries[0].ContextMap()["enemy"])
}

func TestProperty_InputsOutsideCombatAreNoOps(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := newMachine(t, nil)
		steps := rapid.IntRange(1, 40).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch rapid.IntRange(0, 4).Draw(rt, "op") {
			case 0:
				if m.StartAttack() {
					rt.Fatalf("StartAttack accepted in overworld")
				}
			case 1:
				m.StartDefend()
			case 2:
				m.EndDefend()
			case 3:
				m.UpdateAttackTimer(time.Duration(rapid.IntRange(0, 500).Draw(rt, "dtMs")) * time.Millisecond)
			case 4:
				m.Advance(time.Duration(rapid.IntRange(0, 2000).Draw(rt, "advMs")) * time.Millisecond)
			}
			if m.Phase() != combat.PhaseOverworld || m.IsPlayerAttacking() || m.IsDefending() ||
				m.AttackCooldown() != 0 || m.SubPhase() != combat.SubPhaseNormal {
				rt.Fatalf("state changed outside combat: phase=%s", m.Phase())
			}
		}
	})
}

func TestProperty_CooldownNeverNegative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := newMachine(t, nil)
		m.InitiateCombat(testEnemy("e"))
		m.Advance(time.Second)
		for i := 0; i < 30; i++ {
			if rapid.Bool().Draw(rt, "attack") {
				m.StartAttack()
			}
			m.UpdateAttackTimer(time.Duration(rapid.IntRange(0, 300).Draw(rt, "dtMs")) * time.Millisecond)
			if m.AttackCooldown() < 0 || m.AttackTimer() < 0 || m.AttackTimer() > m.AttackCooldown() {
				rt.Fatalf("timer %v cooldown %v", m.AttackTimer(), m.AttackCooldown())
			}
		}
	})
}
