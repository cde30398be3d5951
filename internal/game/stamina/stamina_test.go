package stamina_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/soulforge/internal/game/stamina"
)

func TestNew_Defaults(t *testing.T) {
	p := stamina.New()
	assert.Equal(t, 5, p.Pips())
	assert.Equal(t, 5, p.Max())
	assert.Equal(t, 600*time.Millisecond, p.Delay())
	assert.False(t, p.Busy())
}

func TestSpendGive_Clamp(t *testing.T) {
	p := stamina.New()
	p.Spend(7)
	assert.Equal(t, 0, p.Pips())
	p.Give(2)
	assert.Equal(t, 2, p.Pips())
	p.Give(10)
	assert.Equal(t, 5, p.Pips())
}

func TestTrySpend(t *testing.T) {
	p := stamina.NewPool(2, time.Second)
	assert.True(t, p.TrySpend(1))
	assert.True(t, p.TrySpend(1))
	assert.False(t, p.TrySpend(1))
	assert.Equal(t, 0, p.Pips())
	assert.False(t, p.TrySpend(-1))
}

func TestSetMax_ClampsPips(t *testing.T) {
	p := stamina.New()
	p.SetMax(3)
	assert.Equal(t, 3, p.Pips())
	p.SetMax(-4)
	assert.Equal(t, 0, p.Max())
	assert.Equal(t, 0, p.Pips())
}

func TestSetDelay_Floor(t *testing.T) {
	p := stamina.New()
	p.SetDelay(0)
	assert.Equal(t, stamina.MinRegenDelay, p.Delay())
}

func TestTick_RegeneratesWholePipsAndKeepsRemainder(t *testing.T) {
	p := stamina.New()
	p.Spend(5)
	p.Tick(500 * time.Millisecond)
	assert.Equal(t, 0, p.Pips())
	p.Tick(800 * time.Millisecond)
	assert.Equal(t, 2, p.Pips())
	assert.Equal(t, 100*time.Millisecond, p.RegenElapsed())
}

func TestTick_FullPoolResetsTimer(t *testing.T) {
	p := stamina.New()
	p.Spend(1)
	p.Tick(300 * time.Millisecond)
	p.Give(1)
	p.Tick(time.Millisecond)
	assert.Zero(t, p.RegenElapsed())
}

func TestTick_BusyBleedsTimerAtHalfSpeed(t *testing.T) {
	p := stamina.New()
	p.Spend(1)
	p.Tick(400 * time.Millisecond)
	p.SetBusy(true)
	p.Tick(200 * time.Millisecond)
	assert.Equal(t, 300*time.Millisecond, p.RegenElapsed())
	assert.Equal(t, 4, p.Pips())
	p.Tick(time.Second)
	assert.Zero(t, p.RegenElapsed())
	assert.Equal(t, 4, p.Pips())
}

func TestProperty_PipsStayInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p := stamina.NewPool(rapid.IntRange(0, 10).Draw(rt, "max"), 600*time.Millisecond)
		ops := rapid.IntRange(1, 50).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			n := rapid.IntRange(-3, 8).Draw(rt, "n")
			switch rapid.IntRange(0, 4).Draw(rt, "op") {
			case 0:
				p.Spend(n)
			case 1:
				p.Give(n)
			case 2:
				p.TrySpend(n)
			case 3:
				p.SetBusy(n%2 == 0)
			case 4:
				p.Tick(time.Duration(n) * 100 * time.Millisecond)
			}
			if p.Pips() < 0 || p.Pips() > p.Max() {
				rt.Fatalf("pips %d outside [0,%d]", p.Pips(), p.Max())
			}
			if p.RegenElapsed() < 0 {
				rt.Fatalf("negative regen timer %v", p.RegenElapsed())
			}
		}
	})
}
