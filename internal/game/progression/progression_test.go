package progression_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/soulforge/internal/game/progression"
)

// firstSrc always picks the first whisper of a tier.
type firstSrc struct{}

func (firstSrc) Float64() float64 { return 0 }
func (firstSrc) Intn(int) int     { return 0 }

func testArea(id, name string, order, enemies int) *progression.Area {
	return &progression.Area{
		ID:         id,
		Name:       name,
		Order:      order,
		EnemyCount: enemies,
		Whispers: progression.Whispers{
			Early: []string{id + " early"},
			Mid:   []string{id + " mid"},
			Late:  []string{id + " late"},
			Death: []string{id + " death"},
		},
	}
}

func testAreas() []*progression.Area {
	return []*progression.Area{
		testArea("Vale", "Hollow Vale", 1, 14),
		testArea("Crypt", "Shattered Crypt", 2, 21),
		testArea("Abyss", "Abyss Below", 3, 7),
	}
}

type recorder struct {
	whispers   []progression.Whisper
	thresholds []progression.Threshold
	bosses     []string
}

func (r *recorder) listener() progression.ListenerFuncs {
	return progression.ListenerFuncs{
		Whisper:          func(w progression.Whisper) { r.whispers = append(r.whispers, w) },
		ThresholdChanged: func(_ string, _, to progression.Threshold) { r.thresholds = append(r.thresholds, to) },
		BossUnlocked:     func(area string) { r.bosses = append(r.bosses, area) },
	}
}

func newTracker(t testing.TB, l progression.Listener) *progression.Tracker {
	t.Helper()
	tr, err := progression.NewTracker(testAreas(), "Vale", 10, firstSrc{}, nil, l)
	require.NoError(t, err)
	return tr
}

func kill(tr *progression.Tracker, n int) {
	for i := 0; i < n; i++ {
		tr.IncrementKillCount(10)
	}
}

func TestNewTracker_InitialState(t *testing.T) {
	tr := newTracker(t, nil)
	assert.Equal(t, "Vale", tr.CurrentArea().ID)
	assert.Equal(t, 14, tr.KillCount())
	assert.Equal(t, 14, tr.TotalRequired())
	assert.Equal(t, progression.ThresholdBaseline, tr.Threshold())
	assert.Zero(t, tr.Ash())
	assert.Zero(t, tr.Dust())
	assert.Zero(t, tr.Corruption())
	assert.False(t, tr.BossUnlocked())
	assert.Zero(t, tr.UICorruptionLevel())
	assert.Equal(t, 10, tr.DefaultAshReward())
}

func TestNewTracker_Errors(t *testing.T) {
	_, err := progression.NewTracker(nil, "Vale", 10, firstSrc{}, nil, nil)
	assert.Error(t, err)
	_, err = progression.NewTracker(testAreas(), "Nowhere", 10, firstSrc{}, nil, nil)
	assert.Error(t, err)
	dup := append(testAreas(), testArea("Vale", "Again", 4, 3))
	_, err = progression.NewTracker(dup, "Vale", 10, firstSrc{}, nil, nil)
	assert.Error(t, err)
}

func TestClassify_Boundaries(t *testing.T) {
	assert.Equal(t, progression.ThresholdEarly, progression.Classify(13, 14))
	assert.Equal(t, progression.ThresholdEarly, progression.Classify(9, 14))
	assert.Equal(t, progression.ThresholdMid, progression.Classify(8, 14))
	assert.Equal(t, progression.ThresholdMid, progression.Classify(4, 14))
	assert.Equal(t, progression.ThresholdLate, progression.Classify(3, 14))
	assert.Equal(t, progression.ThresholdLate, progression.Classify(1, 14))
	assert.Equal(t, progression.ThresholdComplete, progression.Classify(0, 14))
	assert.Equal(t, progression.ThresholdComplete, progression.Classify(0, 3), "small areas still complete at zero")
}

func TestIncrementKillCount_FiveKillsIsEarlySixIsMid(t *testing.T) {
	tr := newTracker(t, nil)
	kill(tr, 5)
	assert.Equal(t, 9, tr.KillCount())
	assert.Equal(t, progression.ThresholdEarly, tr.Threshold())
	assert.Equal(t, progression.EarlyIntensity, tr.UICorruptionLevel())

	kill(tr, 1)
	assert.Equal(t, 8, tr.KillCount())
	assert.Equal(t, progression.ThresholdMid, tr.Threshold())
	assert.Equal(t, progression.MidIntensity, tr.UICorruptionLevel())
}

func TestIncrementKillCount_Currencies(t *testing.T) {
	tr := newTracker(t, nil)
	tr.IncrementKillCount(15)
	tr.IncrementKillCount(10)
	tr.IncrementKillCount(-5)
	assert.Equal(t, 25, tr.Ash())
	assert.Equal(t, 3, tr.Dust())
}

func TestIncrementKillCount_WhispersPerTier(t *testing.T) {
	rec := &recorder{}
	tr := newTracker(t, rec.listener())
	kill(tr, 14)

	require.Len(t, rec.whispers, 13, "the completing kill has no whisper")
	assert.Equal(t, "Vale early", rec.whispers[0].Text)
	assert.Equal(t, progression.EarlyIntensity, rec.whispers[0].Intensity)
	assert.Equal(t, "Vale mid", rec.whispers[5].Text)
	assert.Equal(t, "Vale late", rec.whispers[12].Text)
	assert.Equal(t, progression.LateIntensity, rec.whispers[12].Intensity)
	assert.Equal(t, []progression.Threshold{
		progression.ThresholdEarly, progression.ThresholdMid,
		progression.ThresholdLate, progression.ThresholdComplete,
	}, rec.thresholds)
	assert.Equal(t, progression.CompleteIntensity, tr.UICorruptionLevel())
}

func TestIncrementKillCount_BossUnlocksOnce(t *testing.T) {
	rec := &recorder{}
	tr := newTracker(t, rec.listener())
	kill(tr, 13)
	assert.False(t, tr.BossUnlocked())
	kill(tr, 3)
	assert.True(t, tr.BossUnlocked())
	assert.Zero(t, tr.KillCount(), "remaining floors at zero")
	assert.Equal(t, 16, tr.Dust())
	assert.Equal(t, []string{"Vale"}, rec.bosses)
}

func TestIncrementDeath_CorruptionAndWhisperIntensity(t *testing.T) {
	rec := &recorder{}
	tr := newTracker(t, rec.listener())
	for i := 0; i < 4; i++ {
		tr.IncrementDeath()
	}
	assert.Equal(t, 4, tr.Corruption())
	require.Len(t, rec.whispers, 4)
	assert.Equal(t, "Vale death", rec.whispers[0].Text)
	assert.InDelta(t, 0.8, rec.whispers[0].Intensity, 1e-9)
	assert.InDelta(t, 0.9, rec.whispers[1].Intensity, 1e-9)
	assert.InDelta(t, 0.9, rec.whispers[3].Intensity, 1e-9)
	assert.InDelta(t, 1.6, tr.CorruptionScale(0.15), 1e-9)
}

func TestResetArea(t *testing.T) {
	tr := newTracker(t, nil)
	kill(tr, 3)
	tr.IncrementDeath()
	require.NoError(t, tr.ResetArea("Crypt", 0))
	assert.Equal(t, "Crypt", tr.CurrentArea().ID)
	assert.Equal(t, 21, tr.KillCount())
	assert.Equal(t, progression.ThresholdBaseline, tr.Threshold())
	assert.Zero(t, tr.UICorruptionLevel())
	assert.Equal(t, 30, tr.Ash())
	assert.Equal(t, 1, tr.Corruption())

	require.NoError(t, tr.ResetArea("Abyss", 2))
	assert.Equal(t, 2, tr.TotalRequired())
	assert.Error(t, tr.ResetArea("Nowhere", 0))
	assert.Equal(t, "Abyss", tr.CurrentArea().ID)
}

func TestResetArea_CustomCountScalesThresholds(t *testing.T) {
	tr := newTracker(t, nil)
	require.NoError(t, tr.ResetArea("Crypt", 10))

	kill(tr, 1)
	assert.Equal(t, 9, tr.KillCount())
	assert.Equal(t, progression.ThresholdEarly, tr.Threshold(), "9 of 10 left, not 9 of 21")

	kill(tr, 3)
	assert.Equal(t, progression.ThresholdMid, tr.Threshold())

	kill(tr, 4)
	assert.Equal(t, progression.ThresholdLate, tr.Threshold())
}

func TestTransitionToNextArea_WalksProgression(t *testing.T) {
	rec := &recorder{}
	tr := newTracker(t, rec.listener())
	kill(tr, 14)

	next, ok := tr.TransitionToNextArea()
	require.True(t, ok)
	assert.Equal(t, "Crypt", next.ID)
	assert.Equal(t, 21, tr.KillCount())
	assert.False(t, tr.BossUnlocked())
	assert.Equal(t, []string{"Vale"}, tr.AreasCompleted())
	last := rec.whispers[len(rec.whispers)-1]
	assert.Equal(t, "Entering Shattered Crypt...", last.Text)
	assert.Equal(t, progression.TransitionIntensity, last.Intensity)

	_, ok = tr.TransitionToNextArea()
	require.True(t, ok)
	_, ok = tr.NextArea()
	assert.False(t, ok)

	_, ok = tr.TransitionToNextArea()
	assert.False(t, ok)
	assert.Equal(t, "Abyss", tr.CurrentArea().ID)
	last = rec.whispers[len(rec.whispers)-1]
	assert.Equal(t, progression.FinalWhisper, last.Text)
	assert.Equal(t, progression.CompleteIntensity, last.Intensity)
	assert.Equal(t, []string{"Vale", "Crypt"}, tr.AreasCompleted())
}

func TestResetGenocide_KeepsCurrencies(t *testing.T) {
	tr := newTracker(t, nil)
	require.NoError(t, tr.ResetArea("Abyss", 0))
	kill(tr, 7)
	tr.IncrementDeath()
	tr.ResetGenocide()
	assert.Equal(t, 7, tr.KillCount())
	assert.False(t, tr.BossUnlocked())
	assert.Equal(t, progression.ThresholdBaseline, tr.Threshold())
	assert.Equal(t, 70, tr.Ash())
	assert.Equal(t, 1, tr.Corruption())
}

func TestHardReset_ClearsEverything(t *testing.T) {
	tr := newTracker(t, nil)
	kill(tr, 14)
	tr.TransitionToNextArea()
	tr.IncrementDeath()
	tr.HardReset()
	assert.Equal(t, "Vale", tr.CurrentArea().ID)
	assert.Equal(t, 14, tr.KillCount())
	assert.Zero(t, tr.Ash())
	assert.Zero(t, tr.Dust())
	assert.Zero(t, tr.Corruption())
	assert.Empty(t, tr.AreasCompleted())
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	tr := newTracker(t, nil)
	kill(tr, 14)
	tr.TransitionToNextArea()
	kill(tr, 4)
	tr.IncrementDeath()
	snap := tr.Snapshot()

	other := newTracker(t, nil)
	require.NoError(t, other.Restore(snap))
	assert.Equal(t, snap, other.Snapshot())
	assert.Equal(t, tr.Threshold(), other.Threshold())
	assert.False(t, other.BossUnlocked())
}

func TestRestore_RejectsInvalid(t *testing.T) {
	tr := newTracker(t, nil)
	assert.Error(t, tr.Restore(progression.Snapshot{AreaID: "Nowhere", KillCount: 1, TotalRequired: 1}))
	assert.Error(t, tr.Restore(progression.Snapshot{AreaID: "Vale", KillCount: 5, TotalRequired: 4}))
	assert.Error(t, tr.Restore(progression.Snapshot{AreaID: "Vale", KillCount: 1, TotalRequired: 4, Ash: -1}))
	assert.Equal(t, 14, tr.KillCount())
}

func TestIncrementKillCount_LogsAtDebug(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	tr, err := progression.NewTracker(testAreas(), "Abyss", 10, firstSrc{}, zap.New(core), nil)
	require.NoError(t, err)
	kill(tr, 7)
	assert.Equal(t, 7, logs.FilterMessage("kill registered").Len())
	assert.Equal(t, 1, logs.FilterMessage("area cleared, boss unlocked").Len())
}

func TestLoadAreas_FromDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("b.yaml", `
id: Crypt
name: Shattered Crypt
order: 2
enemy_count: 21
whispers:
  early: ["the ice cracks..."]
  mid: ["frost spreads."]
  late: ["THE VOID OPENS."]
  death: ["frozen in failure."]
`)
	write("a.yaml", `
id: Vale
name: Hollow Vale
order: 1
enemy_count: 14
theme: forest
whispers:
  early: ["keep going..."]
  mid: ["don't stop."]
  late: ["ENOUGH."]
  death: ["you failed them."]
`)
	write("notes.txt", "ignored")

	areas, err := progression.LoadAreas(dir)
	require.NoError(t, err)
	require.Len(t, areas, 2)
	assert.Equal(t, "Vale", areas[0].ID)
	assert.Equal(t, "forest", areas[0].Theme)
	assert.Equal(t, "Crypt", areas[1].ID)
	assert.Equal(t, []string{"frozen in failure."}, areas[1].Whispers.Death)
}

func TestLoadAreas_Errors(t *testing.T) {
	_, err := progression.LoadAreas(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	empty := t.TempDir()
	_, err = progression.LoadAreas(empty)
	assert.Error(t, err)

	dup := t.TempDir()
	body := "id: Vale\nname: V\nenemy_count: 1\nwhispers: {early: [a], mid: [b], late: [c], death: [d]}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dup, "1.yaml"), []byte(body), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dup, "2.yaml"), []byte(body), 0o600))
	_, err = progression.LoadAreas(dup)
	assert.ErrorContains(t, err, "already defined")
}

func TestLoadAreaFromBytes_Validation(t *testing.T) {
	_, err := progression.LoadAreaFromBytes([]byte("id: X\nname: X\nenemy_count: 0\n"))
	assert.ErrorContains(t, err, "enemy_count")
	_, err = progression.LoadAreaFromBytes([]byte("id: X\nname: X\nenemy_count: 3\nwhispers: {early: [a], mid: [b], late: [c]}\n"))
	assert.ErrorContains(t, err, "whispers.death")
	_, err = progression.LoadAreaFromBytes([]byte("id: [unclosed"))
	assert.Error(t, err)
}

func TestProperty_KillCountInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rec := &recorder{}
		tr := newTracker(t, rec.listener())
		ops := rapid.IntRange(1, 60).Draw(rt, "ops")
		lastCorruption := 0
		for i := 0; i < ops; i++ {
			switch rapid.IntRange(0, 3).Draw(rt, "op") {
			case 0, 1:
				tr.IncrementKillCount(rapid.IntRange(0, 20).Draw(rt, "ash"))
			case 2:
				tr.IncrementDeath()
			case 3:
				tr.ResetGenocide()
			}
			if tr.KillCount() < 0 || tr.KillCount() > tr.TotalRequired() {
				rt.Fatalf("kill count %d outside [0,%d]", tr.KillCount(), tr.TotalRequired())
			}
			if tr.Corruption() < lastCorruption {
				rt.Fatalf("corruption decreased")
			}
			lastCorruption = tr.Corruption()
			if tr.BossUnlocked() != (tr.KillCount() == 0) {
				rt.Fatalf("boss unlocked %v with %d remaining", tr.BossUnlocked(), tr.KillCount())
			}
		}
	})
}
