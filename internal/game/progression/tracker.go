package progression

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/cory-johannsen/soulforge/internal/game/damage"
	"github.com/cory-johannsen/soulforge/internal/game/random"
)

// Threshold is the narrative tier derived from the fraction of enemies remaining.
type Threshold string

const (
	ThresholdBaseline Threshold = "baseline"
	ThresholdEarly    Threshold = "early"
	ThresholdMid      Threshold = "mid"
	ThresholdLate     Threshold = "late"
	ThresholdComplete Threshold = "complete"
)

// Whisper intensities per threshold, and for area transitions.
const (
	EarlyIntensity      = 0.3
	MidIntensity        = 0.6
	LateIntensity       = 0.9
	CompleteIntensity   = 1.0
	TransitionIntensity = 0.8
	// FinalWhisper is emitted when the last area is left behind.
	FinalWhisper = "All is ash. All is void."
)

// Fractions of an area's enemy count that bound the early and mid tiers.
const (
	earlyFraction = 0.7
	midFraction   = 0.3
)

// Whisper is a narrative line emitted by the tracker.
type Whisper struct {
	AreaID    string
	Text      string
	Intensity float64
}

// Listener receives progression notifications. Calls are synchronous.
type Listener interface {
	OnWhisper(w Whisper)
	OnThresholdChanged(areaID string, from, to Threshold)
	OnBossUnlocked(areaID string)
}

// ListenerFuncs adapts optional functions to Listener.
type ListenerFuncs struct {
	Whisper          func(w Whisper)
	ThresholdChanged func(areaID string, from, to Threshold)
	BossUnlocked     func(areaID string)
}

func (f ListenerFuncs) OnWhisper(w Whisper) {
	if f.Whisper != nil {
		f.Whisper(w)
	}
}

func (f ListenerFuncs) OnThresholdChanged(areaID string, from, to Threshold) {
	if f.ThresholdChanged != nil {
		f.ThresholdChanged(areaID, from, to)
	}
}

func (f ListenerFuncs) OnBossUnlocked(areaID string) {
	if f.BossUnlocked != nil {
		f.BossUnlocked(areaID)
	}
}

// Classify returns the threshold for remaining enemies out of an area of size
// total: remaining >= floor(0.7·total) is early, >= floor(0.3·total) is mid,
// >= 1 is late and 0 is complete.
func Classify(remaining, total int) Threshold {
	early := int(math.Floor(float64(total) * earlyFraction))
	mid := int(math.Floor(float64(total) * midFraction))
	switch {
	case remaining >= early && remaining > 0:
		return ThresholdEarly
	case remaining >= mid && remaining > 0:
		return ThresholdMid
	case remaining >= 1:
		return ThresholdLate
	default:
		return ThresholdComplete
	}
}

// Snapshot is the persistable part of a Tracker.
type Snapshot struct {
	AreaID         string   `json:"area"`
	KillCount      int      `json:"kill_count"`
	TotalRequired  int      `json:"total_required"`
	Ash            int      `json:"ash"`
	Dust           int      `json:"dust"`
	Corruption     int      `json:"corruption"`
	AreasCompleted []string `json:"areas_completed"`
}

// Tracker counts kills toward the current area's boss. It is not safe for
// concurrent use.
//
// Invariant: 0 <= KillCount() <= TotalRequired(); Corruption() only decreases on HardReset.
type Tracker struct {
	areas      []*Area
	index      map[string]int
	startArea  string
	defaultAsh int
	src        random.Source
	logger     *zap.Logger
	listener   Listener

	area           *Area
	killCount      int
	totalRequired  int
	threshold      Threshold
	ash            int
	dust           int
	corruption     int
	areasCompleted []string
	uiCorruption   float64
	bossUnlocked   bool
}

// NewTracker returns a tracker positioned at the start of startArea.
//
// Precondition: areas is non-empty, ordered, with unique IDs; src is non-nil.
// Postcondition: Returns an error when startArea is unknown or areas is invalid.
func NewTracker(areas []*Area, startArea string, defaultAsh int, src random.Source, logger *zap.Logger, l Listener) (*Tracker, error) {
	if len(areas) == 0 {
		return nil, fmt.Errorf("progression: at least one area is required")
	}
	index := make(map[string]int, len(areas))
	for i, a := range areas {
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[a.ID]; dup {
			return nil, fmt.Errorf("progression: duplicate area %q", a.ID)
		}
		index[a.ID] = i
	}
	if _, ok := index[startArea]; !ok {
		return nil, fmt.Errorf("progression: unknown start area %q", startArea)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if l == nil {
		l = ListenerFuncs{}
	}
	t := &Tracker{
		areas:      areas,
		index:      index,
		startArea:  startArea,
		defaultAsh: max(0, defaultAsh),
		src:        src,
		logger:     logger,
		listener:   l,
	}
	t.enterArea(areas[index[startArea]], 0)
	return t, nil
}

// SetListener replaces the listener; nil installs a no-op.
func (t *Tracker) SetListener(l Listener) {
	if l == nil {
		l = ListenerFuncs{}
	}
	t.listener = l
}

func (t *Tracker) CurrentArea() *Area         { return t.area }
func (t *Tracker) KillCount() int             { return t.killCount }
func (t *Tracker) TotalRequired() int         { return t.totalRequired }
func (t *Tracker) Threshold() Threshold       { return t.threshold }
func (t *Tracker) Ash() int                   { return t.ash }
func (t *Tracker) Dust() int                  { return t.dust }
func (t *Tracker) Corruption() int            { return t.corruption }
func (t *Tracker) UICorruptionLevel() float64 { return t.uiCorruption }
func (t *Tracker) BossUnlocked() bool         { return t.bossUnlocked }
func (t *Tracker) DefaultAshReward() int      { return t.defaultAsh }

// AreasCompleted returns the IDs of completed areas in completion order.
func (t *Tracker) AreasCompleted() []string {
	return append([]string(nil), t.areasCompleted...)
}

// CorruptionScale returns 1 + Corruption()·k.
func (t *Tracker) CorruptionScale(k float64) float64 {
	return damage.CorruptionScale(t.corruption, k)
}

// IncrementKillCount registers one kill worth ashReward ash.
//
// Postcondition: KillCount() decreased by one, floored at 0; Dust() increased by
// one; the threshold is reclassified and a whisper from its tier emitted; the
// boss unlocks exactly once when KillCount() reaches 0.
func (t *Tracker) IncrementKillCount(ashReward int) {
	t.ash += max(0, ashReward)
	t.dust++
	t.killCount = max(0, t.killCount-1)

	from := t.threshold
	t.threshold = Classify(t.killCount, t.totalRequired)
	t.uiCorruption = tierIntensity(t.threshold)

	t.logger.Debug("kill registered",
		zap.String("area", t.area.ID),
		zap.Int("remaining", t.killCount),
		zap.Int("total", t.totalRequired),
		zap.Int("ash", t.ash),
		zap.Int("dust", t.dust),
		zap.String("threshold", string(t.threshold)),
	)

	if from != t.threshold {
		t.listener.OnThresholdChanged(t.area.ID, from, t.threshold)
	}
	if tier := t.whisperTier(t.threshold); len(tier) > 0 {
		t.emit(random.Pick(t.src, tier), t.uiCorruption)
	}
	if t.killCount == 0 && !t.bossUnlocked {
		t.bossUnlocked = true
		t.logger.Info("area cleared, boss unlocked", zap.String("area", t.area.ID))
		t.listener.OnBossUnlocked(t.area.ID)
	}
}

// IncrementDeath records a player death: corruption rises by one and an area
// death whisper is emitted with intensity 0.7 + min(0.1·corruption, 0.2).
func (t *Tracker) IncrementDeath() {
	t.corruption++
	t.logger.Info("player death recorded",
		zap.String("area", t.area.ID),
		zap.Int("corruption", t.corruption),
	)
	t.emit(random.Pick(t.src, t.area.Whispers.Death), 0.7+math.Min(0.1*float64(t.corruption), 0.2))
}

// ResetArea moves to areaID with enemyCount enemies to clear, or the area's
// own count when enemyCount <= 0. Currencies and corruption are kept.
//
// Postcondition: Returns an error and changes nothing when areaID is unknown.
func (t *Tracker) ResetArea(areaID string, enemyCount int) error {
	i, ok := t.index[areaID]
	if !ok {
		return fmt.Errorf("progression: unknown area %q", areaID)
	}
	t.enterArea(t.areas[i], enemyCount)
	t.logger.Info("area reset", zap.String("area", areaID), zap.Int("enemies", t.totalRequired))
	return nil
}

// NextArea returns the area after the current one.
//
// Postcondition: Returns ok == false in the final area.
func (t *Tracker) NextArea() (*Area, bool) {
	i := t.index[t.area.ID] + 1
	if i >= len(t.areas) {
		return nil, false
	}
	return t.areas[i], true
}

// TransitionToNextArea marks the current area completed and enters the next
// one. In the final area it only emits FinalWhisper.
//
// Postcondition: Returns the new area and true, or nil and false in the final area.
func (t *Tracker) TransitionToNextArea() (*Area, bool) {
	next, ok := t.NextArea()
	if !ok {
		t.logger.Info("final area completed", zap.String("area", t.area.ID))
		t.emit(FinalWhisper, CompleteIntensity)
		return nil, false
	}
	completed := t.area.ID
	t.areasCompleted = append(t.areasCompleted, completed)
	t.enterArea(next, 0)
	t.logger.Info("area transition",
		zap.String("from", completed),
		zap.String("to", next.ID),
		zap.Int("enemies", t.totalRequired),
		zap.Int("areas_completed", len(t.areasCompleted)),
	)
	t.emit(fmt.Sprintf("Entering %s...", next.Name), TransitionIntensity)
	return next, true
}

// ResetGenocide restarts the current area's count, keeping currencies,
// corruption and completed areas.
func (t *Tracker) ResetGenocide() {
	t.enterArea(t.area, t.totalRequired)
	t.logger.Info("area progress reset", zap.String("area", t.area.ID))
}

// HardReset returns every counter to its initial value in the start area,
// including corruption and the completed-area list.
func (t *Tracker) HardReset() {
	t.ash, t.dust, t.corruption = 0, 0, 0
	t.areasCompleted = nil
	t.enterArea(t.areas[t.index[t.startArea]], 0)
	t.logger.Info("progression hard reset", zap.String("area", t.startArea))
}

// Snapshot captures the persistable counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		AreaID:         t.area.ID,
		KillCount:      t.killCount,
		TotalRequired:  t.totalRequired,
		Ash:            t.ash,
		Dust:           t.dust,
		Corruption:     t.corruption,
		AreasCompleted: t.AreasCompleted(),
	}
}

// Restore replaces the tracker's counters with snap. The threshold is derived
// from the restored counts; no listener is notified.
//
// Postcondition: Returns an error and changes nothing when snap names an unknown
// area or violates 0 <= KillCount <= TotalRequired.
func (t *Tracker) Restore(snap Snapshot) error {
	i, ok := t.index[snap.AreaID]
	if !ok {
		return fmt.Errorf("progression: unknown area %q", snap.AreaID)
	}
	if snap.TotalRequired < 1 || snap.KillCount < 0 || snap.KillCount > snap.TotalRequired {
		return fmt.Errorf("progression: kill count %d out of range for total %d", snap.KillCount, snap.TotalRequired)
	}
	if snap.Ash < 0 || snap.Dust < 0 || snap.Corruption < 0 {
		return fmt.Errorf("progression: counters must not be negative")
	}
	t.area = t.areas[i]
	t.totalRequired = snap.TotalRequired
	t.killCount = snap.KillCount
	t.ash, t.dust, t.corruption = snap.Ash, snap.Dust, snap.Corruption
	t.areasCompleted = append([]string(nil), snap.AreasCompleted...)
	t.threshold = ThresholdBaseline
	if t.killCount < t.totalRequired {
		t.threshold = Classify(t.killCount, t.totalRequired)
	}
	t.uiCorruption = tierIntensity(t.threshold)
	t.bossUnlocked = t.killCount == 0
	return nil
}

func (t *Tracker) enterArea(a *Area, enemyCount int) {
	if enemyCount <= 0 {
		enemyCount = a.EnemyCount
	}
	t.area = a
	t.killCount = enemyCount
	t.totalRequired = enemyCount
	t.threshold = ThresholdBaseline
	t.bossUnlocked = false
	t.uiCorruption = 0
}

func (t *Tracker) whisperTier(th Threshold) []string {
	switch th {
	case ThresholdEarly:
		return t.area.Whispers.Early
	case ThresholdMid:
		return t.area.Whispers.Mid
	case ThresholdLate:
		return t.area.Whispers.Late
	default:
		return nil
	}
}

func (t *Tracker) emit(text string, intensity float64) {
	w := Whisper{AreaID: t.area.ID, Text: text, Intensity: intensity}
	t.logger.Debug("whisper", zap.String("area", w.AreaID), zap.String("text", text), zap.Float64("intensity", intensity))
	t.listener.OnWhisper(w)
}

func tierIntensity(th Threshold) float64 {
	switch th {
	case ThresholdEarly:
		return EarlyIntensity
	case ThresholdMid:
		return MidIntensity
	case ThresholdLate:
		return LateIntensity
	case ThresholdComplete:
		return CompleteIntensity
	default:
		return 0
	}
}
