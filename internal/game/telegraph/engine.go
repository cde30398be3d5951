package telegraph

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/soulforge/internal/game/random"
	"github.com/cory-johannsen/soulforge/internal/game/tick"
)

// Engine owns one telegraph. It is not safe for concurrent use; a single tick
// loop drives it.
//
// Invariant: at most one telegraph is active; phases run
// idle → winding_up → imminent → impact → resolving → idle.
type Engine struct {
	cfg      Config
	src      random.Source
	logger   *zap.Logger
	listener Listener
	sched    *tick.Scheduler

	phase          Phase
	windupProgress float64
	windupDuration time.Duration
	direction      Direction
	enemyID        string
	currentFrame   int
	impactFrame    int

	defending     bool
	dodgingLeft   bool
	dodgingRight  bool
	evadeLease    tick.Handle
	interactions  int
	lastOutcome   Outcome
	hasLastResult bool
}

// NewEngine creates an idle Engine.
//
// Precondition: src must be non-nil; cfg.TickRate > 0. nil logger and listener are no-ops.
func NewEngine(cfg Config, src random.Source, logger *zap.Logger, l Listener) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if l == nil {
		l = ListenerFuncs{}
	}
	return &Engine{
		cfg:      cfg,
		src:      src,
		logger:   logger,
		listener: l,
		sched:    tick.NewScheduler(),
		phase:    PhaseIdle,
	}
}

// SetListener replaces the lifecycle listener; nil installs a no-op.
func (e *Engine) SetListener(l Listener) {
	if l == nil {
		l = ListenerFuncs{}
	}
	e.listener = l
}

func (e *Engine) Phase() Phase                  { return e.phase }
func (e *Engine) WindupProgress() float64       { return e.windupProgress }
func (e *Engine) WindupDuration() time.Duration { return e.windupDuration }
func (e *Engine) Direction() Direction          { return e.direction }
func (e *Engine) EnemyID() string               { return e.enemyID }
func (e *Engine) CurrentFrame() int             { return e.currentFrame }
func (e *Engine) ImpactFrame() int              { return e.impactFrame }
func (e *Engine) IsDefending() bool             { return e.defending }
func (e *Engine) IsDodgingLeft() bool           { return e.dodgingLeft }
func (e *Engine) IsDodgingRight() bool          { return e.dodgingRight }
func (e *Engine) SuccessfulInteractions() int   { return e.interactions }
func (e *Engine) Active() bool                  { return e.phase != PhaseIdle }
func (e *Engine) LastOutcome() (Outcome, bool)  { return e.lastOutcome, e.hasLastResult }

// ShowInputHints reports whether the player still needs input hints.
func (e *Engine) ShowInputHints() bool {
	return e.interactions < e.cfg.HintInteractionCap
}

// StartWindup begins a telegraph for enemyID. The actual windup is
// baseDuration plus a uniform jitter in ±WindupVariance; the impact frame is
// floor(duration × TickRate). A duration that comes out non-positive is
// raised to one frame.
//
// Precondition: the engine is idle.
// Postcondition: Returns false and changes nothing when a telegraph is already
// active; otherwise phase is winding_up and the dodge latches are cleared.
func (e *Engine) StartWindup(enemyID string, baseDuration time.Duration, dir Direction) bool {
	if e.phase != PhaseIdle {
		e.logger.Debug("telegraph already active, windup refused",
			zap.String("active_enemy", e.enemyID),
			zap.String("enemy", enemyID),
			zap.String("phase", string(e.phase)),
		)
		return false
	}

	jitter := time.Duration(random.Symmetric(e.src, float64(e.cfg.WindupVariance)))
	duration := baseDuration + jitter
	if frame := time.Second / time.Duration(e.cfg.TickRate); duration < frame {
		duration = frame
	}

	e.phase = PhaseWindingUp
	e.windupProgress = 0
	e.windupDuration = duration
	e.direction = dir
	e.enemyID = enemyID
	e.currentFrame = 0
	e.impactFrame = int(math.Floor(duration.Seconds() * float64(e.cfg.TickRate)))
	e.clearDodge()

	e.logger.Debug("telegraph started",
		zap.String("enemy", enemyID),
		zap.Duration("windup", duration),
		zap.Int("impact_frame", e.impactFrame),
		zap.String("direction", directionLabel(dir)),
	)
	e.listener.OnWindupStarted(enemyID, duration, dir)
	return true
}

// UpdateWindup advances the windup by one tick of length dt.
// It is a no-op outside winding_up and imminent.
//
// Postcondition: CurrentFrame() increased by 1; phase is imminent once progress
// reaches ImminentThreshold and impact once it reaches 1.
func (e *Engine) UpdateWindup(dt time.Duration) {
	if e.phase != PhaseWindingUp && e.phase != PhaseImminent {
		return
	}

	progress := e.windupProgress + dt.Seconds()/e.windupDuration.Seconds()
	e.windupProgress = math.Min(1, progress)
	e.currentFrame++

	if progress >= e.cfg.ImminentThreshold && e.phase == PhaseWindingUp {
		e.phase = PhaseImminent
		e.listener.OnImminent(e.enemyID)
	}
	if progress >= 1 {
		e.phase = PhaseImpact
		e.logger.Debug("telegraph impact",
			zap.String("enemy", e.enemyID),
			zap.Int("frame", e.currentFrame),
			zap.Int("impact_frame", e.impactFrame),
		)
		e.listener.OnImpact(e.enemyID)
	}
}

// ResolveImpact grades the latched inputs against the impact frame and moves
// to resolving; the engine returns to idle ResolveDelay later.
//
// Evade requires a dodge latch, frameDiff <= GoodWindow and a matching
// direction (DirectionAny matches both); perfect evade additionally requires
// frameDiff <= PerfectWindow. A held defend always guards, with a reduction
// graded by timing. The engine mutates no HP.
//
// Postcondition: Returns ok == false and changes nothing outside impact.
func (e *Engine) ResolveImpact() (Outcome, bool) {
	if e.phase != PhaseImpact {
		return Outcome{}, false
	}

	frameDiff := e.currentFrame - e.impactFrame
	if frameDiff < 0 {
		frameDiff = -frameDiff
	}
	perfect := frameDiff <= e.cfg.PerfectWindow
	good := frameDiff <= e.cfg.GoodWindow

	timing := TimingLate
	switch {
	case perfect:
		timing = TimingPerfect
	case good:
		timing = TimingGood
	}

	evadeInput := e.dodgingLeft || e.dodgingRight
	correctDir := e.direction == DirectionAny ||
		(e.direction == DirectionLeft && e.dodgingLeft) ||
		(e.direction == DirectionRight && e.dodgingRight)

	o := Outcome{
		EnemyID:   e.enemyID,
		Evaded:    evadeInput && good && correctDir,
		Guarded:   e.defending,
		Timing:    timing,
		FrameDiff: frameDiff,
	}
	o.PerfectEvade = evadeInput && perfect && correctDir

	if o.Guarded {
		switch timing {
		case TimingPerfect:
			o.BlockReduction = PerfectBlockReduction
			o.PerfectBlock = true
			o.Feedback = "Perfect Block!"
		case TimingGood:
			o.BlockReduction = GoodBlockReduction
			o.Feedback = "Good Block!"
		default:
			o.BlockReduction = LateBlockReduction
			o.Feedback = "Late Block"
		}
		e.interactions++
	}
	if o.Evaded {
		if o.PerfectEvade {
			o.Feedback = "Perfect Evade!"
		} else {
			o.Feedback = "Good Evade!"
		}
		e.interactions++
	}

	e.logger.Debug("telegraph resolved",
		zap.String("enemy", e.enemyID),
		zap.Bool("evaded", o.Evaded),
		zap.Bool("guarded", o.Guarded),
		zap.String("timing", string(timing)),
		zap.Float64("block_reduction", o.BlockReduction),
		zap.Int("frame_diff", frameDiff),
	)

	e.phase = PhaseResolving
	e.lastOutcome, e.hasLastResult = o, true
	e.sched.After(e.cfg.ResolveDelay, func() {
		if e.phase == PhaseResolving {
			e.End()
		}
	})
	e.listener.OnResolved(o)
	return o, true
}

// End returns the engine to idle from any phase and clears the dodge latches.
// The defend latch is level-triggered and left alone.
func (e *Engine) End() {
	if e.phase == PhaseIdle {
		return
	}
	enemyID := e.enemyID
	e.phase = PhaseIdle
	e.windupProgress = 0
	e.direction = DirectionAny
	e.enemyID = ""
	e.currentFrame = 0
	e.impactFrame = 0
	e.clearDodge()
	e.logger.Debug("telegraph ended", zap.String("enemy", enemyID))
	e.listener.OnEnded(enemyID)
}

// SetDefending sets the level-triggered defend latch.
func (e *Engine) SetDefending(defending bool) {
	e.defending = defending
}

// AttemptEvade latches a dodge toward dir for EvadeLease, in any phase. A new
// attempt replaces the previous latch and restarts the lease.
//
// Precondition: dir is DirectionLeft or DirectionRight; other values are ignored.
func (e *Engine) AttemptEvade(dir Direction) {
	if dir != DirectionLeft && dir != DirectionRight {
		return
	}
	e.logger.Debug("evade attempt",
		zap.String("direction", string(dir)),
		zap.Int("frame", e.currentFrame),
		zap.Int("impact_frame", e.impactFrame),
	)
	e.sched.Cancel(e.evadeLease)
	e.dodgingLeft = dir == DirectionLeft
	e.dodgingRight = dir == DirectionRight
	e.evadeLease = e.sched.After(e.cfg.EvadeLease, func() {
		e.dodgingLeft = false
		e.dodgingRight = false
	})
}

// Advance runs the lease and resolve timers forward by dt. Call it after the
// tick's inputs have been judged so a tick sees a consistent input snapshot.
func (e *Engine) Advance(dt time.Duration) {
	e.sched.Advance(dt)
}

// Reset drops every pending timer and latch and returns to idle.
func (e *Engine) Reset() {
	e.End()
	e.sched.Clear()
	e.defending = false
	e.evadeLease = 0
}

func (e *Engine) clearDodge() {
	e.sched.Cancel(e.evadeLease)
	e.evadeLease = 0
	e.dodgingLeft = false
	e.dodgingRight = false
}

func directionLabel(d Direction) string {
	if d == DirectionAny {
		return "any"
	}
	return string(d)
}
