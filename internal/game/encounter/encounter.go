// Package encounter wires the combat state machine, telegraph engine, damage
// resolver, stats, stamina and kill progression into one tick-driven player
// encounter.
package encounter

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/soulforge/internal/config"
	"github.com/cory-johannsen/soulforge/internal/game/combat"
	"github.com/cory-johannsen/soulforge/internal/game/damage"
	"github.com/cory-johannsen/soulforge/internal/game/enemy"
	"github.com/cory-johannsen/soulforge/internal/game/progression"
	"github.com/cory-johannsen/soulforge/internal/game/random"
	"github.com/cory-johannsen/soulforge/internal/game/stamina"
	"github.com/cory-johannsen/soulforge/internal/game/stats"
	"github.com/cory-johannsen/soulforge/internal/game/telegraph"
	"github.com/cory-johannsen/soulforge/internal/scripting"
)

// Presentation tuning for hits on the player.
const (
	HitstopOnHit     = 60 * time.Millisecond
	HitstopOnPerfect = 120 * time.Millisecond
	// shakeScale maps damage as a fraction of max HP onto shake intensity.
	shakeScale = 5.0
)

// Config collects the per-component settings of an encounter.
type Config struct {
	Combat              combat.Config
	Telegraph           telegraph.Config
	Tuning              damage.Tuning
	PlayerBaseDamage    float64
	EnemyAttackInterval time.Duration
	StaminaPips         int
	StaminaRegenDelay   time.Duration
	AttackStaminaCost   int
}

// ConfigFrom maps the application config onto an encounter Config.
func ConfigFrom(c config.Config) Config {
	return Config{
		Combat:              combat.ConfigFrom(c.Combat),
		Telegraph:           telegraph.ConfigFrom(c.Telegraph),
		Tuning:              damage.TuningFromConfig(c.Damage),
		PlayerBaseDamage:    c.Combat.PlayerBaseDamage,
		EnemyAttackInterval: c.Combat.EnemyAttackInterval,
		StaminaPips:         c.Combat.StaminaPips,
		StaminaRegenDelay:   c.Combat.StaminaRegenDelay,
		AttackStaminaCost:   c.Combat.AttackStaminaCost,
	}
}

// DefaultConfig returns the encounter settings built from config defaults.
func DefaultConfig() Config {
	return ConfigFrom(config.Default())
}

// Input is one tick's snapshot of player intent.
type Input struct {
	// Attack is a press edge: true only on the tick the button went down.
	Attack bool
	// Timed marks Attack as a rhythm press AttackOffset away from the ideal moment.
	Timed        bool
	AttackOffset time.Duration
	// Defend is level triggered: true for as long as the button is held.
	Defend bool
	// Evade is a press edge toward a side; DirectionAny means no press.
	Evade telegraph.Direction
	// Engage names an enemy to start combat with while in the overworld.
	Engage string
}

// Events reports what happened during one Tick.
type Events struct {
	AttackStarted bool
	// PlayerHit is the player's damage on the current enemy, when an attack landed.
	PlayerHit *damage.Result
	// Outcome is the telegraph judgement, when an enemy attack reached impact.
	Outcome *telegraph.Outcome
	// EnemyHit is the enemy's damage on the player, paired with Outcome.
	EnemyHit       *damage.Result
	EnemyKilled    string
	PlayerDefeated bool
}

// Deps are the collaborators an encounter drives. Tracker, Enemies and
// Source are required.
type Deps struct {
	Tracker *progression.Tracker
	Enemies *enemy.Manager
	// Scripts supplies attack patterns; nil uses every enemy's template defaults.
	Scripts *scripting.Manager
	Source  random.Source
	Logger  *zap.Logger
	Effects Effects
}

// SaveState is the persistable state of an encounter.
type SaveState struct {
	Progression progression.Snapshot `json:"progression"`
	Player      stats.Snapshot       `json:"player"`
}

// Encounter owns one player's combat loop. It is not safe for concurrent
// use; Registry serializes access per session.
//
// Invariant: at most one enemy telegraph is active, and only the current
// enemy attacks.
type Encounter struct {
	cfg     Config
	logger  *zap.Logger
	effects Effects

	player   *stats.CombatantStats
	stamina  *stamina.Pool
	machine  *combat.Machine
	tele     *telegraph.Engine
	resolver *damage.Resolver
	tracker  *progression.Tracker
	enemies  *enemy.Manager
	scripts  *scripting.Manager

	target        *enemy.Instance
	now           time.Duration
	sinceAttack   time.Duration
	pendingDamage float64
	counterReady  bool
}

// New creates an encounter with a full-health player in the overworld.
//
// Precondition: d.Tracker, d.Enemies and d.Source must be non-nil.
// Postcondition: Returns a non-nil Encounter; nil Logger and Effects are no-ops.
func New(cfg Config, d Deps) *Encounter {
	if d.Tracker == nil || d.Enemies == nil || d.Source == nil {
		panic("encounter.New: Tracker, Enemies and Source must not be nil")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Effects == nil {
		d.Effects = NopEffects{}
	}
	e := &Encounter{
		cfg:      cfg,
		logger:   d.Logger,
		effects:  d.Effects,
		stamina:  stamina.NewPool(cfg.StaminaPips, cfg.StaminaRegenDelay),
		resolver: damage.NewResolver(d.Source, cfg.Tuning, d.Logger),
		tracker:  d.Tracker,
		enemies:  d.Enemies,
		scripts:  d.Scripts,
	}
	e.player = stats.NewDefault(e.playerListener())
	e.machine = combat.NewMachine(cfg.Combat, d.Logger, e.restorePlayer)
	e.machine.OnPhaseChange(e.phaseChanged)
	e.tele = telegraph.NewEngine(cfg.Telegraph, d.Source, d.Logger, telegraph.ListenerFuncs{
		WindupStarted: func(string, time.Duration, telegraph.Direction) { e.effects.PlaySound(SoundWindup) },
		Imminent:      func(string) { e.effects.PlaySound(SoundImminent) },
	})
	if e.scripts != nil && e.scripts.GetEnemy == nil {
		e.scripts.GetEnemy = EnemyLookup(d.Enemies)
	}
	return e
}

func (e *Encounter) Player() *stats.CombatantStats { return e.player }
func (e *Encounter) Stamina() *stamina.Pool        { return e.stamina }
func (e *Encounter) Combat() *combat.Machine       { return e.machine }
func (e *Encounter) Telegraph() *telegraph.Engine  { return e.tele }
func (e *Encounter) Tracker() *progression.Tracker { return e.tracker }
func (e *Encounter) Target() *enemy.Instance       { return e.target }
func (e *Encounter) Now() time.Duration            { return e.now }

// Tick advances the encounter by dt with the given input snapshot.
//
// Order: inputs, engage, player attack, enemy AI, telegraph windup and
// impact, deaths, then timers. Timers run last so every latch read this tick
// reflects the same input snapshot.
func (e *Encounter) Tick(dt time.Duration, in Input) Events {
	var ev Events

	ev.AttackStarted = in.Attack && e.startAttack(in)
	e.mirrorDefend(in.Defend)
	if in.Evade != telegraph.DirectionAny {
		e.tele.AttemptEvade(in.Evade)
	}

	if in.Engage != "" && e.machine.Phase() == combat.PhaseOverworld {
		e.engage(in.Engage)
	}

	if ev.AttackStarted {
		e.hitTarget(&ev)
	}

	if e.machine.Phase() == combat.PhaseInCombat && e.target != nil && !e.tele.Active() {
		e.sinceAttack += dt
		if e.sinceAttack >= e.attackInterval() {
			e.sinceAttack = 0
			e.startEnemyAttack()
		}
	}

	e.tele.UpdateWindup(dt)
	if e.tele.Phase() == telegraph.PhaseImpact {
		e.resolveImpact(&ev)
	}

	e.checkDeaths(&ev)

	e.tele.Advance(dt)
	e.machine.UpdateAttackTimer(dt)
	e.machine.Advance(dt)
	e.stamina.SetBusy(e.machine.IsDefending())
	e.stamina.Tick(dt)
	e.now += dt
	return ev
}

func (e *Encounter) startAttack(in Input) bool {
	if e.machine.Phase() != combat.PhaseInCombat || e.machine.AttackCooldown() > 0 {
		return false
	}
	if !e.stamina.TrySpend(e.cfg.AttackStaminaCost) {
		e.logger.Debug("attack refused, no stamina", zap.Int("pips", e.stamina.Pips()))
		return false
	}
	if !e.machine.StartAttack() {
		e.stamina.Give(e.cfg.AttackStaminaCost)
		return false
	}
	if in.Timed {
		e.machine.CheckAttackTiming(in.AttackOffset, e.tracker.Corruption())
	}
	return true
}

func (e *Encounter) mirrorDefend(held bool) {
	switch {
	case held && !e.machine.IsDefending():
		e.machine.StartDefend()
	case !held && e.machine.IsDefending():
		e.machine.EndDefend()
	}
	e.tele.SetDefending(e.machine.IsDefending())
}

func (e *Encounter) engage(enemyID string) {
	inst, ok := e.enemies.Get(enemyID)
	if !ok || inst.IsDead() {
		e.logger.Debug("engage refused", zap.String("enemy", enemyID))
		return
	}
	if e.machine.InitiateCombat(inst) {
		e.target = inst
		e.sinceAttack = 0
		e.counterReady = false
	}
}

func (e *Encounter) hitTarget(ev *Events) {
	if e.target == nil {
		return
	}
	res := e.resolver.PlayerAttacksEnemy(damage.PlayerAttack{
		BaseDamage:    e.cfg.PlayerBaseDamage,
		PlayerPower:   e.player.Power(),
		DefenderArmor: e.target.Stats.Armor(),
		Corruption:    e.tracker.Corruption(),
		DefenderType:  e.target.Kind,
		IsCounter:     e.counterReady || e.machine.PerfectTiming(),
	})
	e.counterReady = false
	e.target.Stats.TakeDamage(float64(res.FinalDamage))
	e.effects.PlaySound(SoundEnemyHit)
	ev.PlayerHit = &res
}

func (e *Encounter) attackInterval() time.Duration {
	if e.target.AttackInterval > 0 {
		return e.target.AttackInterval
	}
	return e.cfg.EnemyAttackInterval
}

func (e *Encounter) startEnemyAttack() {
	p := scripting.AttackPattern{
		Windup:     e.target.Windup,
		Direction:  string(e.target.Direction),
		BaseDamage: e.target.BaseDamage,
	}
	if e.scripts != nil {
		p = e.scripts.ChooseAttack(scripting.AttackRequest{
			AreaID:     e.tracker.CurrentArea().ID,
			EnemyID:    e.target.ID(),
			Kind:       string(e.target.Kind),
			Corruption: e.tracker.Corruption(),
		}, p)
	}
	if e.tele.StartWindup(e.target.ID(), p.Windup, telegraph.Direction(p.Direction)) {
		e.pendingDamage = p.BaseDamage
	}
}

func (e *Encounter) resolveImpact(ev *Events) {
	// A target killed earlier this tick never lands its blow.
	if e.machine.Phase() != combat.PhaseInCombat || e.target == nil || e.target.IsDead() {
		e.tele.End()
		return
	}
	o, ok := e.tele.ResolveImpact()
	if !ok {
		return
	}
	isDodge, isBlock, reduction := o.DamageFlags()
	res := e.resolver.EnemyAttacksPlayer(damage.EnemyAttack{
		BaseDamage:     e.pendingDamage,
		EnemyType:      e.target.Kind,
		PlayerArmor:    e.player.Armor(),
		IsBlocked:      isBlock,
		BlockReduction: reduction,
		IsPerfectDodge: isDodge,
		Corruption:     e.tracker.Corruption(),
	})
	actual := e.player.TakeDamage(float64(res.FinalDamage))
	e.counterReady = o.Countered()

	switch {
	case o.Countered():
		e.effects.PlaySound(SoundPerfect)
		e.effects.Hitstop(HitstopOnPerfect)
	case o.Evaded:
		e.effects.PlaySound(SoundEvade)
	case o.Guarded:
		e.effects.PlaySound(SoundBlock)
	}
	if actual > 0 {
		e.effects.PlaySound(SoundPlayerHurt)
		e.effects.Hitstop(HitstopOnHit)
		e.effects.CameraShake(math.Min(1, actual/e.player.MaxHP()*shakeScale))
	}
	ev.Outcome = &o
	ev.EnemyHit = &res
}

// checkDeaths settles both deaths of a tick. A kill is always credited, but a
// dead player exits as a defeat even when the enemy fell on the same tick.
func (e *Encounter) checkDeaths(ev *Events) {
	phase := e.machine.Phase()
	if phase != combat.PhaseInCombat && phase != combat.PhaseEnteringCombat {
		return
	}
	enemyDown := e.target != nil && e.target.IsDead()
	if enemyDown {
		e.creditKill(e.target, ev)
	}
	switch {
	case e.player.IsDead():
		e.tracker.IncrementDeath()
		e.tele.End()
		e.machine.ExitCombat(false)
		e.effects.PlaySound(SoundPlayerDeath)
		ev.PlayerDefeated = true
	case enemyDown:
		e.tele.End()
		e.machine.ExitCombat(true)
	}
}

func (e *Encounter) creditKill(target *enemy.Instance, ev *Events) {
	ash := target.AshReward
	if ash <= 0 {
		ash = e.tracker.DefaultAshReward()
	}
	e.tracker.IncrementKillCount(ash)
	if err := e.enemies.Remove(target.ID()); err != nil {
		e.logger.Warn("removing defeated enemy", zap.String("enemy", target.ID()), zap.Error(err))
	}
	e.effects.PlaySound(SoundEnemyDeath)
	e.effects.CameraShake(1)
	e.logger.Info("enemy defeated",
		zap.String("enemy", target.ID()),
		zap.String("kind", string(target.Kind)),
		zap.Int("ash", ash),
		zap.Int("remaining", e.tracker.KillCount()),
	)
	ev.EnemyKilled = target.ID()
}

// restorePlayer is the combat machine's defeat handler.
func (e *Encounter) restorePlayer() {
	e.player.FullHeal()
	e.stamina.Give(e.stamina.Max())
}

func (e *Encounter) phaseChanged(_, to combat.Phase) {
	switch to {
	case combat.PhaseInCombat:
		e.sinceAttack = 0
	case combat.PhaseOverworld:
		e.target = nil
		e.counterReady = false
		e.pendingDamage = 0
		e.tele.End()
	}
}

func (e *Encounter) playerListener() stats.Listener {
	return stats.ListenerFuncs{
		Death: func() {
			e.logger.Info("player defeated", zap.Int("corruption", e.tracker.Corruption()))
		},
	}
}

// EnemyLookup adapts an enemy manager to scripting.Manager.GetEnemy. New
// installs it when the scripting manager has no lookup yet, so encounters
// sharing a scripting manager must share the enemy manager too.
func EnemyLookup(m *enemy.Manager) func(id string) *scripting.EnemyInfo {
	return func(id string) *scripting.EnemyInfo {
		inst, ok := m.Get(id)
		if !ok {
			return nil
		}
		return &scripting.EnemyInfo{
			ID:    inst.ID(),
			Kind:  string(inst.Kind),
			HP:    inst.Stats.HP(),
			MaxHP: inst.Stats.MaxHP(),
		}
	}
}

// Save captures the encounter's persistable state.
func (e *Encounter) Save() SaveState {
	return SaveState{
		Progression: e.tracker.Snapshot(),
		Player:      e.player.Snapshot(),
	}
}

// Restore replaces progression and player stats with s.
//
// Precondition: the encounter is in the overworld.
// Postcondition: Returns an error and changes nothing when in combat or when
// s.Progression is invalid.
func (e *Encounter) Restore(s SaveState) error {
	if p := e.machine.Phase(); p != combat.PhaseOverworld {
		return fmt.Errorf("encounter: cannot restore during %s", p)
	}
	if err := e.tracker.Restore(s.Progression); err != nil {
		return fmt.Errorf("encounter: restoring progression: %w", err)
	}
	e.player = stats.FromSnapshot(s.Player, e.playerListener())
	return nil
}
