package damage

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/soulforge/internal/config"
)

// Tuning holds the per-attacker-class constants used by the convenience wrappers.
type Tuning struct {
	PlayerCritChance     float64
	PlayerCritMultiplier float64
	PlayerVariance       float64
	EnemyCritChance      float64
	EnemyCritMultiplier  float64
	EnemyVariance        float64
	BasicEnemyPower      float64
	StrongEnemyPower     float64
	PlayerCorruptionK    float64
	EnemyCorruptionK     float64
	CounterMultiplier    float64
}

// DefaultTuning returns the standard balance values.
func DefaultTuning() Tuning {
	return Tuning{
		PlayerCritChance:     0.2,
		PlayerCritMultiplier: 1.5,
		PlayerVariance:       0.05,
		EnemyCritChance:      0.1,
		EnemyCritMultiplier:  1.3,
		EnemyVariance:        0.08,
		BasicEnemyPower:      0.15,
		StrongEnemyPower:     0.3,
		PlayerCorruptionK:    0.10,
		EnemyCorruptionK:     0.15,
		CounterMultiplier:    DefaultCounterMultiplier,
	}
}

// TuningFromConfig maps the damage config section onto Tuning.
func TuningFromConfig(c config.DamageConfig) Tuning {
	return Tuning{
		PlayerCritChance:     c.PlayerCritChance,
		PlayerCritMultiplier: c.PlayerCritMultiplier,
		PlayerVariance:       c.PlayerVariance,
		EnemyCritChance:      c.EnemyCritChance,
		EnemyCritMultiplier:  c.EnemyCritMultiplier,
		EnemyVariance:        c.EnemyVariance,
		BasicEnemyPower:      c.BasicEnemyPower,
		StrongEnemyPower:     c.StrongEnemyPower,
		PlayerCorruptionK:    c.PlayerCorruptionK,
		EnemyCorruptionK:     c.EnemyCorruptionK,
		CounterMultiplier:    c.CounterMultiplier,
	}
}

// EnemyPower returns the attacker power for an enemy class; unknown classes use basic.
func (t Tuning) EnemyPower(kind CombatantType) float64 {
	if kind == TypeStrong {
		return t.StrongEnemyPower
	}
	return t.BasicEnemyPower
}

// Resolver wraps Compute with a random source, tuning and a diagnostic logger.
// It holds no mutable state of its own; concurrency safety is that of its Source.
type Resolver struct {
	src    Source
	tuning Tuning
	logger *zap.Logger
}

// NewResolver creates a Resolver.
//
// Precondition: src must be non-nil. A nil logger disables diagnostics.
func NewResolver(src Source, tuning Tuning, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{src: src, tuning: tuning, logger: logger}
}

// Tuning returns the resolver's balance values.
func (r *Resolver) Tuning() Tuning { return r.tuning }

// Compute resolves ctx and logs the result at debug level.
func (r *Resolver) Compute(ctx Context) Result {
	res := Compute(ctx, r.src)
	r.logger.Debug("damage resolved",
		zap.String("attacker", string(orUnknown(ctx.AttackerType))),
		zap.String("defender", string(orUnknown(ctx.DefenderType))),
		zap.Float64("base", ctx.BaseDamage),
		zap.Int("final", res.FinalDamage),
		zap.Bool("critical", res.WasCritical),
		zap.Bool("blocked", res.WasBlocked),
		zap.Float64("block_reduction", ctx.BlockReduction),
		zap.Bool("evaded", res.WasEvaded),
		zap.Bool("counter", res.WasCounter),
		zap.String("reduction", string(res.ReductionType)),
	)
	return res
}

// PlayerAttack describes a player hit on an enemy.
type PlayerAttack struct {
	BaseDamage     float64
	PlayerPower    float64
	DefenderArmor  float64
	IsBlocked      bool
	BlockReduction float64
	IsPerfectDodge bool
	Corruption     int
	DefenderType   CombatantType
	IsCounter      bool
}

// PlayerAttacksEnemy resolves a player hit with the player crit and variance tuning
// and the player corruption factor.
func (r *Resolver) PlayerAttacksEnemy(a PlayerAttack) Result {
	defender := a.DefenderType
	if defender == "" {
		defender = TypeBasic
	}
	return r.Compute(Context{
		BaseDamage:        a.BaseDamage,
		AttackerPower:     a.PlayerPower,
		DefenderArmor:     a.DefenderArmor,
		IsCounter:         a.IsCounter,
		IsPerfectDodge:    a.IsPerfectDodge,
		IsBlock:           a.IsBlocked,
		BlockReduction:    a.BlockReduction,
		CorruptionScale:   CorruptionScale(a.Corruption, r.tuning.PlayerCorruptionK),
		CritChance:        r.tuning.PlayerCritChance,
		CritMultiplier:    r.tuning.PlayerCritMultiplier,
		HitVariance:       r.tuning.PlayerVariance,
		CounterMultiplier: r.tuning.CounterMultiplier,
		AttackerType:      TypePlayer,
		DefenderType:      defender,
	})
}

// EnemyAttack describes an enemy hit on the player.
type EnemyAttack struct {
	BaseDamage     float64
	EnemyType      CombatantType
	PlayerArmor    float64
	IsBlocked      bool
	BlockReduction float64
	IsPerfectDodge bool
	Corruption     int
}

// EnemyAttacksPlayer resolves an enemy hit. Attacker power comes from the enemy
// class; enemies never counter.
func (r *Resolver) EnemyAttacksPlayer(a EnemyAttack) Result {
	kind := a.EnemyType
	if kind == "" {
		kind = TypeBasic
	}
	return r.Compute(Context{
		BaseDamage:      a.BaseDamage,
		AttackerPower:   r.tuning.EnemyPower(kind),
		DefenderArmor:   a.PlayerArmor,
		IsPerfectDodge:  a.IsPerfectDodge,
		IsBlock:         a.IsBlocked,
		BlockReduction:  a.BlockReduction,
		CorruptionScale: CorruptionScale(a.Corruption, r.tuning.EnemyCorruptionK),
		CritChance:      r.tuning.EnemyCritChance,
		CritMultiplier:  r.tuning.EnemyCritMultiplier,
		HitVariance:     r.tuning.EnemyVariance,
		AttackerType:    kind,
		DefenderType:    TypePlayer,
	})
}

func orUnknown(t CombatantType) CombatantType {
	if t == "" {
		return TypeUnknown
	}
	return t
}
