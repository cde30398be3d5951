// Package damage implements the deterministic damage pipeline shared by player
// and enemy attacks. Compute is a pure function of its Context and random Source.
package damage

import "math"

// ReductionType labels the dominant mitigation applied to a hit.
type ReductionType string

const (
	ReductionNone         ReductionType = "none"
	ReductionBlock        ReductionType = "block"
	ReductionPerfectBlock ReductionType = "perfect_block"
	ReductionEvade        ReductionType = "evade"
	ReductionArmor        ReductionType = "armor"
)

// CombatantType tags attackers and defenders for diagnostics.
type CombatantType string

const (
	TypeUnknown CombatantType = "unknown"
	TypePlayer  CombatantType = "player"
	TypeBasic   CombatantType = "basic"
	TypeStrong  CombatantType = "strong"
)

// PerfectBlockThreshold is the block reduction at or above which a block counts as perfect.
const PerfectBlockThreshold = 0.8

// DefaultCounterMultiplier is the damage bonus applied to counter attacks.
const DefaultCounterMultiplier = 1.25

// Context carries every input to one damage resolution.
type Context struct {
	BaseDamage    float64
	AttackerPower float64
	DefenderArmor float64

	IsCounter      bool
	IsPerfectDodge bool
	IsBlock        bool

	// BlockReduction is the fraction of damage removed by a block (0.8 = 80%).
	BlockReduction float64
	// CorruptionScale multiplies the base damage; 1 means no corruption.
	CorruptionScale float64
	CritChance      float64
	CritMultiplier  float64
	// HitVariance is the symmetric random spread (0.05 = ±5%).
	HitVariance float64
	// CounterMultiplier overrides DefaultCounterMultiplier when > 0.
	CounterMultiplier float64

	AttackerType CombatantType
	DefenderType CombatantType
}

// Result is the outcome of one damage resolution.
//
// Invariant: WasEvaded implies FinalDamage == 0 and every other flag false.
type Result struct {
	FinalDamage   int
	WasCritical   bool
	WasBlocked    bool
	WasEvaded     bool
	WasCounter    bool
	ReductionType ReductionType
}

// Source is the subset of random.Source used by the resolver.
type Source interface {
	Float64() float64
}

// Evaded is the result of every perfect dodge.
var Evaded = Result{WasEvaded: true, ReductionType: ReductionEvade}

// Compute runs the damage pipeline in its fixed order: perfect dodge short
// circuit, power and corruption scaling, armor mitigation, counter bonus, crit
// roll, variance roll, block reduction, rounding.
//
// A crit roll is drawn only when CritChance > 0 and a variance roll only when
// HitVariance > 0.
//
// Precondition: src must be non-nil when CritChance > 0 or HitVariance > 0.
// Postcondition: FinalDamage >= 0.
func Compute(ctx Context, src Source) Result {
	if ctx.IsPerfectDodge {
		return Evaded
	}

	dmg := ctx.BaseDamage * (1 + ctx.AttackerPower) * ctx.CorruptionScale
	dmg *= 1 / (1 + math.Max(0, ctx.DefenderArmor))

	res := Result{ReductionType: ReductionNone}
	if ctx.DefenderArmor > 0 {
		res.ReductionType = ReductionArmor
	}

	if ctx.IsCounter {
		mult := ctx.CounterMultiplier
		if mult <= 0 {
			mult = DefaultCounterMultiplier
		}
		dmg *= mult
		res.WasCounter = true
	}

	if ctx.CritChance > 0 && src.Float64() < ctx.CritChance {
		dmg *= ctx.CritMultiplier
		res.WasCritical = true
	}

	if ctx.HitVariance > 0 {
		dmg *= 1 + (src.Float64()-0.5)*2*ctx.HitVariance
	}

	if ctx.IsBlock {
		dmg *= math.Max(0, 1-ctx.BlockReduction)
		res.WasBlocked = true
		if ctx.BlockReduction >= PerfectBlockThreshold {
			res.ReductionType = ReductionPerfectBlock
		} else {
			res.ReductionType = ReductionBlock
		}
	}

	if math.IsNaN(dmg) || dmg < 0 {
		dmg = 0
	}
	res.FinalDamage = int(math.Round(dmg))
	return res
}

// CorruptionScale returns 1 + corruption*k, the multiplier fed into Context.CorruptionScale.
//
// Postcondition: Returns >= 1 for corruption >= 0 and k >= 0.
func CorruptionScale(corruption int, k float64) float64 {
	return 1 + float64(corruption)*k
}
