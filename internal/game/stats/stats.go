// Package stats implements the HP/power/armor container shared by the player
// and every enemy instance.
package stats

import "math"

// Default stat values for a freshly constructed combatant.
const (
	DefaultMaxHP = 100
	DefaultPower = 0.2
	DefaultArmor = 0.1
)

// Listener receives lifecycle notifications. Calls are synchronous.
type Listener interface {
	OnDamageTaken(actual, hp, maxHP float64)
	OnHealed(actual, hp, maxHP float64)
	OnDeath()
}

// ListenerFuncs adapts optional functions to Listener; nil fields are skipped.
type ListenerFuncs struct {
	DamageTaken func(actual, hp, maxHP float64)
	Healed      func(actual, hp, maxHP float64)
	Death       func()
}

func (f ListenerFuncs) OnDamageTaken(actual, hp, maxHP float64) {
	if f.DamageTaken != nil {
		f.DamageTaken(actual, hp, maxHP)
	}
}

func (f ListenerFuncs) OnHealed(actual, hp, maxHP float64) {
	if f.Healed != nil {
		f.Healed(actual, hp, maxHP)
	}
}

func (f ListenerFuncs) OnDeath() {
	if f.Death != nil {
		f.Death()
	}
}

// CombatantStats is a mutable HP/power/armor container.
//
// Invariant: 0 <= HP() <= MaxHP(); MaxHP() > 0; Power() >= 0; Armor() >= 0.
type CombatantStats struct {
	maxHP    float64
	hp       float64
	power    float64
	armor    float64
	listener Listener
}

// New creates stats at full HP. Out-of-range inputs are clamped.
//
// Postcondition: HP() == MaxHP().
func New(maxHP, power, armor float64, l Listener) *CombatantStats {
	if l == nil {
		l = ListenerFuncs{}
	}
	s := &CombatantStats{listener: l}
	s.maxHP = clampMax(maxHP)
	s.power = nonNegative(power)
	s.armor = nonNegative(armor)
	s.hp = s.maxHP
	return s
}

// NewDefault creates stats with DefaultMaxHP, DefaultPower and DefaultArmor.
func NewDefault(l Listener) *CombatantStats {
	return New(DefaultMaxHP, DefaultPower, DefaultArmor, l)
}

func (s *CombatantStats) MaxHP() float64 { return s.maxHP }
func (s *CombatantStats) HP() float64    { return s.hp }
func (s *CombatantStats) Power() float64 { return s.power }
func (s *CombatantStats) Armor() float64 { return s.armor }
func (s *CombatantStats) IsAlive() bool  { return s.hp > 0 }
func (s *CombatantStats) IsDead() bool   { return s.hp <= 0 }

// HPPercentage returns HP()/MaxHP() in [0, 1].
func (s *CombatantStats) HPPercentage() float64 { return s.hp / s.maxHP }

// SetListener replaces the lifecycle listener; nil installs a no-op.
func (s *CombatantStats) SetListener(l Listener) {
	if l == nil {
		l = ListenerFuncs{}
	}
	s.listener = l
}

// SetMaxHP sets the HP ceiling, flooring at 1, and clamps current HP down to it.
func (s *CombatantStats) SetMaxHP(v float64) {
	s.maxHP = clampMax(v)
	if s.hp > s.maxHP {
		s.hp = s.maxHP
	}
}

// SetPower sets the fractional damage bonus, flooring at 0.
func (s *CombatantStats) SetPower(v float64) { s.power = nonNegative(v) }

// SetArmor sets the fractional damage reduction, flooring at 0.
func (s *CombatantStats) SetArmor(v float64) { s.armor = nonNegative(v) }

// TakeDamage subtracts amount from HP, flooring at zero.
// Negative amounts are treated as zero.
//
// Postcondition: Returns the HP actually removed. OnDamageTaken fires iff the
// result is > 0; OnDeath fires iff HP went from > 0 to 0 in this call.
func (s *CombatantStats) TakeDamage(amount float64) float64 {
	amount = nonNegative(amount)
	oldHP := s.hp
	s.hp = math.Max(0, s.hp-amount)
	actual := oldHP - s.hp

	if actual > 0 {
		s.listener.OnDamageTaken(actual, s.hp, s.maxHP)
	}
	if s.hp <= 0 && oldHP > 0 {
		s.listener.OnDeath()
	}
	return actual
}

// Heal adds amount to HP, capped at MaxHP. Negative amounts are treated as zero.
//
// Postcondition: Returns the HP actually restored; OnHealed fires iff it is > 0.
func (s *CombatantStats) Heal(amount float64) float64 {
	amount = nonNegative(amount)
	oldHP := s.hp
	s.hp = math.Min(s.maxHP, s.hp+amount)
	actual := s.hp - oldHP
	if actual > 0 {
		s.listener.OnHealed(actual, s.hp, s.maxHP)
	}
	return actual
}

// FullHeal restores HP to MaxHP through Heal, so OnHealed fires when HP changes.
func (s *CombatantStats) FullHeal() {
	s.Heal(s.maxHP - s.hp)
}

// ResetOptions overrides stat values on Reset; nil fields keep the current value.
type ResetOptions struct {
	MaxHP *float64
	Power *float64
	Armor *float64
}

// Reset applies opts and restores HP to MaxHP without firing listener events.
func (s *CombatantStats) Reset(opts ResetOptions) {
	if opts.MaxHP != nil {
		s.maxHP = clampMax(*opts.MaxHP)
	}
	if opts.Power != nil {
		s.power = nonNegative(*opts.Power)
	}
	if opts.Armor != nil {
		s.armor = nonNegative(*opts.Armor)
	}
	s.hp = s.maxHP
}

// WithModifiers returns power and armor adjusted by temporary modifiers, floored at 0.
// The stats themselves are not changed.
func (s *CombatantStats) WithModifiers(powerMod, armorMod float64) (power, armor float64) {
	return nonNegative(s.power + powerMod), nonNegative(s.armor + armorMod)
}

// Snapshot is the serializable form of CombatantStats.
type Snapshot struct {
	MaxHP float64 `json:"max_hp"`
	HP    float64 `json:"hp"`
	Power float64 `json:"power"`
	Armor float64 `json:"armor"`
}

// Snapshot captures the current values.
func (s *CombatantStats) Snapshot() Snapshot {
	return Snapshot{MaxHP: s.maxHP, HP: s.hp, Power: s.power, Armor: s.armor}
}

// FromSnapshot rebuilds stats from snap, clamping every value into range.
//
// Postcondition: 0 <= HP() <= MaxHP().
func FromSnapshot(snap Snapshot, l Listener) *CombatantStats {
	s := New(snap.MaxHP, snap.Power, snap.Armor, l)
	s.hp = math.Min(s.maxHP, nonNegative(snap.HP))
	return s
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

func clampMax(v float64) float64 {
	if v < 1 || math.IsNaN(v) {
		return 1
	}
	return v
}
