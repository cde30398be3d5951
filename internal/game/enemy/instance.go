package enemy

import (
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/soulforge/internal/game/damage"
	"github.com/cory-johannsen/soulforge/internal/game/stats"
	"github.com/cory-johannsen/soulforge/internal/game/telegraph"
)

// Instance is a live enemy spawned from a Template.
type Instance struct {
	id         string
	TemplateID string
	Name       string
	Kind       damage.CombatantType
	Stats      *stats.CombatantStats
	BaseDamage float64
	Windup     time.Duration
	// AttackInterval is zero when the template defers to the combat default.
	AttackInterval time.Duration
	Direction      telegraph.Direction
	AshReward      int
	SoulValue      int
}

// NewInstance creates a live enemy from tmpl with a fresh random ID.
//
// Precondition: tmpl must be non-nil and valid.
// Postcondition: Stats is at full health; SoulValue is the class default when
// the template leaves it unset.
func NewInstance(tmpl *Template) *Instance {
	return newInstance(uuid.NewString(), tmpl)
}

func newInstance(id string, tmpl *Template) *Instance {
	windup, _ := time.ParseDuration(tmpl.Windup)
	var interval time.Duration
	if tmpl.AttackInterval != "" {
		interval, _ = time.ParseDuration(tmpl.AttackInterval)
	}
	kind := damage.CombatantType(tmpl.Kind)
	soul := tmpl.SoulValue
	if soul == 0 {
		soul = BasicSoulValue
		if kind == damage.TypeStrong {
			soul = StrongSoulValue
		}
	}
	return &Instance{
		id:             id,
		TemplateID:     tmpl.ID,
		Name:           tmpl.Name,
		Kind:           kind,
		Stats:          stats.New(tmpl.MaxHP, damage.DefaultTuning().EnemyPower(kind), tmpl.Armor, nil),
		BaseDamage:     tmpl.BaseDamage,
		Windup:         windup,
		AttackInterval: interval,
		Direction:      telegraph.Direction(tmpl.Direction),
		AshReward:      tmpl.AshReward,
		SoulValue:      soul,
	}
}

// ID returns the instance's unique ID.
func (i *Instance) ID() string { return i.id }

// IsDead reports whether the instance has no hit points left.
func (i *Instance) IsDead() bool { return i.Stats.IsDead() }

// HealthDescription returns a coarse health label for status output.
//
// Postcondition: Returns a non-empty string.
func (i *Instance) HealthDescription() string {
	if i.Stats.IsDead() {
		return "dead"
	}
	pct := i.Stats.HPPercentage()
	switch {
	case pct >= 1.0:
		return "unharmed"
	case pct >= 0.85:
		return "barely scratched"
	case pct >= 0.60:
		return "lightly wounded"
	case pct >= 0.40:
		return "moderately wounded"
	case pct >= 0.20:
		return "heavily wounded"
	default:
		return "critically wounded"
	}
}
