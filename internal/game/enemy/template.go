// Package enemy provides enemy template definitions and live instance management.
package enemy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/soulforge/internal/game/damage"
	"github.com/cory-johannsen/soulforge/internal/game/telegraph"
)

// Soul values awarded per enemy class when a template leaves soul_value unset.
const (
	BasicSoulValue  = 10
	StrongSoulValue = 15
)

// Template defines a reusable enemy archetype loaded from YAML.
type Template struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Kind is the enemy class, "basic" or "strong"; it selects attack power.
	Kind       string  `yaml:"kind"`
	MaxHP      float64 `yaml:"max_hp"`
	Armor      float64 `yaml:"armor"`
	BaseDamage float64 `yaml:"base_damage"`
	// Windup is the base telegraph duration, e.g. "800ms".
	Windup string `yaml:"windup"`
	// AttackInterval is the pause between telegraphs; empty uses the combat default.
	AttackInterval string `yaml:"attack_interval"`
	// Direction is the default evade side: "", "left" or "right".
	Direction string `yaml:"direction"`
	// AshReward of 0 falls back to the progression default.
	AshReward int `yaml:"ash_reward"`
	SoulValue int `yaml:"soul_value"`
}

// Validate checks that the template satisfies basic invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, Kind is basic or
// strong, MaxHP >= 1, Armor, BaseDamage, AshReward and SoulValue are not
// negative, Windup is a positive duration, AttackInterval is empty or a
// positive duration, and Direction is empty, left or right.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("enemy template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("enemy template %q: name must not be empty", t.ID)
	}
	if t.Kind != string(damage.TypeBasic) && t.Kind != string(damage.TypeStrong) {
		return fmt.Errorf("enemy template %q: kind must be basic or strong, got %q", t.ID, t.Kind)
	}
	if t.MaxHP < 1 {
		return fmt.Errorf("enemy template %q: max_hp must be >= 1", t.ID)
	}
	if t.Armor < 0 || t.BaseDamage < 0 || t.AshReward < 0 || t.SoulValue < 0 {
		return fmt.Errorf("enemy template %q: armor, base_damage, ash_reward and soul_value must not be negative", t.ID)
	}
	if d, err := time.ParseDuration(t.Windup); err != nil || d <= 0 {
		return fmt.Errorf("enemy template %q: windup %q must be a positive duration", t.ID, t.Windup)
	}
	if t.AttackInterval != "" {
		if d, err := time.ParseDuration(t.AttackInterval); err != nil || d <= 0 {
			return fmt.Errorf("enemy template %q: attack_interval %q must be a positive duration", t.ID, t.AttackInterval)
		}
	}
	switch telegraph.Direction(t.Direction) {
	case telegraph.DirectionAny, telegraph.DirectionLeft, telegraph.DirectionRight:
	default:
		return fmt.Errorf("enemy template %q: direction must be empty, left or right, got %q", t.ID, t.Direction)
	}
	return nil
}

// LoadTemplateFromBytes parses a single enemy template from raw YAML bytes.
//
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates
// keyed by ID.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse, validate
// or duplicate-ID failure; on error, the partial result is discarded.
func LoadTemplates(dir string) (map[string]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading enemy dir %q: %w", dir, err)
	}

	templates := make(map[string]*Template)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		if _, dup := templates[tmpl.ID]; dup {
			return nil, fmt.Errorf("loading %q: enemy template %q already defined", path, tmpl.ID)
		}
		templates[tmpl.ID] = tmpl
	}
	return templates, nil
}
