// Package progression tracks the per-area kill progression, the ash and dust
// currencies and the corruption death counter.
package progression

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Whispers holds the whisper texts of an area, one list per tier.
type Whispers struct {
	Early []string `yaml:"early"`
	Mid   []string `yaml:"mid"`
	Late  []string `yaml:"late"`
	Death []string `yaml:"death"`
}

// Area is one stage of the progression loaded from YAML.
type Area struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Order places the area in the progression; lower comes first.
	Order      int      `yaml:"order"`
	EnemyCount int      `yaml:"enemy_count"`
	Theme      string   `yaml:"theme"`
	Whispers   Whispers `yaml:"whispers"`
}

// Validate checks that the area satisfies basic invariants.
//
// Postcondition: Returns nil iff ID and Name are non-empty, EnemyCount >= 1 and
// the early, mid, late and death whisper tiers are all non-empty.
func (a *Area) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("area: id must not be empty")
	}
	if a.Name == "" {
		return fmt.Errorf("area %q: name must not be empty", a.ID)
	}
	if a.EnemyCount < 1 {
		return fmt.Errorf("area %q: enemy_count must be >= 1", a.ID)
	}
	tiers := []struct {
		name  string
		texts []string
	}{
		{"early", a.Whispers.Early},
		{"mid", a.Whispers.Mid},
		{"late", a.Whispers.Late},
		{"death", a.Whispers.Death},
	}
	for _, tier := range tiers {
		if len(tier.texts) == 0 {
			return fmt.Errorf("area %q: whispers.%s must not be empty", a.ID, tier.name)
		}
	}
	return nil
}

// LoadAreaFromBytes parses a single area from raw YAML bytes.
//
// Postcondition: Returns a validated *Area, or an error.
func LoadAreaFromBytes(data []byte) (*Area, error) {
	var a Area
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parsing area YAML: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// LoadAreas reads all *.yaml files in dir and returns the areas in progression order.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns at least one area with unique IDs, sorted by Order then
// ID, or an error on the first parse or validate failure.
func LoadAreas(dir string) ([]*Area, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading area dir %q: %w", dir, err)
	}

	var areas []*Area
	seen := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}
		a, err := LoadAreaFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		if prev, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("loading %q: area %q already defined in %q", path, a.ID, prev)
		}
		seen[a.ID] = path
		areas = append(areas, a)
	}
	if len(areas) == 0 {
		return nil, fmt.Errorf("no areas found in %q", dir)
	}
	sort.SliceStable(areas, func(i, j int) bool {
		if areas[i].Order != areas[j].Order {
			return areas[i].Order < areas[j].Order
		}
		return areas[i].ID < areas[j].ID
	})
	return areas, nil
}
