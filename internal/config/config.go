// Package config provides Viper-based configuration loading for the SoulForge
// combat core and its tools.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL connection settings for progression saves.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// SimulationConfig controls the fixed-step tick loop.
type SimulationConfig struct {
	// TickRate is the number of logical updates per second.
	TickRate int `mapstructure:"tick_rate"`
	// Seed seeds the deterministic random source; 0 selects crypto randomness.
	Seed uint64 `mapstructure:"seed"`
	// SessionIdleTimeout evicts registry sessions not ticked for this long; 0 disables eviction.
	SessionIdleTimeout time.Duration `mapstructure:"session_idle_timeout"`
}

// TickInterval returns the duration of one logical tick.
//
// Precondition: TickRate > 0.
func (s SimulationConfig) TickInterval() time.Duration {
	return time.Second / time.Duration(s.TickRate)
}

// CombatConfig holds combat phase timings.
type CombatConfig struct {
	EnterDelay     time.Duration `mapstructure:"enter_delay"`
	ExitDelay      time.Duration `mapstructure:"exit_delay"`
	AttackWindow   time.Duration `mapstructure:"attack_window"`
	AttackCooldown time.Duration `mapstructure:"attack_cooldown"`
	// PlayerBaseDamage is the base damage of one player attack.
	PlayerBaseDamage float64 `mapstructure:"player_base_damage"`
	// EnemyAttackInterval is the default pause between enemy telegraphs.
	EnemyAttackInterval time.Duration `mapstructure:"enemy_attack_interval"`
	// TimingWindow is the attack timing window at zero corruption; each
	// corruption point narrows it by TimingPenalty down to MinTimingWindow.
	TimingWindow    time.Duration `mapstructure:"timing_window"`
	TimingPenalty   time.Duration `mapstructure:"timing_penalty"`
	MinTimingWindow time.Duration `mapstructure:"min_timing_window"`

	StaminaPips       int           `mapstructure:"stamina_pips"`
	StaminaRegenDelay time.Duration `mapstructure:"stamina_regen_delay"`
	AttackStaminaCost int           `mapstructure:"attack_stamina_cost"`
}

// TelegraphConfig holds windup and judgement window settings.
type TelegraphConfig struct {
	TickRate           int           `mapstructure:"tick_rate"`
	PerfectWindow      int           `mapstructure:"perfect_window"`
	GoodWindow         int           `mapstructure:"good_window"`
	ImminentThreshold  float64       `mapstructure:"imminent_threshold"`
	WindupVariance     time.Duration `mapstructure:"windup_variance"`
	EvadeLease         time.Duration `mapstructure:"evade_lease"`
	ResolveDelay       time.Duration `mapstructure:"resolve_delay"`
	HintInteractionCap int           `mapstructure:"hint_interaction_cap"`
}

// DamageConfig holds the per-class damage tuning.
type DamageConfig struct {
	PlayerCritChance     float64 `mapstructure:"player_crit_chance"`
	PlayerCritMultiplier float64 `mapstructure:"player_crit_multiplier"`
	PlayerVariance       float64 `mapstructure:"player_variance"`
	EnemyCritChance      float64 `mapstructure:"enemy_crit_chance"`
	EnemyCritMultiplier  float64 `mapstructure:"enemy_crit_multiplier"`
	EnemyVariance        float64 `mapstructure:"enemy_variance"`
	BasicEnemyPower      float64 `mapstructure:"basic_enemy_power"`
	StrongEnemyPower     float64 `mapstructure:"strong_enemy_power"`
	PlayerCorruptionK    float64 `mapstructure:"player_corruption_k"`
	EnemyCorruptionK     float64 `mapstructure:"enemy_corruption_k"`
	CounterMultiplier    float64 `mapstructure:"counter_multiplier"`
}

// ProgressionConfig holds kill-tracking settings.
type ProgressionConfig struct {
	// StartArea is the area ID a hard reset returns to.
	StartArea string `mapstructure:"start_area"`
	// DefaultAshReward is the ash granted per kill when the enemy has no reward.
	DefaultAshReward int `mapstructure:"default_ash_reward"`
}

// ContentConfig points at YAML and Lua content directories.
type ContentConfig struct {
	AreasDir   string `mapstructure:"areas_dir"`
	EnemiesDir string `mapstructure:"enemies_dir"`
	// ScriptsDir holds attack pattern scripts; empty disables scripting.
	ScriptsDir string `mapstructure:"scripts_dir"`
	// ScriptInstructionLimit caps Lua opcodes per hook call; 0 uses the default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	Combat      CombatConfig      `mapstructure:"combat"`
	Telegraph   TelegraphConfig   `mapstructure:"telegraph"`
	Damage      DamageConfig      `mapstructure:"damage"`
	Progression ProgressionConfig `mapstructure:"progression"`
	Content     ContentConfig     `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateLogging(c.Logging),
		validateDatabase(c.Database),
		validateSimulation(c.Simulation),
		validateCombat(c.Combat),
		validateTelegraph(c.Telegraph),
		validateDamage(c.Damage),
		validateProgression(c.Progression),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 || d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must be in [0, max_conns]")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	if s.TickRate < 1 || s.TickRate > 1000 {
		return fmt.Errorf("simulation.tick_rate must be 1-1000, got %d", s.TickRate)
	}
	if s.SessionIdleTimeout < 0 {
		return fmt.Errorf("simulation.session_idle_timeout must not be negative, got %s", s.SessionIdleTimeout)
	}
	return nil
}

func validateCombat(c CombatConfig) error {
	var errs []string
	if c.EnterDelay < 0 || c.ExitDelay < 0 {
		errs = append(errs, "combat.enter_delay and combat.exit_delay must not be negative")
	}
	if c.AttackWindow <= 0 {
		errs = append(errs, "combat.attack_window must be > 0")
	}
	if c.AttackCooldown < c.AttackWindow {
		errs = append(errs, "combat.attack_cooldown must be >= combat.attack_window")
	}
	if c.PlayerBaseDamage < 0 {
		errs = append(errs, "combat.player_base_damage must not be negative")
	}
	if c.EnemyAttackInterval <= 0 {
		errs = append(errs, "combat.enemy_attack_interval must be > 0")
	}
	if c.MinTimingWindow <= 0 || c.TimingWindow < c.MinTimingWindow || c.TimingPenalty < 0 {
		errs = append(errs, "combat timing windows must satisfy 0 < min_timing_window <= timing_window and timing_penalty >= 0")
	}
	if c.StaminaPips < 0 || c.AttackStaminaCost < 0 {
		errs = append(errs, "combat.stamina_pips and combat.attack_stamina_cost must not be negative")
	}
	if c.StaminaRegenDelay <= 0 {
		errs = append(errs, "combat.stamina_regen_delay must be > 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateTelegraph(t TelegraphConfig) error {
	var errs []string
	if t.TickRate < 1 {
		errs = append(errs, fmt.Sprintf("telegraph.tick_rate must be >= 1, got %d", t.TickRate))
	}
	if t.PerfectWindow < 0 || t.GoodWindow < t.PerfectWindow {
		errs = append(errs, "telegraph windows must satisfy 0 <= perfect_window <= good_window")
	}
	if t.ImminentThreshold <= 0 || t.ImminentThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("telegraph.imminent_threshold must be in (0, 1), got %v", t.ImminentThreshold))
	}
	if t.WindupVariance < 0 || t.EvadeLease <= 0 || t.ResolveDelay < 0 {
		errs = append(errs, "telegraph durations must not be negative and evade_lease must be > 0")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateDamage(d DamageConfig) error {
	var errs []string
	for name, v := range map[string]float64{
		"player_crit_chance": d.PlayerCritChance,
		"enemy_crit_chance":  d.EnemyCritChance,
		"player_variance":    d.PlayerVariance,
		"enemy_variance":     d.EnemyVariance,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Sprintf("damage.%s must be in [0, 1], got %v", name, v))
		}
	}
	if d.PlayerCritMultiplier < 1 || d.EnemyCritMultiplier < 1 {
		errs = append(errs, "damage crit multipliers must be >= 1")
	}
	if d.BasicEnemyPower < 0 || d.StrongEnemyPower < 0 || d.PlayerCorruptionK < 0 || d.EnemyCorruptionK < 0 {
		errs = append(errs, "damage powers and corruption factors must not be negative")
	}
	if d.CounterMultiplier < 1 {
		errs = append(errs, "damage.counter_multiplier must be >= 1")
	}
	if len(errs) > 0 {
		// map iteration order is random; keep messages stable
		sort.Strings(errs)
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateProgression(p ProgressionConfig) error {
	if p.StartArea == "" {
		return errors.New("progression.start_area must not be empty")
	}
	if p.DefaultAshReward < 0 {
		return fmt.Errorf("progression.default_ash_reward must be >= 0, got %d", p.DefaultAshReward)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix("SOULFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration produced by the built-in defaults alone.
//
// Postcondition: The returned Config passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	cfg, err := LoadFromViper(v)
	if err != nil {
		panic("config: built-in defaults are invalid: " + err.Error())
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "soulforge")
	v.SetDefault("database.password", "soulforge")
	v.SetDefault("database.name", "soulforge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("simulation.tick_rate", 60)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.session_idle_timeout", "10m")

	v.SetDefault("combat.enter_delay", "700ms")
	v.SetDefault("combat.exit_delay", "1200ms")
	v.SetDefault("combat.attack_window", "400ms")
	v.SetDefault("combat.attack_cooldown", "800ms")
	v.SetDefault("combat.player_base_damage", 12)
	v.SetDefault("combat.enemy_attack_interval", "3s")
	v.SetDefault("combat.timing_window", "300ms")
	v.SetDefault("combat.timing_penalty", "50ms")
	v.SetDefault("combat.min_timing_window", "100ms")
	v.SetDefault("combat.stamina_pips", 5)
	v.SetDefault("combat.stamina_regen_delay", "600ms")
	v.SetDefault("combat.attack_stamina_cost", 1)

	v.SetDefault("telegraph.tick_rate", 60)
	v.SetDefault("telegraph.perfect_window", 2)
	v.SetDefault("telegraph.good_window", 4)
	v.SetDefault("telegraph.imminent_threshold", 0.8)
	v.SetDefault("telegraph.windup_variance", "200ms")
	v.SetDefault("telegraph.evade_lease", "120ms")
	v.SetDefault("telegraph.resolve_delay", "300ms")
	v.SetDefault("telegraph.hint_interaction_cap", 3)

	v.SetDefault("damage.player_crit_chance", 0.2)
	v.SetDefault("damage.player_crit_multiplier", 1.5)
	v.SetDefault("damage.player_variance", 0.05)
	v.SetDefault("damage.enemy_crit_chance", 0.1)
	v.SetDefault("damage.enemy_crit_multiplier", 1.3)
	v.SetDefault("damage.enemy_variance", 0.08)
	v.SetDefault("damage.basic_enemy_power", 0.15)
	v.SetDefault("damage.strong_enemy_power", 0.3)
	v.SetDefault("damage.player_corruption_k", 0.10)
	v.SetDefault("damage.enemy_corruption_k", 0.15)
	v.SetDefault("damage.counter_multiplier", 1.25)

	v.SetDefault("progression.start_area", "Vale")
	v.SetDefault("progression.default_ash_reward", 10)

	v.SetDefault("content.areas_dir", "content/areas")
	v.SetDefault("content.enemies_dir", "content/enemies")
	v.SetDefault("content.scripts_dir", "content/scripts")
	v.SetDefault("content.script_instruction_limit", 0)
}
