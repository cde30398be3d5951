// Package main provides a headless combat simulator that drives one encounter
// at the fixed tick rate with a scripted player, optionally persisting the
// run's progression to PostgreSQL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/soulforge/internal/config"
	"github.com/cory-johannsen/soulforge/internal/game/combat"
	"github.com/cory-johannsen/soulforge/internal/game/damage"
	"github.com/cory-johannsen/soulforge/internal/game/encounter"
	"github.com/cory-johannsen/soulforge/internal/game/enemy"
	"github.com/cory-johannsen/soulforge/internal/game/progression"
	"github.com/cory-johannsen/soulforge/internal/game/random"
	"github.com/cory-johannsen/soulforge/internal/observability"
	"github.com/cory-johannsen/soulforge/internal/scripting"
	"github.com/cory-johannsen/soulforge/internal/storage/postgres"
)

// strongEvery makes every n-th spawned enemy of an area a strong one.
const strongEvery = 4

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	duration := flag.Duration("duration", 10*time.Minute, "simulated time to run")
	realtime := flag.Bool("realtime", false, "pace ticks against the wall clock")
	saveID := flag.String("save", "", "progression save ID; empty disables persistence")
	style := flag.String("style", StyleMixed, "bot defense style: evade, block or mixed")
	lead := flag.Int("lead", 1, "frames before impact the bot reacts")
	fumble := flag.Float64("fumble", 0.1, "probability the bot evades to the wrong side")
	watch := flag.Bool("watch", false, "reload attack pattern scripts when they change")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := random.NewCryptoSource()
	if cfg.Simulation.Seed != 0 {
		src = random.NewSeededSource(cfg.Simulation.Seed)
	}
	b, err := newBot(*style, *lead, *fumble, src)
	if err != nil {
		logger.Fatal("configuring bot", zap.Error(err))
	}

	sim, err := newSimulation(ctx, cfg, src, b, *saveID, *watch, logger)
	if err != nil {
		logger.Fatal("starting simulation", zap.Error(err))
	}
	defer sim.Close()

	logger.Info("simulation starting",
		zap.String("session", sim.session.ID),
		zap.Int("tick_rate", cfg.Simulation.TickRate),
		zap.Duration("duration", *duration),
		zap.Bool("realtime", *realtime),
		zap.String("style", *style),
		zap.Duration("startup", time.Since(start)),
	)

	runErr := sim.Run(ctx, *duration, *realtime)
	if err := sim.Persist(context.Background()); err != nil {
		logger.Error("saving progression", zap.Error(err))
	}
	sim.Report()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("simulation failed", zap.Error(runErr))
		os.Exit(1)
	}
	logger.Info("simulation finished", zap.Duration("wall_time", time.Since(start)))
}

type simulation struct {
	cfg       config.Config
	logger    *zap.Logger
	bot       *bot
	enemies   *enemy.Manager
	templates map[damage.CombatantType][]*enemy.Template
	scripts   *scripting.Manager
	watcher   *scripting.Watcher
	registry  *encounter.Registry
	session   *encounter.Session

	pool   *postgres.Pool
	repo   *postgres.ProgressionRepository
	saveID string

	finished bool
}

func newSimulation(ctx context.Context, cfg config.Config, src random.Source, b *bot, saveID string, watch bool, logger *zap.Logger) (*simulation, error) {
	areas, err := progression.LoadAreas(cfg.Content.AreasDir)
	if err != nil {
		return nil, fmt.Errorf("loading areas: %w", err)
	}
	byID, err := enemy.LoadTemplates(cfg.Content.EnemiesDir)
	if err != nil {
		return nil, fmt.Errorf("loading enemy templates: %w", err)
	}
	templates, err := templatesByKind(byID)
	if err != nil {
		return nil, err
	}

	s := &simulation{
		cfg:       cfg,
		logger:    logger,
		bot:       b,
		enemies:   enemy.NewManager(),
		templates: templates,
		saveID:    saveID,
	}

	if cfg.Content.ScriptsDir != "" {
		s.scripts = scripting.NewManager(src, logger.Named("scripting"))
		if err := s.scripts.LoadGlobal(cfg.Content.ScriptsDir, cfg.Content.ScriptInstructionLimit); err != nil {
			s.scripts.Close()
			return nil, fmt.Errorf("loading scripts: %w", err)
		}
		if watch {
			s.watcher, err = s.scripts.WatchGlobal(cfg.Content.ScriptsDir, cfg.Content.ScriptInstructionLimit, nil)
			if err != nil {
				s.Close()
				return nil, fmt.Errorf("watching scripts: %w", err)
			}
		}
	}

	factory := func(sessionID string) (*encounter.Encounter, error) {
		sessionLog := logger.With(zap.String("session", sessionID))
		tracker, err := progression.NewTracker(areas, cfg.Progression.StartArea,
			cfg.Progression.DefaultAshReward, src, sessionLog.Named("progression"), whisperLogger(sessionLog))
		if err != nil {
			return nil, err
		}
		return encounter.New(encounter.ConfigFrom(cfg), encounter.Deps{
			Tracker: tracker,
			Enemies: s.enemies,
			Scripts: s.scripts,
			Source:  src,
			Logger:  sessionLog,
		}), nil
	}
	s.registry = encounter.NewRegistry(factory, cfg.Simulation.SessionIdleTimeout, logger.Named("registry"))
	s.session, err = s.registry.Create()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating session: %w", err)
	}

	if saveID != "" {
		if err := s.openStore(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	var spawnErr error
	s.session.Do(func(e *encounter.Encounter) {
		spawnErr = s.populate(e.Tracker())
	})
	if spawnErr != nil {
		s.Close()
		return nil, spawnErr
	}
	return s, nil
}

// openStore connects to PostgreSQL and resumes from the save when one exists.
func (s *simulation) openStore(ctx context.Context) error {
	pool, err := postgres.NewPool(ctx, s.cfg.Database, s.logger.Named("postgres"))
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	s.pool = pool
	s.repo = postgres.NewProgressionRepository(pool.DB())

	save, err := s.repo.Load(ctx, s.saveID)
	if errors.Is(err, postgres.ErrSaveNotFound) {
		s.logger.Info("no existing save, starting fresh", zap.String("save", s.saveID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading save %q: %w", s.saveID, err)
	}

	var restoreErr error
	s.session.Do(func(e *encounter.Encounter) {
		restoreErr = e.Restore(save.State)
	})
	if restoreErr != nil {
		return fmt.Errorf("restoring save %q: %w", s.saveID, restoreErr)
	}
	s.logger.Info("save restored",
		zap.String("save", s.saveID),
		zap.String("area", save.State.Progression.AreaID),
		zap.Int("remaining", save.State.Progression.KillCount),
		zap.Time("updated_at", save.UpdatedAt),
	)
	return nil
}

// populate spawns the enemies still standing between the player and the
// current area's boss.
func (s *simulation) populate(t *progression.Tracker) error {
	area := t.CurrentArea()
	s.enemies.ClearArea(area.ID)
	for i := 0; i < t.KillCount(); i++ {
		kind := damage.TypeBasic
		if (i+1)%strongEvery == 0 && len(s.templates[damage.TypeStrong]) > 0 {
			kind = damage.TypeStrong
		}
		pool := s.templates[kind]
		if _, err := s.enemies.Spawn(pool[i%len(pool)], area.ID); err != nil {
			return fmt.Errorf("spawning in %s: %w", area.ID, err)
		}
	}
	s.logger.Info("area populated",
		zap.String("area", area.ID),
		zap.String("name", area.Name),
		zap.Int("enemies", t.KillCount()),
	)
	return nil
}

func (s *simulation) living(areaID string) []string {
	insts := s.enemies.LivingInArea(areaID)
	ids := make([]string, len(insts))
	for i, inst := range insts {
		ids[i] = inst.ID()
	}
	return ids
}

// Run ticks the session until duration of simulated time has passed, the
// final area is cleared or ctx is cancelled.
func (s *simulation) Run(ctx context.Context, duration time.Duration, realtime bool) error {
	dt := s.cfg.Simulation.TickInterval()
	ticks := int(duration / dt)

	var ticker *time.Ticker
	if realtime {
		ticker = time.NewTicker(dt)
		defer ticker.Stop()
	}

	for i := 0; i < ticks && !s.finished; i++ {
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		var stepErr error
		err := s.registry.Do(s.session.ID, func(e *encounter.Encounter) {
			stepErr = s.step(e, dt)
		})
		if err != nil {
			return err
		}
		if stepErr != nil {
			return stepErr
		}
	}
	return nil
}

func (s *simulation) step(e *encounter.Encounter, dt time.Duration) error {
	t := e.Tracker()
	in := s.bot.Decide(e, t.CurrentArea().ID, s.living)
	ev := e.Tick(dt, in)
	s.bot.Observe(ev)

	if ev.Outcome != nil && ev.Outcome.Feedback != "" {
		s.logger.Debug(ev.Outcome.Feedback,
			zap.String("enemy", ev.Outcome.EnemyID),
			zap.Int("frame_diff", ev.Outcome.FrameDiff),
			zap.Int("damage", ev.EnemyHit.FinalDamage),
		)
	}

	if !t.BossUnlocked() || e.Combat().Phase() != combat.PhaseOverworld {
		return nil
	}
	if _, ok := t.TransitionToNextArea(); !ok {
		s.logger.Info("final area cleared", zap.Strings("areas_completed", t.AreasCompleted()))
		s.finished = true
		return nil
	}
	return s.populate(t)
}

// Persist saves the session's progression when a save ID was given.
func (s *simulation) Persist(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	var state encounter.SaveState
	if err := s.registry.Do(s.session.ID, func(e *encounter.Encounter) {
		state = e.Save()
	}); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, postgres.ConnectTimeout)
	defer cancel()
	saved, err := s.repo.Save(ctx, s.saveID, state)
	if err != nil {
		return err
	}
	s.logger.Info("progression saved",
		zap.String("save", saved.ID),
		zap.String("area", state.Progression.AreaID),
		zap.Time("updated_at", saved.UpdatedAt),
	)
	return nil
}

// Report logs the run summary.
func (s *simulation) Report() {
	st := s.bot.stats
	fields := []zap.Field{
		zap.Duration("simulated", s.bot.Elapsed(s.cfg.Simulation.TickInterval())),
		zap.Int("attacks", st.Attacks),
		zap.Int("hits", st.Hits),
		zap.Int("telegraphs", st.Telegraphs),
		zap.Int("evades", st.Evades),
		zap.Int("perfect_evades", st.PerfectEvade),
		zap.Int("blocks", st.Blocks),
		zap.Int("perfect_blocks", st.PerfectBlock),
		zap.Int("kills", st.Kills),
		zap.Int("defeats", st.Defeats),
		zap.Float64("damage_taken", st.DamageTaken),
	}
	_ = s.registry.Do(s.session.ID, func(e *encounter.Encounter) {
		t := e.Tracker()
		fields = append(fields,
			zap.String("area", t.CurrentArea().ID),
			zap.Int("remaining", t.KillCount()),
			zap.Int("ash", t.Ash()),
			zap.Int("dust", t.Dust()),
			zap.Int("corruption", t.Corruption()),
			zap.Strings("areas_completed", t.AreasCompleted()),
		)
	})
	s.logger.Info("simulation report", fields...)
}

// Close releases the registry, script watcher, scripts and database pool.
func (s *simulation) Close() {
	if s.registry != nil {
		s.registry.Close()
	}
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	if s.scripts != nil {
		s.scripts.Close()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// templatesByKind groups templates by enemy class in ID order.
func templatesByKind(byID map[string]*enemy.Template) (map[damage.CombatantType][]*enemy.Template, error) {
	out := make(map[damage.CombatantType][]*enemy.Template)
	for _, tmpl := range byID {
		kind := damage.CombatantType(tmpl.Kind)
		out[kind] = append(out[kind], tmpl)
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	}
	if len(out[damage.TypeBasic]) == 0 {
		return nil, errors.New("at least one basic enemy template is required")
	}
	return out, nil
}

func whisperLogger(logger *zap.Logger) progression.Listener {
	return progression.ListenerFuncs{
		Whisper: func(w progression.Whisper) {
			logger.Info("whisper", zap.String("text", w.Text), zap.Float64("intensity", w.Intensity))
		},
		BossUnlocked: func(areaID string) {
			logger.Info("boss unlocked", zap.String("area", areaID))
		},
	}
}
