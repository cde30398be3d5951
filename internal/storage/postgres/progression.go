package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/soulforge/internal/game/encounter"
)

// ErrSaveNotFound is returned when a save lookup yields no results.
var ErrSaveNotFound = errors.New("progression save not found")

// Save is a stored encounter state.
type Save struct {
	ID        string
	State     encounter.SaveState
	UpdatedAt time.Time
}

// ProgressionRepository persists encounter saves in progression_saves.
type ProgressionRepository struct {
	db *pgxpool.Pool
}

// NewProgressionRepository creates a ProgressionRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewProgressionRepository(db *pgxpool.Pool) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

// Save inserts or replaces the save stored under saveID.
//
// Precondition: saveID must be non-empty.
// Postcondition: Returns the stored save with UpdatedAt set, or a non-nil error.
func (r *ProgressionRepository) Save(ctx context.Context, saveID string, s encounter.SaveState) (*Save, error) {
	if saveID == "" {
		return nil, fmt.Errorf("saving progression: save id must not be empty")
	}
	completed := s.Progression.AreasCompleted
	if completed == nil {
		completed = []string{}
	}
	p, pl := s.Progression, s.Player

	out := Save{ID: saveID, State: s}
	err := r.db.QueryRow(ctx, `
		INSERT INTO progression_saves
			(save_id, area, kill_count, total_required, ash, dust, corruption,
			 areas_completed, player_max_hp, player_hp, player_power, player_armor)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (save_id) DO UPDATE SET
			area = EXCLUDED.area,
			kill_count = EXCLUDED.kill_count,
			total_required = EXCLUDED.total_required,
			ash = EXCLUDED.ash,
			dust = EXCLUDED.dust,
			corruption = EXCLUDED.corruption,
			areas_completed = EXCLUDED.areas_completed,
			player_max_hp = EXCLUDED.player_max_hp,
			player_hp = EXCLUDED.player_hp,
			player_power = EXCLUDED.player_power,
			player_armor = EXCLUDED.player_armor,
			updated_at = NOW()
		RETURNING updated_at`,
		saveID, p.AreaID, p.KillCount, p.TotalRequired, p.Ash, p.Dust, p.Corruption,
		completed, pl.MaxHP, pl.HP, pl.Power, pl.Armor,
	).Scan(&out.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("saving progression %q: %w", saveID, err)
	}
	return &out, nil
}

// Load retrieves the save stored under saveID.
//
// Postcondition: Returns the save or ErrSaveNotFound.
func (r *ProgressionRepository) Load(ctx context.Context, saveID string) (*Save, error) {
	out := Save{ID: saveID}
	p, pl := &out.State.Progression, &out.State.Player
	err := r.db.QueryRow(ctx, `
		SELECT area, kill_count, total_required, ash, dust, corruption,
		       areas_completed, player_max_hp, player_hp, player_power, player_armor,
		       updated_at
		FROM progression_saves WHERE save_id = $1`,
		saveID,
	).Scan(
		&p.AreaID, &p.KillCount, &p.TotalRequired, &p.Ash, &p.Dust, &p.Corruption,
		&p.AreasCompleted, &pl.MaxHP, &pl.HP, &pl.Power, &pl.Armor,
		&out.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSaveNotFound
		}
		return nil, fmt.Errorf("loading progression %q: %w", saveID, err)
	}
	if len(p.AreasCompleted) == 0 {
		p.AreasCompleted = nil
	}
	return &out, nil
}

// Delete removes the save stored under saveID.
//
// Postcondition: Returns nil on success, ErrSaveNotFound if no row was deleted.
func (r *ProgressionRepository) Delete(ctx context.Context, saveID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM progression_saves WHERE save_id = $1`, saveID)
	if err != nil {
		return fmt.Errorf("deleting progression %q: %w", saveID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSaveNotFound
	}
	return nil
}

// List returns the IDs of every stored save, most recently updated first.
func (r *ProgressionRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT save_id FROM progression_saves ORDER BY updated_at DESC, save_id`)
	if err != nil {
		return nil, fmt.Errorf("listing progression saves: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning save row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
