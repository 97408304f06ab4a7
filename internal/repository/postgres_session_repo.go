package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"livepoll-backend/internal/models"
)

// PostgresSessionRepo stores each session as a JSONB document. The active
// poll id is mirrored into its own column so the sweep can find open polls
// without decoding every row.
type PostgresSessionRepo struct {
	pool *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{pool: pool}
}

func (r *PostgresSessionRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	var state []byte
	err := r.pool.QueryRow(ctx, `SELECT state FROM poll_sessions WHERE id = $1`, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	s := &models.Session{}
	if err := json.Unmarshal(state, s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return s, nil
}

// Save upserts s only if the stored row is still at expectedVersion, so
// replicas sharing the database cannot overwrite each other's changes.
func (r *PostgresSessionRepo) Save(ctx context.Context, s *models.Session, expectedVersion int64) error {
	state, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}

	query := `
		INSERT INTO poll_sessions (id, state, active_poll_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
			active_poll_id = EXCLUDED.active_poll_id,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at
		WHERE poll_sessions.version = $7
	`
	tag, err := r.pool.Exec(ctx, query, s.ID, state, activePollID(s), s.Version, s.CreatedAt, s.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *PostgresSessionRepo) ListWithActivePoll(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM poll_sessions WHERE active_poll_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
