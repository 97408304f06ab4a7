package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"livepoll-backend/internal/models"
)

// SQLiteSessionRepo is the single-node file-backed store. It mirrors the
// Postgres layout with the document held as TEXT.
type SQLiteSessionRepo struct {
	db *sql.DB
}

func NewSQLiteSessionRepo(db *sql.DB) *SQLiteSessionRepo {
	return &SQLiteSessionRepo{db: db}
}

func (r *SQLiteSessionRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	var state string
	err := r.db.QueryRowContext(ctx, `SELECT state FROM poll_sessions WHERE id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	s := &models.Session{}
	if err := json.Unmarshal([]byte(state), s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return s, nil
}

// Save upserts s only if the stored row is still at expectedVersion.
func (r *SQLiteSessionRepo) Save(ctx context.Context, s *models.Session, expectedVersion int64) error {
	state, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO poll_sessions (id, state, active_poll_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET state = excluded.state,
			active_poll_id = excluded.active_poll_id,
			version = excluded.version,
			updated_at = excluded.updated_at
		WHERE poll_sessions.version = ?
	`, s.ID, string(state), activePollID(s), s.Version,
		s.CreatedAt.UTC().Format(time.RFC3339Nano), s.UpdatedAt.UTC().Format(time.RFC3339Nano), expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r *SQLiteSessionRepo) ListWithActivePoll(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM poll_sessions WHERE active_poll_id IS NOT NULL ORDER BY id`)
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
