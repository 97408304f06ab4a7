package repository

import (
	"context"
	"sort"
	"sync"

	"livepoll-backend/internal/models"
)

// MemorySessionRepo keeps sessions in process memory. State is lost on restart.
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{sessions: make(map[string]*models.Session)}
}

func (r *MemorySessionRepo) Get(ctx context.Context, id string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

// Save stores s if the current copy is still at expectedVersion. A session
// that does not exist yet is at version 0.
func (r *MemorySessionRepo) Save(ctx context.Context, s *models.Session, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var current int64
	if existing, ok := r.sessions[s.ID]; ok {
		current = existing.Version
	}
	if current != expectedVersion {
		return ErrVersionConflict
	}
	r.sessions[s.ID] = s.Clone()
	return nil
}

func (r *MemorySessionRepo) ListWithActivePoll(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, s := range r.sessions {
		if s.ActivePollID != nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
