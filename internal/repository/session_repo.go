package repository

import (
	"errors"

	"livepoll-backend/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// ErrVersionConflict is returned by Save when the stored session no longer
// has the version the caller loaded. Callers reload and retry.
var ErrVersionConflict = errors.New("session version conflict")

func activePollID(s *models.Session) *string {
	if s.ActivePollID == nil {
		return nil
	}
	id := *s.ActivePollID
	return &id
}
