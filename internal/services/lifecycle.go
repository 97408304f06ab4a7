package services

import (
	"time"

	"livepoll-backend/internal/models"
)

// IsExpired reports whether now is at or past the poll's deadline.
func IsExpired(p *models.Poll, now time.Time) bool {
	return !now.Before(p.Deadline())
}

// IsFullyAnswered reports whether every current participant has answered.
// An empty roster never counts as fully answered.
func IsFullyAnswered(p *models.Poll, participantCount int) bool {
	return participantCount > 0 && len(p.Answers) >= participantCount
}

func ShouldClose(p *models.Poll, s *models.Session, now time.Time) bool {
	if p == nil || p.Status != models.PollStatusActive {
		return false
	}
	return IsExpired(p, now) || IsFullyAnswered(p, len(s.Students))
}

// closeReason picks the reason recorded on closure. Expiry wins when both hold.
func closeReason(p *models.Poll, now time.Time) string {
	if IsExpired(p, now) {
		return models.CloseReasonExpired
	}
	return models.CloseReasonAllAnswered
}

// ClosePoll moves p to closed and clears the session's active pointer if it
// referenced p. Closing an already closed poll is a no-op; the return value
// reports whether a transition happened.
func ClosePoll(s *models.Session, p *models.Poll, now time.Time, reason string) bool {
	if p == nil || p.Status == models.PollStatusClosed {
		return false
	}
	p.Status = models.PollStatusClosed
	closedAt := now
	p.ClosedAt = &closedAt
	p.CloseReason = reason
	if s.ActivePollID != nil && *s.ActivePollID == p.ID {
		s.ActivePollID = nil
	}
	return true
}

// Reconcile closes the session's active poll if it is due. It also repairs a
// dangling active pointer left behind by a poll that is already closed.
func Reconcile(s *models.Session, now time.Time) bool {
	if s.ActivePollID == nil {
		return false
	}
	p := s.ActivePoll()
	if p == nil || p.Status != models.PollStatusActive {
		s.ActivePollID = nil
		return true
	}
	if !ShouldClose(p, s, now) {
		return false
	}
	return ClosePoll(s, p, now, closeReason(p, now))
}

func RecomputeCounts(p *models.Poll) {
	counts := make([]int, len(p.Options))
	for _, a := range p.Answers {
		if a.OptionIndex >= 0 && a.OptionIndex < len(counts) {
			counts[a.OptionIndex]++
		}
	}
	p.Counts = counts
}
