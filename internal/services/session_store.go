package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"livepoll-backend/internal/models"
	"livepoll-backend/internal/repository"
)

const (
	DefaultChatHistoryLimit    = 50
	DefaultPollDurationSeconds = 60
	defaultAuthorName          = "User"
	maxSessionIDLength         = 64

	// maxSaveAttempts bounds retries when another instance saved first.
	maxSaveAttempts = 32
)

// SessionRepository persists whole sessions. Implementations must return
// copies from Get so that callers can mutate them freely. Save must fail with
// repository.ErrVersionConflict unless the stored version equals
// expectedVersion (0 for a session that was never saved).
type SessionRepository interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, s *models.Session, expectedVersion int64) error
	ListWithActivePoll(ctx context.Context) ([]string, error)
}

// Broadcaster pushes a session projection to that session's subscribers.
type Broadcaster interface {
	Publish(ctx context.Context, sessionID string, state models.SessionState)
}

type StoreOption func(*SessionStore)

func WithClock(now func() time.Time) StoreOption {
	return func(s *SessionStore) { s.now = now }
}

func WithChatHistoryLimit(n int) StoreOption {
	return func(s *SessionStore) {
		if n > 0 {
			s.chatLimit = n
		}
	}
}

func WithDefaultPollDuration(seconds int) StoreOption {
	return func(s *SessionStore) {
		if seconds > 0 {
			s.defaultDuration = seconds
		}
	}
}

// SessionStore applies every session operation as load, mutate, save under a
// per-session lock. Saves are conditional on the loaded version, so instances
// sharing a database retry instead of overwriting each other. Broadcasts
// happen after the lock is released.
type SessionStore struct {
	repo            SessionRepository
	broadcaster     Broadcaster
	now             func() time.Time
	chatLimit       int
	defaultDuration int

	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

func NewSessionStore(repo SessionRepository, broadcaster Broadcaster, opts ...StoreOption) *SessionStore {
	s := &SessionStore{
		repo:            repo,
		broadcaster:     broadcaster,
		now:             time.Now,
		chatLimit:       DefaultChatHistoryLimit,
		defaultDuration: DefaultPollDurationSeconds,
		locks:           make(map[string]*sessionLock),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// mutation changes a loaded session in place. It reports whether anything
// changed; a change may accompany an error (a late answer closes the poll).
type mutation func(sess *models.Session, now time.Time) (bool, error)

func noChange(*models.Session, time.Time) (bool, error) { return false, nil }

func (s *SessionStore) GetOrCreateSession(ctx context.Context, sessionID string) (models.SessionState, error) {
	sess, _, err := s.apply(ctx, sessionID, noChange)
	if err != nil {
		return models.SessionState{}, err
	}
	return sess.Projection(), nil
}

func (s *SessionStore) AddParticipant(ctx context.Context, sessionID, name string) (models.SessionState, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.SessionState{}, newValidationError("name", "Name is required")
	}

	sess, _, err := s.apply(ctx, sessionID, func(sess *models.Session, now time.Time) (bool, error) {
		if sess.HasStudent(name) {
			return false, nil
		}
		sess.Students = append(sess.Students, name)
		return true, nil
	})
	if err != nil {
		return models.SessionState{}, err
	}
	return sess.Projection(), nil
}

// RemoveParticipant drops name from the roster and retracts their answer on
// the active poll so it no longer counts toward the all-answered threshold.
func (s *SessionStore) RemoveParticipant(ctx context.Context, sessionID, name string) (models.SessionState, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.SessionState{}, newValidationError("name", "Name is required")
	}

	sess, _, err := s.apply(ctx, sessionID, func(sess *models.Session, now time.Time) (bool, error) {
		idx := -1
		for i, n := range sess.Students {
			if n == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return false, nil
		}
		sess.Students = append(sess.Students[:idx], sess.Students[idx+1:]...)

		if poll := sess.ActivePoll(); poll != nil && poll.Status == models.PollStatusActive {
			kept := poll.Answers[:0]
			for _, a := range poll.Answers {
				if a.StudentName != name {
					kept = append(kept, a)
				}
			}
			poll.Answers = kept
			RecomputeCounts(poll)
		}
		return true, nil
	})
	if err != nil {
		return models.SessionState{}, err
	}
	return sess.Projection(), nil
}

func (s *SessionStore) AppendMessage(ctx context.Context, sessionID, author, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, newValidationError("text", "Text is required")
	}
	author = strings.TrimSpace(author)
	if author == "" {
		author = defaultAuthorName
	}

	var msg models.Message
	_, _, err := s.apply(ctx, sessionID, func(sess *models.Session, now time.Time) (bool, error) {
		msg = models.Message{Name: author, Text: text, Timestamp: now}
		sess.Messages = append(sess.Messages, msg)
		if over := len(sess.Messages) - s.chatLimit; over > 0 {
			sess.Messages = append([]models.Message{}, sess.Messages[over:]...)
		}
		return true, nil
	})
	if err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

func (s *SessionStore) CreatePoll(ctx context.Context, sessionID, question string, options []string, durationSeconds int) (models.Poll, error) {
	question = strings.TrimSpace(question)
	cleaned := make([]string, 0, len(options))
	for _, o := range options {
		if o = strings.TrimSpace(o); o != "" {
			cleaned = append(cleaned, o)
		}
	}

	fieldErrors := make(map[string]string)
	if question == "" {
		fieldErrors["question"] = "Question is required"
	}
	if len(cleaned) < 2 {
		fieldErrors["options"] = "At least 2 non-empty options are required"
	}
	if durationSeconds < 0 {
		fieldErrors["durationSeconds"] = "Duration must be a positive number of seconds"
	}
	if len(fieldErrors) > 0 {
		return models.Poll{}, &ValidationError{Fields: fieldErrors}
	}
	if durationSeconds == 0 {
		durationSeconds = s.defaultDuration
	}

	pollID := uuid.NewString()
	sess, _, err := s.apply(ctx, sessionID, func(sess *models.Session, now time.Time) (bool, error) {
		// Anything still active here has time left and outstanding answers.
		if active := sess.ActivePoll(); active != nil && active.Status == models.PollStatusActive {
			return false, &ConflictError{Message: "An active poll is already running."}
		}

		sess.Polls = append(sess.Polls, models.Poll{
			ID:              pollID,
			Question:        question,
			Options:         cleaned,
			Counts:          make([]int, len(cleaned)),
			Answers:         []models.Answer{},
			CreatedAt:       now,
			DurationSeconds: durationSeconds,
			Status:          models.PollStatusActive,
		})
		id := pollID
		sess.ActivePollID = &id
		return true, nil
	})
	if err != nil {
		return models.Poll{}, err
	}
	return sess.FindPoll(pollID).Clone(), nil
}

func (s *SessionStore) SubmitAnswer(ctx context.Context, sessionID, pollID, studentName string, optionIndex int) (models.Poll, error) {
	pollID = strings.TrimSpace(pollID)
	studentName = strings.TrimSpace(studentName)

	fieldErrors := make(map[string]string)
	if pollID == "" {
		fieldErrors["pollId"] = "pollId is required"
	}
	if studentName == "" {
		fieldErrors["studentName"] = "studentName is required"
	}
	if len(fieldErrors) > 0 {
		return models.Poll{}, &ValidationError{Fields: fieldErrors}
	}

	sess, _, err := s.apply(ctx, sessionID, func(sess *models.Session, now time.Time) (bool, error) {
		poll := sess.FindPoll(pollID)
		if poll == nil {
			return false, &NotFoundError{Message: "Poll not found"}
		}
		if poll.Status != models.PollStatusActive {
			return false, &ConflictError{Message: "This poll is closed."}
		}
		if IsExpired(poll, now) {
			ClosePoll(sess, poll, now, models.CloseReasonExpired)
			return true, &ConflictError{Message: "This poll is closed."}
		}
		if poll.HasAnswerFrom(studentName) {
			return false, &ConflictError{Message: "You have already answered this poll."}
		}
		if optionIndex < 0 || optionIndex >= len(poll.Options) {
			return false, newValidationError("optionIndex", fmt.Sprintf("optionIndex must be between 0 and %d", len(poll.Options)-1))
		}

		poll.Answers = append(poll.Answers, models.Answer{
			StudentName: studentName,
			OptionIndex: optionIndex,
			AnsweredAt:  now,
		})
		RecomputeCounts(poll)
		return true, nil
	})
	if err != nil {
		return models.Poll{}, err
	}
	return sess.FindPoll(pollID).Clone(), nil
}

// ReconcileActivePolls closes every active poll that has expired or been
// answered by the whole roster. Per-session failures are joined and returned
// after the remaining sessions have been visited.
func (s *SessionStore) ReconcileActivePolls(ctx context.Context) (int, error) {
	ids, err := s.repo.ListWithActivePoll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions with an active poll: %w", err)
	}

	closed := 0
	var errs []error
	for _, id := range ids {
		_, changed, err := s.apply(ctx, id, noChange)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if changed {
			closed++
		}
	}
	return closed, errors.Join(errs...)
}

// apply runs fn against the current state of a session under its lock. Due
// closures are reconciled before and after fn so that fn always sees a
// consistent active pointer and the saved state never holds an overdue poll.
// When the save loses a version race the whole step is replayed on fresh state.
func (s *SessionStore) apply(ctx context.Context, sessionID string, fn mutation) (*models.Session, bool, error) {
	sessionID, err := normalizeSessionID(sessionID)
	if err != nil {
		return nil, false, err
	}

	lock := s.lockSession(sessionID)
	var res stepResult
	for attempt := 1; ; attempt++ {
		res, err = s.step(ctx, sessionID, fn)
		if !errors.Is(err, repository.ErrVersionConflict) || attempt == maxSaveAttempts {
			break
		}
	}
	s.unlockSession(sessionID, lock)

	if err != nil {
		return nil, false, err
	}
	if res.changed {
		s.publish(ctx, res.sess)
	}
	return res.sess, res.changed, res.opErr
}

type stepResult struct {
	sess    *models.Session
	changed bool
	opErr   error
}

// step is one load, reconcile, mutate, reconcile, save pass. A session that
// did not exist is only persisted when the operation succeeded or changed it.
func (s *SessionStore) step(ctx context.Context, sessionID string, fn mutation) (stepResult, error) {
	sess, created, err := s.load(ctx, sessionID)
	if err != nil {
		return stepResult{}, err
	}
	loadedVersion := sess.Version

	now := s.now()
	changed := Reconcile(sess, now)
	fnChanged, opErr := fn(sess, now)
	changed = fnChanged || changed
	if Reconcile(sess, now) {
		changed = true
	}

	if changed || (created && opErr == nil) {
		sess.Version++
		sess.UpdatedAt = now
		if err := s.repo.Save(ctx, sess, loadedVersion); err != nil {
			return stepResult{}, fmt.Errorf("failed to save session %s: %w", sessionID, err)
		}
	}
	return stepResult{sess: sess, changed: changed, opErr: opErr}, nil
}

func (s *SessionStore) load(ctx context.Context, sessionID string) (*models.Session, bool, error) {
	sess, err := s.repo.Get(ctx, sessionID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return models.NewSession(sessionID, s.now()), true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sess.Students == nil {
		sess.Students = []string{}
	}
	if sess.Polls == nil {
		sess.Polls = []models.Poll{}
	}
	if sess.Messages == nil {
		sess.Messages = []models.Message{}
	}
	return sess, false, nil
}

func (s *SessionStore) publish(ctx context.Context, sess *models.Session) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Publish(context.WithoutCancel(ctx), sess.ID, sess.Projection())
}

// lockSession locks the session's mutex, creating it on first use. Entries
// are reference counted so idle sessions do not pin a mutex.
func (s *SessionStore) lockSession(sessionID string) *sessionLock {
	s.mu.Lock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		s.locks[sessionID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *SessionStore) unlockSession(sessionID string, l *sessionLock) {
	l.mu.Unlock()

	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, sessionID)
	}
	s.mu.Unlock()
}

func normalizeSessionID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.DefaultSessionID, nil
	}
	if len(id) > maxSessionIDLength {
		return "", newValidationError("sessionId", fmt.Sprintf("sessionId must be at most %d characters", maxSessionIDLength))
	}
	return id, nil
}
