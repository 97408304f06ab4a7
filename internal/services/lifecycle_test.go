package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livepoll-backend/internal/models"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func sessionWithPoll(students []string, duration int) (*models.Session, *models.Poll) {
	s := models.NewSession("room", t0)
	s.Students = students
	s.Polls = append(s.Polls, models.Poll{
		ID:              "p1",
		Question:        "Q?",
		Options:         []string{"A", "B"},
		Counts:          []int{0, 0},
		Answers:         []models.Answer{},
		CreatedAt:       t0,
		DurationSeconds: duration,
		Status:          models.PollStatusActive,
	})
	id := "p1"
	s.ActivePollID = &id
	return s, &s.Polls[0]
}

func TestIsExpired(t *testing.T) {
	_, p := sessionWithPoll(nil, 30)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before deadline", t0.Add(29 * time.Second), false},
		{"at deadline", t0.Add(30 * time.Second), true},
		{"after deadline", t0.Add(time.Minute), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsExpired(p, tc.now))
		})
	}
}

func TestIsFullyAnswered(t *testing.T) {
	_, p := sessionWithPoll(nil, 30)
	assert.False(t, IsFullyAnswered(p, 0), "empty roster never counts as fully answered")

	p.Answers = append(p.Answers, models.Answer{StudentName: "Sam"})
	assert.True(t, IsFullyAnswered(p, 1))
	assert.False(t, IsFullyAnswered(p, 2))
}

func TestReconcile_ClosesExpiredPollWithoutAnswers(t *testing.T) {
	s, p := sessionWithPoll(nil, 30)

	assert.False(t, Reconcile(s, t0.Add(10*time.Second)))
	assert.Equal(t, models.PollStatusActive, p.Status)

	require.True(t, Reconcile(s, t0.Add(30*time.Second)))
	assert.Equal(t, models.PollStatusClosed, p.Status)
	assert.Equal(t, models.CloseReasonExpired, p.CloseReason)
	require.NotNil(t, p.ClosedAt)
	assert.Nil(t, s.ActivePollID)
}

func TestReconcile_ClosesWhenEveryoneAnswered(t *testing.T) {
	s, p := sessionWithPoll([]string{"Ann", "Bo"}, 30)
	p.Answers = []models.Answer{{StudentName: "Ann", OptionIndex: 0}}

	assert.False(t, Reconcile(s, t0.Add(time.Second)))

	p.Answers = append(p.Answers, models.Answer{StudentName: "Bo", OptionIndex: 1})
	require.True(t, Reconcile(s, t0.Add(2*time.Second)))
	assert.Equal(t, models.CloseReasonAllAnswered, p.CloseReason)
	assert.Nil(t, s.ActivePollID)
}

func TestReconcile_ExpiryWinsOverAllAnswered(t *testing.T) {
	s, p := sessionWithPoll([]string{"Ann"}, 5)
	p.Answers = []models.Answer{{StudentName: "Ann"}}

	require.True(t, Reconcile(s, t0.Add(10*time.Second)))
	assert.Equal(t, models.CloseReasonExpired, p.CloseReason)
}

func TestReconcile_RepairsDanglingPointer(t *testing.T) {
	s, p := sessionWithPoll(nil, 30)
	p.Status = models.PollStatusClosed

	require.True(t, Reconcile(s, t0))
	assert.Nil(t, s.ActivePollID)

	missing := "gone"
	s.ActivePollID = &missing
	require.True(t, Reconcile(s, t0))
	assert.Nil(t, s.ActivePollID)
}

func TestClosePoll_Idempotent(t *testing.T) {
	s, p := sessionWithPoll(nil, 30)
	closeAt := t0.Add(3 * time.Second)

	require.True(t, ClosePoll(s, p, closeAt, models.CloseReasonExpired))
	assert.False(t, ClosePoll(s, p, closeAt.Add(time.Minute), models.CloseReasonAllAnswered))
	assert.Equal(t, closeAt, *p.ClosedAt)
	assert.Equal(t, models.CloseReasonExpired, p.CloseReason)
}

func TestRecomputeCounts(t *testing.T) {
	_, p := sessionWithPoll(nil, 30)
	p.Options = []string{"A", "B", "C"}
	p.Answers = []models.Answer{
		{StudentName: "a", OptionIndex: 2},
		{StudentName: "b", OptionIndex: 0},
		{StudentName: "c", OptionIndex: 2},
	}

	RecomputeCounts(p)
	assert.Equal(t, []int{1, 0, 2}, p.Counts)
}
