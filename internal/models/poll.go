package models

import "time"

type PollStatus string

const (
	PollStatusActive PollStatus = "active"
	PollStatusClosed PollStatus = "closed"
)

// Reasons recorded on a poll when it transitions to closed.
const (
	CloseReasonExpired     = "expired"
	CloseReasonAllAnswered = "all_answered"
)

type Answer struct {
	StudentName string    `json:"studentName" bson:"studentName"`
	OptionIndex int       `json:"optionIndex" bson:"optionIndex"`
	AnsweredAt  time.Time `json:"answeredAt" bson:"answeredAt"`
}

type Poll struct {
	ID              string     `json:"id" bson:"id"`
	Question        string     `json:"question" bson:"question"`
	Options         []string   `json:"options" bson:"options"`
	Counts          []int      `json:"counts" bson:"counts"`
	Answers         []Answer   `json:"answers" bson:"answers"`
	CreatedAt       time.Time  `json:"createdAt" bson:"createdAt"`
	DurationSeconds int        `json:"durationSeconds" bson:"durationSeconds"`
	Status          PollStatus `json:"status" bson:"status"`
	ClosedAt        *time.Time `json:"closedAt,omitempty" bson:"closedAt,omitempty"`
	CloseReason     string     `json:"closeReason,omitempty" bson:"closeReason,omitempty"`
}

// Deadline is the instant at which the poll stops accepting answers.
func (p *Poll) Deadline() time.Time {
	return p.CreatedAt.Add(time.Duration(p.DurationSeconds) * time.Second)
}

func (p *Poll) HasAnswerFrom(name string) bool {
	for _, a := range p.Answers {
		if a.StudentName == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the poll.
func (p Poll) Clone() Poll {
	out := p
	out.Options = append([]string{}, p.Options...)
	out.Counts = append([]int{}, p.Counts...)
	out.Answers = append([]Answer{}, p.Answers...)
	if p.ClosedAt != nil {
		closedAt := *p.ClosedAt
		out.ClosedAt = &closedAt
	}
	return out
}

type CreatePollRequest struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	DurationSeconds int      `json:"durationSeconds"`
}

type SubmitAnswerRequest struct {
	PollID      string `json:"pollId"`
	StudentName string `json:"studentName"`
	OptionIndex *int   `json:"optionIndex"`
}
