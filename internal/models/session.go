package models

import "time"

const DefaultSessionID = "default"

type Session struct {
	ID           string    `json:"sessionId" bson:"_id"`
	Students     []string  `json:"students" bson:"students"`
	Polls        []Poll    `json:"polls" bson:"polls"`
	ActivePollID *string   `json:"activePollId" bson:"activePollId"`
	Messages     []Message `json:"messages" bson:"messages"`
	Version      int64     `json:"version" bson:"version"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Students:  []string{},
		Polls:     []Poll{},
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SessionState is the read-only projection pushed to clients.
type SessionState struct {
	SessionID    string    `json:"sessionId"`
	Students     []string  `json:"students"`
	Polls        []Poll    `json:"polls"`
	ActivePollID *string   `json:"activePollId"`
	Messages     []Message `json:"messages"`
	Version      int64     `json:"version"`
}

func (s *Session) HasStudent(name string) bool {
	for _, n := range s.Students {
		if n == name {
			return true
		}
	}
	return false
}

// FindPoll returns a pointer into s.Polls, or nil.
func (s *Session) FindPoll(id string) *Poll {
	for i := range s.Polls {
		if s.Polls[i].ID == id {
			return &s.Polls[i]
		}
	}
	return nil
}

// ActivePoll resolves ActivePollID against the poll history.
func (s *Session) ActivePoll() *Poll {
	if s.ActivePollID == nil {
		return nil
	}
	return s.FindPoll(*s.ActivePollID)
}

func (s *Session) Clone() *Session {
	out := *s
	out.Students = append([]string{}, s.Students...)
	out.Messages = append([]Message{}, s.Messages...)
	out.Polls = make([]Poll, len(s.Polls))
	for i, p := range s.Polls {
		out.Polls[i] = p.Clone()
	}
	if s.ActivePollID != nil {
		id := *s.ActivePollID
		out.ActivePollID = &id
	}
	return &out
}

func (s *Session) Projection() SessionState {
	c := s.Clone()
	return SessionState{
		SessionID:    c.ID,
		Students:     c.Students,
		Polls:        c.Polls,
		ActivePollID: c.ActivePollID,
		Messages:     c.Messages,
		Version:      c.Version,
	}
}

type ParticipantRequest struct {
	Name string `json:"name"`
}
