package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"livepoll-backend/internal/models"
)

type sessionStore interface {
	GetOrCreateSession(ctx context.Context, sessionID string) (models.SessionState, error)
	AddParticipant(ctx context.Context, sessionID, name string) (models.SessionState, error)
	RemoveParticipant(ctx context.Context, sessionID, name string) (models.SessionState, error)
	AppendMessage(ctx context.Context, sessionID, author, text string) (models.Message, error)
	CreatePoll(ctx context.Context, sessionID, question string, options []string, durationSeconds int) (models.Poll, error)
	SubmitAnswer(ctx context.Context, sessionID, pollID, studentName string, optionIndex int) (models.Poll, error)
}

func sessionIDParam(r *http.Request) string {
	if id := chi.URLParam(r, "sessionID"); id != "" {
		return id
	}
	return models.DefaultSessionID
}

type SessionHandler struct {
	store sessionStore
}

func NewSessionHandler(store sessionStore) *SessionHandler {
	return &SessionHandler{store: store}
}

// Get returns the current projection, creating the session on first use.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.GetOrCreateSession(r.Context(), sessionIDParam(r))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *SessionHandler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req models.ParticipantRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	state, err := h.store.AddParticipant(r.Context(), sessionIDParam(r), req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *SessionHandler) Kick(w http.ResponseWriter, r *http.Request) {
	var req models.ParticipantRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	state, err := h.store.RemoveParticipant(r.Context(), sessionIDParam(r), req.Name)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
