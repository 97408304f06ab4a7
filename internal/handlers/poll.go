package handlers

import (
	"net/http"

	"livepoll-backend/internal/models"
)

type PollHandler struct {
	store sessionStore
}

func NewPollHandler(store sessionStore) *PollHandler {
	return &PollHandler{store: store}
}

func (h *PollHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePollRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	poll, err := h.store.CreatePoll(r.Context(), sessionIDParam(r), req.Question, req.Options, req.DurationSeconds)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, poll)
}

func (h *PollHandler) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitAnswerRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}
	if req.OptionIndex == nil {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "optionIndex is required",
			map[string]string{"optionIndex": "optionIndex is required"}, r))
		return
	}

	poll, err := h.store.SubmitAnswer(r.Context(), sessionIDParam(r), req.PollID, req.StudentName, *req.OptionIndex)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, poll)
}
