package handlers

import (
	"net/http"

	"livepoll-backend/internal/models"
)

type ChatHandler struct {
	store sessionStore
}

func NewChatHandler(store sessionStore) *ChatHandler {
	return &ChatHandler{store: store}
}

// PostMessage appends a chat message. A blank name is posted as "User".
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	msg, err := h.store.AppendMessage(r.Context(), sessionIDParam(r), req.Name, req.Text)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}
