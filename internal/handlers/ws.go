package handlers

import (
	"log"
	"net/http"

	gorillaws "github.com/gorilla/websocket"

	"livepoll-backend/internal/websocket"
)

type WSHandler struct {
	hub   *websocket.Hub
	store sessionStore
}

func NewWSHandler(hub *websocket.Hub, store sessionStore) *WSHandler {
	return &WSHandler{hub: hub, store: store}
}

// Subscribe upgrades the connection and streams state events for the session
// named by the sessionId query parameter.
func (h *WSHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	// Resolve the session before upgrading so bad ids still get a JSON error.
	state, err := h.store.GetOrCreateSession(r.Context(), r.URL.Query().Get("sessionId"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	conn, err := websocket.Upgrade(w, r)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	client, err := h.hub.Register(r.Context(), state.SessionID, conn)
	if err != nil {
		log.Printf("ws: register failed: %v", err)
		conn.WriteMessage(gorillaws.CloseMessage, gorillaws.FormatCloseMessage(gorillaws.CloseTryAgainLater, "subscription unavailable"))
		conn.Close()
		return
	}

	// Registered first, so anything published after this read is delivered too.
	snapshot, err := h.store.GetOrCreateSession(r.Context(), state.SessionID)
	if err != nil {
		log.Printf("ws: initial snapshot for session %s failed: %v", state.SessionID, err)
		snapshot = state
	}
	if data, err := websocket.EncodeState(snapshot); err == nil {
		client.Send(data)
	}

	client.Run()
}
