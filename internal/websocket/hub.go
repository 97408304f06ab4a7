package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"livepoll-backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 16

	channelPrefix = "session_updates:"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Upgrade switches an HTTP request to a websocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// Hub fans session projections out to websocket subscribers. With a Redis
// client every publish goes through a per-session channel so that all
// server instances deliver it; without one delivery is process-local.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[*Client]struct{}

	// subMu orders subscription setup and teardown; it is taken before mu.
	subMu         sync.Mutex
	redisClient   *redis.Client
	subscriptions map[string]*subscription
}

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		sessions:      make(map[string]map[*Client]struct{}),
		redisClient:   redisClient,
		subscriptions: make(map[string]*subscription),
	}
}

type Client struct {
	hub       *Hub
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
	closed    bool // guarded by hub.mu
}

// Register adds conn as a subscriber of sessionID. With Redis, the session's
// channel subscription is confirmed before Register returns, so every publish
// that follows reaches the client. The caller must call Run.
func (h *Hub) Register(ctx context.Context, sessionID string, conn *websocket.Conn) (*Client, error) {
	c := &Client{
		hub:       h,
		sessionID: sessionID,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
	}

	h.subMu.Lock()
	defer h.subMu.Unlock()

	if err := h.ensureSubscribed(ctx, sessionID); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[*Client]struct{})
	}
	h.sessions[sessionID][c] = struct{}{}
	total := len(h.sessions[sessionID])
	h.mu.Unlock()

	log.Printf("ws: client connected to session %s (total: %d)", sessionID, total)
	return c, nil
}

// ensureSubscribed starts the Redis subscription for sessionID if this
// instance has none. Callers hold subMu.
func (h *Hub) ensureSubscribed(ctx context.Context, sessionID string) error {
	if h.redisClient == nil {
		return nil
	}
	if _, ok := h.subscriptions[sessionID]; ok {
		return nil
	}

	pubsub := h.redisClient.Subscribe(ctx, channelPrefix+sessionID)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to session %s: %w", sessionID, err)
	}

	drainCtx, cancel := context.WithCancel(context.Background())
	h.subscriptions[sessionID] = &subscription{pubsub: pubsub, cancel: cancel}
	go h.drain(drainCtx, sessionID, pubsub.Channel())
	return nil
}

func (h *Hub) unregister(c *Client) {
	h.subMu.Lock()
	defer h.subMu.Unlock()

	h.mu.Lock()
	conns, ok := h.sessions[c.sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := conns[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(conns, c)
	c.closed = true
	close(c.send)

	empty := len(conns) == 0
	if empty {
		delete(h.sessions, c.sessionID)
	}
	h.mu.Unlock()

	if empty {
		if sub, ok := h.subscriptions[c.sessionID]; ok {
			sub.cancel()
			sub.pubsub.Close()
			delete(h.subscriptions, c.sessionID)
		}
	}

	log.Printf("ws: client disconnected from session %s", c.sessionID)
}

// SubscriberCount reports how many local clients watch sessionID.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Publish implements services.Broadcaster.
func (h *Hub) Publish(ctx context.Context, sessionID string, state models.SessionState) {
	data, err := EncodeState(state)
	if err != nil {
		log.Printf("ws: marshal error for session %s: %v", sessionID, err)
		return
	}

	if h.redisClient != nil {
		err := h.redisClient.Publish(ctx, channelPrefix+sessionID, data).Err()
		if err == nil {
			return
		}
		log.Printf("ws: redis publish failed for session %s, delivering locally: %v", sessionID, err)
	}
	h.broadcast(sessionID, data)
}

// EncodeState renders the state event sent to subscribers.
func EncodeState(state models.SessionState) ([]byte, error) {
	return json.Marshal(models.WSMessage{Type: models.WSTypeState, Data: state})
}

func (h *Hub) drain(ctx context.Context, sessionID string, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(sessionID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(sessionID string, data []byte) {
	var slow []*Client

	h.mu.RLock()
	for c := range h.sessions[sessionID] {
		if !c.trySend(data) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Printf("ws: dropping slow client on session %s", sessionID)
		h.unregister(c)
	}
}

// Send queues data without blocking. It returns false when the client's
// buffer is full or the client has been unregistered.
func (c *Client) Send(data []byte) bool {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	return c.trySend(data)
}

// trySend is Send for callers already holding hub.mu.
func (c *Client) trySend(data []byte) bool {
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Run pumps messages until the connection goes away, then unregisters.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
	c.hub.unregister(c)
}

func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Clients never send commands over the socket; reads only detect close.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("ws: write error on session %s: %v", c.sessionID, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
