// Package notify pushes expense events to connected WebSocket clients.
package notify

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/fennwick/ledgermail/internal/model"
)

// Event is the wire format pushed to clients.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// expensePayload is the payload for new-expense events.
type expensePayload struct {
	ID       int64  `json:"id"`
	Merchant string `json:"merchant"`
	Amount   string `json:"amount"`
	Category string `json:"category,omitempty"`
	Date     string `json:"date"`
}

// client serializes writes to one connection. The websocket package allows at
// most one concurrent writer per connection, and broadcasts can arrive from
// the scheduler sweep and an API-triggered run at the same time.
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// Hub tracks WebSocket connections per user and broadcasts pipeline events
// to them.
type Hub struct {
	connections map[int64][]*client
	upgrader    websocket.Upgrader
	mu          sync.Mutex
}

// NewHub creates an empty connection hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[int64][]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API serves browser frontends on other origins
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and registers the connection under the
// user_id query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "valid user_id query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn}
	h.register(userID, c)
	slog.Debug("websocket connected", "user_id", userID)

	// Reader loop exists only to observe close; clients never send.
	go func() {
		defer h.unregister(userID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ExpenseCreated notifies the user's connections about a new expense.
func (h *Hub) ExpenseCreated(userID int64, expense *model.Expense) {
	h.BroadcastToUser(userID, Event{
		Type: "expense.created",
		Payload: expensePayload{
			ID:       expense.ID,
			Merchant: expense.Merchant,
			Amount:   expense.Amount.String(),
			Category: expense.CategoryName,
			Date:     expense.Date.Format("2006-01-02"),
		},
	})
}

// BroadcastToUser sends an event to every connection the user has open.
// Connections that fail to write are dropped.
func (h *Hub) BroadcastToUser(userID int64, event Event) {
	h.mu.Lock()
	clients := make([]*client, len(h.connections[userID]))
	copy(clients, h.connections[userID])
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.writeJSON(event); err != nil {
			slog.Debug("websocket write failed, dropping connection",
				"user_id", userID, "error", err)
			h.unregister(userID, c)
			_ = c.conn.Close()
		}
	}
}

// Close shuts every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.connections {
		for _, c := range clients {
			_ = c.conn.Close()
		}
	}
	h.connections = make(map[int64][]*client)
}

func (h *Hub) register(userID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[userID] = append(h.connections[userID], c)
}

func (h *Hub) unregister(userID int64, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.connections[userID]
	for i, registered := range clients {
		if registered == c {
			h.connections[userID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
	}
}
