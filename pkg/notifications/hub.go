package notifications

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
)

// Event types pushed to connected clients.
const (
	EventJobProgress   = "job_progress"
	EventJobCompleted  = "job_completed"
	EventBookUpdated   = "book_updated"
	EventProposalAdded = "proposal_added"
)

// Event is one notification message. Payload must be JSON-serializable.
type Event struct {
	Type    string      `json:"type"`
	JobID   *int        `json:"job_id,omitempty"`
	BookID  *int        `json:"book_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Publisher is the push side of the hub. Long-running jobs hold a Publisher
// rather than the hub itself so tests can capture events.
type Publisher interface {
	Publish(event Event)
}

// Hub fans events out to every connected websocket client. Slow or dead
// clients are dropped on write failure rather than blocking the publisher.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Publish serializes the event and writes it to every connected client.
func (h *Hub) Publish(event Event) {
	b, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ws := range h.clients {
		_ = ws.SetWriteDeadline(time.Now().Add(2 * time.Second))
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.clients, ws)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(ws *websocket.Conn) {
	h.mu.Lock()
	h.clients[ws] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Same-host deployments only; the UI is served from this process.
		return true
	},
}

// Handler upgrades the connection and holds it open until the client goes
// away. Incoming messages are ignored.
func (h *Hub) Handler(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	h.add(ws)
	log := logger.FromContext(c.Request().Context())
	log.Debug("notifications client connected")

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(ws)
	log.Debug("notifications client disconnected")

	return nil
}
