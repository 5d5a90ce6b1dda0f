package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/watchy-labs/watchy/internal/jobstore"
)

// Progress streaming is additive to spec.md §6: polling GET /audit/:audit_id
// remains the primary interface, this just spares a client the round trips.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one subscriber to a single audit's progress stream.
type client struct {
	auditID string
	conn    *websocket.Conn
	send    chan []byte
}

// progressEvent is what's pushed to subscribers: either a job state
// transition or a fanned-out log line from internal/logging's correlation
// hook.
type progressEvent struct {
	Type    string      `json:"type"`
	AuditID string      `json:"auditId"`
	Job     *jobstore.Job `json:"job,omitempty"`
	Level   string      `json:"level,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Hub fans job updates and log lines out to websocket subscribers, keyed by
// audit ID so a connection only receives events for the audit it asked for.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*client]bool
	register    chan *client
	unregister  chan *client
	events      chan progressEvent
	done        chan struct{}
}

func newHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[*client]bool),
		register:    make(chan *client),
		unregister:  make(chan *client),
		events:      make(chan progressEvent, 256),
		done:        make(chan struct{}),
	}
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			return
		case c := <-h.register:
			h.mu.Lock()
			if h.subscribers[c.auditID] == nil {
				h.subscribers[c.auditID] = make(map[*client]bool)
			}
			h.subscribers[c.auditID][c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if set, ok := h.subscribers[c.auditID]; ok {
				if _, ok := set[c]; ok {
					delete(set, c)
					close(c.send)
				}
				if len(set) == 0 {
					delete(h.subscribers, c.auditID)
				}
			}
			h.mu.Unlock()
		case ev := <-h.events:
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			h.mu.RLock()
			for c := range h.subscribers[ev.AuditID] {
				select {
				case c.send <- raw:
				default:
					close(c.send)
					delete(h.subscribers[ev.AuditID], c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) close() { close(h.done) }

// broadcast publishes job's current state to any subscribers of its audit ID.
func (h *Hub) broadcast(job *jobstore.Job) {
	h.events <- progressEvent{Type: "job_update", AuditID: job.ID, Job: job}
}

// PublishLog implements internal/logging's ProgressSink, fanning failed and
// warning log entries out alongside job state transitions.
func (h *Hub) PublishLog(auditID, level, message string) {
	h.events <- progressEvent{Type: "log", AuditID: auditID, Level: level, Message: message}
}

// serveWebSocket upgrades the connection and subscribes it to one audit's
// progress stream, immediately replaying the job's current state.
func (s *Server) serveWebSocket(c *gin.Context) {
	auditID := c.Param("audit_id")
	job, err := s.store.Get(c.Request.Context(), auditID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	cl := &client{auditID: auditID, conn: conn, send: make(chan []byte, 16)}
	s.hub.register <- cl

	initial, _ := json.Marshal(progressEvent{Type: "job_update", AuditID: auditID, Job: job})
	cl.send <- initial

	go writePump(cl)
	go readPump(s.hub, cl)
}

func writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only exists to detect disconnects and keep the pong deadline
// alive; the progress stream is one-directional.
func readPump(h *Hub, c *client) {
	defer func() {
		h.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
