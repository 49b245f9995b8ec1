// Package websocket streams stage status updates of matching runs to
// subscribed clients.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"alfredoptarigan/consultant-matcher/internal/logger"
	"alfredoptarigan/consultant-matcher/internal/models"
)

const (
	MessageTypeStatus = "status"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

type Message struct {
	Type string `json:"type"`
}

// StatusMessage carries one stage status of a job.
type StatusMessage struct {
	Type      string            `json:"type"`
	JobID     string            `json:"job_id"`
	Stage     models.Stage      `json:"stage"`
	State     models.StageState `json:"state"`
	Progress  float64           `json:"progress"`
	Message   string            `json:"message,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewStatusMessage(s models.AgentStatus) StatusMessage {
	return StatusMessage{
		Type:      MessageTypeStatus,
		JobID:     s.JobID.String(),
		Stage:     s.Stage,
		State:     s.State,
		Progress:  s.Progress,
		Message:   s.Message,
		UpdatedAt: s.UpdatedAt,
	}
}

// Client is one subscriber. Send is never closed; Done is closed once the hub
// drops the client.
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte

	done chan struct{}
	once sync.Once
}

func NewClient(jobID string, conn *websocket.Conn) *Client {
	return &Client{
		JobID: jobID,
		Conn:  conn,
		Send:  make(chan []byte, 256),
		done:  make(chan struct{}),
	}
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

type broadcastMessage struct {
	jobID   string
	payload []byte
}

// Hub fans status updates out to the clients subscribed to each job.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMessage
	done       chan struct{}
	mu         sync.RWMutex
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMessage, 256),
		done:       make(chan struct{}),
		log:        logger.OrNop(log),
	}
}

// Run serves registrations and broadcasts until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for jobID, clients := range h.clients {
				for client := range clients {
					client.close()
				}
				delete(h.clients, jobID)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String(logger.FieldJobID, client.JobID))

		case client := <-h.unregister:
			h.remove(client)
			h.log.Debug("client unregistered", zap.String(logger.FieldJobID, client.JobID))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.jobID] {
				select {
				case client.Send <- msg.payload:
				default:
					// slow consumer
					client.close()
					delete(h.clients[msg.jobID], client)
				}
			}
			if len(h.clients[msg.jobID]) == 0 {
				delete(h.clients, msg.jobID)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.JobID]
	if !ok || !clients[client] {
		return
	}
	delete(clients, client)
	client.close()
	if len(clients) == 0 {
		delete(h.clients, client.JobID)
	}
}

func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns the number of clients subscribed to the job.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// StatusChanged queues the update for broadcast. It never blocks the caller;
// updates are dropped while the broadcast buffer is full.
func (h *Hub) StatusChanged(s models.AgentStatus) {
	data, err := json.Marshal(NewStatusMessage(s))
	if err != nil {
		h.log.Error("failed to marshal status message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- broadcastMessage{jobID: s.JobID.String(), payload: data}:
	default:
		h.log.Warn("status broadcast buffer full, dropping update",
			zap.String(logger.FieldJobID, s.JobID.String()),
			zap.String(logger.FieldStage, string(s.Stage)),
		)
	}
}

// HandleConnection sends the initial statuses, then streams updates for the
// job until the client disconnects.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string, initial []models.AgentStatus) {
	client := NewClient(jobID, c)

	for _, s := range initial {
		data, err := json.Marshal(NewStatusMessage(s))
		if err != nil {
			continue
		}
		client.Send <- data
	}

	if !h.Register(client) {
		return
	}
	defer func() {
		h.Unregister(client)
		client.close()
	}()

	go h.writePump(client)

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read error", zap.String(logger.FieldJobID, jobID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePing {
			pong, _ := json.Marshal(Message{Type: MessageTypePong})
			select {
			case client.Send <- pong:
			case <-client.Done():
			default:
			}
		}
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-client.Done():
			_ = client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-client.Send:
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
