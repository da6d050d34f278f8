// Package ws delivers build progress events to session-scoped rooms.
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"slides-server/internal/models"
)

var wsConnectedClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "slides_ws_connected_clients",
		Help: "Number of connected websocket clients.",
	},
)

// Frame is one event on the wire. Index numbers events per room so clients
// can resume after a reconnect.
type Frame struct {
	Index   int         `json:"index"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type roomState struct {
	clients      map[uuid.UUID]*Client
	nextIndex    int
	replay       [][]byte
	lastActivity time.Time
}

type roomMessage struct {
	sessionID string
	frameType string
	payload   interface{}
}

// Hub fans job events out to the clients of each session room and keeps a
// bounded replay buffer per room for reconnects.
type Hub struct {
	rooms      map[string]*roomState
	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage
	closing    chan struct{}
	mu         sync.RWMutex
	replaySize int
	logger     *zap.Logger
}

// NewHub builds the hub. replaySize bounds the per-room event history.
func NewHub(replaySize int, logger *zap.Logger) *Hub {
	if replaySize <= 0 {
		replaySize = 64
	}
	return &Hub{
		rooms:      make(map[string]*roomState),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan roomMessage, 256),
		closing:    make(chan struct{}),
		replaySize: replaySize,
		logger:     logger,
	}
}

// Start runs the hub loop in its own goroutine.
func (h *Hub) Start() {
	go h.run()
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			room := h.rooms[client.SessionID]
			if room == nil {
				room = &roomState{clients: make(map[uuid.UUID]*Client)}
				h.rooms[client.SessionID] = room
			}
			room.clients[client.ID] = client
			room.lastActivity = time.Now()
			h.mu.Unlock()
			wsConnectedClients.Inc()
			h.logger.Debug("websocket client connected",
				zap.String("client_id", client.ID.String()),
				zap.String("session_id", client.SessionID))

		case client := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.SessionID]; ok {
				if _, ok := room.clients[client.ID]; ok {
					close(client.Send)
					delete(room.clients, client.ID)
					wsConnectedClients.Dec()
					h.logger.Debug("websocket client disconnected",
						zap.String("client_id", client.ID.String()),
						zap.String("session_id", client.SessionID))
				}
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.deliver(message)

		case <-h.closing:
			return
		}
	}
}

func (h *Hub) deliver(message roomMessage) {
	if message.sessionID == "" {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[message.sessionID]
	if room == nil {
		room = &roomState{clients: make(map[uuid.UUID]*Client)}
		h.rooms[message.sessionID] = room
	}

	frame := Frame{
		Index:   room.nextIndex,
		Type:    message.frameType,
		Payload: message.payload,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("failed to marshal event frame", zap.Error(err))
		return
	}
	room.nextIndex++
	room.lastActivity = time.Now()

	room.replay = append(room.replay, data)
	if len(room.replay) > h.replaySize {
		room.replay = room.replay[len(room.replay)-h.replaySize:]
	}

	for id, client := range room.clients {
		select {
		case client.Send <- data:
		default:
			// Slow clients are dropped rather than blocking the room.
			close(client.Send)
			delete(room.clients, id)
			wsConnectedClients.Dec()
			h.logger.Warn("dropping slow websocket client",
				zap.String("client_id", id.String()),
				zap.String("session_id", message.sessionID))
		}
	}
}

// replayFrom queues buffered room events with index >= fromIndex onto the
// client. Used when a client resumes after a reconnect.
func (h *Hub) replayFrom(client *Client, fromIndex int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[client.SessionID]
	if room == nil || len(room.replay) == 0 {
		return
	}

	firstIndex := room.nextIndex - len(room.replay)
	for i, data := range room.replay {
		if firstIndex+i < fromIndex {
			continue
		}
		select {
		case client.Send <- data:
		default:
			return
		}
	}
}

// NotifyProgress implements the job manager's notifier.
func (h *Hub) NotifyProgress(sessionID string, jobID uuid.UUID, progress int) {
	h.send(sessionID, models.EventSlideProgress, models.ProgressPayload{
		JobID:    jobID,
		Progress: progress,
	})
}

// NotifyCompleted pushes the terminal completion event with the file URL.
func (h *Hub) NotifyCompleted(sessionID string, jobID uuid.UUID, fileURL string) {
	h.send(sessionID, models.EventSlideCompleted, models.CompletedPayload{
		JobID:   jobID,
		FileURL: fileURL,
	})
}

// NotifyError pushes the terminal failure event.
func (h *Hub) NotifyError(sessionID string, jobID uuid.UUID, message string) {
	h.send(sessionID, models.EventError, models.ErrorPayload{
		JobID:   jobID,
		Message: message,
	})
}

func (h *Hub) send(sessionID, frameType string, payload interface{}) {
	if sessionID == "" {
		return
	}
	select {
	case h.broadcast <- roomMessage{sessionID: sessionID, frameType: frameType, payload: payload}:
	case <-h.closing:
	}
}

// PruneRooms drops empty rooms whose last activity is older than age.
func (h *Hub) PruneRooms(age time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	for sessionID, room := range h.rooms {
		if len(room.clients) == 0 && now.Sub(room.lastActivity) > age {
			delete(h.rooms, sessionID)
		}
	}
}

// StartCleanup prunes stale rooms on a ticker until Stop.
func (h *Hub) StartCleanup(interval, age time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-h.closing:
				return
			case <-ticker.C:
				h.PruneRooms(age)
			}
		}
	}()
}

// Stop terminates the hub loop and cleanup goroutines.
func (h *Hub) Stop() {
	close(h.closing)
}
