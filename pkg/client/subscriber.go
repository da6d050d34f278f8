package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	initialReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay     = 5 * time.Second
	subscriberPongWait    = 60 * time.Second
	controlWriteWait      = 10 * time.Second
)

type resumeCommand struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
	FromIndex *int   `json:"fromIndex"`
}

// Subscriber keeps a progress-channel connection alive, feeding events into
// a Session. It reconnects forever with exponential backoff and requests a
// replay of missed frames after each reconnect.
type Subscriber struct {
	wsURL     string
	sessionID string
	session   *Session
	logger    *zap.Logger

	// OnEvent observes every frame after it is applied to the session.
	OnEvent func(Event)

	mu        sync.Mutex
	lastIndex int
	seen      bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber prepares a subscriber for one session room. baseURL is the
// server's HTTP base URL; token optionally authenticates the handshake and
// must then belong to the same session.
func NewSubscriber(baseURL, sessionID, token string, session *Session, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}

	wsBase := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(wsBase, "https://"):
		wsBase = "wss://" + strings.TrimPrefix(wsBase, "https://")
	case strings.HasPrefix(wsBase, "http://"):
		wsBase = "ws://" + strings.TrimPrefix(wsBase, "http://")
	}
	q := url.Values{}
	q.Set("sessionId", sessionID)
	if token != "" {
		q.Set("token", token)
	}

	return &Subscriber{
		wsURL:     wsBase + "/ws?" + q.Encode(),
		sessionID: sessionID,
		session:   session,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

// Run connects and keeps reading until ctx is cancelled or Close is called.
func (s *Subscriber) Run(ctx context.Context) {
	delay := initialReconnectDelay
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, nil)
		if err != nil {
			s.logger.Debug("progress channel dial failed, will retry",
				zap.Duration("delay", delay),
				zap.Error(err))
			if !s.wait(ctx, delay) {
				return
			}
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
			continue
		}

		delay = initialReconnectDelay
		s.handleConn(ctx, conn)

		if !s.wait(ctx, delay) {
			return
		}
	}
}

// Close stops the subscriber permanently.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// LastIndex reports the highest frame index seen so far.
func (s *Subscriber) LastIndex() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIndex, s.seen
}

func (s *Subscriber) wait(ctx context.Context, delay time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	case <-time.After(delay):
		return true
	}
}

func (s *Subscriber) handleConn(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-s.done:
			conn.Close()
		case <-stop:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(subscriberPongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(subscriberPongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
	})

	if last, ok := s.LastIndex(); ok {
		from := last + 1
		cmd := resumeCommand{Action: "resume", SessionID: s.sessionID, FromIndex: &from}
		if err := conn.WriteJSON(cmd); err != nil {
			s.logger.Debug("failed to request replay", zap.Error(err))
			return
		}
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("progress channel read ended", zap.Error(err))
			return
		}
		conn.SetReadDeadline(time.Now().Add(subscriberPongWait))

		// The server coalesces queued frames into one message, one
		// frame per line.
		for _, line := range bytes.Split(message, []byte{'\n'}) {
			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}
			s.dispatch(line)
		}
	}
}

func (s *Subscriber) dispatch(raw []byte) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		s.logger.Debug("ignoring malformed frame", zap.Error(err))
		return
	}

	s.mu.Lock()
	if !s.seen || evt.Index > s.lastIndex {
		s.lastIndex = evt.Index
		s.seen = true
	}
	s.mu.Unlock()

	s.apply(evt)
	if s.OnEvent != nil {
		s.OnEvent(evt)
	}
}

// apply feeds a frame into the session, ignoring events for other jobs.
func (s *Subscriber) apply(evt Event) {
	if s.session == nil {
		return
	}
	switch evt.Type {
	case EventSlideProgress:
		var p ProgressEvent
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return
		}
		if s.tracksJob(p.JobID) {
			s.session.SetProgress(p.Progress)
		}
	case EventSlideCompleted:
		var p CompletedEvent
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return
		}
		if s.tracksJob(p.JobID) {
			s.session.Complete(p.FileURL)
		}
	case EventError:
		var p ErrorEvent
		if err := json.Unmarshal(evt.Payload, &p); err != nil {
			return
		}
		if s.tracksJob(p.JobID) {
			s.session.Fail(p.Message)
		}
	}
}

func (s *Subscriber) tracksJob(jobID string) bool {
	current := s.session.JobID()
	return current != "" && current == jobID
}
