package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

// Client is one websocket connection bound to a session room.
type Client struct {
	ID        uuid.UUID
	SessionID string
	Conn      *websocket.Conn
	Hub       *Hub
	Send      chan []byte
	logger    *zap.Logger
}

// clientCommand is the inbound message shape. Resume requests replay of
// buffered room events from a given index.
type clientCommand struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId"`
	FromIndex *int   `json:"fromIndex"`
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("websocket read error",
					zap.String("client_id", c.ID.String()),
					zap.Error(err))
			}
			break
		}

		var cmd clientCommand
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.logger.Debug("ignoring malformed websocket command",
				zap.String("client_id", c.ID.String()),
				zap.Error(err))
			continue
		}

		switch cmd.Action {
		case "resume":
			// A resume for another session is ignored; the room binding
			// comes from authentication, not from the command.
			if cmd.SessionID != "" && cmd.SessionID != c.SessionID {
				continue
			}
			fromIndex := 0
			if cmd.FromIndex != nil {
				fromIndex = *cmd.FromIndex
			}
			c.Hub.replayFrom(c, fromIndex)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain whatever queued up behind this frame.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
