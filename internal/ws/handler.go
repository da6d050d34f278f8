package ws

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"slides-server/internal/auth"
	"slides-server/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleConnection upgrades a progress channel connection. The session room
// comes from a bearer token when one is presented, otherwise from the
// sessionId query parameter. A presented but invalid token is rejected.
func (h *Hub) HandleConnection(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := resolveSession(c, tokens)
		if err != nil {
			c.JSON(http.StatusUnauthorized, models.ErrorResponse{Error: err.Error()})
			return
		}
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "sessionId or bearer token required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := &Client{
			ID:        uuid.New(),
			SessionID: sessionID,
			Conn:      conn,
			Hub:       h,
			Send:      make(chan []byte, 256),
			logger:    h.logger,
		}
		h.register <- client

		go client.readPump()
		go client.writePump()
	}
}

func resolveSession(c *gin.Context, tokens *auth.TokenService) (string, error) {
	tokenString := bearerToken(c)
	if tokenString != "" {
		claims, err := tokens.VerifyAccess(tokenString)
		if err != nil {
			return "", err
		}
		if claims.SessionID != "" {
			return claims.SessionID, nil
		}
		return claims.Subject, nil
	}
	return c.Query("sessionId"), nil
}

// bearerToken pulls the token from the Authorization header or, for
// browser websocket clients that cannot set headers, the token query
// parameter.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("token")
}
