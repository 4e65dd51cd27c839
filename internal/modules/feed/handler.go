package feed

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"servio/internal/pkg/jwt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,

	// Browsers cannot set custom headers on the upgrade request, so origin
	// is checked by the reverse proxy in front of the API.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	pingInterval = 30 * time.Second
	pongWait     = 60 * time.Second
)

// WSHandler upgrades feed connections and keeps them alive.
type WSHandler struct {
	hub        *Hub
	jwtService *jwt.Service
	log        *zap.Logger
}

func NewWSHandler(hub *Hub, jwtService *jwt.Service, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{hub: hub, jwtService: jwtService, log: log}
}

// HandleWebSocket serves GET /ws/feed?token=JWT. The token travels as a
// query parameter because the upgrade request cannot carry headers.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is required. Use ?token=YOUR_JWT_TOKEN"})
		return
	}
	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	userID := claims.UserID
	sessionID := h.hub.Register(userID, conn)
	h.log.Info("feed session opened", zap.Int64("user_id", userID), zap.String("session_id", sessionID))

	defer func() {
		h.hub.Unregister(userID, sessionID)
		h.log.Info("feed session closed", zap.Int64("user_id", userID), zap.String("session_id", sessionID))
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go h.pingLoop(conn)
	h.readLoop(conn)
}

func (h *WSHandler) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
			return
		}
	}
}

// readLoop drains the connection. The feed is one-way; inbound frames are
// discarded but the read keeps ping/pong processing alive.
func (h *WSHandler) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
