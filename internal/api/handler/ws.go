package handler

import (
	"net/http"

	"chatrelay/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// any origin is accepted
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades the request and hands the connection to the hub.
// Connections are never refused for identity reasons: a bad or missing
// credential falls back to the declared username or a guest name.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerToken(c)
	}

	connID := uuid.NewString()
	ident := h.Resolver.Resolve(token, c.Query("username"), connID)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Hub, connID, ident.Username, ident.Guest, chathub.WebSocketOptions{
		SendBuffer:    h.Config.SendBuffer,
		MaxFrameBytes: h.Config.MaxFrameBytes,
	})
	client.Run()
}
