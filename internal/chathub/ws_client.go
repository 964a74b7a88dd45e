package chathub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"

	"github.com/gorilla/websocket"
)

// WebSocketClient implements Client over a gorilla/websocket connection.
type WebSocketClient struct {
	id       string
	username string
	guest    bool

	conn     *websocket.Conn
	hub      *ManagerService
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	maxFrame int64
	logger   *slog.Logger
}

type WebSocketOptions struct {
	SendBuffer    int
	MaxFrameBytes int64
}

func NewWebSocketClient(conn *websocket.Conn, hub *ManagerService, id, username string, guest bool, opts WebSocketOptions) *WebSocketClient {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 64 << 10
	}
	return &WebSocketClient{
		id:       id,
		username: username,
		guest:    guest,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
		maxFrame: opts.MaxFrameBytes,
		logger:   hub.logger.With(slog.String("connection", id)),
	}
}

func (c *WebSocketClient) ID() string       { return c.id }
func (c *WebSocketClient) Username() string { return c.username }

func (c *WebSocketClient) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close signals the write pump to send a close frame and drop the connection.
func (c *WebSocketClient) Close() {
	c.once.Do(func() { close(c.done) })
}

// Run starts the pumps. The session is activated before the first inbound
// frame is read and closed once the read side ends.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go func() {
		ctx := c.hub.Context()
		session := c.hub.Connect(ctx, c, c.guest)
		c.readPump(ctx, session)
	}()
}

func (c *WebSocketClient) readPump(ctx context.Context, session *Session) {
	defer func() {
		c.Close()
		session.Close(context.WithoutCancel(ctx))
	}()

	c.conn.SetReadLimit(c.maxFrame)
	c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("read failed", slog.Any("error", err))
			}
			return
		}

		var in models.Inbound
		if err := json.Unmarshal(frame, &in); err != nil || in.Event == "" {
			c.logger.Warn("malformed frame dropped", slog.Int("bytes", len(frame)))
			continue
		}
		session.Handle(ctx, in)
	}
}

// writePump is the only writer on the connection. Each queued event goes out
// as its own text frame.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Debug("write failed", slog.Any("error", err))
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
