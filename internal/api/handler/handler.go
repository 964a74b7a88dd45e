package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatrelay/backend/internal/blob"
	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/identity"
	"chatrelay/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler holds everything the HTTP surface needs.
type Handler struct {
	Hub      *chathub.ManagerService
	Storage  storage.Storage
	Resolver *identity.Resolver
	Tokens   *identity.TokenIssuer
	Blobs    *blob.Service
	Config   *config.Config

	logger *slog.Logger
}

func NewHandler(
	hub *chathub.ManagerService,
	st storage.Storage,
	resolver *identity.Resolver,
	tokens *identity.TokenIssuer,
	blobs *blob.Service,
	cfg *config.Config,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		Hub:      hub,
		Storage:  st,
		Resolver: resolver,
		Tokens:   tokens,
		Blobs:    blobs,
		Config:   cfg,
		logger:   logger.With(slog.String("component", "http")),
	}
}

// NewRouter wires every route onto a fresh gin engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.logger))

	r.GET("/health", h.Health)
	r.POST("/login", h.Login)
	r.GET("/messages", h.GetMessages)
	r.POST("/upload", h.Upload)
	r.GET("/uploads/:name", h.GetUpload)
	r.GET("/ws", h.ServeWebSocket)

	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RequestLogger emits one record per request.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		} else if status >= http.StatusBadRequest {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
			slog.String("client_ip", c.ClientIP()),
		)
	}
}

// bearerToken returns the token of an "Authorization: Bearer" header.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
