package handler

import (
	"net/http"
	"strconv"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// GetMessages serves a page of room history, oldest first. Private rooms
// are only readable with a credential for one of their participants.
func (h *Handler) GetMessages(c *gin.Context) {
	room := c.DefaultQuery("room", config.DefaultRoom)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(config.DefaultPageSize)))
	page, limit = storage.ClampPage(page, limit)

	if models.IsPrivateRoom(room) && !h.canReadPrivate(c, room) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	msgs, err := h.Storage.FetchPage(c.Request.Context(), room, page, limit)
	if err != nil {
		h.logger.Error("fetch history page", "room", room, "page", page, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": msgs, "page": page, "limit": limit})
}

func (h *Handler) canReadPrivate(c *gin.Context, room string) bool {
	token := bearerToken(c)
	if token == "" {
		return false
	}
	username, err := h.Tokens.Verify(token)
	if err != nil {
		h.logger.Warn("history credential rejected", "error", err)
		return false
	}
	return models.IsParticipant(room, username)
}
