package handler

import (
	"net/http"
	"strings"

	"chatrelay/backend/internal/identity"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username"`
}

// Login issues a signed credential for a username. Any valid name is
// accepted; the relay has no accounts.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	username := strings.TrimSpace(req.Username)
	if err := identity.ValidateUsername(username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.Tokens.Issue(username)
	if err != nil {
		h.logger.Error("issue token", "username", username, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "username": username})
}
