package handler

import (
	"errors"
	"net/http"
	"strings"

	"chatrelay/backend/internal/blob"

	"github.com/gin-gonic/gin"
)

// multipart framing allowance on top of the file itself
const uploadOverhead = 1 << 20

// Upload stores the multipart "file" field and returns a URL clients can
// embed in image and file messages.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.Config.MaxUploadBytes+uploadOverhead)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload"})
		return
	}
	defer file.Close()

	upload, err := h.Blobs.Upload(c.Request.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	switch {
	case errors.Is(err, blob.ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	case errors.Is(err, blob.ErrEmpty):
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is empty"})
		return
	case err != nil:
		h.logger.Error("store upload", "filename", header.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"url":         h.uploadURL(c, upload.Name),
		"filename":    upload.Name,
		"kind":        upload.Kind,
		"size":        upload.Size,
		"contentType": upload.MimeType,
	})
}

func (h *Handler) uploadURL(c *gin.Context, name string) string {
	base := strings.TrimRight(h.Config.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/uploads/" + name
}

// GetUpload streams a stored blob.
func (h *Handler) GetUpload(c *gin.Context) {
	rc, obj, err := h.Blobs.Open(c.Request.Context(), c.Param("name"))
	if errors.Is(err, blob.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if err != nil {
		h.logger.Error("open upload", "name", c.Param("name"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	defer rc.Close()

	c.Header("Cache-Control", "public, max-age=31536000, immutable")
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, rc, nil)
}
