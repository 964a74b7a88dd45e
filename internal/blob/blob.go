// Package blob stores uploaded files and hands back names that can be
// resolved to retrievable URLs.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"chatrelay/backend/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no object exists under a name.
	ErrNotFound = errors.New("blob not found")
	// ErrTooLarge is returned when an upload exceeds the configured limit.
	ErrTooLarge = errors.New("blob too large")
	// ErrEmpty is returned for zero-byte uploads.
	ErrEmpty = errors.New("blob is empty")
)

// Object describes a stored blob.
type Object struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store is a flat namespace of immutable blobs.
type Store interface {
	Put(ctx context.Context, name, contentType string, data []byte) (*Object, error)
	Get(ctx context.Context, name string) (io.ReadCloser, *Object, error)
}

// Upload is the result of a successful upload.
type Upload struct {
	Name     string             `json:"filename"`
	Kind     models.MessageKind `json:"kind"`
	Size     int64              `json:"size"`
	MimeType string             `json:"contentType"`
}

// Service enforces upload limits and naming on top of a Store.
type Service struct {
	store    Store
	maxBytes int64
	now      func() time.Time
}

func NewService(store Store, maxBytes int64) *Service {
	return &Service{store: store, maxBytes: maxBytes, now: time.Now}
}

// Upload reads at most maxBytes from r and stores it under a fresh name
// derived from filename.
func (s *Service) Upload(ctx context.Context, filename, contentType string, r io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if n == 0 {
		return nil, ErrEmpty
	}
	if n > s.maxBytes {
		return nil, ErrTooLarge
	}

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = DetectContentType(filename)
	}

	name := s.objectName(filename)
	obj, err := s.store.Put(ctx, name, contentType, buf.Bytes())
	if err != nil {
		return nil, err
	}

	return &Upload{
		Name:     obj.Name,
		Kind:     KindFor(contentType),
		Size:     obj.Size,
		MimeType: contentType,
	}, nil
}

// Open returns the blob stored under name.
func (s *Service) Open(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	if !ValidName(name) {
		return nil, nil, ErrNotFound
	}
	return s.store.Get(ctx, name)
}

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
	dotRuns     = regexp.MustCompile(`\.{2,}`)
)

func (s *Service) objectName(filename string) string {
	base := unsafeChars.ReplaceAllString(filepath.Base(filename), "_")
	base = dotRuns.ReplaceAllString(base, ".")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "upload"
	}
	return fmt.Sprintf("%d-%s-%s", s.now().UnixMilli(), uuid.NewString()[:8], base)
}

// ValidName rejects names that could escape the store namespace.
func ValidName(name string) bool {
	return name != "" && !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..")
}

// KindFor maps a MIME type onto a message content kind.
func KindFor(contentType string) models.MessageKind {
	if strings.HasPrefix(contentType, "image/") {
		return models.KindImage
	}
	return models.KindFile
}

// DetectContentType guesses a MIME type from the file extension.
func DetectContentType(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
