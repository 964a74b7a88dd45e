package blob

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"chatrelay/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, maxBytes int64) *Service {
	t.Helper()
	store, err := NewDiskStore(t.TempDir())
	require.NoError(t, err)
	s := NewService(store, maxBytes)
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s
}

func TestService_UploadAndOpen(t *testing.T) {
	s := newTestService(t, 1024)
	ctx := context.Background()

	up, err := s.Upload(ctx, "cat photo.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(up.Name, "1700000000000-"))
	assert.True(t, strings.HasSuffix(up.Name, "-cat_photo.png"))
	assert.Equal(t, models.KindImage, up.Kind)
	assert.Equal(t, int64(9), up.Size)

	rc, obj, err := s.Open(ctx, up.Name)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", obj.ContentType)
}

func TestService_UploadTooLarge(t *testing.T) {
	s := newTestService(t, 4)

	_, err := s.Upload(context.Background(), "a.txt", "text/plain", bytes.NewReader([]byte("12345")))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestService_UploadEmpty(t *testing.T) {
	s := newTestService(t, 4)

	_, err := s.Upload(context.Background(), "a.txt", "text/plain", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestService_UploadDetectsType(t *testing.T) {
	s := newTestService(t, 1024)

	up, err := s.Upload(context.Background(), "report.pdf", "", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", up.MimeType)
	assert.Equal(t, models.KindFile, up.Kind)
}

func TestService_OpenRejectsTraversal(t *testing.T) {
	s := newTestService(t, 1024)

	for _, name := range []string{"", "../etc/passwd", "a/b", `a\b`, ".."} {
		_, _, err := s.Open(context.Background(), name)
		assert.ErrorIs(t, err, ErrNotFound, name)
	}
}

func TestService_OpenMissing(t *testing.T) {
	s := newTestService(t, 1024)

	_, _, err := s.Open(context.Background(), "nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestObjectName_Sanitized(t *testing.T) {
	s := newTestService(t, 1024)

	name := s.objectName("../../évil name?.sh")
	assert.True(t, ValidName(name))
	assert.NotContains(t, name, " ")
	assert.True(t, strings.HasSuffix(name, "-vil_name_.sh"), name)

	assert.True(t, strings.HasSuffix(s.objectName("..."), "-upload"))
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, models.KindImage, KindFor("image/jpeg"))
	assert.Equal(t, models.KindFile, KindFor("application/zip"))
	assert.Equal(t, models.KindFile, KindFor(""))
}

func TestObjectName_CollapsesDots(t *testing.T) {
	s := newTestService(t, 1024)

	name := s.objectName("my..notes...txt")
	assert.True(t, ValidName(name))
	assert.True(t, strings.HasSuffix(name, "-my.notes.txt"), name)
}
