package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"chatrelay/backend/internal/blob"
	"chatrelay/backend/internal/chathub"
	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/identity"
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	router *gin.Engine
	store  *storage.Service
	hub    *chathub.ManagerService
	tokens *identity.TokenIssuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	st := storage.NewStorageService(db, nil, log)
	require.NoError(t, st.Migrate())

	disk, err := blob.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{MaxUploadBytes: 1024, SendBuffer: 32, MaxFrameBytes: 64 << 10}
	hub := chathub.NewManagerService(st, log)
	tokens := identity.NewTokenIssuer("test-secret", time.Hour)
	h := NewHandler(hub, st, identity.NewResolver(tokens, log), tokens, blob.NewService(disk, cfg.MaxUploadBytes), cfg, log)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
	})

	return &testEnv{router: NewRouter(h), store: st, hub: hub, tokens: tokens}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"username":" alice "}`)))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Token    string `json:"token"`
		Username string `json:"username"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, "alice", resp.Username)

	username, err := env.tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", username)
}

func TestLogin_Invalid(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{"username":""}`, `{"username":"a|b"}`, `not json`} {
		w := env.do(httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestGetMessages_Paged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, content := range []string{"one", "two", "three"} {
		require.NoError(t, env.store.CreateMessage(ctx, &models.Message{Room: "global", From: "alice", Content: content}))
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/messages?room=global&limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []models.Message `json:"messages"`
		Page     int              `json:"page"`
	}
	decodeBody(t, w, &resp)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "two", resp.Messages[0].Content)
	assert.Equal(t, "three", resp.Messages[1].Content)
	assert.Equal(t, 1, resp.Page)

	w = env.do(httptest.NewRequest(http.MethodGet, "/messages?room=global&limit=2&page=2", nil))
	decodeBody(t, w, &resp)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "one", resp.Messages[0].Content)
}

func TestGetMessages_PrivateRoomNeedsParticipant(t *testing.T) {
	env := newTestEnv(t)
	bob := "bob"
	require.NoError(t, env.store.CreateMessage(context.Background(), &models.Message{
		Room: models.PrivateRoomName("alice", "bob"), From: "alice", To: &bob, Content: "secret",
	}))
	target := "/messages?room=" + url.QueryEscape("pm:alice|bob")

	w := env.do(httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	carol, err := env.tokens.Issue("carol")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+carol)
	assert.Equal(t, http.StatusForbidden, env.do(req).Code)

	token, err := env.tokens.Issue("bob")
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = env.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "secret")
}

func multipartUpload(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartUpload(t, "photo.png", []byte("not really a png")))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		URL      string `json:"url"`
		Filename string `json:"filename"`
		Kind     string `json:"kind"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, "image", resp.Kind)
	assert.True(t, strings.HasSuffix(resp.Filename, "photo.png"))
	assert.Equal(t, "http://example.com/uploads/"+resp.Filename, resp.URL)

	u, err := url.Parse(resp.URL)
	require.NoError(t, err)
	w = env.do(httptest.NewRequest(http.MethodGet, u.Path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "not really a png", w.Body.String())
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
}

func TestUpload_Rejected(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(multipartUpload(t, "big.bin", bytes.Repeat([]byte("x"), 2048)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = env.do(multipartUpload(t, "empty.txt", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("")))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetUpload_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(httptest.NewRequest(http.MethodGet, "/uploads/missing.txt", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
