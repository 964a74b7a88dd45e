package handler

import (
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"chatrelay/backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFrame struct {
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, query url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// await reads frames until one named event arrives.
func await(t *testing.T, conn *websocket.Conn, event string) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f wsFrame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %q", event)
		if f.Event == event {
			return f
		}
	}
}

func sessionOf(t *testing.T, conn *websocket.Conn) models.SessionInfo {
	t.Helper()
	var info models.SessionInfo
	require.NoError(t, json.Unmarshal(await(t, conn, models.EventSession).Data, &info))
	return info
}

func startServer(t *testing.T) (*testEnv, *httptest.Server) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)
	return env, srv
}

func TestWebSocket_ChatFlow(t *testing.T) {
	_, srv := startServer(t)

	alice := dial(t, srv, url.Values{"username": {"alice"}})
	info := sessionOf(t, alice)
	assert.Equal(t, "alice", info.Username)
	assert.False(t, info.Guest)
	await(t, alice, models.EventRecentMessages)
	await(t, alice, models.EventPresence)

	bob := dial(t, srv, url.Values{"username": {"bob"}})
	sessionOf(t, bob)
	await(t, bob, models.EventPresence)
	await(t, alice, models.EventPresence)

	require.NoError(t, alice.WriteJSON(map[string]any{
		"id": "1", "event": models.EventSendMessage, "data": map[string]string{"content": "hello"},
	}))

	var msg models.Message
	require.NoError(t, json.Unmarshal(await(t, bob, models.EventMessage).Data, &msg))
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "alice", msg.From)

	ackFrame := await(t, alice, models.EventAck)
	assert.Equal(t, "1", ackFrame.ID)
	var ack models.StatusAck
	require.NoError(t, json.Unmarshal(ackFrame.Data, &ack))
	assert.Equal(t, models.StatusSent, ack.Status)
	assert.Equal(t, msg.ID, ack.ID)

	require.NoError(t, bob.WriteJSON(map[string]any{
		"id": "2", "event": models.EventPrivateMessage, "data": map[string]string{"to": "alice", "content": "psst"},
	}))
	var pm models.Message
	require.NoError(t, json.Unmarshal(await(t, alice, models.EventPrivateMessage).Data, &pm))
	assert.Equal(t, "pm:alice|bob", pm.Room)
	require.NotNil(t, pm.To)
	assert.Equal(t, "alice", *pm.To)
	await(t, bob, models.EventPrivateMessage)
	assert.Equal(t, "2", await(t, bob, models.EventAck).ID)
}

func TestWebSocket_HistoryOnConnect(t *testing.T) {
	_, srv := startServer(t)

	alice := dial(t, srv, url.Values{"username": {"alice"}})
	await(t, alice, models.EventPresence)
	require.NoError(t, alice.WriteJSON(map[string]any{
		"id": "1", "event": models.EventSendMessage, "data": map[string]string{"content": "remember me"},
	}))
	await(t, alice, models.EventAck)

	carol := dial(t, srv, url.Values{"username": {"carol"}})
	var recent []models.Message
	require.NoError(t, json.Unmarshal(await(t, carol, models.EventRecentMessages).Data, &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, "remember me", recent[0].Content)
}

func TestWebSocket_TokenWinsOverDeclaredName(t *testing.T) {
	env, srv := startServer(t)
	token, err := env.tokens.Issue("alice")
	require.NoError(t, err)

	conn := dial(t, srv, url.Values{"token": {token}, "username": {"mallory"}})

	assert.Equal(t, "alice", sessionOf(t, conn).Username)
}

func TestWebSocket_BadTokenFallsBack(t *testing.T) {
	_, srv := startServer(t)

	conn := dial(t, srv, url.Values{"token": {"garbage"}, "username": {"carol"}})

	assert.Equal(t, "carol", sessionOf(t, conn).Username)
}

func TestWebSocket_Guest(t *testing.T) {
	_, srv := startServer(t)

	conn := dial(t, srv, url.Values{})

	info := sessionOf(t, conn)
	assert.True(t, info.Guest)
	assert.True(t, strings.HasPrefix(info.Username, "Guest-"), info.Username)
}

func TestWebSocket_DisconnectMarksOffline(t *testing.T) {
	env, srv := startServer(t)

	alice := dial(t, srv, url.Values{"username": {"alice"}})
	await(t, alice, models.EventPresence)
	bob := dial(t, srv, url.Values{"username": {"bob"}})
	await(t, bob, models.EventPresence)
	await(t, alice, models.EventPresence)

	require.NoError(t, bob.Close())

	var snapshot []models.Presence
	require.NoError(t, json.Unmarshal(await(t, alice, models.EventPresence).Data, &snapshot))
	require.Len(t, snapshot, 2)
	assert.Equal(t, "alice", snapshot[0].Username)
	assert.True(t, snapshot[0].Online)
	assert.Equal(t, "bob", snapshot[1].Username)
	assert.False(t, snapshot[1].Online)
	assert.NotNil(t, snapshot[1].LastSeen)
	assert.Equal(t, []string{"alice"}, env.hub.Presence.Online())
}
