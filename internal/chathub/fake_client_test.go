package chathub

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type frame struct {
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data"`
}

// fakeClient records every payload queued on it.
type fakeClient struct {
	id       string
	username string

	mu     sync.Mutex
	frames []frame
	closed bool
	full   bool
}

func newFakeClient(id, username string) *fakeClient {
	return &fakeClient{id: id, username: username}
}

func (c *fakeClient) ID() string       { return c.id }
func (c *fakeClient) Username() string { return c.username }

func (c *fakeClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	if c.full {
		return ErrSendBufferFull
	}
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeClient) setFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func (c *fakeClient) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Event)
	}
	return out
}

func (c *fakeClient) named(event string) []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []frame
	for _, f := range c.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

// decodeOnly asserts exactly one frame named event was received and decodes
// its data into v.
func (c *fakeClient) decodeOnly(t *testing.T, event string, v any) frame {
	t.Helper()
	frames := c.named(event)
	require.Len(t, frames, 1, "frames named %q", event)
	if v != nil {
		require.NoError(t, json.Unmarshal(frames[0].Data, v))
	}
	return frames[0]
}
