package chathub

import (
	"context"
	"sort"
	"sync"
	"time"

	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
)

// PresenceTracker maps participant identities to their live connections and
// mirrors online state into storage. Writes for one identity are serialized
// so the persisted flag always follows the in-memory order of events.
type PresenceTracker struct {
	storage storage.Storage
	now     func() time.Time

	mu     sync.Mutex
	locks  map[string]*identityLock
	byUser map[string]map[string]Client
	conns  map[string]Client
}

type identityLock struct {
	sync.Mutex
	refs int
}

func NewPresenceTracker(s storage.Storage) *PresenceTracker {
	return &PresenceTracker{
		storage: s,
		now:     time.Now,
		locks:   make(map[string]*identityLock),
		byUser:  make(map[string]map[string]Client),
		conns:   make(map[string]Client),
	}
}

func (p *PresenceTracker) acquire(username string) *identityLock {
	p.mu.Lock()
	l, ok := p.locks[username]
	if !ok {
		l = &identityLock{}
		p.locks[username] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return l
}

func (p *PresenceTracker) release(username string, l *identityLock) {
	l.Unlock()

	p.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, username)
	}
	p.mu.Unlock()
}

// Register records c as a live connection of its participant and upserts the
// persisted record as online. The in-memory registration stands even when
// the storage write fails.
func (p *PresenceTracker) Register(ctx context.Context, c Client) error {
	username := c.Username()
	l := p.acquire(username)
	defer p.release(username, l)

	p.mu.Lock()
	conns, ok := p.byUser[username]
	if !ok {
		conns = make(map[string]Client)
		p.byUser[username] = conns
	}
	conns[c.ID()] = c
	p.conns[c.ID()] = c
	p.mu.Unlock()

	return p.storage.UpsertOnlineUser(ctx, username, c.ID())
}

// Deregister forgets c. When it was the participant's last connection the
// persisted record is flipped offline and last is true.
func (p *PresenceTracker) Deregister(ctx context.Context, c Client) (last bool, err error) {
	username := c.Username()
	l := p.acquire(username)
	defer p.release(username, l)

	p.mu.Lock()
	conns := p.byUser[username]
	_, known := conns[c.ID()]
	if known {
		delete(conns, c.ID())
		delete(p.conns, c.ID())
		if len(conns) == 0 {
			delete(p.byUser, username)
			last = true
		}
	}
	p.mu.Unlock()

	if !last {
		return false, nil
	}
	return true, p.storage.MarkUserOffline(ctx, username, p.now().UTC())
}

// Snapshot returns the persisted participant list.
func (p *PresenceTracker) Snapshot(ctx context.Context) ([]models.Presence, error) {
	return p.storage.ListPresence(ctx)
}

// ConnectionsOf returns the live connections of username.
func (p *PresenceTracker) ConnectionsOf(username string) []Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Client, 0, len(p.byUser[username]))
	for _, c := range p.byUser[username] {
		out = append(out, c)
	}
	return out
}

// All returns every live connection.
func (p *PresenceTracker) All() []Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Client, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c)
	}
	return out
}

// Online returns the sorted identities with at least one live connection.
func (p *PresenceTracker) Online() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.byUser))
	for username := range p.byUser {
		out = append(out, username)
	}
	sort.Strings(out)
	return out
}

// ConnectionCount returns the number of live connections.
func (p *PresenceTracker) ConnectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}
