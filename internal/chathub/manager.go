package chathub

import (
	"context"
	"log/slog"
	"time"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
)

// ManagerService is the relay hub. It owns the room registry and presence
// tracker and turns connection lifecycle and inbound events into fan-out.
type ManagerService struct {
	Rooms    *RoomRegistry
	Presence *PresenceTracker
	Storage  storage.Storage

	logger      *slog.Logger
	recentLimit int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManagerService(s storage.Storage, logger *slog.Logger) *ManagerService {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ManagerService{
		Rooms:       NewRoomRegistry(),
		Presence:    NewPresenceTracker(s),
		Storage:     s,
		logger:      logger.With(slog.String("component", "hub")),
		recentLimit: config.RecentMessagesLimit,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Context is canceled when the hub shuts down. Connection pumps run under it.
func (m *ManagerService) Context() context.Context {
	return m.ctx
}

// Connect activates a session for an already identified connection: it
// registers presence, joins the default room, sends the session info and
// recent history to the new connection, and broadcasts a presence snapshot.
// Storage failures are logged and never keep the session from activating.
func (m *ManagerService) Connect(ctx context.Context, c Client, guest bool) *Session {
	s := &Session{
		hub:    m,
		client: c,
		guest:  guest,
		typing: make(map[string]bool),
		logger: m.logger.With(slog.String("connection", c.ID()), slog.String("user", c.Username())),
	}

	if err := m.Presence.Register(ctx, c); err != nil {
		s.logger.Error("register presence", slog.Any("error", err))
	}
	m.Rooms.Join(config.DefaultRoom, c)

	m.sendTo(c, models.Outbound{
		Event: models.EventSession,
		Data:  models.SessionInfo{Username: c.Username(), ConnectionID: c.ID(), Guest: guest},
	})

	recent, err := m.Storage.FetchRecent(ctx, config.DefaultRoom, m.recentLimit)
	if err != nil {
		s.logger.Error("fetch recent messages", slog.Any("error", err))
		recent = []models.Message{}
	}
	m.sendTo(c, models.Outbound{Event: models.EventRecentMessages, Data: recent})

	m.broadcastPresence(ctx)

	s.mu.Lock()
	s.state = stateActive
	s.mu.Unlock()

	s.logger.Info("session active", slog.Bool("guest", guest))
	return s
}

func (m *ManagerService) broadcastPresence(ctx context.Context) {
	snapshot, err := m.Presence.Snapshot(ctx)
	if err != nil {
		m.logger.Error("presence snapshot", slog.Any("error", err))
		return
	}
	m.broadcastAll(models.Outbound{Event: models.EventPresence, Data: snapshot})
}

// Shutdown closes every live connection and waits until their sessions have
// deregistered or ctx expires.
func (m *ManagerService) Shutdown(ctx context.Context) error {
	for _, c := range m.Presence.All() {
		c.Close()
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	defer m.cancel()

	for m.Presence.ConnectionCount() > 0 {
		select {
		case <-ctx.Done():
			m.logger.Warn("shutdown with live connections", slog.Int("connections", m.Presence.ConnectionCount()))
			return ctx.Err()
		case <-ticker.C:
		}
	}
	m.logger.Info("hub stopped")
	return nil
}
