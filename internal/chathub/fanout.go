package chathub

import (
	"encoding/json"
	"errors"
	"log/slog"

	"chatrelay/backend/internal/models"
)

// deliver encodes out once and queues it on every target. Targets are
// deduplicated by connection id. A connection that cannot accept the event
// is logged and, if it was not draining its queue, closed; delivery to the
// remaining targets continues.
func (m *ManagerService) deliver(targets []Client, out models.Outbound) {
	if len(targets) == 0 {
		return
	}
	payload, err := json.Marshal(out)
	if err != nil {
		m.logger.Error("encode event", slog.String("event", out.Event), slog.Any("error", err))
		return
	}

	seen := make(map[string]struct{}, len(targets))
	for _, c := range targets {
		if _, dup := seen[c.ID()]; dup {
			continue
		}
		seen[c.ID()] = struct{}{}

		if err := c.Send(payload); err != nil {
			m.logger.Warn("event dropped",
				slog.String("event", out.Event),
				slog.String("connection", c.ID()),
				slog.String("user", c.Username()),
				slog.Any("error", err))
			if errors.Is(err, ErrSendBufferFull) {
				c.Close()
			}
		}
	}
}

// sendTo delivers out to a single connection.
func (m *ManagerService) sendTo(c Client, out models.Outbound) {
	m.deliver([]Client{c}, out)
}

// broadcastRoom delivers out to every member of room except the given
// connection, which may be nil.
func (m *ManagerService) broadcastRoom(room string, out models.Outbound, except Client) {
	members := m.Rooms.Members(room)
	if except != nil {
		kept := members[:0]
		for _, c := range members {
			if c.ID() != except.ID() {
				kept = append(kept, c)
			}
		}
		members = kept
	}
	m.deliver(members, out)
}

// broadcastAll delivers out to every live connection.
func (m *ManagerService) broadcastAll(out models.Outbound) {
	m.deliver(m.Presence.All(), out)
}

// deliverToUsers delivers out to every live connection of the given users.
func (m *ManagerService) deliverToUsers(out models.Outbound, usernames ...string) {
	var targets []Client
	for _, u := range usernames {
		targets = append(targets, m.Presence.ConnectionsOf(u)...)
	}
	m.deliver(targets, out)
}
