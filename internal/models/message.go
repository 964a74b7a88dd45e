package models

import (
	"strings"
	"time"

	"chatrelay/backend/internal/config"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageKind is the content kind of a message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
)

// Valid reports whether k is one of the accepted kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile:
		return true
	}
	return false
}

// Message is a persisted chat message. ID is assigned at creation time and
// To is set only for messages in a private-conversation room.
type Message struct {
	ID        string       `gorm:"primaryKey;size:36" json:"id"`
	Room      string       `gorm:"size:160;not null;index:idx_room_created,priority:1" json:"room"`
	From      string       `gorm:"column:sender;size:64;not null" json:"from"`
	To        *string      `gorm:"column:recipient;size:64" json:"to"`
	Content   string       `gorm:"type:text;not null" json:"content"`
	Type      MessageKind  `gorm:"size:16;not null" json:"type"`
	Reactions []Reaction   `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"reactions"`
	Readers   []ReadMarker `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE" json:"-"`
	ReadBy    []string     `gorm:"-" json:"readBy"`
	CreatedAt time.Time    `gorm:"index:idx_room_created,priority:2" json:"createdAt"`
}

// BeforeCreate assigns a time-ordered UUID when the caller did not set one.
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID != "" {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	m.ID = id.String()
	return nil
}

// Hydrate fills the wire-only fields from loaded associations.
func (m *Message) Hydrate() {
	m.ReadBy = make([]string, 0, len(m.Readers))
	for _, r := range m.Readers {
		m.ReadBy = append(m.ReadBy, r.Username)
	}
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
}

// IsPrivate reports whether the message belongs to a private conversation.
func (m *Message) IsPrivate() bool {
	return m.To != nil
}

// Reaction is one participant's reaction to a message. Reactions are append-only.
type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	MessageID string    `gorm:"size:36;not null;index" json:"-"`
	User      string    `gorm:"column:username;size:64;not null" json:"user"`
	Type      string    `gorm:"column:label;size:64;not null" json:"type"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReadMarker records that a participant read a message. The composite key keeps
// a participant at most once per message.
type ReadMarker struct {
	MessageID string `gorm:"primaryKey;size:36"`
	Username  string `gorm:"primaryKey;size:64"`
	CreatedAt time.Time
}

// PrivateRoomName derives the room shared by two participants. The result
// does not depend on argument order.
func PrivateRoomName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return config.PrivateRoomPrefix + a + "|" + b
}

// IsPrivateRoom reports whether room is a private-conversation room name.
func IsPrivateRoom(room string) bool {
	return strings.HasPrefix(room, config.PrivateRoomPrefix)
}

// PrivateParticipants splits a private room name into its two participants.
func PrivateParticipants(room string) (a, b string, ok bool) {
	if !IsPrivateRoom(room) {
		return "", "", false
	}
	a, b, ok = strings.Cut(strings.TrimPrefix(room, config.PrivateRoomPrefix), "|")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}

// IsParticipant reports whether username is one of the two participants of
// a private room.
func IsParticipant(room, username string) bool {
	a, b, ok := PrivateParticipants(room)
	return ok && (username == a || username == b)
}
