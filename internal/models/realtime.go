package models

import (
	"encoding/json"
	"time"
)

// Client-issued event names.
const (
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventSendMessage    = "sendMessage"
	EventPrivateMessage = "privateMessage"
	EventTyping         = "typing"
	EventReaction       = "reaction"
	EventMarkRead       = "markRead"
)

// Server-issued event names.
const (
	EventSession        = "session"
	EventRecentMessages = "recentMessages"
	EventPresence       = "presence"
	EventSystemMessage  = "systemMessage"
	EventMessage        = "message"
	EventReadReceipt    = "readReceipt"
	EventAck            = "ack"
)

// Ack statuses.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusOK        = "ok"
	StatusNotFound  = "notfound"
	StatusError     = "error"
)

// Inbound is one client-issued event. A non-empty ID asks for an ack carrying
// the same ID.
type Inbound struct {
	ID    string          `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is one server-issued event.
type Outbound struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Data  any    `json:"data"`
}

// RoomRequest is the payload of joinRoom and leaveRoom. Clients may send
// either a bare room name or an object.
type RoomRequest struct {
	Room string `json:"room"`
}

func (r *RoomRequest) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		r.Room = name
		return nil
	}
	type plain RoomRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = RoomRequest(p)
	return nil
}

type SendMessageRequest struct {
	Room    string      `json:"room"`
	Content string      `json:"content"`
	Type    MessageKind `json:"type"`
}

type PrivateMessageRequest struct {
	To      string      `json:"to"`
	Content string      `json:"content"`
	Type    MessageKind `json:"type"`
}

type TypingRequest struct {
	Room   string `json:"room"`
	Typing bool   `json:"typing"`
}

type ReactionRequest struct {
	MessageID string `json:"messageId"`
	Reaction  string `json:"reaction"`
}

type MarkReadRequest struct {
	MessageID string `json:"messageId"`
}

// SessionInfo greets an activated connection with its resolved identity.
type SessionInfo struct {
	Username     string `json:"username"`
	ConnectionID string `json:"connectionId"`
	Guest        bool   `json:"guest"`
}

type SystemNotice struct {
	Text string `json:"text"`
	Room string `json:"room"`
}

type TypingNotice struct {
	User   string `json:"user"`
	Typing bool   `json:"typing"`
	Room   string `json:"room"`
}

type ReactionNotice struct {
	MessageID string `json:"messageId"`
	User      string `json:"user"`
	Reaction  string `json:"reaction"`
}

type ReadReceipt struct {
	MessageID string `json:"messageId"`
	User      string `json:"user"`
}

// RoomAck answers joinRoom and leaveRoom.
type RoomAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// StatusAck answers message and mutation events.
type StatusAck struct {
	Status    string     `json:"status"`
	ID        string     `json:"id,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
	Error     string     `json:"error,omitempty"`
}
