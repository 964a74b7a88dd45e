package chathub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"chatrelay/backend/internal/config"
	"chatrelay/backend/internal/models"
	"chatrelay/backend/internal/storage"
)

type sessionState int

const (
	stateConnecting sessionState = iota
	stateActive
	stateClosed
)

const maxReactionLength = 64

var (
	errInvalidPayload = errors.New("invalid payload")
	errInvalidRoom    = errors.New("invalid room name")
	errPrivateRoom    = errors.New("private rooms are addressed with privateMessage")
	errEmptyContent   = errors.New("content is required")
	errContentTooLong = errors.New("content too long")
	errInvalidKind    = errors.New("invalid message type")
	errNoRecipient    = errors.New("recipient is required")
	errNoMessageID    = errors.New("messageId is required")
	errInvalidLabel   = errors.New("invalid reaction")
)

// Session is the per-connection state machine. Events are handled in the
// order the connection delivered them; Handle must not be called
// concurrently for one session.
type Session struct {
	hub    *ManagerService
	client Client
	guest  bool
	logger *slog.Logger

	mu     sync.Mutex
	state  sessionState
	typing map[string]bool
}

func (s *Session) Username() string { return s.client.Username() }

func (s *Session) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateActive
}

// Handle routes one inbound event. Failures are reported on the ack and
// never end the session.
func (s *Session) Handle(ctx context.Context, in models.Inbound) {
	if !s.active() {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panic", slog.String("event", in.Event), slog.Any("panic", r))
			s.ack(in, models.StatusAck{Status: models.StatusError, Error: "internal error"})
		}
	}()

	var ack any
	switch in.Event {
	case models.EventJoinRoom:
		ack = s.joinRoom(in.Data)
	case models.EventLeaveRoom:
		ack = s.leaveRoom(in.Data)
	case models.EventSendMessage:
		ack = s.sendMessage(ctx, in.Data)
	case models.EventPrivateMessage:
		ack = s.privateMessage(ctx, in.Data)
	case models.EventTyping:
		s.typingEvent(in.Data)
		return
	case models.EventReaction:
		ack = s.reaction(ctx, in.Data)
	case models.EventMarkRead:
		ack = s.markRead(ctx, in.Data)
	default:
		s.logger.Warn("unknown event", slog.String("event", in.Event))
		ack = models.StatusAck{Status: models.StatusError, Error: "unknown event"}
	}
	s.ack(in, ack)
}

func (s *Session) ack(in models.Inbound, data any) {
	if in.ID == "" || data == nil {
		return
	}
	s.hub.sendTo(s.client, models.Outbound{Event: models.EventAck, ID: in.ID, Data: data})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errInvalidPayload
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errInvalidPayload
	}
	return nil
}

func validateRoom(room string) error {
	if room == "" || utf8.RuneCountInString(room) > config.MaxRoomNameLength {
		return errInvalidRoom
	}
	if strings.TrimSpace(room) != room {
		return errInvalidRoom
	}
	return nil
}

func validateContent(kind models.MessageKind, content string) error {
	if !kind.Valid() {
		return errInvalidKind
	}
	if strings.TrimSpace(content) == "" {
		return errEmptyContent
	}
	if kind == models.KindText && utf8.RuneCountInString(content) > config.MaxTextContentLength {
		return errContentTooLong
	}
	return nil
}

func roomAckError(err error) models.RoomAck {
	return models.RoomAck{OK: false, Error: err.Error()}
}

func statusError(err error) models.StatusAck {
	return models.StatusAck{Status: models.StatusError, Error: err.Error()}
}

func (s *Session) joinRoom(data json.RawMessage) any {
	var req models.RoomRequest
	if err := decode(data, &req); err != nil {
		return roomAckError(err)
	}
	if err := validateRoom(req.Room); err != nil {
		return roomAckError(err)
	}
	if models.IsPrivateRoom(req.Room) {
		return roomAckError(errPrivateRoom)
	}

	s.hub.Rooms.Join(req.Room, s.client)
	s.hub.broadcastRoom(req.Room, s.notice(req.Room, "%s joined %s"), nil)
	return models.RoomAck{OK: true}
}

func (s *Session) leaveRoom(data json.RawMessage) any {
	var req models.RoomRequest
	if err := decode(data, &req); err != nil {
		return roomAckError(err)
	}
	if err := validateRoom(req.Room); err != nil {
		return roomAckError(err)
	}

	if s.hub.Rooms.Leave(req.Room, s.client) {
		s.stopTyping(req.Room)
		s.hub.broadcastRoom(req.Room, s.notice(req.Room, "%s left %s"), nil)
	}
	return models.RoomAck{OK: true}
}

func (s *Session) notice(room, format string) models.Outbound {
	return models.Outbound{
		Event: models.EventSystemMessage,
		Data:  models.SystemNotice{Text: fmt.Sprintf(format, s.Username(), room), Room: room},
	}
}

func (s *Session) sendMessage(ctx context.Context, data json.RawMessage) any {
	var req models.SendMessageRequest
	if err := decode(data, &req); err != nil {
		return statusError(err)
	}
	if req.Room == "" {
		req.Room = config.DefaultRoom
	}
	if req.Type == "" {
		req.Type = models.KindText
	}
	if err := validateRoom(req.Room); err != nil {
		return statusError(err)
	}
	if models.IsPrivateRoom(req.Room) {
		return statusError(errPrivateRoom)
	}
	if err := validateContent(req.Type, req.Content); err != nil {
		return statusError(err)
	}

	msg := &models.Message{
		Room:    req.Room,
		From:    s.Username(),
		Content: req.Content,
		Type:    req.Type,
	}
	if err := s.hub.Storage.CreateMessage(ctx, msg); err != nil {
		s.logger.Error("persist message", slog.String("room", req.Room), slog.Any("error", err))
		return models.StatusAck{Status: models.StatusError, Error: "message not saved"}
	}

	s.hub.broadcastRoom(msg.Room, models.Outbound{Event: models.EventMessage, Data: msg}, nil)
	return models.StatusAck{Status: models.StatusSent, ID: msg.ID, CreatedAt: &msg.CreatedAt}
}

func (s *Session) privateMessage(ctx context.Context, data json.RawMessage) any {
	var req models.PrivateMessageRequest
	if err := decode(data, &req); err != nil {
		return statusError(err)
	}
	req.To = strings.TrimSpace(req.To)
	if req.To == "" {
		return statusError(errNoRecipient)
	}
	if req.Type == "" {
		req.Type = models.KindText
	}
	if err := validateContent(req.Type, req.Content); err != nil {
		return statusError(err)
	}

	if _, err := s.hub.Storage.FindUser(ctx, req.To); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.StatusAck{Status: models.StatusNotFound, Error: "recipient not found"}
		}
		s.logger.Error("find recipient", slog.String("to", req.To), slog.Any("error", err))
		return models.StatusAck{Status: models.StatusError, Error: "recipient lookup failed"}
	}

	to := req.To
	msg := &models.Message{
		Room:    models.PrivateRoomName(s.Username(), to),
		From:    s.Username(),
		To:      &to,
		Content: req.Content,
		Type:    req.Type,
	}
	if err := s.hub.Storage.CreateMessage(ctx, msg); err != nil {
		s.logger.Error("persist private message", slog.String("to", to), slog.Any("error", err))
		return models.StatusAck{Status: models.StatusError, Error: "message not saved"}
	}

	s.hub.deliverToUsers(models.Outbound{Event: models.EventPrivateMessage, Data: msg}, to, s.Username())
	return models.StatusAck{Status: models.StatusDelivered, ID: msg.ID, CreatedAt: &msg.CreatedAt}
}

func (s *Session) typingEvent(data json.RawMessage) {
	var req models.TypingRequest
	if err := decode(data, &req); err != nil {
		s.logger.Debug("typing ignored", slog.Any("error", err))
		return
	}
	if req.Room == "" {
		req.Room = config.DefaultRoom
	}
	if validateRoom(req.Room) != nil {
		return
	}

	s.mu.Lock()
	if req.Typing {
		s.typing[req.Room] = true
	} else {
		delete(s.typing, req.Room)
	}
	s.mu.Unlock()

	s.publishTyping(req.Room, req.Typing)
}

// stopTyping clears the typing flag for room and tells the remaining
// members if it was set.
func (s *Session) stopTyping(room string) {
	s.mu.Lock()
	was := s.typing[room]
	delete(s.typing, room)
	s.mu.Unlock()

	if was {
		s.publishTyping(room, false)
	}
}

func (s *Session) publishTyping(room string, typing bool) {
	out := models.Outbound{
		Event: models.EventTyping,
		Data:  models.TypingNotice{User: s.Username(), Typing: typing, Room: room},
	}

	if models.IsPrivateRoom(room) {
		peer, ok := privatePeer(room, s.Username())
		if !ok {
			return
		}
		s.hub.deliverToUsers(out, peer)
		return
	}
	s.hub.broadcastRoom(room, out, s.client)
}

// privatePeer returns the other participant of a private room that username
// belongs to.
func privatePeer(room, username string) (string, bool) {
	a, b, ok := models.PrivateParticipants(room)
	if !ok {
		return "", false
	}
	switch username {
	case a:
		return b, true
	case b:
		return a, true
	}
	return "", false
}

func (s *Session) reaction(ctx context.Context, data json.RawMessage) any {
	var req models.ReactionRequest
	if err := decode(data, &req); err != nil {
		return statusError(err)
	}
	if req.MessageID == "" {
		return statusError(errNoMessageID)
	}
	label := strings.TrimSpace(req.Reaction)
	if label == "" || utf8.RuneCountInString(label) > maxReactionLength {
		return statusError(errInvalidLabel)
	}

	msg, _, err := s.hub.Storage.Mutate(ctx, req.MessageID, storage.ReactionMutation{User: s.Username(), Label: label})
	if ack, failed := s.mutationFailed(req.MessageID, err); failed {
		return ack
	}

	s.publishToAudience(msg, models.Outbound{
		Event: models.EventReaction,
		Data:  models.ReactionNotice{MessageID: msg.ID, User: s.Username(), Reaction: label},
	})
	return models.StatusAck{Status: models.StatusOK, ID: msg.ID}
}

func (s *Session) markRead(ctx context.Context, data json.RawMessage) any {
	var req models.MarkReadRequest
	if err := decode(data, &req); err != nil {
		return statusError(err)
	}
	if req.MessageID == "" {
		return statusError(errNoMessageID)
	}

	msg, changed, err := s.hub.Storage.Mutate(ctx, req.MessageID, storage.ReadMutation{User: s.Username()})
	if ack, failed := s.mutationFailed(req.MessageID, err); failed {
		return ack
	}

	if changed {
		s.publishToAudience(msg, models.Outbound{
			Event: models.EventReadReceipt,
			Data:  models.ReadReceipt{MessageID: msg.ID, User: s.Username()},
		})
	}
	return models.StatusAck{Status: models.StatusOK, ID: msg.ID}
}

func (s *Session) mutationFailed(id string, err error) (models.StatusAck, bool) {
	switch {
	case err == nil:
		return models.StatusAck{}, false
	case errors.Is(err, storage.ErrNotFound):
		return models.StatusAck{Status: models.StatusNotFound, Error: "message not found"}, true
	default:
		s.logger.Error("mutate message", slog.String("message", id), slog.Any("error", err))
		return models.StatusAck{Status: models.StatusError, Error: "update failed"}, true
	}
}

// publishToAudience sends a mutation notice to whoever can see msg: both
// participants of a private message, otherwise the members of its room.
func (s *Session) publishToAudience(msg *models.Message, out models.Outbound) {
	if msg.IsPrivate() {
		s.hub.deliverToUsers(out, msg.From, *msg.To)
		return
	}
	s.hub.broadcastRoom(msg.Room, out, nil)
}

// Close ends the session: typing flags are cleared, the connection leaves
// every room, presence is deregistered and a fresh snapshot is broadcast.
// Only the first call has any effect.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.state = stateClosed
	typing := make([]string, 0, len(s.typing))
	for room := range s.typing {
		typing = append(typing, room)
	}
	s.typing = make(map[string]bool)
	s.mu.Unlock()

	left := s.hub.Rooms.LeaveAll(s.client)
	for _, room := range typing {
		s.publishTyping(room, false)
	}

	last, err := s.hub.Presence.Deregister(ctx, s.client)
	if err != nil {
		s.logger.Error("deregister presence", slog.Any("error", err))
	}
	s.hub.broadcastPresence(ctx)

	s.logger.Info("session closed", slog.Int("rooms", len(left)), slog.Bool("last_connection", last))
}
