package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorship-chat/internal/models"
	"mentorship-chat/internal/repositories"
)

const previewLength = 120

// Event types broadcast to chat groups.
const (
	EventNewMessage     = "new_message"
	EventMessageSeen    = "message_seen"
	EventMessageDeleted = "message_deleted"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
)

// Broadcaster relays an event to every live connection in a chat group.
// REST and socket sends go through the same path, so a message stored via
// REST reaches connected peers too.
type Broadcaster interface {
	Broadcast(chatID int, event models.ChatEvent)
}

// Messaging appends messages to active chats and maintains read receipts.
type Messaging interface {
	Send(ctx context.Context, chatID, senderID int, content string, attachments models.Attachments) (models.Message, error)
	List(ctx context.Context, chatID int) ([]models.Message, error)
	MarkSeen(ctx context.Context, chatID, userID int) (int64, error)
	Update(ctx context.Context, chatID, messageID, userID int, role, content string) (models.Message, error)
	Delete(ctx context.Context, chatID, messageID, userID int, role string) error
}

type messaging struct {
	chats     repositories.ChatRepository
	messages  repositories.MessageRepository
	broadcast Broadcaster
	now       func() time.Time
}

// NewMessaging constructs the messaging service.
func NewMessaging(chats repositories.ChatRepository, messages repositories.MessageRepository, broadcast Broadcaster) Messaging {
	return &messaging{chats: chats, messages: messages, broadcast: broadcast, now: time.Now}
}

// Send stores a message in an active chat, refreshes the chat's last-message
// cache and broadcasts new_message to the chat group. Membership of the
// sender is the caller's responsibility.
func (s *messaging) Send(ctx context.Context, chatID, senderID int, content string, attachments models.Attachments) (models.Message, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Message{}, mapChatErr(err)
	}
	if chat.Status != models.ChatActive {
		return models.Message{}, fmt.Errorf("%w: chat is not active", ErrInvalidState)
	}

	msg, err := s.messages.Create(ctx, chatID, senderID, content, attachments)
	if err != nil {
		return models.Message{}, err
	}

	now := s.now()
	preview := previewOf(content)
	if err := s.chats.SetLastMessage(ctx, chatID, &preview, &now); err != nil {
		return models.Message{}, err
	}

	s.broadcast.Broadcast(chatID, models.ChatEvent{Type: EventNewMessage, ChatID: chatID, Message: &msg})
	return msg, nil
}

// List returns the chat's messages oldest first. No access check here; the
// handler and the gateway verify membership before calling.
func (s *messaging) List(ctx context.Context, chatID int) ([]models.Message, error) {
	return s.messages.ListByChat(ctx, chatID)
}

// MarkSeen acknowledges every message the user has not sent. Idempotent.
func (s *messaging) MarkSeen(ctx context.Context, chatID, userID int) (int64, error) {
	return s.messages.MarkSeen(ctx, chatID, userID, s.now())
}

// Update replaces a message's content. Admins may edit any message, other
// users only their own.
func (s *messaging) Update(ctx context.Context, chatID, messageID, userID int, role, content string) (models.Message, error) {
	msg, err := s.getInChat(ctx, chatID, messageID)
	if err != nil {
		return models.Message{}, err
	}
	if !CanModifyMessage(role, userID, msg.SenderID) {
		return models.Message{}, fmt.Errorf("%w: not the sender", ErrForbidden)
	}

	msg, err = s.messages.UpdateContent(ctx, messageID, content)
	if err != nil {
		return models.Message{}, mapMessageErr(err)
	}
	return msg, nil
}

// Delete permanently removes a message. When the chat's most recent message
// is deleted the last-message cache is recomputed from the survivors.
func (s *messaging) Delete(ctx context.Context, chatID, messageID, userID int, role string) error {
	msg, err := s.getInChat(ctx, chatID, messageID)
	if err != nil {
		return err
	}
	if !CanModifyMessage(role, userID, msg.SenderID) {
		return fmt.Errorf("%w: not the sender", ErrForbidden)
	}

	latest, err := s.messages.Latest(ctx, chatID)
	wasLast := err == nil && latest.ID == messageID
	if err != nil && !errors.Is(err, repositories.ErrMessageNotFound) {
		return err
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return mapMessageErr(err)
	}

	if wasLast {
		if err := s.refreshLastMessage(ctx, chatID); err != nil {
			return err
		}
	}

	s.broadcast.Broadcast(chatID, models.ChatEvent{Type: EventMessageDeleted, ChatID: chatID, MessageID: messageID})
	return nil
}

func (s *messaging) getInChat(ctx context.Context, chatID, messageID int) (models.Message, error) {
	msg, err := s.messages.Get(ctx, messageID)
	if err != nil {
		return models.Message{}, mapMessageErr(err)
	}
	if msg.ChatID != chatID {
		return models.Message{}, fmt.Errorf("%w: message not in chat", ErrNotFound)
	}
	return msg, nil
}

func (s *messaging) refreshLastMessage(ctx context.Context, chatID int) error {
	latest, err := s.messages.Latest(ctx, chatID)
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return s.chats.SetLastMessage(ctx, chatID, nil, nil)
	}
	if err != nil {
		return err
	}
	preview := previewOf(latest.Content)
	return s.chats.SetLastMessage(ctx, chatID, &preview, &latest.CreatedAt)
}

func mapMessageErr(err error) error {
	if errors.Is(err, repositories.ErrMessageNotFound) {
		return fmt.Errorf("%w: message", ErrNotFound)
	}
	return err
}

func previewOf(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLength {
		return content
	}
	return string(runes[:previewLength])
}
