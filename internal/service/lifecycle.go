package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mentorship-chat/internal/models"
	"mentorship-chat/internal/repositories"
)

// Mentorship windows. A request unanswered for a week stops blocking the
// pair; an approved engagement runs a month before it must be renewed.
const (
	PendingWindow = 7 * 24 * time.Hour
	ActiveWindow  = 30 * 24 * time.Hour
)

// ChatLifecycle owns the pending → active → closed state machine.
type ChatLifecycle interface {
	Request(ctx context.Context, requesterID, counterpartID int) (models.Chat, error)
	Approve(ctx context.Context, chatID, approverID int) (models.Chat, error)
	Cancel(ctx context.Context, chatID, userID int) (models.Chat, error)
	Close(ctx context.Context, chatID int) (models.Chat, error)
	List(ctx context.Context, userID int) ([]models.ChatSummary, error)
}

type lifecycle struct {
	chats repositories.ChatRepository
	now   func() time.Time
}

// NewLifecycle constructs the lifecycle service.
func NewLifecycle(chats repositories.ChatRepository) ChatLifecycle {
	return &lifecycle{chats: chats, now: time.Now}
}

// Request creates a pending chat, or returns the existing open chat between
// the pair unchanged. Safe to retry.
func (s *lifecycle) Request(ctx context.Context, requesterID, counterpartID int) (models.Chat, error) {
	if requesterID <= 0 || counterpartID <= 0 {
		return models.Chat{}, fmt.Errorf("%w: invalid user id", ErrInvalidInput)
	}
	if requesterID == counterpartID {
		return models.Chat{}, fmt.Errorf("%w: cannot request a chat with yourself", ErrInvalidInput)
	}
	return s.chats.CreateOrGetOpenChat(ctx, requesterID, counterpartID, s.now().Add(PendingWindow))
}

// Approve activates a pending chat. The requester can never approve their
// own request, whatever state the chat is in.
func (s *lifecycle) Approve(ctx context.Context, chatID, approverID int) (models.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, mapChatErr(err)
	}
	if !chat.HasParticipant(approverID) {
		return models.Chat{}, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	if chat.RequestedBy == approverID {
		return models.Chat{}, fmt.Errorf("%w: requester cannot approve the chat", ErrForbidden)
	}

	chat, err = s.chats.Approve(ctx, chatID, approverID, s.now().Add(ActiveWindow))
	if err != nil {
		return models.Chat{}, mapChatErr(err)
	}
	return chat, nil
}

// Cancel closes a still-pending request; only the requester may do so.
func (s *lifecycle) Cancel(ctx context.Context, chatID, userID int) (models.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return models.Chat{}, mapChatErr(err)
	}
	if chat.Status != models.ChatPending {
		return models.Chat{}, fmt.Errorf("%w: only pending requests can be canceled", ErrInvalidState)
	}
	if chat.RequestedBy != userID {
		return models.Chat{}, fmt.Errorf("%w: only the requester can cancel", ErrForbidden)
	}

	chat, err = s.chats.CloseIfPending(ctx, chatID)
	if err != nil {
		return models.Chat{}, mapChatErr(err)
	}
	return chat, nil
}

// Close is the administrative forced close; any state goes to closed.
func (s *lifecycle) Close(ctx context.Context, chatID int) (models.Chat, error) {
	chat, err := s.chats.Close(ctx, chatID)
	if err != nil {
		return models.Chat{}, mapChatErr(err)
	}
	return chat, nil
}

// List returns the user's chats with unread counts.
func (s *lifecycle) List(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	return s.chats.ListChatsForUser(ctx, userID)
}

func mapChatErr(err error) error {
	switch {
	case errors.Is(err, repositories.ErrChatNotFound):
		return fmt.Errorf("%w: chat", ErrNotFound)
	case errors.Is(err, repositories.ErrChatNotPending):
		return fmt.Errorf("%w: chat is not pending", ErrInvalidState)
	}
	return err
}
