package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"mentorship-chat/internal/models"
)

var (
	ErrChatNotFound   = errors.New("chat not found")
	ErrChatNotPending = errors.New("chat is not pending")
)

const chatColumns = `id, user1_id, user2_id, requested_by, approved_by, status,
    pending_expires_at, expires_at, last_message_at, last_message_preview, created_at, updated_at`

// ChatRepository abstracts chat persistence.
type ChatRepository interface {
	CreateOrGetOpenChat(ctx context.Context, requesterID, counterpartID int, pendingExpiresAt time.Time) (models.Chat, error)
	GetChat(ctx context.Context, chatID int) (models.Chat, error)
	IsParticipant(ctx context.Context, chatID int, userID int) (bool, error)
	ListChatsForUser(ctx context.Context, userID int) ([]models.ChatSummary, error)
	Approve(ctx context.Context, chatID int, approverID int, expiresAt time.Time) (models.Chat, error)
	CloseIfPending(ctx context.Context, chatID int) (models.Chat, error)
	Close(ctx context.Context, chatID int) (models.Chat, error)
	SetLastMessage(ctx context.Context, chatID int, preview *string, at *time.Time) error
	CloseExpired(ctx context.Context, now time.Time) (activeClosed int64, pendingClosed int64, err error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

// CreateOrGetOpenChat returns the existing pending/active chat between the pair,
// or creates a new pending request. The open-pair unique index makes the
// insert race-free: a concurrent duplicate request converges on one row.
func (r *ChatRepo) CreateOrGetOpenChat(ctx context.Context, requesterID, counterpartID int, pendingExpiresAt time.Time) (models.Chat, error) {
	if requesterID == counterpartID {
		return models.Chat{}, errors.New("cannot create chat with self")
	}
	user1, user2 := requesterID, counterpartID
	if user1 > user2 {
		user1, user2 = user2, user1
	}

	var chat models.Chat
	selectOpen := `SELECT ` + chatColumns + ` FROM chats
        WHERE user1_id=$1 AND user2_id=$2 AND status <> 'closed'`
	err := r.db.GetContext(ctx, &chat, selectOpen, user1, user2)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	insert := `INSERT INTO chats (user1_id, user2_id, requested_by, pending_expires_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (user1_id, user2_id) WHERE status <> 'closed' DO NOTHING
        RETURNING ` + chatColumns
	err = r.db.GetContext(ctx, &chat, insert, user1, user2, requesterID, pendingExpiresAt)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, err
	}

	// Lost the race against a concurrent request for the same pair.
	err = r.db.GetContext(ctx, &chat, selectOpen, user1, user2)
	return chat, err
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// IsParticipant checks whether a user belongs to the chat.
func (r *ChatRepo) IsParticipant(ctx context.Context, chatID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chats WHERE id=$1 AND (user1_id=$2 OR user2_id=$2))`, chatID, userID)
	return exists, err
}

// ListChatsForUser returns the user's chats, most recent activity first,
// with the count of messages the user has not acknowledged.
func (r *ChatRepo) ListChatsForUser(ctx context.Context, userID int) ([]models.ChatSummary, error) {
	query := `SELECT c.id, c.user1_id, c.user2_id, c.requested_by, c.approved_by, c.status,
            c.pending_expires_at, c.expires_at, c.last_message_at, c.last_message_preview,
            c.created_at, c.updated_at,
            CASE WHEN c.user1_id=$1 THEN c.user2_id ELSE c.user1_id END AS counterpart_id,
            (SELECT COUNT(*) FROM messages m
                WHERE m.chat_id = c.id AND m.sender_id <> $1
                AND NOT EXISTS (SELECT 1 FROM message_receipts r WHERE r.message_id = m.id AND r.user_id = $1)
            ) AS unread_count
        FROM chats c
        WHERE c.user1_id=$1 OR c.user2_id=$1
        ORDER BY COALESCE(c.last_message_at, c.updated_at) DESC`
	var result []models.ChatSummary
	err := r.db.SelectContext(ctx, &result, query, userID)
	return result, err
}

// Approve activates a pending chat. The update is conditioned on the current
// status, so of two concurrent approvals only one succeeds.
func (r *ChatRepo) Approve(ctx context.Context, chatID int, approverID int, expiresAt time.Time) (models.Chat, error) {
	var chat models.Chat
	query := `UPDATE chats SET status='active', approved_by=$2, expires_at=$3, updated_at=NOW()
        WHERE id=$1 AND status='pending'
        RETURNING ` + chatColumns
	err := r.db.GetContext(ctx, &chat, query, chatID, approverID, expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotPending
	}
	return chat, err
}

// CloseIfPending closes a chat only while it is still pending.
func (r *ChatRepo) CloseIfPending(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	query := `UPDATE chats SET status='closed', updated_at=NOW()
        WHERE id=$1 AND status='pending'
        RETURNING ` + chatColumns
	err := r.db.GetContext(ctx, &chat, query, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotPending
	}
	return chat, err
}

// Close force-closes a chat from any state.
func (r *ChatRepo) Close(ctx context.Context, chatID int) (models.Chat, error) {
	var chat models.Chat
	query := `UPDATE chats SET status='closed', updated_at=NOW() WHERE id=$1 RETURNING ` + chatColumns
	err := r.db.GetContext(ctx, &chat, query, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, ErrChatNotFound
	}
	return chat, err
}

// SetLastMessage updates the denormalized last-message cache. Nil values
// clear it (used when the last remaining message is deleted).
func (r *ChatRepo) SetLastMessage(ctx context.Context, chatID int, preview *string, at *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET last_message_preview=$2, last_message_at=$3, updated_at=NOW() WHERE id=$1`,
		chatID, preview, at)
	return err
}

// CloseExpired runs the two expiry bulk transitions. The updates are
// independent; a failure of the second leaves the first committed.
func (r *ChatRepo) CloseExpired(ctx context.Context, now time.Time) (int64, int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE chats SET status='closed', updated_at=NOW() WHERE status='active' AND expires_at < $1`, now)
	if err != nil {
		return 0, 0, err
	}
	activeClosed, _ := res.RowsAffected()

	res, err = r.db.ExecContext(ctx,
		`UPDATE chats SET status='closed', updated_at=NOW() WHERE status='pending' AND pending_expires_at < $1`, now)
	if err != nil {
		return activeClosed, 0, err
	}
	pendingClosed, _ := res.RowsAffected()
	return activeClosed, pendingClosed, nil
}
