package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"mentorship-chat/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, chat_id, sender_id, content, attachments, created_at, updated_at`

// MessageRepository defines interactions for chat messages and read receipts.
type MessageRepository interface {
	Create(ctx context.Context, chatID int, senderID int, content string, attachments models.Attachments) (models.Message, error)
	ListByChat(ctx context.Context, chatID int) ([]models.Message, error)
	Get(ctx context.Context, messageID int) (models.Message, error)
	Latest(ctx context.Context, chatID int) (models.Message, error)
	UpdateContent(ctx context.Context, messageID int, content string) (models.Message, error)
	Delete(ctx context.Context, messageID int) error
	MarkSeen(ctx context.Context, chatID int, userID int, at time.Time) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message together with the sender's own receipt.
func (r *MessageRepo) Create(ctx context.Context, chatID int, senderID int, content string, attachments models.Attachments) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.GetContext(ctx, &msg,
		`INSERT INTO messages (chat_id, sender_id, content, attachments) VALUES ($1, $2, $3, $4)
            RETURNING `+messageColumns,
		chatID, senderID, content, attachments)
	if err != nil {
		return models.Message{}, err
	}

	var receipt models.Receipt
	err = tx.GetContext(ctx, &receipt,
		`INSERT INTO message_receipts (message_id, user_id) VALUES ($1, $2)
            RETURNING message_id, user_id, seen_at`,
		msg.ID, senderID)
	if err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	msg.SeenBy = []models.Receipt{receipt}
	return msg, nil
}

// ListByChat returns all chat messages, oldest first, with receipts attached.
func (r *MessageRepo) ListByChat(ctx context.Context, chatID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}

	var receipts []models.Receipt
	err = r.db.SelectContext(ctx, &receipts,
		`SELECT r.message_id, r.user_id, r.seen_at FROM message_receipts r
            JOIN messages m ON m.id = r.message_id
            WHERE m.chat_id=$1 ORDER BY r.seen_at ASC`, chatID)
	if err != nil {
		return nil, err
	}

	byMessage := make(map[int][]models.Receipt, len(msgs))
	for _, rec := range receipts {
		byMessage[rec.MessageID] = append(byMessage[rec.MessageID], rec)
	}
	for i := range msgs {
		msgs[i].SeenBy = byMessage[msgs[i].ID]
	}
	return msgs, nil
}

// Get retrieves a single message with its receipts.
func (r *MessageRepo) Get(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	if err := r.loadReceipts(ctx, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Latest returns the newest message in the chat.
func (r *MessageRepo) Latest(ctx context.Context, chatID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 ORDER BY created_at DESC, id DESC LIMIT 1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UpdateContent replaces the message text, leaving receipts untouched.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int, content string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`UPDATE messages SET content=$2, updated_at=NOW() WHERE id=$1 RETURNING `+messageColumns,
		messageID, content)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	if err := r.loadReceipts(ctx, &msg); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Delete permanently removes a message; receipts cascade.
func (r *MessageRepo) Delete(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkSeen inserts a receipt for every message in the chat the user has not
// sent and not yet acknowledged. The receipts primary key makes retries no-ops.
func (r *MessageRepo) MarkSeen(ctx context.Context, chatID int, userID int, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO message_receipts (message_id, user_id, seen_at)
            SELECT m.id, $2, $3 FROM messages m WHERE m.chat_id=$1 AND m.sender_id <> $2
            ON CONFLICT (message_id, user_id) DO NOTHING`,
		chatID, userID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *MessageRepo) loadReceipts(ctx context.Context, msg *models.Message) error {
	return r.db.SelectContext(ctx, &msg.SeenBy,
		`SELECT message_id, user_id, seen_at FROM message_receipts WHERE message_id=$1 ORDER BY seen_at ASC`,
		msg.ID)
}
