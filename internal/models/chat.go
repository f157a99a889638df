package models

import "time"

// ChatStatus is the lifecycle state of a mentorship chat.
type ChatStatus string

const (
	ChatPending ChatStatus = "pending"
	ChatActive  ChatStatus = "active"
	ChatClosed  ChatStatus = "closed"
)

// Chat represents a mentorship chat between exactly two users. The pair is
// stored normalized (user1_id < user2_id) so the open-pair uniqueness index
// holds regardless of who requested.
type Chat struct {
	ID                 int        `db:"id" json:"id"`
	User1ID            int        `db:"user1_id" json:"user1_id"`
	User2ID            int        `db:"user2_id" json:"user2_id"`
	RequestedBy        int        `db:"requested_by" json:"requested_by"`
	ApprovedBy         *int       `db:"approved_by" json:"approved_by,omitempty"`
	Status             ChatStatus `db:"status" json:"status"`
	PendingExpiresAt   *time.Time `db:"pending_expires_at" json:"pending_expires_at,omitempty"`
	ExpiresAt          *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	LastMessageAt      *time.Time `db:"last_message_at" json:"last_message_at,omitempty"`
	LastMessagePreview *string    `db:"last_message_preview" json:"last_message_preview,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether the user belongs to the chat.
func (c Chat) HasParticipant(userID int) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Counterpart returns the other participant.
func (c Chat) Counterpart(userID int) int {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// ChatSummary is the per-user API view of a chat, including the unread
// message count used by chat list badges.
type ChatSummary struct {
	Chat
	CounterpartID int `db:"counterpart_id" json:"counterpart_id"`
	UnreadCount   int `db:"unread_count" json:"unread_count"`
}
