package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Attachment is a file reference carried by a message.
type Attachment struct {
	URL  string `json:"url"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// Attachments is stored as a jsonb column.
type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(a)
}

func (a *Attachments) Scan(src interface{}) error {
	switch data := src.(type) {
	case []byte:
		return json.Unmarshal(data, a)
	case string:
		return json.Unmarshal([]byte(data), a)
	case nil:
		*a = nil
		return nil
	default:
		return errors.New("attachments: unsupported scan source")
	}
}

// Receipt records that a user has seen a message.
type Receipt struct {
	MessageID int       `db:"message_id" json:"-"`
	UserID    int       `db:"user_id" json:"user_id"`
	SeenAt    time.Time `db:"seen_at" json:"seen_at"`
}

// Message represents a chat message. SeenBy always contains the sender.
type Message struct {
	ID          int         `db:"id" json:"id"`
	ChatID      int         `db:"chat_id" json:"chat_id"`
	SenderID    int         `db:"sender_id" json:"sender_id"`
	Content     string      `db:"content" json:"content"`
	Attachments Attachments `db:"attachments" json:"attachments"`
	SeenBy      []Receipt   `json:"seen_by"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// ChatEvent is broadcast through websocket chat groups.
type ChatEvent struct {
	Type      string   `json:"type"`
	ChatID    int      `json:"chat_id,omitempty"`
	UserID    int      `json:"user_id,omitempty"`
	MessageID int      `json:"message_id,omitempty"`
	Message   *Message `json:"message,omitempty"`
}
