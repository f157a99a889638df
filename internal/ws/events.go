package ws

import "mentorship-chat/internal/models"

// Inbound event types accepted on a chat connection.
const (
	EventJoinChat    = "join_chat"
	EventLeaveChat   = "leave_chat"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventMessageSeen = "message_seen"
)

// InboundEvent is the client-to-server frame. Content and attachments are
// only meaningful for send_message.
type InboundEvent struct {
	Type        string             `json:"type"`
	ChatID      int                `json:"chat_id"`
	Content     string             `json:"content,omitempty"`
	Attachments models.Attachments `json:"attachments,omitempty"`
}
