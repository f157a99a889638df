package ws

import "mentorship-chat/internal/models"

// BroadcastRegistry tracks which connections are subscribed to which chat
// group and relays events to them. The in-memory Hub serves a single
// process; RedisRegistry extends delivery across processes.
type BroadcastRegistry interface {
	Join(chatID int, client *Client)
	Leave(chatID int, client *Client)
	LeaveAll(client *Client)
	Broadcast(chatID int, event models.ChatEvent)
	BroadcastExcept(chatID int, except *Client, event models.ChatEvent)
}
