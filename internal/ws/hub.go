package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mentorship-chat/internal/models"
	"mentorship-chat/internal/observability"
)

// Client is one live websocket connection of an authenticated user. Writes
// are serialized: gorilla connections do not support concurrent writers.
type Client struct {
	conn *websocket.Conn
	Info ConnInfo

	writeMu sync.Mutex
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{conn: conn, Info: info}
}

// Send writes one event frame to the connection.
func (c *Client) Send(event models.ChatEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(event)
}

// Hub maintains the process-local chat broadcast groups.
type Hub struct {
	rooms map[int]map[*Client]bool
	mu    sync.RWMutex
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[int]map[*Client]bool)}
}

// Join adds a connection to a chat's broadcast group.
func (h *Hub) Join(chatID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[*Client]bool)
	}
	h.rooms[chatID][client] = true
}

// Leave removes a connection from a chat's broadcast group.
func (h *Hub) Leave(chatID int, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(chatID, client)
}

// LeaveAll removes a connection from every group it joined. Called on
// disconnect; has no other side effects.
func (h *Hub) LeaveAll(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for chatID := range h.rooms {
		h.leaveLocked(chatID, client)
	}
}

func (h *Hub) leaveLocked(chatID int, client *Client) {
	if clients, ok := h.rooms[chatID]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, chatID)
		}
	}
}

// Broadcast sends the event to every connection in the chat's group.
func (h *Hub) Broadcast(chatID int, event models.ChatEvent) {
	h.BroadcastExcept(chatID, nil, event)
}

// BroadcastExcept sends the event to every connection in the group but the
// given one. Used for typing indicators, which are not echoed to the sender.
func (h *Hub) BroadcastExcept(chatID int, except *Client, event models.ChatEvent) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.rooms[chatID]))
	for client := range h.rooms[chatID] {
		if client != except {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if err := client.Send(event); err != nil {
			log.Printf("websocket write error: %v", err)
			client.conn.Close()
			h.LeaveAll(client)
			h.publishWSError(chatID, client, err)
		}
	}
}

func (h *Hub) publishWSError(chatID int, client *Client, err error) {
	info := client.Info
	observability.IncWSEvent("ws_error", "error")
	_ = observability.PublishEvent(context.Background(), "ws_events.chats", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_error",
		Payload: observability.WSEventPayload{
			ChatID:     chatID,
			Event:      "ws_error",
			ConnID:     info.ConnID,
			UserID:     info.UserID,
			DeviceID:   info.DeviceID,
			IP:         info.IP,
			DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
			Reason:     err.Error(),
		},
	})
}
