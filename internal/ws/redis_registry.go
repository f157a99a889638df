package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"mentorship-chat/internal/models"
)

const channelPattern = "chat.events.*"

// RedisRegistry extends the in-memory Hub with Redis pub/sub so broadcasts
// reach connections held by other server processes. Local delivery happens
// immediately; the subscription loop replays envelopes published elsewhere.
type RedisRegistry struct {
	local      *Hub
	rdb        *redis.Client
	instanceID string
}

type broadcastEnvelope struct {
	Origin string           `json:"origin"`
	ChatID int              `json:"chat_id"`
	Event  models.ChatEvent `json:"event"`
}

// NewRedisRegistry wraps a hub with cross-process fanout.
func NewRedisRegistry(rdb *redis.Client, local *Hub) *RedisRegistry {
	return &RedisRegistry{local: local, rdb: rdb, instanceID: newConnID()}
}

func (r *RedisRegistry) Join(chatID int, client *Client)  { r.local.Join(chatID, client) }
func (r *RedisRegistry) Leave(chatID int, client *Client) { r.local.Leave(chatID, client) }
func (r *RedisRegistry) LeaveAll(client *Client)          { r.local.LeaveAll(client) }

// Broadcast delivers locally and publishes for the other processes.
func (r *RedisRegistry) Broadcast(chatID int, event models.ChatEvent) {
	r.local.Broadcast(chatID, event)
	r.publish(chatID, event)
}

// BroadcastExcept skips the excluded connection locally; remote processes
// hold none of the sender's excluded connection, so they deliver to all.
func (r *RedisRegistry) BroadcastExcept(chatID int, except *Client, event models.ChatEvent) {
	r.local.BroadcastExcept(chatID, except, event)
	r.publish(chatID, event)
}

func (r *RedisRegistry) publish(chatID int, event models.ChatEvent) {
	payload, err := json.Marshal(broadcastEnvelope{Origin: r.instanceID, ChatID: chatID, Event: event})
	if err != nil {
		return
	}
	channel := fmt.Sprintf("chat.events.%d", chatID)
	if err := r.rdb.Publish(context.Background(), channel, payload).Err(); err != nil {
		log.Printf("redis broadcast publish failed: %v", err)
	}
}

// Run consumes remote broadcast envelopes until the context ends.
func (r *RedisRegistry) Run(ctx context.Context) {
	pubsub := r.rdb.PSubscribe(ctx, channelPattern)
	defer pubsub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pubsub.Channel():
			if !ok {
				return
			}
			var env broadcastEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("redis broadcast decode failed: %v", err)
				continue
			}
			if env.Origin == r.instanceID {
				continue
			}
			r.local.Broadcast(env.ChatID, env.Event)
		}
	}
}
