package ws

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"mentorship-chat/internal/models"
	"mentorship-chat/internal/observability"
	"mentorship-chat/internal/repositories"
)

// TokenVerifier authenticates the handshake credential.
type TokenVerifier interface {
	Verify(token string) (int, error)
}

// MessagingService is the slice of the messaging service the gateway uses.
type MessagingService interface {
	Send(ctx context.Context, chatID, senderID int, content string, attachments models.Attachments) (models.Message, error)
	MarkSeen(ctx context.Context, chatID, userID int) (int64, error)
}

// Gateway holds one websocket per authenticated session and relays
// chat-scoped events between connections and the messaging service.
type Gateway struct {
	registry  BroadcastRegistry
	chats     repositories.ChatRepository
	verifier  TokenVerifier
	messaging MessagingService
}

// NewGateway constructs the realtime gateway.
func NewGateway(registry BroadcastRegistry, chats repositories.ChatRepository, verifier TokenVerifier, messaging MessagingService) *Gateway {
	return &Gateway{registry: registry, chats: chats, verifier: verifier, messaging: messaging}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle authenticates and upgrades the connection, then serves its events.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("mentorship-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := g.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid token", "errors": []string{}})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect", "ok")
	g.publishLifecycleEvent(context.Background(), "ws_connect", info, "")

	go g.readLoop(client)
}

func (g *Gateway) readLoop(client *Client) {
	var closeReason string
	defer func() {
		g.registry.LeaveAll(client)
		client.conn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect", "ok")
		g.publishLifecycleEvent(context.Background(), "ws_disconnect", client.Info, closeReason)
	}()

	for {
		var event InboundEvent
		if err := client.conn.ReadJSON(&event); err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error", "error")
			}
			return
		}
		g.dispatch(context.Background(), client, event)
	}
}

// dispatch handles one inbound event. Authorization and state failures are
// deliberately silent on the wire; they are only visible through metrics
// and logs.
func (g *Gateway) dispatch(ctx context.Context, client *Client, event InboundEvent) {
	userID := client.Info.UserID

	switch event.Type {
	case EventJoinChat:
		chat, err := g.chats.GetChat(ctx, event.ChatID)
		if err != nil || !chat.HasParticipant(userID) {
			observability.IncWSEvent(event.Type, "dropped")
			return
		}
		g.registry.Join(event.ChatID, client)
		observability.IncWSEvent(event.Type, "ok")

	case EventLeaveChat:
		g.registry.Leave(event.ChatID, client)
		observability.IncWSEvent(event.Type, "ok")

	case EventSendMessage:
		chat, err := g.chats.GetChat(ctx, event.ChatID)
		if err != nil || chat.Status != models.ChatActive || !chat.HasParticipant(userID) {
			log.Printf("ws send_message dropped chat=%d user=%d", event.ChatID, userID)
			observability.IncWSEvent(event.Type, "dropped")
			return
		}
		if _, err := g.messaging.Send(ctx, event.ChatID, userID, event.Content, event.Attachments); err != nil {
			log.Printf("ws send_message failed chat=%d user=%d: %v", event.ChatID, userID, err)
			observability.IncWSEvent(event.Type, "dropped")
			return
		}
		// new_message broadcast happens inside the messaging service.
		observability.IncWSEvent(event.Type, "ok")

	case EventTyping, EventStopTyping:
		g.registry.BroadcastExcept(event.ChatID, client, models.ChatEvent{
			Type:   event.Type,
			ChatID: event.ChatID,
			UserID: userID,
		})
		observability.IncWSEvent(event.Type, "ok")

	case EventMessageSeen:
		member, err := g.chats.IsParticipant(ctx, event.ChatID, userID)
		if err != nil || !member {
			observability.IncWSEvent(event.Type, "dropped")
			return
		}
		if _, err := g.messaging.MarkSeen(ctx, event.ChatID, userID); err != nil {
			log.Printf("ws message_seen failed chat=%d user=%d: %v", event.ChatID, userID, err)
			observability.IncWSEvent(event.Type, "dropped")
			return
		}
		// Sender included so their other devices stay in sync.
		g.registry.Broadcast(event.ChatID, models.ChatEvent{
			Type:   EventMessageSeen,
			ChatID: event.ChatID,
			UserID: userID,
		})
		observability.IncWSEvent(event.Type, "ok")

	default:
		observability.IncWSEvent("unknown", "dropped")
	}
}

func (g *Gateway) publishLifecycleEvent(ctx context.Context, name string, info ConnInfo, reason string) {
	_ = observability.PublishEvent(ctx, "ws_events.chats", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: name,
		Payload: observability.WSEventPayload{
			Event:      name,
			ConnID:     info.ConnID,
			UserID:     info.UserID,
			DeviceID:   info.DeviceID,
			IP:         info.IP,
			DurationMS: time.Since(info.ConnectedAt).Milliseconds(),
			Reason:     reason,
		},
	})
}

func (g *Gateway) validateToken(header string) (int, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return g.verifier.Verify(parts[1])
	}
	return 0, fmt.Errorf("invalid token")
}
