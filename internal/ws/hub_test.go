package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"mentorship-chat/internal/models"
)

// newSocketPair upgrades one connection on a throwaway server and returns
// both ends.
func newSocketPair(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server connection was not accepted")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func readEvent(t *testing.T, conn *websocket.Conn) models.ChatEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event models.ChatEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func requireNoEvent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	var event models.ChatEvent
	err := conn.ReadJSON(&event)
	require.Error(t, err, "expected no event, got %+v", event)
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil, ConnInfo{UserID: 1})

	hub.Join(1, client)
	if len(hub.rooms) != 1 {
		t.Fatalf("expected chat room to be created")
	}

	hub.Leave(1, client)
	if len(hub.rooms) != 0 {
		t.Fatalf("expected chat room to be removed")
	}
}

func TestHubLeaveAll(t *testing.T) {
	hub := NewHub()
	client := NewClient(nil, ConnInfo{UserID: 1})
	other := NewClient(nil, ConnInfo{UserID: 2})

	hub.Join(1, client)
	hub.Join(2, client)
	hub.Join(2, other)

	hub.LeaveAll(client)
	if len(hub.rooms) != 1 {
		t.Fatalf("expected only the other client's room to survive")
	}
	if !hub.rooms[2][other] {
		t.Fatalf("expected other client to remain joined")
	}
}

func TestHubBroadcastReachesAllMembers(t *testing.T) {
	hub := NewHub()
	serverA, clientA := newSocketPair(t)
	serverB, clientB := newSocketPair(t)

	hub.Join(5, NewClient(serverA, ConnInfo{UserID: 1}))
	hub.Join(5, NewClient(serverB, ConnInfo{UserID: 2}))

	hub.Broadcast(5, models.ChatEvent{Type: "new_message", ChatID: 5, MessageID: 7})

	for _, conn := range []*websocket.Conn{clientA, clientB} {
		event := readEvent(t, conn)
		require.Equal(t, "new_message", event.Type)
		require.Equal(t, 5, event.ChatID)
		require.Equal(t, 7, event.MessageID)
	}
}

func TestHubBroadcastExceptSkipsSender(t *testing.T) {
	hub := NewHub()
	serverA, clientA := newSocketPair(t)
	serverB, clientB := newSocketPair(t)

	sender := NewClient(serverA, ConnInfo{UserID: 1})
	hub.Join(5, sender)
	hub.Join(5, NewClient(serverB, ConnInfo{UserID: 2}))

	hub.BroadcastExcept(5, sender, models.ChatEvent{Type: "typing", ChatID: 5, UserID: 1})

	event := readEvent(t, clientB)
	require.Equal(t, "typing", event.Type)
	require.Equal(t, 1, event.UserID)
	requireNoEvent(t, clientA)
}

func TestHubBroadcastScopedToRoom(t *testing.T) {
	hub := NewHub()
	serverA, clientA := newSocketPair(t)
	serverB, clientB := newSocketPair(t)

	hub.Join(5, NewClient(serverA, ConnInfo{UserID: 1}))
	hub.Join(6, NewClient(serverB, ConnInfo{UserID: 2}))

	hub.Broadcast(5, models.ChatEvent{Type: "new_message", ChatID: 5})

	readEvent(t, clientA)
	requireNoEvent(t, clientB)
}
