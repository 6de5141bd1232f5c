package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHubAddAndRemoveClient(t *testing.T) {
	hub := NewHub()

	hub.AddClient(1, nil, ConnInfo{UserID: 1, ConnID: "c1"})
	if len(hub.users) != 1 {
		t.Fatalf("expected user entry to be created")
	}
	if _, ok := hub.getConnInfo(1, nil); !ok {
		t.Fatalf("expected conn info to be tracked")
	}

	hub.RemoveClient(1, nil)
	if len(hub.users) != 0 {
		t.Fatalf("expected user entry to be removed")
	}
	if len(hub.connInfo) != 0 {
		t.Fatalf("expected conn info to be removed")
	}
}

func TestHubTracksMultipleConnectionsPerUser(t *testing.T) {
	hub := NewHub()

	hub.AddClient(1, nil, ConnInfo{UserID: 1, ConnID: "c1"})
	hub.AddClient(2, nil, ConnInfo{UserID: 2, ConnID: "c2"})
	if len(hub.users) != 2 {
		t.Fatalf("expected two user entries, got %d", len(hub.users))
	}

	hub.RemoveClient(2, nil)
	if len(hub.users) != 1 {
		t.Fatalf("expected one user entry after removal, got %d", len(hub.users))
	}
	if _, ok := hub.getConnInfo(1, nil); !ok {
		t.Fatalf("expected remaining user's conn info to survive")
	}
}

// Lifecycle operations emit their events on separate goroutines, so a
// recipient in both sets gets two writes at once.
func TestHubEmitConcurrentToOneConnection(t *testing.T) {
	hub := NewHub()
	registered := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		hub.AddClient(1, conn, ConnInfo{UserID: 1, ConnID: "c1", ConnectedAt: time.Now()})
		close(registered)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer client.Close()

	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("connection was never registered")
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Emit("ALERT", []int{1}, map[string]any{"chat_id": 7, "message": "hi"})
	}()
	go func() {
		defer wg.Done()
		hub.Emit("REFETCH_CHATS", []int{1}, struct{}{})
	}()
	wg.Wait()

	client.SetReadDeadline(time.Now().Add(time.Second))
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		_, frame, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		var envelope Envelope
		if err := json.Unmarshal(frame, &envelope); err != nil {
			t.Fatalf("frame %d is not a valid envelope: %v", i, err)
		}
		got[envelope.Event] = true
	}
	if !got["ALERT"] || !got["REFETCH_CHATS"] {
		t.Fatalf("expected both events to arrive intact, got %v", got)
	}
}
