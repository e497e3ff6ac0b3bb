package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialTestHub(t *testing.T, h *Hub, userID uint) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r, userID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func waitForUsers(t *testing.T, h *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ConnectedUsers() != want {
		if time.Now().After(deadline) {
			t.Fatalf("hub never reached %d connected users, have %d", want, h.ConnectedUsers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDeliversToConnectedUser(t *testing.T) {
	h := NewHub(nil)
	conn := dialTestHub(t, h, 7)
	defer conn.Close()
	waitForUsers(t, h, 1)

	n := h.SendToUser(7, Event{Type: "NOTIFICATION", Payload: map[string]string{"message": "hello"}})
	require.Equal(t, 1, n)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "NOTIFICATION")
	require.Contains(t, string(msg), "hello")
}

func TestHubSendToUnknownUser(t *testing.T) {
	h := NewHub(nil)
	require.Equal(t, 0, h.SendToUser(99, Event{Type: "NOTIFICATION"}))
}

// Fan-out racing a disconnect must neither panic nor leave the client
// registered. The client never reads, so the slow-consumer drop path runs
// concurrently with the read-pump teardown.
func TestHubSendRacingDisconnect(t *testing.T) {
	h := NewHub(nil)
	conn := dialTestHub(t, h, 42)
	waitForUsers(t, h, 1)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 200; j++ {
				h.SendToUser(42, Event{Type: "NOTIFICATION", Payload: j})
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		_ = conn.Close()
	}()

	close(start)
	wg.Wait()
	waitForUsers(t, h, 0)

	// Later sends against the gone user are a no-op.
	require.Equal(t, 0, h.SendToUser(42, Event{Type: "NOTIFICATION"}))
}

func TestHubUnregisterIsIdempotent(t *testing.T) {
	h := NewHub(nil)
	conn := dialTestHub(t, h, 5)
	defer conn.Close()
	waitForUsers(t, h, 1)

	h.mu.RLock()
	var c *client
	for cl := range h.clients[5] {
		c = cl
	}
	h.mu.RUnlock()
	require.NotNil(t, c)

	h.unregister(c)
	h.unregister(c)
	require.Equal(t, 0, h.ConnectedUsers())
}
