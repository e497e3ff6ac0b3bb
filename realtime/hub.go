package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = 50 * time.Second
)

// Event is the wire format pushed to connected clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type client struct {
	userID uint
	conn   *websocket.Conn
	send   chan []byte

	// done signals shutdown to writers. send is never closed; a send
	// racing a disconnect must not panic.
	done     chan struct{}
	doneOnce sync.Once
}

func (c *client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Hub keeps the set of open websocket connections per user and fans events
// out to them. A user may hold several connections (multiple tabs/devices);
// delivery is best-effort and slow clients are dropped rather than buffered
// without bound.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[*client]struct{}
	log     *zap.SugaredLogger

	upgrader websocket.Upgrader
}

// NewHub creates an empty hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		clients: make(map[uint]map[*client]struct{}),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin is enforced by the CORS layer for the REST API; the ws
			// endpoint is token-authenticated, so accept any origin here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve upgrades the request and pumps events to the authenticated user
// until the connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uint) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	h.register(c)

	go c.writePump()
	go c.readPump(h)
	return nil
}

// SendToUser delivers an event to every open connection of one user.
// Returns the number of connections the event was queued to.
func (h *Hub) SendToUser(userID uint, ev Event) int {
	b, err := json.Marshal(ev)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	conns := make([]*client, 0, len(h.clients[userID]))
	for c := range h.clients[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		select {
		case c.send <- b:
			delivered++
		case <-c.done:
			// Connection is already on its way out.
		default:
			// Slow consumer; drop the connection, the row in the
			// notifications table is still there.
			h.unregister(c)
		}
	}
	return delivered
}

// ConnectedUsers returns how many distinct users currently hold connections.
func (h *Hub) ConnectedUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == nil {
		h.clients[c.userID] = make(map[*client]struct{})
	}
	h.clients[c.userID][c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	c.shutdown()
	_ = c.conn.Close()
}

func (c *client) readPump(h *Hub) {
	defer h.unregister(c)
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Clients only listen; any read error ends the session.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
