// Package stream pushes stored events to connected dashboard clients
// over websockets.
package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/syndilab/hub/internal/domain"
)

const writeTimeout = 5 * time.Second

// client pairs a connection with its write lock. The websocket library
// allows at most one concurrent writer per connection, and Publish runs
// on whichever goroutine stored the event.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Broadcaster fans stored events out to websocket subscribers. It is
// wired to the post-store hook, so every accepted event reaches every
// connected client in near real time.
type Broadcaster struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]*client
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*websocket.Conn]*client),
	}
}

// HandleUpgrade upgrades the request to a websocket and registers the
// client until it disconnects.
func (b *Broadcaster) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	b.mu.Lock()
	b.clients[conn] = &client{conn: conn}
	count := len(b.clients)
	b.mu.Unlock()
	b.logger.Info("stream client connected", "clients", count)

	// Read pump: we never expect client messages, but reading is what
	// surfaces the close frame.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.drop(conn)
				return
			}
		}
	}()
}

// Publish sends the event to every connected client, dropping any whose
// write fails. Safe for concurrent callers: each connection serializes
// its writes behind a per-client lock.
func (b *Broadcaster) Publish(event domain.SyndicationEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("stream encode failed", "error", err)
		return
	}

	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			b.drop(c.conn)
		}
	}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects all clients.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.clients = make(map[*websocket.Conn]*client)
	b.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

func (b *Broadcaster) drop(conn *websocket.Conn) {
	b.mu.Lock()
	_, ok := b.clients[conn]
	delete(b.clients, conn)
	count := len(b.clients)
	b.mu.Unlock()

	conn.Close()
	if ok {
		b.logger.Info("stream client disconnected", "clients", count)
	}
}
