package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/harun/loom/internal/observability"
)

const (
	clientSendBuffer = 64
	writeTimeout     = 10 * time.Second
)

// Client is one connected websocket subscriber. Writes go through a
// buffered send channel so broadcasts never block on a slow reader.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	IPAddress   string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// close signals the write pump to finish. The send channel itself is never
// closed so concurrent broadcasts cannot panic.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// writePump serializes all writes to the connection.
func (c *Client) writePump() {
	defer c.Conn.Close()

	for {
		select {
		case msg := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// EventMessage is the wire format of a broadcast event.
type EventMessage struct {
	Type      string      `json:"type"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
	Seq       int64       `json:"seq"`
}

// EventBroadcaster fans job lifecycle events out to all connected clients
type EventBroadcaster struct {
	mu      sync.RWMutex
	clients map[string]*Client
	seq     uint64
	logger  zerolog.Logger
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster(logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[string]*Client),
		logger:  logger,
	}
}

// Add registers a client and starts its write pump.
func (b *EventBroadcaster) Add(client *Client) {
	client.send = make(chan []byte, clientSendBuffer)
	client.done = make(chan struct{})
	go client.writePump()

	b.mu.Lock()
	b.clients[client.ID] = client
	n := len(b.clients)
	b.mu.Unlock()

	observability.SetWebsocketClients(n)
}

// Remove unregisters a client and closes its send channel.
func (b *EventBroadcaster) Remove(clientID string) {
	b.mu.Lock()
	client, exists := b.clients[clientID]
	delete(b.clients, clientID)
	n := len(b.clients)
	b.mu.Unlock()

	if exists {
		client.close()
	}
	observability.SetWebsocketClients(n)
}

// Count returns the number of connected clients
func (b *EventBroadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to all connected clients. Clients whose send
// buffer is full miss the event rather than stalling the caller.
func (b *EventBroadcaster) Broadcast(event string, data interface{}) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       int64(atomic.AddUint64(&b.seq, 1)),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	b.mu.RLock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- jsonData:
		default:
			b.logger.Warn().
				Str("clientId", client.ID).
				Str("event", event).
				Msg("Client send buffer full, dropping event")
		}
	}
}

// CloseAll disconnects every client.
func (b *EventBroadcaster) CloseAll() {
	b.mu.Lock()
	clients := make([]*Client, 0, len(b.clients))
	for _, client := range b.clients {
		clients = append(clients, client)
	}
	b.clients = make(map[string]*Client)
	b.mu.Unlock()

	for _, client := range clients {
		client.close()
	}
	observability.SetWebsocketClients(0)
}
