package realtime

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/tradepost/pkg/logger"
	"github.com/charlesng35/tradepost/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultBufferSize = 32
)

// Message represents a JSON payload delivered to realtime subscribers.
type Message struct {
	Stream string    `json:"stream"`
	Event  string    `json:"event"`
	Data   any       `json:"data,omitempty"`
	SentAt time.Time `json:"sent_at"`
}

type controlMessage struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams"`
}

// Hub fans out per-user change notifications to connected websocket clients. Subscriptions are
// keyed by stream, then user, so a user only ever receives their own events.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[string]map[*connection]struct{}
	upgrader      websocket.Upgrader
	allowed       map[string]struct{}
	log           *zap.Logger
	now           func() time.Time
}

// NewHub constructs a realtime hub accepting the given streams. No streams means DefaultStreams.
func NewHub(streams ...string) *Hub {
	if len(streams) == 0 {
		streams = DefaultStreams
	}
	allowed := make(map[string]struct{}, len(streams))
	for _, stream := range uniqueStreams(streams) {
		allowed[stream] = struct{}{}
	}

	return &Hub{
		subscriptions: make(map[string]map[string]map[*connection]struct{}),
		allowed:       allowed,
		log:           logger.WithModule("realtime"),
		now:           time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameOriginOrLoopback,
		},
	}
}

// Allows reports whether stream is served by the hub.
func (h *Hub) Allows(stream string) bool {
	_, ok := h.allowed[normalizeStream(stream)]
	return ok
}

// Serve upgrades the HTTP connection to a WebSocket and subscribes it to streams for userID.
// It blocks until the connection closes.
func (h *Hub) Serve(userID string, streams []string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}

	client := newConnection(h, conn, userID)
	h.subscribe(client, streams)
	metrics.RealtimeConnections.Inc()

	go client.writeLoop()
	client.readLoop()
}

// Publish delivers event to every connection userID holds on the contact permission stream.
func (h *Hub) Publish(userID, event string, data any) {
	h.BroadcastToUser(StreamContactPermissions, userID, Message{Event: event, Data: data})
}

// BroadcastToUser delivers a message to all connections for the supplied user on a stream.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = normalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	targets := h.subscriptions[stream][userID]
	if len(targets) == 0 {
		return
	}

	message.Stream = stream
	if message.SentAt.IsZero() {
		message.SentAt = h.now().UTC()
	}
	for client := range targets {
		h.enqueue(client, message)
	}
}

// ConnectionCount returns the number of connections userID holds on stream.
func (h *Hub) ConnectionCount(stream, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[normalizeStream(stream)][userID])
}

func (h *Hub) subscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		if _, ok := h.allowed[stream]; !ok {
			h.log.Debug("ignoring unknown stream", zap.String("stream", stream), zap.String("user_id", client.userID))
			continue
		}
		if _, exists := client.streams[stream]; exists {
			continue
		}

		if h.subscriptions[stream] == nil {
			h.subscriptions[stream] = make(map[string]map[*connection]struct{})
		}
		if h.subscriptions[stream][client.userID] == nil {
			h.subscriptions[stream][client.userID] = make(map[*connection]struct{})
		}

		client.streams[stream] = struct{}{}
		h.subscriptions[stream][client.userID][client] = struct{}{}
	}
}

func (h *Hub) unsubscribe(client *connection, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range uniqueStreams(streams) {
		h.removeSubscriptionLocked(client, stream)
	}
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for stream := range client.streams {
		h.removeSubscriptionLocked(client, stream)
	}
}

func (h *Hub) removeSubscriptionLocked(client *connection, stream string) {
	delete(client.streams, stream)

	clientsByUser, ok := h.subscriptions[stream]
	if !ok {
		return
	}
	userClients := clientsByUser[client.userID]
	delete(userClients, client)
	if len(userClients) == 0 {
		delete(clientsByUser, client.userID)
	}
	if len(clientsByUser) == 0 {
		delete(h.subscriptions, stream)
	}
}

// enqueue must be called with h.mu held for reading.
func (h *Hub) enqueue(client *connection, message Message) {
	select {
	case client.send <- message:
	default:
		h.log.Warn("dropping slow realtime client", zap.String("user_id", client.userID))
		go client.close()
	}
}

type connection struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	streams map[string]struct{}
	send    chan Message
	done    chan struct{}
	once    sync.Once
}

func newConnection(hub *Hub, conn *websocket.Conn, userID string) *connection {
	return &connection{
		hub:     hub,
		socket:  conn,
		userID:  userID,
		streams: make(map[string]struct{}),
		send:    make(chan Message, defaultBufferSize),
		done:    make(chan struct{}),
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("unexpected websocket close", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.String("user_id", c.userID), zap.Error(err))
			continue
		}

		switch strings.ToLower(strings.TrimSpace(ctrl.Action)) {
		case "subscribe":
			c.hub.subscribe(c, ctrl.Streams)
		case "unsubscribe":
			c.hub.unsubscribe(c, ctrl.Streams)
		case "ping":
			select {
			case c.send <- Message{Event: "pong", SentAt: c.hub.now().UTC()}:
			case <-c.done:
				return
			}
		}
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		_ = c.socket.Close()
		metrics.RealtimeConnections.Dec()
	})
}

func sameOriginOrLoopback(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originHost := hostWithoutPort(origin)
	return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	if idx := strings.IndexByte(host, '/'); idx >= 0 {
		host = host[:idx]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeStream(stream string) string {
	return strings.ToLower(strings.TrimSpace(stream))
}

func uniqueStreams(streams []string) []string {
	seen := make(map[string]struct{}, len(streams))
	var result []string
	for _, stream := range streams {
		stream = normalizeStream(stream)
		if stream == "" {
			continue
		}
		if _, exists := seen[stream]; exists {
			continue
		}
		seen[stream] = struct{}{}
		result = append(result, stream)
	}
	return result
}
