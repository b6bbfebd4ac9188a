package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"sentinel/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second
	// sendBuffer is how many messages may queue for one client before it is
	// dropped as too slow
	sendBuffer = 64
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	ID        string      `json:"id,omitempty"`
}

// client owns one connection. Only writePump writes to conn; everything else
// queues on send.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	topics    map[string]bool // empty means everything
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		topics: make(map[string]bool),
	}
}

func (c *client) wants(msgType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics) == 0 || c.topics[msgType]
}

// enqueue never blocks. It reports false when the client is closed or its
// buffer is full.
func (c *client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *client) writePump(logger *zap.Logger) {
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("Failed to send WebSocket message", zap.Error(err))
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// Options configures a Manager
type Options struct {
	// AllowedOrigins restricts the Origin header. When set, requests without
	// an Origin are refused too. Empty allows any origin.
	AllowedOrigins []string
	Logger         *zap.Logger
	Metrics        *metrics.Collector
	// Replay returns the messages a client receives when it reports ready
	Replay func() []WSMessage
}

// WebSocketManager pushes snapshot updates to connected dashboards
type WebSocketManager struct {
	connections map[*client]bool
	mutex       sync.RWMutex
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	metrics     *metrics.Collector
	replay      func() []WSMessage
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager(opts Options) *WebSocketManager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		allowed[strings.TrimRight(origin, "/")] = true
	}

	return &WebSocketManager{
		connections: make(map[*client]bool),
		logger:      logger,
		metrics:     opts.Metrics,
		replay:      opts.Replay,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// SetReplay installs the ready-replay hook after construction
func (wsm *WebSocketManager) SetReplay(replay func() []WSMessage) {
	wsm.mutex.Lock()
	defer wsm.mutex.Unlock()
	wsm.replay = replay
}

// HandleConnection upgrades the request and serves the client until it leaves.
// Callers authenticate the request first; cookies already set on w (a
// refreshed session) travel with the upgrade response.
func (wsm *WebSocketManager) HandleConnection(w http.ResponseWriter, r *http.Request) {
	var header http.Header
	if cookies := w.Header().Values("Set-Cookie"); len(cookies) > 0 {
		header = http.Header{"Set-Cookie": cookies}
	}
	conn, err := wsm.upgrader.Upgrade(w, r, header)
	if err != nil {
		wsm.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := newClient(conn)
	wsm.add(c)
	defer func() {
		wsm.remove(c)
		c.close()
	}()
	go c.writePump(wsm.logger)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				wsm.logger.Warn("WebSocket error", zap.Error(err))
			}
			return
		}

		var incoming struct {
			Type   string   `json:"type"`
			Topics []string `json:"topics"`
		}
		if err := json.Unmarshal(message, &incoming); err != nil {
			wsm.logger.Debug("Failed to parse message", zap.Error(err))
			continue
		}

		switch incoming.Type {
		case "client_ready":
			wsm.flushReplay(c)
		case "ping":
			wsm.sendMessage(c, WSMessage{
				Type:      "pong",
				Timestamp: time.Now(),
				Data:      map[string]interface{}{"status": "ok"},
			})
		case "subscribe":
			c.mu.Lock()
			for _, topic := range incoming.Topics {
				c.topics[topic] = true
			}
			c.mu.Unlock()
		case "unsubscribe":
			c.mu.Lock()
			for _, topic := range incoming.Topics {
				delete(c.topics, topic)
			}
			c.mu.Unlock()
		}
	}
}

func (wsm *WebSocketManager) add(c *client) {
	wsm.mutex.Lock()
	wsm.connections[c] = true
	count := len(wsm.connections)
	wsm.mutex.Unlock()

	wsm.metrics.SetWebsocketClients(count)
	wsm.logger.Info("🔗 Dashboard client connected", zap.Int("clients", count))
}

func (wsm *WebSocketManager) remove(c *client) {
	wsm.mutex.Lock()
	_, existed := wsm.connections[c]
	delete(wsm.connections, c)
	count := len(wsm.connections)
	wsm.mutex.Unlock()

	if existed {
		wsm.metrics.SetWebsocketClients(count)
		wsm.logger.Info("❌ Dashboard client disconnected", zap.Int("clients", count))
	}
}

func (wsm *WebSocketManager) flushReplay(c *client) {
	wsm.mutex.RLock()
	replay := wsm.replay
	wsm.mutex.RUnlock()
	if replay == nil {
		return
	}
	for _, message := range replay() {
		if c.wants(message.Type) {
			wsm.sendMessage(c, message)
		}
	}
}

// BroadcastMessage broadcasts a message to every client subscribed to msgType
func (wsm *WebSocketManager) BroadcastMessage(msgType string, data interface{}) {
	wsm.mutex.RLock()
	clients := make([]*client, 0, len(wsm.connections))
	for c := range wsm.connections {
		clients = append(clients, c)
	}
	wsm.mutex.RUnlock()

	message := WSMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
		ID:        uuid.NewString(),
	}
	payload, err := json.Marshal(message)
	if err != nil {
		wsm.logger.Error("Failed to marshal WebSocket message", zap.String("type", msgType), zap.Error(err))
		return
	}
	for _, c := range clients {
		if c.wants(msgType) {
			wsm.deliver(c, payload, msgType)
		}
	}
}

// sendMessage queues a message for one client. A client whose queue is full
// is disconnected so it cannot stall the others.
func (wsm *WebSocketManager) sendMessage(c *client, message WSMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		wsm.logger.Error("Failed to marshal WebSocket message", zap.String("type", message.Type), zap.Error(err))
		return
	}
	wsm.deliver(c, data, message.Type)
}

func (wsm *WebSocketManager) deliver(c *client, data []byte, msgType string) {
	if c.enqueue(data) {
		return
	}
	select {
	case <-c.done:
	default:
		wsm.logger.Warn("Dropping slow WebSocket client", zap.String("type", msgType))
	}
	wsm.remove(c)
	c.close()
}

// GetConnectionCount returns the number of active connections
func (wsm *WebSocketManager) GetConnectionCount() int {
	wsm.mutex.RLock()
	defer wsm.mutex.RUnlock()
	return len(wsm.connections)
}

// BroadcastAlert pushes a newly raised alert
func (wsm *WebSocketManager) BroadcastAlert(alert interface{}) {
	wsm.BroadcastMessage("security_alert", alert)
}
