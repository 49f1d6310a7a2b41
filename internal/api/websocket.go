package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/boardflow-core/internal/infrastructure/config"
	"github.com/nerrad567/boardflow-core/internal/infrastructure/logging"
)

// Message types on the live socket.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// wsSendBufferSize is the per-client outbound queue. A client that falls
// this far behind loses broadcasts rather than stalling the hub.
const wsSendBufferSize = 256

// WSMessage is the envelope for every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsInbound is a client frame with the payload left undecoded.
type wsInbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans rule run notifications out to live clients. It implements the
// automation processor's Broadcaster.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// WSClient is one connected socket.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn

	// workspaceID, when set, limits broadcasts to that workspace.
	workspaceID string

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.RWMutex
	channels map[string]struct{}
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

func newWSClient(hub *Hub, conn *websocket.Conn, workspaceID string) *WSClient {
	return &WSClient{
		hub:         hub,
		conn:        conn,
		workspaceID: workspaceID,
		send:        make(chan []byte, wsSendBufferSize),
		done:        make(chan struct{}),
		channels:    make(map[string]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "workspace_id", c.workspaceID, "clients", n)
}

// Unregister removes a client and stops its writer. Safe to call twice.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.close()
	h.logger.Debug("websocket client disconnected", "workspace_id", c.workspaceID, "clients", n)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload to every client subscribed to channel. A payload
// carrying a workspace_id only reaches unscoped clients and clients bound
// to that workspace.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding broadcast failed", "channel", channel, "error", err)
		return
	}
	workspaceID := payloadWorkspace(payload)

	// Snapshot so client locks are never taken under the hub lock.
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var sent int
	for _, c := range targets {
		if !c.accepts(workspaceID) || !c.subscribed(channel) {
			continue
		}
		if c.enqueue(data) {
			sent++
			continue
		}
		h.dropped.Add(1)
		h.logger.Warn("websocket client too slow, broadcast dropped",
			"channel", channel,
			"workspace_id", c.workspaceID,
		)
	}
	h.sent.Add(uint64(sent)) //nolint:gosec // sent is a non-negative count
	if sent > 0 {
		h.logger.Debug("broadcast sent", "channel", channel, "workspace_id", workspaceID, "recipients", sent)
	}
}

// Stats returns delivered and dropped broadcast counts.
func (h *Hub) Stats() (sent, dropped uint64) {
	return h.sent.Load(), h.dropped.Load()
}

// payloadWorkspace extracts the workspace a payload belongs to, or "".
func payloadWorkspace(payload any) string {
	switch p := payload.(type) {
	case map[string]any:
		ws, _ := p["workspace_id"].(string) //nolint:errcheck // non-string means unscoped
		return ws
	case interface{ Workspace() string }:
		return p.Workspace()
	}
	return ""
}

// handleWebSocket upgrades the connection. The optional workspace_id query
// parameter scopes which broadcasts the client receives.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if len(workspaceID) > maxQueryParamLen {
		writeBadRequest(w, "workspace_id exceeds maximum length")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	hub := s.Hub()
	c := newWSClient(hub, conn, workspaceID)
	hub.Register(c)

	go c.writeLoop()
	go c.readLoop()
}

// close stops the writer and the connection once.
func (c *WSClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close() //nolint:errcheck // peer may already be gone
		}
	})
}

// enqueue queues data without blocking. It reports false when the client's
// buffer is full; a closed client silently accepts.
func (c *WSClient) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) accepts(workspaceID string) bool {
	return c.workspaceID == "" || workspaceID == "" || c.workspaceID == workspaceID
}

func (c *WSClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *WSClient) readLoop() {
	defer c.hub.Unregister(c)

	cfg := c.hub.cfg
	wait := time.Duration(cfg.PingInterval+cfg.PongTimeout) * time.Second
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(wait)) }

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "workspace_id", c.workspaceID, "error", err)
			}
			return
		}
		// Application frames count as liveness for clients that ignore pings.
		extend() //nolint:errcheck // as above
		c.handle(data)
	}
}

func (c *WSClient) writeLoop() {
	cfg := c.hub.cfg
	writeWait := time.Duration(cfg.PongTimeout) * time.Second
	ping := time.NewTicker(time.Duration(cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		c.close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // write error reported below
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.done:
			write(websocket.CloseMessage, nil) //nolint:errcheck // best effort
			return
		case data := <-c.send:
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle dispatches one client frame.
func (c *WSClient) handle(data []byte) {
	var msg wsInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		c.updateChannels(msg, true)
	case WSTypeUnsubscribe:
		c.updateChannels(msg, false)
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	default:
		c.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

// updateChannels adds or removes the frame's channels.
func (c *WSClient) updateChannels(msg wsInbound, add bool) {
	var sub WSSubscribePayload
	if len(msg.Payload) == 0 || json.Unmarshal(msg.Payload, &sub) != nil {
		c.reply(msg.ID, WSTypeError, errorPayload("invalid "+msg.Type+" payload"))
		return
	}
	if len(sub.Channels) == 0 {
		c.reply(msg.ID, WSTypeError, errorPayload("channels are required"))
		return
	}

	c.mu.Lock()
	for _, ch := range sub.Channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if add {
		key = "subscribed"
	}
	c.hub.logger.Debug("websocket "+key, "channels", sub.Channels, "workspace_id", c.workspaceID)
	c.reply(msg.ID, WSTypeResponse, map[string]any{key: sub.Channels})
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorPayload(message string) map[string]string {
	return map[string]string{"message": message}
}
