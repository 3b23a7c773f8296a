package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/nvdisplay-core/internal/control"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/config"
	"github.com/nerrad567/nvdisplay-core/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// WSChannelAll subscribes to every event type.
	WSChannelAll = "*"

	wsSendBufferSize = 256
)

// wsChannels are the channels a client may subscribe to: the service
// event types and the wildcard.
var wsChannels = map[string]struct{}{
	control.EventAttributeChanged:     {},
	control.EventHotplugStatusChanged: {},
	WSChannelAll:                      {},
}

// WSMessage is one frame on the event stream, in either direction.
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

// wsRequest is an incoming frame with the payload left undecoded.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans service events out to the connected clients. A client that
// does not keep up loses events rather than slowing the service.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}

	dropped atomic.Uint64
}

// WSClient is one connected event-stream client.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.RWMutex
	subscriptions map[string]struct{}

	// sendMu orders queueing against closing send.
	sendMu sync.Mutex
	closed bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.closeSend()
		if c.conn != nil {
			c.conn.Close()
		}
		delete(h.clients, c)
	}
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("event stream client connected", "clients", n)
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		c.closeSend()
		h.logger.Debug("event stream client disconnected", "clients", n)
	}
}

// Broadcast sends an event to every client subscribed to channel.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to encode event", "channel", channel, "error", err)
		return
	}

	// Client locks are taken only after the hub lock is released.
	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.isSubscribed(channel) && !c.trySend(data) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// handleWebSocket upgrades to the event stream. Clients subscribe to
// hotplug.status_changed, attribute.changed or "*". The stream is
// read-only, so no token is required.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	s.hub.Register(c)

	t := newWSTimings(s.wsCfg)
	go c.writePump(t)
	go c.readPump(t)
}

// wsTimings are the keepalive intervals derived from the config.
type wsTimings struct {
	readLimit int64
	ping      time.Duration
	writeWait time.Duration
	readWait  time.Duration
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return wsTimings{
		readLimit: int64(cfg.MaxMessageSize),
		ping:      ping,
		writeWait: pong,
		readWait:  ping + pong,
	}
}

func (c *WSClient) readPump(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(t.readLimit)
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(t.readWait)) }
	extend() //nolint:errcheck // Best effort; a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("event stream read error", "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings; any frame counts as alive.
		extend() //nolint:errcheck // Best effort
		c.handleMessage(data)
	}
}

func (c *WSClient) writePump(t wsTimings) {
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(t.writeWait)) //nolint:errcheck // Caught by the write
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		channels, err := decodeChannels(req.Payload)
		if err != nil {
			c.sendError(req.ID, err.Error())
			return
		}
		if req.Type == WSTypeSubscribe {
			c.subscribe(channels)
			c.reply(req.ID, WSTypeResponse, map[string]any{"subscribed": channels})
		} else {
			c.unsubscribe(channels)
			c.reply(req.ID, WSTypeResponse, map[string]any{"unsubscribed": channels})
		}
	default:
		c.sendError(req.ID, "unknown message type: "+req.Type)
	}
}

func decodeChannels(raw json.RawMessage) ([]string, error) {
	var p WSSubscribePayload
	if len(raw) == 0 || json.Unmarshal(raw, &p) != nil {
		return nil, fmt.Errorf("payload must be {\"channels\": [...]}")
	}
	for _, ch := range p.Channels {
		if _, ok := wsChannels[ch]; !ok {
			return nil, fmt.Errorf("unknown channel %q", ch)
		}
	}
	return p.Channels, nil
}

func (c *WSClient) subscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	c.mu.Unlock()
	c.hub.logger.Debug("event stream subscribed", "channels", channels)
}

func (c *WSClient) unsubscribe(channels []string) {
	c.mu.Lock()
	for _, ch := range channels {
		delete(c.subscriptions, ch)
	}
	c.mu.Unlock()
}

func (c *WSClient) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.subscriptions[WSChannelAll]; ok {
		return true
	}
	_, ok := c.subscriptions[channel]
	return ok
}

// trySend queues data without blocking. It reports false when the buffer
// is full or the client is already gone.
func (c *WSClient) trySend(data []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend closes the send channel once; writePump then sends a close
// frame and exits.
func (c *WSClient) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
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
	c.trySend(data)
}

func (c *WSClient) sendError(id, message string) {
	c.reply(id, WSTypeError, map[string]string{"message": message})
}
