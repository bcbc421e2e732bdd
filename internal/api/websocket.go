package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-gateway/internal/hub"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/logging"
)

// Frame types on the event feed.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameError       = "error"
)

const (
	sendQueueSize = 256

	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
)

// Channels lists the event channels a client may subscribe to.
var Channels = []string{hub.ChannelTelemetry, hub.ChannelCommand, hub.ChannelResponse, hub.ChannelMetrics}

// Frame is one message on the event feed, in either direction. Data is
// the routed record for events, the request body for client frames and the
// reply for acks and errors.
type Frame struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Channel string `json:"channel,omitempty"`
	Time    string `json:"time,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// clientFrame is Frame as received, with Data left raw.
type clientFrame struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ChannelList is the data of subscribe and unsubscribe frames.
type ChannelList struct {
	Channels []string `json:"channels"`
}

// SubscriptionAck answers subscribe and unsubscribe frames.
type SubscriptionAck struct {
	Channels []string `json:"channels"`
	Rejected []string `json:"rejected,omitempty"`
}

// EventHub fans routed records out to WebSocket subscribers. It implements
// hub.EventPublisher. A subscriber whose queue is full misses events rather
// than slowing the router.
type EventHub struct {
	maxMessage   int64
	pingInterval time.Duration
	pongTimeout  time.Duration
	logger       *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	dropped atomic.Uint64
}

type wsClient struct {
	events *EventHub
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	mu       sync.RWMutex
	channels map[string]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewEventHub returns an EventHub. Zero settings take their defaults.
func NewEventHub(cfg config.WebSocketConfig, logger *logging.Logger) *EventHub {
	h := &EventHub{
		maxMessage:   defaultMaxMessageSize,
		pingInterval: defaultPingInterval,
		pongTimeout:  defaultPongTimeout,
		logger:       logger,
		clients:      make(map[*wsClient]struct{}),
	}
	if cfg.MaxMessageSize > 0 {
		h.maxMessage = int64(cfg.MaxMessageSize)
	}
	if cfg.PingInterval > 0 {
		h.pingInterval = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		h.pongTimeout = time.Duration(cfg.PongTimeout) * time.Second
	}
	return h
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *EventHub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

// Broadcast queues an event for every client subscribed to channel.
func (h *EventHub) Broadcast(channel string, payload any) {
	h.mu.RLock()
	var targets []*wsClient
	for c := range h.clients {
		if c.subscribed(channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	msg, err := json.Marshal(Frame{Type: FrameEvent, Channel: channel, Time: now(), Data: payload})
	if err != nil {
		h.logger.Error("encoding event failed", "channel", channel, "error", err)
		return
	}
	for _, c := range targets {
		if !c.queue(msg) {
			h.dropped.Add(1)
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were discarded for full client queues.
func (h *EventHub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *EventHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *EventHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// handleWebSocket upgrades the request and attaches the client to the
// event hub. Channels named in ?channels=a,b are subscribed immediately.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsClient{
		events:   s.events,
		conn:     conn,
		send:     make(chan []byte, sendQueueSize),
		done:     make(chan struct{}),
		channels: make(map[string]bool),
	}
	if q := r.URL.Query().Get("channels"); q != "" {
		c.subscribe(strings.Split(q, ","))
	}

	s.events.add(c)
	go c.writeLoop()
	go c.readLoop()
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// queue reports false when the message was dropped.
func (c *wsClient) queue(msg []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *wsClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

// subscribe adds known channels and returns the accepted and rejected names.
func (c *wsClient) subscribe(names []string) SubscriptionAck {
	var ack SubscriptionAck
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		name = strings.TrimSpace(name)
		if !slices.Contains(Channels, name) {
			ack.Rejected = append(ack.Rejected, name)
			continue
		}
		c.channels[name] = true
		ack.Channels = append(ack.Channels, name)
	}
	return ack
}

func (c *wsClient) unsubscribe(names []string) SubscriptionAck {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		delete(c.channels, strings.TrimSpace(name))
	}
	return SubscriptionAck{Channels: names}
}

func (c *wsClient) readLoop() {
	defer c.events.remove(c)

	deadline := c.events.pingInterval + c.events.pongTimeout
	c.conn.SetReadLimit(c.events.maxMessage)
	c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // read error ends the loop
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.events.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // read error ends the loop
		c.handle(raw)
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(c.events.pingInterval)
	defer ticker.Stop()

	write := func(kind int, msg []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(c.events.pongTimeout)) //nolint:errcheck // write error follows
		return c.conn.WriteMessage(kind, msg)
	}

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := write(websocket.TextMessage, msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsClient) handle(raw []byte) {
	var in clientFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		c.reply(FrameError, "", "invalid JSON frame")
		return
	}

	switch in.Type {
	case FramePing:
		c.reply(FramePong, in.ID, nil)
	case FrameSubscribe, FrameUnsubscribe:
		var list ChannelList
		if len(in.Data) == 0 || json.Unmarshal(in.Data, &list) != nil {
			c.reply(FrameError, in.ID, "invalid channel list")
			return
		}
		if in.Type == FrameSubscribe {
			c.reply(FrameAck, in.ID, c.subscribe(list.Channels))
		} else {
			c.reply(FrameAck, in.ID, c.unsubscribe(list.Channels))
		}
	default:
		c.reply(FrameError, in.ID, "unknown frame type: "+in.Type)
	}
}

func (c *wsClient) reply(frameType, id string, data any) {
	msg, err := json.Marshal(Frame{Type: frameType, ID: id, Time: now(), Data: data})
	if err != nil {
		return
	}
	c.queue(msg)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
