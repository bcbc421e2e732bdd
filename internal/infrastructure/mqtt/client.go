package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// Client owns one paho connection and tracks its lifecycle.
//
// It provides connection management, fire-and-forget publishing, baseline
// subscriptions keyed by resource kind, and dispatch of inbound messages to
// a MessageSink.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - State transitions are serialised; stateMu is never held across a paho call.
//   - Disconnect may be called from inside a message handler.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	name   string
	id     string

	// status is the management-status kind used for the LWT and the
	// online/offline announcements. resource.Unrecognized disables them.
	status resource.Kind

	state   ConnectionState
	stateMu sync.Mutex

	// baseline holds the kinds subscribed on every connect, with their QoS.
	baseline map[resource.Kind]byte

	// subscriptions tracks topic-level subscriptions for re-subscription on connect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	sink       MessageSink
	observer   ConnectionObserver
	callbackMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// MessageSink receives every inbound message whose topic resolves to a
// known resource kind. The payload is the raw message text.
type MessageSink interface {
	HandleMessage(kind resource.Kind, payload string) error
}

// ConnectionObserver is notified of connection lifecycle events.
//
// OnConnected fires once per physical connection, including after an
// automatic reconnect. OnDisconnected fires when the connection is lost.
type ConnectionObserver interface {
	OnConnected()
	OnDisconnected(err error)
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// subscription holds subscription details for re-subscription on connect.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for topic-level subscriptions.
//
// Handlers are invoked in separate goroutines by the paho library.
// They should not block for extended periods.
//
// Returns:
//   - error: Logged but does not affect message acknowledgment
type MessageHandler func(topic string, payload []byte) error

// Option configures a Client.
type Option func(*Client, *clientSettings)

type clientSettings struct {
	factory func(*pahomqtt.ClientOptions) pahomqtt.Client
}

// WithClientFactory replaces pahomqtt.NewClient, typically with a fake.
func WithClientFactory(factory func(*pahomqtt.ClientOptions) pahomqtt.Client) Option {
	return func(_ *Client, s *clientSettings) {
		s.factory = factory
	}
}

// WithLogger sets the client's logger.
func WithLogger(logger Logger) Option {
	return func(c *Client, _ *clientSettings) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithName labels the client in logs and seeds the generated client ID.
func WithName(name string) Option {
	return func(c *Client, _ *clientSettings) {
		c.name = name
	}
}

// WithBaseline sets the kinds subscribed on every connect, at the
// configured QoS.
func WithBaseline(kinds ...resource.Kind) Option {
	return func(c *Client, _ *clientSettings) {
		for _, k := range kinds {
			if k.Valid() {
				c.baseline[k] = byte(c.cfg.QoS)
			}
		}
	}
}

// WithStatus enables the LWT and online/offline announcements on the topic
// of the given management-status kind.
func WithStatus(kind resource.Kind) Option {
	return func(c *Client, _ *clientSettings) {
		c.status = kind
	}
}

// WithSink sets the destination for dispatched messages.
func WithSink(sink MessageSink) Option {
	return func(c *Client, _ *clientSettings) {
		c.sink = sink
	}
}

// WithObserver sets the connection observer.
func WithObserver(observer ConnectionObserver) Option {
	return func(c *Client, _ *clientSettings) {
		c.observer = observer
	}
}

// New creates a disconnected Client. No network activity happens until
// Connect is called.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//   - opts: Optional settings (factory, logger, baseline kinds, sink, observer)
//
// Returns:
//   - *Client: Client in the Disconnected state
func New(cfg config.MQTTConfig, opts ...Option) *Client {
	c := &Client{
		cfg:           cfg,
		name:          "gateway",
		status:        resource.Unrecognized,
		baseline:      make(map[resource.Kind]byte),
		subscriptions: make(map[string]subscription),
		logger:        noopLogger{},
	}
	settings := &clientSettings{factory: pahomqtt.NewClient}
	for _, opt := range opts {
		opt(c, settings)
	}

	c.id = clientID(cfg, c.name)
	po := buildClientOptions(cfg, c.id)
	if c.status.Valid() {
		configureLWT(po, c.status.Topic(), c.id)
	}
	po.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})
	po.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.getLogger().Debug("mqtt reconnecting", "client", c.name)
	})
	po.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(msg.Topic(), msg.Payload())
	})

	c.client = settings.factory(po)
	return c
}

// Connect establishes a connection to the MQTT broker.
//
// The connected callback restores the baseline subscriptions and notifies
// the observer before Connect returns on the happy path. If the client is
// Reconnecting, the stale session is torn down first.
//
// Returns:
//   - error: ErrAlreadyConnected, ErrConnectInProgress, or ErrConnectionFailed
//     if the broker cannot be reached within the connect timeout or
//     Disconnect was called before the connect completed
func (c *Client) Connect() error {
	c.stateMu.Lock()
	prev := c.state
	switch prev {
	case Connected:
		c.stateMu.Unlock()
		return ErrAlreadyConnected
	case Connecting:
		c.stateMu.Unlock()
		return ErrConnectInProgress
	}
	c.state = Connecting
	c.stateMu.Unlock()

	if prev == Reconnecting {
		c.client.Disconnect(0)
	}

	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.setState(Disconnected)
		c.client.Disconnect(0)
		c.getLogger().Error("mqtt connect timed out", "client", c.name, "timeout", defaultConnectTimeout)
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.setState(Disconnected)
		c.getLogger().Error("mqtt connect failed", "client", c.name, "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler may run asynchronously and not have fired yet.
	// A Disconnect issued meanwhile wins: the new session is dropped.
	c.stateMu.Lock()
	cancelled := c.state == Disconnected
	if c.state == Connecting {
		c.state = Connected
	}
	c.stateMu.Unlock()

	if cancelled {
		c.client.Disconnect(0)
		c.getLogger().Warn("mqtt connect cancelled by disconnect", "client", c.name)
		return fmt.Errorf("%w: disconnected during connect", ErrConnectionFailed)
	}

	c.getLogger().Info("mqtt connected", "client", c.name, "broker", brokerURL(c.cfg))
	return nil
}

// handleConnect is called by paho when a connection is established,
// including after an automatic reconnect.
func (c *Client) handleConnect() {
	c.stateMu.Lock()
	if c.state == Disconnected {
		c.stateMu.Unlock()
		return
	}
	c.state = Connected
	c.stateMu.Unlock()

	c.subscribeBaseline()
	c.restoreSubscriptions()

	if c.status.Valid() {
		c.client.Publish(c.status.Topic(), byte(c.cfg.QoS), true, buildOnlinePayload(c.id))
	}

	c.callbackMu.RLock()
	observer := c.observer
	c.callbackMu.RUnlock()
	if observer != nil {
		c.notify("connected", observer.OnConnected)
	}
}

// handleConnectionLost is called by paho when the connection drops.
func (c *Client) handleConnectionLost(err error) {
	c.stateMu.Lock()
	if c.state == Disconnected {
		c.stateMu.Unlock()
		return
	}
	if c.cfg.Reconnect.Enabled {
		c.state = Reconnecting
	} else {
		c.state = Disconnected
	}
	next := c.state
	c.stateMu.Unlock()

	c.getLogger().Warn("mqtt connection lost", "client", c.name, "state", next.String(), "error", err)

	c.callbackMu.RLock()
	observer := c.observer
	c.callbackMu.RUnlock()
	if observer != nil {
		c.notify("disconnected", func() { observer.OnDisconnected(err) })
	}
}

// notify runs an observer callback, swallowing and logging any panic.
func (c *Client) notify(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.getLogger().Error("mqtt observer panic recovered",
				"client", c.name,
				"event", event,
				"panic", r,
			)
		}
	}()
	fn()
}

// subscribeBaseline (re)creates the kind subscriptions. Called on connect
// only; SUBACKs are observed off the callback goroutine.
func (c *Client) subscribeBaseline() {
	c.subMu.RLock()
	kinds := make(map[resource.Kind]byte, len(c.baseline))
	for k, qos := range c.baseline {
		kinds[k] = qos
	}
	c.subMu.RUnlock()

	for kind, qos := range kinds {
		token := c.client.Subscribe(kind.Topic(), qos, c.dispatchHandler())
		go c.awaitToken("subscribe", kind.Topic(), token)
	}
}

// restoreSubscriptions re-subscribes to all tracked topics after a connect.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		subs = append(subs, sub)
	}
	c.subMu.RUnlock()

	for _, sub := range subs {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go c.awaitToken("subscribe", sub.topic, token)
	}
}

// Disconnect gracefully closes the connection.
//
// It publishes the graceful offline status (different from the LWT crash
// status), disconnects with a quiesce period, and suppresses any further
// callbacks. Safe to call from a message handler.
//
// Returns:
//   - error: ErrNotConnected if the client is already Disconnected
func (c *Client) Disconnect() error {
	c.stateMu.Lock()
	if c.state == Disconnected {
		c.stateMu.Unlock()
		return ErrNotConnected
	}
	wasConnected := c.state == Connected
	c.state = Disconnected
	c.stateMu.Unlock()

	if wasConnected && c.status.Valid() && c.client.IsConnectionOpen() {
		token := c.client.Publish(c.status.Topic(), byte(c.cfg.QoS), true, buildOfflinePayload(c.id))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.getLogger().Info("mqtt disconnected", "client", c.name)
	return nil
}

// Close disconnects if needed. It never fails, which makes it suitable for
// deferred cleanup.
func (c *Client) Close() error {
	if err := c.Disconnect(); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// IsConnected reports whether the client is Connected.
func (c *Client) IsConnected() bool {
	return c.State() == Connected
}

// Name returns the client's log label.
func (c *Client) Name() string {
	return c.name
}

// ID returns the MQTT client identifier.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) setState(s ConnectionState) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// SetSink replaces the destination for dispatched messages.
func (c *Client) SetSink(sink MessageSink) {
	c.callbackMu.Lock()
	c.sink = sink
	c.callbackMu.Unlock()
}

// SetObserver replaces the connection observer.
func (c *Client) SetObserver(observer ConnectionObserver) {
	c.callbackMu.Lock()
	c.observer = observer
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for error and panic logging.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// dispatchHandler adapts dispatch to a paho handler.
func (c *Client) dispatchHandler() pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		c.dispatch(msg.Topic(), msg.Payload())
	}
}

// dispatch resolves topic to a kind and forwards the payload text to the
// sink. Unrecognised topics are logged and dropped.
func (c *Client) dispatch(topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.getLogger().Error("mqtt dispatch panic recovered",
				"client", c.name,
				"topic", topic,
				"panic", r,
			)
		}
	}()

	kind := resource.KindOf(topic)
	if !kind.Valid() {
		c.getLogger().Warn("mqtt message on unrecognised topic dropped", "client", c.name, "topic", topic)
		return
	}

	c.callbackMu.RLock()
	sink := c.sink
	c.callbackMu.RUnlock()
	if sink == nil {
		c.getLogger().Debug("mqtt message dropped, no sink", "client", c.name, "topic", topic)
		return
	}

	if err := sink.HandleMessage(kind, string(payload)); err != nil {
		c.getLogger().Warn("mqtt message handling failed",
			"client", c.name,
			"resource", kind.String(),
			"error", err,
		)
	}
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.getLogger().Error("mqtt handler panic recovered",
					"client", c.name,
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.getLogger().Warn("mqtt handler returned error",
				"client", c.name,
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}
