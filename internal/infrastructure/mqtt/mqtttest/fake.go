// Package mqtttest provides an in-memory paho client for tests.
//
// FakeClient records publishes, subscriptions and disconnects, and lets a
// test drive the callbacks paho would normally raise: connect, connection
// lost and message arrival.
package mqtttest

import (
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrRefused is a ready-made connect error for tests.
var ErrRefused = errors.New("mqtttest: connection refused")

// Published is one recorded publish.
type Published struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// FakeClient implements pahomqtt.Client without a network.
//
// Connect invokes the options' OnConnect handler synchronously before its
// token completes, so tests observe the connected callback deterministically.
type FakeClient struct {
	mu sync.Mutex

	opts *pahomqtt.ClientOptions

	connected bool

	// ConnectErr, when set, fails the next Connect calls.
	ConnectErr error
	// SubscribeErr, when set, fails Subscribe calls.
	SubscribeErr error
	// PublishErr, when set, fails publish tokens asynchronously.
	PublishErr error
	// ConnectGate, when set, holds Connect until it is closed.
	ConnectGate chan struct{}

	ConnectCalls    int
	DisconnectCalls int

	published    []Published
	handlers     map[string]pahomqtt.MessageHandler
	subscribes   []string
	unsubscribes []string
}

// NewFakeClient returns a factory-compatible constructor and the fake it
// will hand out, so a test can keep a reference to the fake.
func NewFakeClient() (*FakeClient, func(*pahomqtt.ClientOptions) pahomqtt.Client) {
	f := &FakeClient{handlers: make(map[string]pahomqtt.MessageHandler)}
	return f, func(opts *pahomqtt.ClientOptions) pahomqtt.Client {
		f.mu.Lock()
		f.opts = opts
		f.mu.Unlock()
		return f
	}
}

// Options returns the options the client was built with.
func (f *FakeClient) Options() *pahomqtt.ClientOptions {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts
}

// IsConnected implements pahomqtt.Client.
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// IsConnectionOpen implements pahomqtt.Client.
func (f *FakeClient) IsConnectionOpen() bool {
	return f.IsConnected()
}

// Connect implements pahomqtt.Client.
func (f *FakeClient) Connect() pahomqtt.Token {
	f.mu.Lock()
	gate := f.ConnectGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	f.ConnectCalls++
	if f.ConnectErr != nil {
		err := f.ConnectErr
		f.mu.Unlock()
		return newToken(err)
	}
	f.connected = true
	f.handlers = make(map[string]pahomqtt.MessageHandler)
	onConnect := f.opts.OnConnect
	f.mu.Unlock()

	if onConnect != nil {
		onConnect(f)
	}
	return newToken(nil)
}

// Disconnect implements pahomqtt.Client.
func (f *FakeClient) Disconnect(_ uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DisconnectCalls++
	f.connected = false
}

// Publish implements pahomqtt.Client.
func (f *FakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, Published{Topic: topic, QoS: qos, Retained: retained, Payload: b})
	return newToken(f.PublishErr)
}

// Subscribe implements pahomqtt.Client.
func (f *FakeClient) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubscribeErr != nil {
		return newToken(f.SubscribeErr)
	}
	f.subscribes = append(f.subscribes, topic)
	f.handlers[topic] = callback
	return newToken(nil)
}

// SubscribeMultiple implements pahomqtt.Client.
func (f *FakeClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		if t := f.Subscribe(topic, qos, callback); t.Error() != nil {
			return t
		}
	}
	return newToken(nil)
}

// Unsubscribe implements pahomqtt.Client.
func (f *FakeClient) Unsubscribe(topics ...string) pahomqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		delete(f.handlers, topic)
		f.unsubscribes = append(f.unsubscribes, topic)
	}
	return newToken(nil)
}

// AddRoute implements pahomqtt.Client.
func (f *FakeClient) AddRoute(topic string, callback pahomqtt.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = callback
}

// OptionsReader implements pahomqtt.Client.
func (f *FakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.NewOptionsReader(f.Options())
}

// =============================================================================
// Test Drivers
// =============================================================================

// LoseConnection simulates a dropped connection.
func (f *FakeClient) LoseConnection(err error) {
	f.mu.Lock()
	f.connected = false
	onLost := f.opts.OnConnectionLost
	f.mu.Unlock()

	if onLost != nil {
		onLost(f, err)
	}
}

// Reconnect simulates paho's automatic reconnect completing.
func (f *FakeClient) Reconnect() {
	f.mu.Lock()
	f.connected = true
	f.handlers = make(map[string]pahomqtt.MessageHandler)
	onConnect := f.opts.OnConnect
	f.mu.Unlock()

	if onConnect != nil {
		onConnect(f)
	}
}

// Deliver routes a message as the broker would: to the handler subscribed
// on the exact topic, or to the default publish handler.
func (f *FakeClient) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	if !ok {
		handler = f.opts.DefaultPublishHandler
	}
	f.mu.Unlock()

	if handler != nil {
		handler(f, &Message{TopicName: topic, Body: payload})
	}
}

// Published returns a copy of every recorded publish.
func (f *FakeClient) Published() []Published {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Published, len(f.published))
	copy(out, f.published)
	return out
}

// PublishedTo returns the recorded publishes for one topic.
func (f *FakeClient) PublishedTo(topic string) []Published {
	var out []Published
	for _, p := range f.Published() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// Subscribed reports whether a handler is currently registered on topic.
func (f *FakeClient) Subscribed(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[topic]
	return ok
}

// SubscribeCalls returns every topic passed to Subscribe, in order.
func (f *FakeClient) SubscribeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.subscribes))
	copy(out, f.subscribes)
	return out
}

// UnsubscribeCalls returns every topic passed to Unsubscribe, in order.
func (f *FakeClient) UnsubscribeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.unsubscribes))
	copy(out, f.unsubscribes)
	return out
}

// =============================================================================
// Token and Message
// =============================================================================

type token struct {
	err  error
	done chan struct{}
}

func newToken(err error) *token {
	done := make(chan struct{})
	close(done)
	return &token{err: err, done: done}
}

func (t *token) Wait() bool                       { return true }
func (t *token) WaitTimeout(_ time.Duration) bool { return true }
func (t *token) Done() <-chan struct{}            { return t.done }
func (t *token) Error() error                     { return t.err }

// Message implements pahomqtt.Message.
type Message struct {
	TopicName string
	Body      []byte
	QoSLevel  byte
}

func (m *Message) Duplicate() bool   { return false }
func (m *Message) Qos() byte         { return m.QoSLevel }
func (m *Message) Retained() bool    { return false }
func (m *Message) Topic() string     { return m.TopicName }
func (m *Message) MessageID() uint16 { return 0 }
func (m *Message) Payload() []byte   { return m.Body }
func (m *Message) Ack()              {}
