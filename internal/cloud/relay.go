// Package cloud relays gateway records to an upstream IoT service that
// addresses data by topic rather than by payload structure.
//
// Each device variable lives on its own topic, built by TopicName, and
// carries only a {name, timeStamp, value} payload. The Relay registers a
// dedicated listener on its command topic before connecting, and the
// transport restores it on every reconnect. The listener turns remote LED
// commands into actuator commands for the constrained device. Each connect
// also provisions the command topic with a placeholder publish.
package cloud

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// LED actuator addressed by remote commands.
const (
	LedActuatorName = "LedActuator"
	LedActuatorType = 8000
)

// State messages attached to forwarded LED commands.
const (
	ledStateOn  = "LED switching ON"
	ledStateOff = "LED switching OFF"
)

// Relay errors.
var (
	// ErrSendFailed is returned when one or more upstream publishes fail.
	ErrSendFailed = errors.New("cloud: send failed")
)

// Transport is the connector a Relay publishes through.
// *mqtt.Client satisfies it.
type Transport interface {
	Connect() error
	Disconnect() error
	PublishTopic(topic string, payload []byte, qos int) error
	SubscribeTopic(topic string, qos int, handler mqtt.MessageHandler) error
	SetObserver(observer mqtt.ConnectionObserver)
	State() mqtt.ConnectionState
}

// Logger interface for optional logging support.
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

// Config describes the upstream naming scheme.
type Config struct {
	// BaseTopic prefixes every topic, e.g. "/v1.6/devices/".
	BaseTopic string

	// ConstrainedDeviceID is stamped on forwarded LED commands.
	ConstrainedDeviceID string

	// QoS for upstream publishes and subscriptions.
	QoS int
}

// Relay adapts gateway records to the upstream topic scheme.
//
// Thread Safety: all methods are safe for concurrent use.
type Relay struct {
	transport Transport
	cfg       Config
	now       func() time.Time

	sink   mqtt.MessageSink
	sinkMu sync.RWMutex

	logger Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay's logger.
func WithLogger(logger Logger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock replaces the clock used for placeholder timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

// New creates a Relay and registers it as the transport's connection
// observer.
func New(transport Transport, cfg Config, opts ...Option) *Relay {
	r := &Relay{
		transport: transport,
		cfg:       cfg,
		now:       time.Now,
		logger:    noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	transport.SetObserver(r)
	return r
}

// SetSink sets the destination for remote commands.
func (r *Relay) SetSink(sink mqtt.MessageSink) {
	r.sinkMu.Lock()
	r.sink = sink
	r.sinkMu.Unlock()
}

// Connect registers the LED listener and connects the underlying
// transport. Provisioning follows in OnConnected.
func (r *Relay) Connect() error {
	r.logger.Info("connecting to cloud service", "base_topic", r.cfg.BaseTopic)
	topic := r.CommandTopic()
	if err := r.transport.SubscribeTopic(topic, r.cfg.QoS, r.handleLedCommand); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
		r.logger.Error("cloud command subscription failed", "topic", topic, "error", err)
	}
	return r.transport.Connect()
}

// Disconnect disconnects the underlying transport.
func (r *Relay) Disconnect() error {
	return r.transport.Disconnect()
}

// State returns the transport's connection state.
func (r *Relay) State() mqtt.ConnectionState {
	return r.transport.State()
}

// CommandTopic is the provisioned topic carrying remote LED commands.
func (r *Relay) CommandTopic() string {
	return TopicName(r.cfg.BaseTopic, string(resource.ScopeConstrained), LedActuatorName, "")
}

// TelemetryTopic is the upstream topic for one item of a resource.
func (r *Relay) TelemetryTopic(kind resource.Kind, item string) string {
	return TopicName(r.cfg.BaseTopic, string(kind.Scope()), kind.Name(), item)
}

// SendTelemetry publishes rec in its upstream form.
func (r *Relay) SendTelemetry(kind resource.Kind, rec data.TelemetryRecord) error {
	if !kind.Valid() {
		return mqtt.ErrInvalidResource
	}

	payload, err := data.Encode(rec.Upstream(r.now()))
	if err != nil {
		return err
	}

	topic := r.TelemetryTopic(kind, rec.Name)
	if err := r.transport.PublishTopic(topic, payload, r.cfg.QoS); err != nil {
		r.logger.Warn("cloud publish failed", "topic", topic, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrSendFailed, topic, err)
	}
	r.logger.Debug("cloud publish", "topic", topic)
	return nil
}

// SendMetrics fans a metrics snapshot out into cpu and memory telemetry.
// Both sends are attempted; the call fails if either does.
func (r *Relay) SendMetrics(kind resource.Kind, rec data.MetricsRecord) error {
	cpu, mem := rec.Split()

	cpuErr := r.SendTelemetry(kind, cpu)
	memErr := r.SendTelemetry(kind, mem)

	return errors.Join(cpuErr, memErr)
}

// OnConnected provisions the command topic. It runs on the transport's
// callback goroutine and never waits for a broker round trip. It
// implements mqtt.ConnectionObserver.
func (r *Relay) OnConnected() {
	topic := r.CommandTopic()

	placeholder := data.UpstreamPayload{
		Name:      LedActuatorName,
		TimeStamp: r.now().UnixMilli(),
		Value:     data.ProvisioningValue,
	}
	payload, err := data.Encode(placeholder)
	if err == nil {
		err = r.transport.PublishTopic(topic, payload, r.cfg.QoS)
	}
	if err != nil {
		r.logger.Warn("cloud topic provisioning failed", "topic", topic, "error", err)
		return
	}
	r.logger.Info("cloud service provisioned", "command_topic", topic)
}

// OnDisconnected implements mqtt.ConnectionObserver.
func (r *Relay) OnDisconnected(err error) {
	r.logger.Warn("cloud service connection lost", "error", err)
}

// handleLedCommand decodes a remote LED command and forwards it to the
// sink as a constrained-device actuator command. Values other than on and
// off, including the provisioning placeholder, are dropped.
func (r *Relay) handleLedCommand(topic string, payload []byte) error {
	value, err := commandValue(payload)
	if err != nil {
		r.logger.Warn("cloud command dropped, undecodable", "topic", topic, "error", err)
		return nil
	}

	cmd := data.CommandRecord{
		Name:       LedActuatorName,
		TypeID:     LedActuatorType,
		LocationID: r.cfg.ConstrainedDeviceID,
		Value:      value,
		TimeStamp:  data.Timestamp(r.now()),
	}

	switch cmd.Command = data.ParseCommand(int(value)); cmd.Command {
	case data.CommandOn:
		cmd.StateData = ledStateOn
	case data.CommandOff:
		cmd.StateData = ledStateOff
	default:
		r.logger.Debug("cloud command ignored", "topic", topic, "value", value)
		return nil
	}

	r.sinkMu.RLock()
	sink := r.sink
	r.sinkMu.RUnlock()
	if sink == nil {
		r.logger.Warn("cloud command dropped, no sink", "command", cmd.Command.String())
		return nil
	}

	b, err := data.Encode(cmd)
	if err != nil {
		return err
	}
	r.logger.Info("cloud LED command received", "command", cmd.Command.String())
	return sink.HandleMessage(resource.ConstrainedActuatorCmd, string(b))
}

// commandValue accepts either a JSON object with a value field or a bare
// number.
func commandValue(payload []byte) (float64, error) {
	s := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	up, err := data.DecodeUpstream([]byte(s))
	if err != nil {
		return 0, err
	}
	return up.Value, nil
}
