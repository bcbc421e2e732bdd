package hub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/persistence"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
	"github.com/nerrad567/gray-logic-gateway/internal/threshold"
)

const (
	// defaultStoreTimeout bounds one fire-and-forget persistence call.
	defaultStoreTimeout = 5 * time.Second

	// stopWaitTimeout bounds how long Stop waits for in-flight stores when
	// the caller's context has no deadline.
	stopWaitTimeout = 10 * time.Second
)

// DeviceConnector is the device-facing transport.
type DeviceConnector interface {
	Connect() error
	Disconnect() error
	Publish(kind resource.Kind, payload []byte, qos int) error
	Unsubscribe(kind resource.Kind) error
	State() mqtt.ConnectionState
}

// CloudConnector is the upstream relay.
type CloudConnector interface {
	Connect() error
	Disconnect() error
	SendTelemetry(kind resource.Kind, rec data.TelemetryRecord) error
	SendMetrics(kind resource.Kind, rec data.MetricsRecord) error
	State() mqtt.ConnectionState
}

// Sampler is a local producer that pushes records into the hub.
type Sampler interface {
	Start(ctx context.Context) error
	Stop()
}

// Server is a request-listening server.
type Server interface {
	Start(ctx context.Context) error
	Close() error
}

// EventPublisher receives every routed record for live observers.
type EventPublisher interface {
	Broadcast(channel string, payload any)
}

// Event channels passed to EventPublisher.Broadcast.
const (
	ChannelTelemetry = "telemetry"
	ChannelCommand   = "command"
	ChannelResponse  = "response"
	ChannelMetrics   = "metrics"
)

// Logger is the logging interface used by the hub.
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

// Options holds the collaborators of a Hub. Every collaborator is optional;
// a nil field disables that path.
type Options struct {
	// Devices is the device-facing connector commands are published to.
	Devices DeviceConnector

	// Subscriptions are the device kinds torn down on Stop before the
	// connector disconnects.
	Subscriptions []resource.Kind

	// Cloud receives forwarded telemetry and metrics.
	Cloud CloudConnector

	// ForwardUpstream enables forwarding to Cloud.
	ForwardUpstream bool

	// Monitor evaluates readings of its sensor type.
	Monitor *threshold.Monitor

	// Store persists telemetry; nil disables persistence.
	Store persistence.Store

	// Sampler pushes local system metrics.
	Sampler Sampler

	// Events receives every routed record.
	Events EventPublisher

	// Registerer receives the hub's collectors. A private registry is used
	// when nil.
	Registerer prometheus.Registerer

	Logger Logger

	// CommandQoS is the QoS for commands published to devices.
	CommandQoS int

	// StoreQoS is passed to the store with every record.
	StoreQoS int

	// StoreTimeout bounds one persistence call.
	StoreTimeout time.Duration
}

// Hub is the gateway's routing core.
//
// Thread Safety: all methods are safe for concurrent use.
type Hub struct {
	devices       DeviceConnector
	subscriptions []resource.Kind
	cloud         CloudConnector
	forward       bool
	monitor       *threshold.Monitor
	store         persistence.Store
	sampler       Sampler
	events        EventPublisher
	commandQoS    int
	storeQoS      int
	storeTimeout  time.Duration

	server   Server
	serverMu sync.RWMutex

	metrics *collectors
	stats   counters

	responses   map[int]data.CommandRecord
	responsesMu sync.RWMutex

	// In-flight persistence.
	storeWG  sync.WaitGroup
	storeMu  sync.RWMutex
	stopping bool

	ctx    context.Context
	cancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a Hub. Call Start to bring the subsystems up.
func New(opts Options) *Hub {
	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	storeTimeout := opts.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		devices:       opts.Devices,
		subscriptions: opts.Subscriptions,
		cloud:         opts.Cloud,
		forward:       opts.ForwardUpstream,
		monitor:       opts.Monitor,
		store:         opts.Store,
		sampler:       opts.Sampler,
		events:        opts.Events,
		commandQoS:    opts.CommandQoS,
		storeQoS:      opts.StoreQoS,
		storeTimeout:  storeTimeout,
		metrics:       newCollectors(reg),
		responses:     make(map[int]data.CommandRecord),
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}
}

// SetServer attaches the request-listening server, which is built after
// the hub because its handlers call into it.
func (h *Hub) SetServer(s Server) {
	h.serverMu.Lock()
	defer h.serverMu.Unlock()
	h.server = s
}

// SetLogger replaces the logger.
func (h *Hub) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	h.loggerMu.Lock()
	defer h.loggerMu.Unlock()
	h.logger = logger
}

func (h *Hub) getLogger() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	return h.logger
}

func (h *Hub) getServer() Server {
	h.serverMu.RLock()
	defer h.serverMu.RUnlock()
	return h.server
}

// Start brings the subsystems up in order: device connector, cloud relay,
// sampler, server. A failing step is logged and does not prevent the
// following steps.
//
// Returns:
//   - error: All step failures joined, or nil
func (h *Hub) Start(ctx context.Context) error {
	log := h.getLogger()
	var errs []error

	if h.devices != nil {
		if err := h.devices.Connect(); err != nil {
			log.Error("device connector failed to connect", "error", err)
			errs = append(errs, fmt.Errorf("device connector: %w", err))
		} else {
			log.Info("device connector connected")
		}
	}

	if h.cloud != nil {
		if err := h.cloud.Connect(); err != nil {
			log.Error("cloud relay failed to connect", "error", err)
			errs = append(errs, fmt.Errorf("cloud relay: %w", err))
		} else {
			log.Info("cloud relay connected")
		}
	}

	if h.sampler != nil {
		if err := h.sampler.Start(ctx); err != nil {
			log.Error("system performance sampler failed to start", "error", err)
			errs = append(errs, fmt.Errorf("sampler: %w", err))
		} else {
			log.Info("system performance sampler started")
		}
	}

	if srv := h.getServer(); srv != nil {
		if err := srv.Start(ctx); err != nil {
			log.Error("server failed to start", "error", err)
			errs = append(errs, fmt.Errorf("server: %w", err))
		} else {
			log.Info("server started")
		}
	}

	return errors.Join(errs...)
}

// Stop shuts the subsystems down in order: sampler, device connector,
// cloud relay, server. Every step is attempted; failures are logged. Stop
// then waits, bounded by ctx, for in-flight persistence calls.
func (h *Hub) Stop(ctx context.Context) {
	log := h.getLogger()

	if h.sampler != nil {
		h.sampler.Stop()
		log.Info("system performance sampler stopped")
	}

	if h.devices != nil {
		for _, kind := range h.subscriptions {
			if err := h.devices.Unsubscribe(kind); err != nil {
				log.Warn("unsubscribe failed", "resource", kind, "error", err)
			}
		}
		if err := h.devices.Disconnect(); err != nil {
			log.Warn("device connector disconnect failed", "error", err)
		} else {
			log.Info("device connector disconnected")
		}
	}

	if h.cloud != nil {
		if err := h.cloud.Disconnect(); err != nil {
			log.Warn("cloud relay disconnect failed", "error", err)
		} else {
			log.Info("cloud relay disconnected")
		}
	}

	if srv := h.getServer(); srv != nil {
		if err := srv.Close(); err != nil {
			log.Warn("server close failed", "error", err)
		} else {
			log.Info("server stopped")
		}
	}

	h.drainStores(ctx)
}

// drainStores blocks new persistence calls and waits for in-flight ones.
func (h *Hub) drainStores(ctx context.Context) {
	h.storeMu.Lock()
	h.stopping = true
	h.storeMu.Unlock()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, stopWaitTimeout)
		defer cancel()
	}

	done := make(chan struct{})
	go func() {
		h.storeWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		h.getLogger().Warn("abandoning in-flight persistence on shutdown", "error", ctx.Err())
	}
	h.cancel()
}

// OnConnected implements mqtt.ConnectionObserver for the device connector.
func (h *Hub) OnConnected() {
	h.getLogger().Info("device connector online")
}

// OnDisconnected implements mqtt.ConnectionObserver for the device connector.
func (h *Hub) OnDisconnected(err error) {
	h.getLogger().Warn("device connector offline", "error", err)
}

// LatestResponse returns the most recent actuator response for an actuator
// type.
func (h *Hub) LatestResponse(typeID int) (data.CommandRecord, bool) {
	h.responsesMu.RLock()
	defer h.responsesMu.RUnlock()
	rec, ok := h.responses[typeID]
	return rec, ok
}

// LatestResponses returns the most recent response of every actuator type,
// ordered by type.
func (h *Hub) LatestResponses() []data.CommandRecord {
	h.responsesMu.RLock()
	out := make([]data.CommandRecord, 0, len(h.responses))
	for _, rec := range h.responses {
		out = append(out, rec)
	}
	h.responsesMu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out
}

// ThresholdState returns the monitor's state, or false when threshold
// handling is disabled.
func (h *Hub) ThresholdState() (threshold.State, bool) {
	if h.monitor == nil {
		return threshold.State{}, false
	}
	return h.monitor.State(), true
}

// Connections reports the state of each configured connector by name.
func (h *Hub) Connections() map[string]string {
	out := make(map[string]string, 2)
	if h.devices != nil {
		out["devices"] = h.devices.State().String()
	}
	if h.cloud != nil {
		out["cloud"] = h.cloud.State().String()
	}
	return out
}

// Stats returns a snapshot of routing counters.
func (h *Hub) Stats() Stats {
	return h.stats.snapshot()
}
