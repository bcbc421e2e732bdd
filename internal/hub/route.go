package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/persistence"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// Command sources used as the "source" label.
const (
	sourceThreshold = "threshold"
	sourceRemote    = "remote"
)

// HandleMessage implements mqtt.MessageSink. It decodes payload according
// to kind and dispatches the record. A payload that does not decode is
// dropped and reported with ErrDecode; it never affects later messages.
func (h *Hub) HandleMessage(kind resource.Kind, payload string) error {
	h.stats.received.Add(1)

	var err error
	switch kind {
	case resource.ConstrainedSensorMsg:
		var rec data.TelemetryRecord
		if rec, err = data.DecodeTelemetry([]byte(payload)); err == nil {
			return h.outcome(kind, h.HandleTelemetry(kind, rec))
		}

	case resource.ConstrainedActuatorCmd:
		var rec data.CommandRecord
		if rec, err = data.DecodeCommand([]byte(payload)); err == nil {
			return h.outcome(kind, h.HandleCommand(rec))
		}

	case resource.ConstrainedActuatorResponse:
		var rec data.CommandRecord
		if rec, err = data.DecodeCommand([]byte(payload)); err == nil {
			return h.outcome(kind, h.HandleResponse(kind, rec))
		}

	case resource.ConstrainedSystemPerf, resource.GatewaySystemPerf:
		var rec data.MetricsRecord
		if rec, err = data.DecodeMetrics([]byte(payload)); err == nil {
			return h.outcome(kind, h.HandleMetrics(kind, rec))
		}

	default:
		h.getLogger().Debug("message received", "resource", kind, "bytes", len(payload))
		h.metrics.messages.WithLabelValues(kind.String(), outcomeIgnored).Inc()
		return nil
	}

	h.stats.decodeErrors.Add(1)
	h.metrics.messages.WithLabelValues(kind.String(), outcomeDecode).Inc()
	h.getLogger().Warn("dropping undecodable message", "resource", kind, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrDecode, kind, err)
}

func (h *Hub) outcome(kind resource.Kind, err error) error {
	label := outcomeRouted
	if err != nil {
		label = outcomeFailed
	}
	h.metrics.messages.WithLabelValues(kind.String(), label).Inc()
	return err
}

// HandleTelemetry persists a reading, feeds it to the threshold monitor and
// forwards it upstream. A command emitted by the monitor is published to
// the device connector before the forward.
//
// Returns:
//   - error: Command and forward failures joined; persistence is not awaited
func (h *Hub) HandleTelemetry(kind resource.Kind, rec data.TelemetryRecord) error {
	h.broadcast(ChannelTelemetry, rec)
	h.persist(kind, rec)

	var errs []error

	if h.monitor != nil && h.monitor.Matches(rec) {
		if cmd, ok := h.monitor.Evaluate(rec); ok {
			h.getLogger().Info("threshold crossed, sending corrective command",
				"sensor", rec.Name,
				"value", rec.Value,
				"command", cmd.Command,
				"target", cmd.Value,
			)
			if err := h.sendCommand(cmd, sourceThreshold); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := h.forwardTelemetry(kind, rec); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// HandleCommand publishes an actuator command to the device connector.
func (h *Hub) HandleCommand(cmd data.CommandRecord) error {
	return h.sendCommand(cmd, sourceRemote)
}

// HandleResponse records the newest response per actuator type and
// persists it. It triggers nothing else.
func (h *Hub) HandleResponse(kind resource.Kind, rec data.CommandRecord) error {
	h.responsesMu.Lock()
	h.responses[rec.TypeID] = rec
	h.responsesMu.Unlock()

	h.getLogger().Info("actuator response",
		"actuator", rec.Name,
		"type", rec.TypeID,
		"command", rec.Command,
		"value", rec.Value,
		"state", rec.StateData,
	)
	h.broadcast(ChannelResponse, rec)
	h.persistResponse(kind, rec)
	return nil
}

// HandleMetrics forwards a metrics snapshot upstream. It never reaches the
// threshold monitor.
func (h *Hub) HandleMetrics(kind resource.Kind, rec data.MetricsRecord) error {
	h.broadcast(ChannelMetrics, rec)

	if !h.forward || h.cloud == nil {
		return nil
	}
	if err := h.cloud.SendMetrics(kind, rec); err != nil {
		h.getLogger().Warn("metrics forward failed", "resource", kind, "error", err)
		return fmt.Errorf("%w: %w", ErrForwardFailed, err)
	}
	h.stats.forwarded.Add(1)
	h.metrics.forwarded.Inc()
	return nil
}

func (h *Hub) sendCommand(cmd data.CommandRecord, source string) error {
	if h.devices == nil {
		h.getLogger().Warn("dropping command, device connector disabled", "actuator", cmd.Name)
		return ErrNoDeviceConnector
	}

	payload, err := data.Encode(cmd)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	if err := h.devices.Publish(resource.ConstrainedActuatorCmd, payload, h.commandQoS); err != nil {
		h.getLogger().Error("command publish failed", "actuator", cmd.Name, "error", err)
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}

	h.stats.commandsSent.Add(1)
	h.metrics.commands.WithLabelValues(source).Inc()
	h.broadcast(ChannelCommand, cmd)
	return nil
}

func (h *Hub) forwardTelemetry(kind resource.Kind, rec data.TelemetryRecord) error {
	if !h.forward || h.cloud == nil {
		return nil
	}
	if err := h.cloud.SendTelemetry(kind, rec); err != nil {
		h.getLogger().Warn("telemetry forward failed", "sensor", rec.Name, "error", err)
		return fmt.Errorf("%w: %w", ErrForwardFailed, err)
	}
	h.stats.forwarded.Add(1)
	h.metrics.forwarded.Inc()
	return nil
}

// persist writes rec on a tracked goroutine.
func (h *Hub) persist(kind resource.Kind, rec data.TelemetryRecord) {
	if h.store == nil {
		return
	}
	h.goStore(func(ctx context.Context) error {
		return h.store.Store(ctx, kind, h.storeQoS, rec)
	})
}

func (h *Hub) persistResponse(kind resource.Kind, rec data.CommandRecord) {
	rs, ok := h.store.(persistence.ResponseStore)
	if !ok {
		return
	}
	h.goStore(func(ctx context.Context) error {
		return rs.StoreResponse(ctx, kind, rec)
	})
}

func (h *Hub) goStore(fn func(ctx context.Context) error) {
	h.storeMu.RLock()
	defer h.storeMu.RUnlock()
	if h.stopping {
		return
	}

	h.storeWG.Add(1)
	go func() {
		defer h.storeWG.Done()

		ctx, cancel := context.WithTimeout(h.ctx, h.storeTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			h.stats.persistFailures.Add(1)
			h.metrics.persisted.WithLabelValues(outcomeFailed).Inc()
			h.getLogger().Warn("persistence failed", "error", err)
			return
		}
		h.stats.persisted.Add(1)
		h.metrics.persisted.WithLabelValues(outcomeRouted).Inc()
	}()
}

func (h *Hub) broadcast(channel string, payload any) {
	if h.events != nil {
		h.events.Broadcast(channel, payload)
	}
}
