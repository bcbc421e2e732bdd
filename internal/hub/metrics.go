package hub

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Message outcomes used as the "outcome" label.
const (
	outcomeRouted  = "routed"
	outcomeDecode  = "decode_error"
	outcomeFailed  = "failed"
	outcomeIgnored = "ignored"
)

// collectors holds the hub's Prometheus instruments.
type collectors struct {
	messages  *prometheus.CounterVec
	commands  *prometheus.CounterVec
	forwarded prometheus.Counter
	persisted *prometheus.CounterVec
}

func newCollectors(reg prometheus.Registerer) *collectors {
	c := &collectors{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "hub",
			Name:      "messages_total",
			Help:      "Inbound messages by resource and outcome.",
		}, []string{"resource", "outcome"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "hub",
			Name:      "commands_total",
			Help:      "Actuator commands published to devices, by source.",
		}, []string{"source"}),
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "hub",
			Name:      "cloud_forwards_total",
			Help:      "Records forwarded to the cloud relay.",
		}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "graylogic",
			Subsystem: "hub",
			Name:      "persist_total",
			Help:      "Persistence writes by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(c.messages, c.commands, c.forwarded, c.persisted)
	return c
}

// Stats is a point-in-time summary of routing activity, exposed on the API.
type Stats struct {
	Received        uint64 `json:"received"`
	DecodeErrors    uint64 `json:"decode_errors"`
	CommandsSent    uint64 `json:"commands_sent"`
	Forwarded       uint64 `json:"forwarded"`
	Persisted       uint64 `json:"persisted"`
	PersistFailures uint64 `json:"persist_failures"`
}

type counters struct {
	received        atomic.Uint64
	decodeErrors    atomic.Uint64
	commandsSent    atomic.Uint64
	forwarded       atomic.Uint64
	persisted       atomic.Uint64
	persistFailures atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received:        c.received.Load(),
		DecodeErrors:    c.decodeErrors.Load(),
		CommandsSent:    c.commandsSent.Load(),
		Forwarded:       c.forwarded.Load(),
		Persisted:       c.persisted.Load(),
		PersistFailures: c.persistFailures.Load(),
	}
}
