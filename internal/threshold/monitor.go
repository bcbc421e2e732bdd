// Package threshold decides when an out-of-band sensor reading warrants a
// corrective actuator command.
//
// A Monitor is a two-state machine. In Nominal no crossing is recorded. The
// first reading outside [Low, High] records the crossing and moves to
// OutOfBand without emitting anything. Further out-of-band readings emit a
// command only once the cooldown has elapsed since the recorded crossing,
// and each emission restarts the cooldown. A reading back inside the band
// clears the state.
//
// The Monitor performs no I/O; the caller routes emitted commands.
package threshold

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
)

// Cooldown bounds accepted by NewMonitor.
const (
	MinCooldown = 10 * time.Second
	MaxCooldown = 2 * time.Hour
)

// Configuration errors.
var (
	ErrInvalidCooldown = errors.New("threshold: cooldown out of range")
	ErrInvalidBand     = errors.New("threshold: low bound must be below high bound")
)

// State messages attached to emitted commands.
const (
	stateTooLow  = "Humidity too low - turning humidifier ON"
	stateTooHigh = "Humidity too high - turning humidifier OFF"
)

// Config is the correction policy for one monitored sensor type.
type Config struct {
	// SensorType selects which telemetry records are evaluated.
	SensorType int

	// ActuatorName and ActuatorType address the emitted command.
	ActuatorName string
	ActuatorType int

	Low     float64
	High    float64
	Nominal float64

	Cooldown time.Duration
}

// Validate reports whether the policy is usable.
func (c Config) Validate() error {
	if c.Cooldown < MinCooldown || c.Cooldown > MaxCooldown {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidCooldown, c.Cooldown, MinCooldown, MaxCooldown)
	}
	if c.Low >= c.High {
		return fmt.Errorf("%w: low=%v high=%v", ErrInvalidBand, c.Low, c.High)
	}
	return nil
}

// State is a snapshot of the monitor's memory.
type State struct {
	// OutOfBand is true while a crossing is recorded.
	OutOfBand bool `json:"out_of_band"`

	// LastReading is the reading that recorded the crossing, or nil.
	LastReading *data.TelemetryRecord `json:"last_reading,omitempty"`

	// LastCrossing is when the crossing was recorded; zero when Nominal.
	LastCrossing time.Time `json:"last_crossing,omitzero"`

	// LastCommand is the most recently emitted command code.
	LastCommand data.Command `json:"last_command"`

	// Emitted counts commands emitted since construction.
	Emitted uint64 `json:"emitted"`
}

// Monitor evaluates readings against a Config.
//
// Thread Safety: Evaluate calls are serialised; concurrent callers are
// processed one at a time.
type Monitor struct {
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	state State
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the wall clock used for timestamp fallback and for
// stamping emitted commands.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// NewMonitor creates a Monitor in the Nominal state.
//
// Returns:
//   - *Monitor: Ready for Evaluate
//   - error: ErrInvalidCooldown or ErrInvalidBand if cfg is unusable
func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:   cfg,
		now:   time.Now,
		state: State{LastCommand: data.CommandInvalid},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Config returns the policy the monitor was built with.
func (m *Monitor) Config() Config {
	return m.cfg
}

// Matches reports whether rec is of the monitored sensor type.
func (m *Monitor) Matches(rec data.TelemetryRecord) bool {
	return rec.TypeID == m.cfg.SensorType
}

// Evaluate feeds one reading into the state machine.
//
// A reading whose timestamp cannot be parsed is evaluated at the current
// clock time. Readings of another sensor type are ignored.
//
// Returns:
//   - data.CommandRecord: The corrective command, valid only when ok is true
//   - bool: true if a command should be sent
func (m *Monitor) Evaluate(rec data.TelemetryRecord) (data.CommandRecord, bool) {
	if !m.Matches(rec) {
		return data.CommandRecord{}, false
	}

	at := data.TimeOr(rec.TimeStamp, m.now())

	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.Value >= m.cfg.Low && rec.Value <= m.cfg.High {
		m.state.OutOfBand = false
		m.state.LastReading = nil
		m.state.LastCrossing = time.Time{}
		return data.CommandRecord{}, false
	}

	if !m.state.OutOfBand {
		m.record(rec, at)
		return data.CommandRecord{}, false
	}

	if at.Sub(m.state.LastCrossing) < m.cfg.Cooldown {
		return data.CommandRecord{}, false
	}

	cmd := m.command(rec)
	m.record(rec, at)
	m.state.LastCommand = cmd.Command
	m.state.Emitted++
	return cmd, true
}

// record stores the crossing. Caller holds mu.
func (m *Monitor) record(rec data.TelemetryRecord, at time.Time) {
	r := rec
	m.state.OutOfBand = true
	m.state.LastReading = &r
	m.state.LastCrossing = at
}

func (m *Monitor) command(rec data.TelemetryRecord) data.CommandRecord {
	cmd := data.CommandRecord{
		Name:       m.cfg.ActuatorName,
		TypeID:     m.cfg.ActuatorType,
		LocationID: rec.LocationID,
		Value:      m.cfg.Nominal,
		TimeStamp:  data.Timestamp(m.now()),
	}
	if rec.Value < m.cfg.Low {
		cmd.Command = data.CommandOn
		cmd.StateData = stateTooLow
	} else {
		cmd.Command = data.CommandOff
		cmd.StateData = stateTooHigh
	}
	return cmd
}

// State returns a copy of the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	if s.LastReading != nil {
		r := *s.LastReading
		s.LastReading = &r
	}
	return s
}
