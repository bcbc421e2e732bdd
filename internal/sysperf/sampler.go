// Package sysperf samples host utilisation and pushes it into the gateway's
// inbound message path as a system performance record.
package sysperf

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/nerrad567/gray-logic-gateway/internal/data"
	"github.com/nerrad567/gray-logic-gateway/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-gateway/internal/resource"
)

// RecordName names every emitted MetricsRecord.
const RecordName = "SystemPerfMsg"

const defaultInterval = 30 * time.Second

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("sysperf: already started")

// Probe reads utilisation percentages from the host.
type Probe interface {
	CPU(ctx context.Context) (float64, error)
	Memory(ctx context.Context) (float64, error)
	Disk(ctx context.Context, path string) (float64, error)
}

// HostProbe reads the local host through gopsutil.
type HostProbe struct{}

// CPU returns total CPU utilisation since the previous call.
func (HostProbe) CPU(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, errors.New("sysperf: no cpu sample")
	}
	return pct[0], nil
}

// Memory returns used virtual memory in percent.
func (HostProbe) Memory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// Disk returns used space on the filesystem holding path, in percent.
func (HostProbe) Disk(ctx context.Context, path string) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return usage.UsedPercent, nil
}

// Logger is the logging interface used by the sampler.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures a Sampler.
type Config struct {
	LocationID string
	Interval   time.Duration
	DiskPath   string
}

// Sampler periodically samples the host and delivers a GatewaySystemPerf
// message to its sink.
//
// Thread Safety: Start and Stop may be called from any goroutine; Stop is
// idempotent and safe before Start.
type Sampler struct {
	cfg   Config
	probe Probe
	now   func() time.Time

	sink   mqtt.MessageSink
	sinkMu sync.RWMutex

	logger Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithProbe replaces the host probe.
func WithProbe(p Probe) Option {
	return func(s *Sampler) { s.probe = p }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(s *Sampler) { s.logger = l }
}

// WithClock replaces the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(s *Sampler) { s.now = now }
}

// New creates a Sampler. Attach a sink with SetSink before Start.
func New(cfg Config, opts ...Option) *Sampler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.DiskPath == "" {
		cfg.DiskPath = "/"
	}
	s := &Sampler{
		cfg:    cfg,
		probe:  HostProbe{},
		now:    time.Now,
		logger: noopLogger{},
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSink sets the receiver of sampled records.
func (s *Sampler) SetSink(sink mqtt.MessageSink) {
	s.sinkMu.Lock()
	defer s.sinkMu.Unlock()
	s.sink = sink
}

// Start launches the sampling loop. The first sample is taken one
// interval after Start.
func (s *Sampler) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	s.startOnce.Do(func() {
		err = nil
		s.wg.Add(1)
		go s.loop(ctx)
	})
	return err
}

// Stop ends the sampling loop and waits for it to exit.
func (s *Sampler) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}

func (s *Sampler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.SampleOnce(ctx); err != nil {
				s.logger.Warn("system performance sample failed", "error", err)
			}
		}
	}
}

// SampleOnce takes one sample and delivers it. Probe failures are reported
// in the record's error flag rather than suppressing it.
func (s *Sampler) SampleOnce(ctx context.Context) error {
	rec := s.Sample(ctx)

	payload, err := data.Encode(rec)
	if err != nil {
		return err
	}

	s.sinkMu.RLock()
	sink := s.sink
	s.sinkMu.RUnlock()
	if sink == nil {
		s.logger.Debug("no sink for system performance sample")
		return nil
	}
	if err := sink.HandleMessage(resource.GatewaySystemPerf, string(payload)); err != nil {
		return fmt.Errorf("sysperf: deliver: %w", err)
	}
	return nil
}

// Sample reads the probe into a MetricsRecord.
func (s *Sampler) Sample(ctx context.Context) data.MetricsRecord {
	rec := data.MetricsRecord{
		Name:       RecordName,
		LocationID: s.cfg.LocationID,
		TimeStamp:  data.Timestamp(s.now()),
	}

	var errs []error
	var err error
	if rec.CPUUtil, err = s.probe.CPU(ctx); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	}
	if rec.MemUtil, err = s.probe.Memory(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	}
	if rec.DiskUtil, err = s.probe.Disk(ctx, s.cfg.DiskPath); err != nil {
		errs = append(errs, fmt.Errorf("disk: %w", err))
	}

	if len(errs) > 0 {
		rec.HasError = true
		rec.StatusCode = 1
		s.logger.Warn("system performance probe failed", "error", errors.Join(errs...))
	}
	return rec
}
