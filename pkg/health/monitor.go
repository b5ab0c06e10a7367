// Package health watches the workflow engine's availability on a cron
// schedule and remembers the last observation for the API's health route.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmarceau/agentrunner/pkg/logging"
	"github.com/dmarceau/agentrunner/pkg/metrics"
)

// DefaultSchedule probes the engine every 30 seconds
const DefaultSchedule = "@every 30s"

// defaultProbeTimeout bounds one availability probe
const defaultProbeTimeout = 10 * time.Second

// Prober answers whether the engine is reachable
type Prober interface {
	CheckAvailability(ctx context.Context) bool
}

// Status is the monitor's last observation
type Status struct {
	// Available is the last probe's answer
	Available bool `json:"available"`

	// CheckedAt is when the last probe ran; zero before the first probe
	CheckedAt time.Time `json:"checkedAt"`

	// ConsecutiveFailures counts probes since the engine last answered
	ConsecutiveFailures int `json:"consecutiveFailures"`
}

// Options tunes a monitor
type Options struct {
	// Schedule is a cron expression or descriptor; defaults to every 30s
	Schedule string

	// ProbeTimeout bounds one probe
	ProbeTimeout time.Duration

	// Logger records availability changes
	Logger logging.Logger

	// Metrics receives engine availability observations
	Metrics metrics.Recorder
}

// Monitor probes the engine on a schedule and records the outcome
type Monitor struct {
	prober   Prober
	schedule string
	timeout  time.Duration
	logger   logging.Logger
	metrics  metrics.Recorder

	cron *cron.Cron

	mu     sync.Mutex
	status Status
}

// NewMonitor creates a monitor over a prober
func NewMonitor(prober Prober, opts Options) *Monitor {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = defaultProbeTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop()
	}
	return &Monitor{
		prober:   prober,
		schedule: opts.Schedule,
		timeout:  opts.ProbeTimeout,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Start schedules the periodic probe and fires one immediately so the
// status is populated without waiting out the first tick
func (m *Monitor) Start() error {
	if m.cron != nil {
		return nil
	}

	schedule, err := parseSchedule(m.schedule)
	if err != nil {
		return fmt.Errorf("invalid health check schedule %q: %w", m.schedule, err)
	}

	m.cron = cron.New()
	m.cron.Schedule(schedule, cron.FuncJob(m.probe))
	m.cron.Start()

	go m.probe()
	return nil
}

// Stop halts the schedule, waiting for a running probe to finish
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	ctx := m.cron.Stop()
	<-ctx.Done()
	m.cron = nil
}

// Status returns the last observation
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CheckNow forces a probe and returns the updated status
func (m *Monitor) CheckNow(ctx context.Context) Status {
	available := m.prober.CheckAvailability(ctx)
	now := time.Now().UTC()

	m.mu.Lock()
	changed := m.status.CheckedAt.IsZero() || m.status.Available != available
	if available {
		m.status.ConsecutiveFailures = 0
	} else {
		m.status.ConsecutiveFailures++
	}
	m.status.Available = available
	m.status.CheckedAt = now
	status := m.status
	m.mu.Unlock()

	m.metrics.SetEngineUp(available)
	if changed {
		if available {
			m.logger.Info("engine is reachable")
		} else {
			m.logger.Warn("engine is unreachable",
				logging.F("consecutive_failures", status.ConsecutiveFailures))
		}
	}
	return status
}

// probe runs one scheduled availability check
func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	m.CheckNow(ctx)
}

// parseSchedule accepts descriptors, six-field expressions with seconds,
// and standard five-field expressions
func parseSchedule(spec string) (cron.Schedule, error) {
	withSeconds := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if schedule, err := withSeconds.Parse(spec); err == nil {
		return schedule, nil
	}
	return cron.ParseStandard(spec)
}
