// Package monitor runs scheduled health checks: the latest stored sensor
// readings through the anomaly detector, free disk space, and the round trip
// to the notification server. Each check alerts through the notifier.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/wind-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
	"github.com/couchcryptid/wind-telemetry-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

// connFailureThreshold is the number of consecutive failed health checks
// before a connection-lost alert is sent.
const connFailureThreshold = 2

// errNoSensorCheck is returned by RunOnce when no sensor source is configured.
var errNoSensorCheck = errors.New("sensor check not configured")

// SensorSource yields the most recent reading per sensor and its instant.
type SensorSource interface {
	LatestSensorValues(ctx context.Context) (time.Time, map[string]float64, error)
}

// ReportPublisher forwards anomaly reports downstream.
type ReportPublisher interface {
	PublishReports(ctx context.Context, reports []anomaly.Report) error
}

// HealthChecker reports whether the sensor source is reachable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// job is one scheduled check.
type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) error
}

// Option configures a check or an optional collaborator.
type Option func(*Monitor)

// WithSensorCheck evaluates the latest readings from source on schedule.
func WithSensorCheck(schedule string, detector *anomaly.Detector, source SensorSource) Option {
	return func(m *Monitor) {
		m.detector = detector
		m.source = source
		m.jobs = append(m.jobs, job{name: "sensors", schedule: schedule, run: func(ctx context.Context) error {
			_, err := m.RunOnce(ctx)
			return err
		}})
	}
}

// WithPublisher publishes every anomaly found in a sensor run.
func WithPublisher(p ReportPublisher) Option {
	return func(m *Monitor) { m.publisher = p }
}

// WithHealthCheck checks h before each sensor run and alerts on sustained failure.
func WithHealthCheck(h HealthChecker) Option {
	return func(m *Monitor) { m.health = h }
}

// WithClock replaces the time source used to measure latency.
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// Monitor runs its checks on cron schedules.
type Monitor struct {
	cron     *cron.Cron
	jobs     []job
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *observability.Metrics
	clock    clockwork.Clock

	detector  *anomaly.Detector
	source    SensorSource
	publisher ReportPublisher
	health    HealthChecker

	disk    diskCheck
	latency latencyCheck

	mu           sync.Mutex
	lastSeen     time.Time
	connFailures int
	connAlerted  bool

	runCtx context.Context
	cancel context.CancelFunc
}

// New schedules every configured check. Schedules are standard cron specs;
// descriptors such as "@every 1m" are accepted.
func New(notifier notify.Notifier, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Monitor, error) {
	m := &Monitor{
		cron:     cron.New(),
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.jobs) == 0 {
		return nil, errors.New("no monitor checks configured")
	}

	for _, j := range m.jobs {
		_, err := m.cron.AddFunc(j.schedule, func() {
			if err := j.run(m.runCtx); err != nil {
				m.logger.Warn("monitor check failed", "check", j.name, "error", err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("schedule %s check %q: %w", j.name, j.schedule, err)
		}
	}
	return m, nil
}

// Checks returns the names of the scheduled checks.
func (m *Monitor) Checks() []string {
	names := make([]string, len(m.jobs))
	for i, j := range m.jobs {
		names[i] = j.name
	}
	return names
}

// Start runs the schedule until Stop is called or ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	m.runCtx, m.cancel = context.WithCancel(ctx)
	m.cron.Start()
	m.metrics.MonitorRunning.Set(1)
	m.logger.Info("monitor started", "checks", m.Checks())
}

// Stop halts the schedule and waits for running checks to finish or for ctx
// to expire.
func (m *Monitor) Stop(ctx context.Context) {
	done := m.cron.Stop()
	if m.cancel != nil {
		m.cancel()
	}
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	m.metrics.MonitorRunning.Set(0)
	m.logger.Info("monitor stopped")
}

// RunOnce evaluates the latest readings. A reading already evaluated in an
// earlier run is skipped so history is not skewed by repeats. It returns the
// anomalies found.
func (m *Monitor) RunOnce(ctx context.Context) ([]anomaly.Report, error) {
	if m.source == nil {
		return nil, errNoSensorCheck
	}
	if m.health != nil {
		if err := m.checkConnection(ctx); err != nil {
			return nil, err
		}
	}

	at, values, err := m.source.LatestSensorValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("read latest sensor values: %w", err)
	}
	if len(values) == 0 || !m.advance(at) {
		return nil, nil
	}

	reports := m.detector.EvaluateAll(values)
	for _, r := range reports {
		m.metrics.Anomalies.WithLabelValues(r.Kind.String(), r.Severity.String()).Inc()
		m.logger.Warn("sensor anomaly",
			"sensor", r.Sensor,
			"kind", r.Kind.String(),
			"severity", r.Severity.String(),
			"value", r.Value,
		)
		m.send(ctx, notify.AnomalyMessage(r))
	}

	if m.publisher != nil && len(reports) > 0 {
		if err := m.publisher.PublishReports(ctx, reports); err != nil {
			return reports, fmt.Errorf("publish anomaly reports: %w", err)
		}
	}
	return reports, nil
}

// advance records at as evaluated and reports whether it is newer than the
// last evaluated reading.
func (m *Monitor) advance(at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !at.IsZero() && !at.After(m.lastSeen) {
		return false
	}
	m.lastSeen = at
	return true
}

func (m *Monitor) checkConnection(ctx context.Context) error {
	err := m.health.CheckHealth(ctx)

	m.mu.Lock()
	var msg *notify.Message
	if err != nil {
		m.connFailures++
		if m.connFailures >= connFailureThreshold && !m.connAlerted {
			m.connAlerted = true
			msg = &notify.Message{
				Title:    "Database Connection Lost",
				Body:     fmt.Sprintf("Sensor store unreachable after %d consecutive checks.\nError: %v", m.connFailures, err),
				Priority: notify.PriorityUrgent,
				Tags:     []string{"rotating_light", "floppy_disk"},
			}
		}
	} else {
		if m.connAlerted {
			msg = &notify.Message{
				Title:    "Database Connection Restored",
				Body:     "Sensor store is reachable again.",
				Priority: notify.PriorityDefault,
				Tags:     []string{"white_check_mark"},
			}
		}
		m.connFailures = 0
		m.connAlerted = false
	}
	m.mu.Unlock()

	if msg != nil {
		m.send(ctx, *msg)
	}
	if err != nil {
		return fmt.Errorf("sensor store health: %w", err)
	}
	return nil
}

// send notifies and logs channels that rejected the message.
func (m *Monitor) send(ctx context.Context, msg notify.Message) {
	res := m.notifier.Notify(ctx, msg)
	if err := res.Err(); err != nil {
		m.logger.Warn("notification not delivered",
			"title", msg.Title,
			"delivered", res.Delivered(),
			"failed", len(res.Failed()),
			"error", err,
		)
	}
}
