package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
)

// latencyFailureThreshold is the number of consecutive failed pings before
// the server is reported unreachable.
const latencyFailureThreshold = 3

// pingMessage is posted to the probed channel on every check.
var pingMessage = notify.Message{
	Title:    "Latency Test",
	Body:     "ping",
	Priority: notify.PriorityMin,
}

type latencyCheck struct {
	probe     notify.Channel
	threshold time.Duration
	failures  int
}

// WithLatencyCheck pings probe on schedule and alerts when the round trip
// exceeds threshold or the server stops answering.
func WithLatencyCheck(schedule string, probe notify.Channel, threshold time.Duration) Option {
	return func(m *Monitor) {
		m.latency = latencyCheck{probe: probe, threshold: threshold}
		m.jobs = append(m.jobs, job{name: "latency", schedule: schedule, run: func(ctx context.Context) error {
			_, err := m.CheckLatency(ctx)
			return err
		}})
	}
}

// CheckLatency sends one ping through the probed channel and returns the
// round trip.
func (m *Monitor) CheckLatency(ctx context.Context) (time.Duration, error) {
	if m.latency.probe == nil {
		return 0, errors.New("latency check not configured")
	}
	start := m.clock.Now()
	err := m.latency.probe.Send(ctx, pingMessage)
	elapsed := m.clock.Since(start)

	name := m.latency.probe.Name()
	if err != nil {
		m.mu.Lock()
		m.latency.failures++
		failures := m.latency.failures
		if failures >= latencyFailureThreshold {
			m.latency.failures = 0
		}
		m.mu.Unlock()

		if failures >= latencyFailureThreshold {
			m.send(ctx, notify.Message{
				Title:    "Notification Server Unreachable",
				Body:     fmt.Sprintf("Cannot reach the %s server.\nConsecutive failures: %d\nError: %v", name, failures, err),
				Priority: notify.PriorityUrgent,
				Tags:     []string{"warning", "skull"},
			})
		}
		return 0, fmt.Errorf("%s ping: %w", name, err)
	}

	m.mu.Lock()
	m.latency.failures = 0
	m.mu.Unlock()
	m.metrics.NotificationLatency.Observe(elapsed.Seconds())

	if elapsed > m.latency.threshold {
		m.logger.Warn("notification latency high", "channel", name, "latency", elapsed, "threshold", m.latency.threshold)
		m.send(ctx, notify.Message{
			Title: "Notification Latency Warning",
			Body: fmt.Sprintf("%s response time exceeded threshold.\nCurrent latency: %.2fs\nThreshold: %.2fs",
				name, elapsed.Seconds(), m.latency.threshold.Seconds()),
			Priority: notify.PriorityHigh,
			Tags:     []string{"warning", "hourglass"},
		})
	}
	return elapsed, nil
}
