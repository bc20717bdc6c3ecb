package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/wind-telemetry-etl/internal/observability"
)

// ChannelResult is the outcome of one channel's delivery.
type ChannelResult struct {
	Channel string
	Err     error
}

// OK reports whether the delivery succeeded.
func (r ChannelResult) OK() bool { return r.Err == nil }

// DispatchResult holds one result per channel, in channel order.
type DispatchResult struct {
	Results []ChannelResult
}

// Delivered is the number of channels that accepted the message.
func (d DispatchResult) Delivered() int {
	n := 0
	for _, r := range d.Results {
		if r.OK() {
			n++
		}
	}
	return n
}

// Failed returns the results that carry an error.
func (d DispatchResult) Failed() []ChannelResult {
	var out []ChannelResult
	for _, r := range d.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// Err joins the channel errors, or returns nil when every channel succeeded.
func (d DispatchResult) Err() error {
	var errs []error
	for _, r := range d.Failed() {
		errs = append(errs, r.Err)
	}
	return errors.Join(errs...)
}

// Dispatcher sends each message to every channel concurrently.
type Dispatcher struct {
	channels []Channel
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewDispatcher creates a dispatcher over channels. With no channels every
// Notify call is a no-op.
func NewDispatcher(logger *slog.Logger, metrics *observability.Metrics, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, logger: logger, metrics: metrics}
}

// Channels returns the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, len(d.channels))
	for i, c := range d.channels {
		names[i] = c.Name()
	}
	return names
}

// Notify delivers msg to all channels and waits for every attempt.
func (d *Dispatcher) Notify(ctx context.Context, msg Message) DispatchResult {
	results := make([]ChannelResult, len(d.channels))

	var wg sync.WaitGroup
	for i, c := range d.channels {
		wg.Add(1)
		go func(i int, c Channel) {
			defer wg.Done()
			err := c.Send(ctx, msg)
			results[i] = ChannelResult{Channel: c.Name(), Err: err}
		}(i, c)
	}
	wg.Wait()

	for _, r := range results {
		outcome := "success"
		if !r.OK() {
			outcome = "error"
			d.logger.Warn("notification failed", "channel", r.Channel, "title", msg.title(), "error", r.Err)
		}
		d.metrics.Notifications.WithLabelValues(r.Channel, outcome).Inc()
	}
	return DispatchResult{Results: results}
}
