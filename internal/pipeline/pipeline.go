package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
	"github.com/couchcryptid/wind-telemetry-etl/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	sourceAnemometer = "anemometer"
	sourceDrone      = "drone"
)

// BatchLoader writes a reconciled batch to one destination.
type BatchLoader interface {
	Name() string
	LoadBatch(ctx context.Context, batch domain.ReconciledBatch) error
}

// HealthChecker is implemented by sinks that can report their availability.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Input is one pair of fully written source files, already split into
// anemometer lines and drone CSV rows keyed by header.
type Input struct {
	// Source names the upload or file pair for logs and notifications.
	Source          string
	AnemometerLines []string
	DroneRows       []map[string]string
}

// Options tunes a Reconciler.
type Options struct {
	Tolerance     time.Duration
	KeepSensorIDs bool

	// HighWindLimit is compared against the magnitude of the first
	// HighWindSample anemometer readings in file order.
	HighWindLimit  float64
	HighWindSample int

	// MaxAttempts bounds the load attempts per sink.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions mirrors the service defaults.
func DefaultOptions() Options {
	return Options{
		Tolerance:      domain.DefaultTolerance,
		KeepSensorIDs:  true,
		HighWindLimit:  12,
		HighWindSample: 100,
		MaxAttempts:    3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Reconciler runs the parse, align, compare and load stages for one input
// pair at a time. It is safe for concurrent use.
type Reconciler struct {
	opts       Options
	normalizer *domain.Normalizer
	loaders    []BatchLoader
	notifier   notify.Notifier
	logger     *slog.Logger
	metrics    *observability.Metrics
	clock      clockwork.Clock
	processed  atomic.Int64
}

// New creates a Reconciler. notifier may be nil.
func New(opts Options, normalizer *domain.Normalizer, notifier notify.Notifier, logger *slog.Logger, metrics *observability.Metrics, loaders ...BatchLoader) *Reconciler {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	return &Reconciler{
		opts:       opts,
		normalizer: normalizer,
		loaders:    loaders,
		notifier:   notifier,
		logger:     logger,
		metrics:    metrics,
		clock:      clockwork.NewRealClock(),
	}
}

// WithClock replaces the time source used for durations.
func (r *Reconciler) WithClock(c clockwork.Clock) *Reconciler {
	r.clock = c
	return r
}

// CheckReadiness returns an error when any sink reports itself unavailable.
func (r *Reconciler) CheckReadiness(ctx context.Context) error {
	for _, l := range r.loaders {
		hc, ok := l.(HealthChecker)
		if !ok {
			continue
		}
		if err := hc.CheckHealth(ctx); err != nil {
			return fmt.Errorf("sink %s: %w", l.Name(), err)
		}
	}
	return nil
}

// Processed is the number of batches that reached every sink.
func (r *Reconciler) Processed() int64 {
	return r.processed.Load()
}

// Run reconciles one input pair. Row-level problems are counted in the batch
// stats; an error is returned only when alignment or a sink fails.
func (r *Reconciler) Run(ctx context.Context, in Input) (domain.ReconciledBatch, error) {
	start := r.clock.Now()
	batchID := uuid.NewString()
	logger := r.logger.With("batch_id", batchID, "source", in.Source)

	anemometer, anemoStats := domain.ParseAnemometerLog(in.AnemometerLines, r.opts.KeepSensorIDs)
	drone, droneStats, rowErrs := domain.ParseDroneLog(in.DroneRows, r.normalizer)
	for _, re := range rowErrs {
		logger.Debug("drone row skipped", "row", re.Row, "error", re.Err)
	}
	r.recordParse(sourceAnemometer, anemoStats)
	r.recordParse(sourceDrone, droneStats)

	r.checkHighWind(ctx, logger, in.Source, anemometer)

	batch, err := domain.Reconcile(anemometer, drone, r.opts.Tolerance)
	if err != nil {
		return r.fail(ctx, logger, in.Source, "align", err)
	}
	batch.ID = batchID
	batch.Stats.Anemometer = anemoStats
	batch.Stats.Drone = droneStats

	r.metrics.AlignedPairs.Add(float64(batch.Stats.Aligned))
	r.metrics.UnmatchedRows.Add(float64(batch.Stats.Unmatched))

	if err := r.load(ctx, logger, batch); err != nil {
		return r.fail(ctx, logger, in.Source, "load", err)
	}

	elapsed := r.clock.Since(start)
	r.metrics.Batches.WithLabelValues("success").Inc()
	r.metrics.BatchProcessingDuration.Observe(elapsed.Seconds())
	r.processed.Add(1)

	logger.Info("batch reconciled",
		"anemometer_rows", anemoStats.Total,
		"drone_rows", droneStats.Total,
		"parse_failures", anemoStats.ParseFailures+droneStats.ParseFailures,
		"timestamp_failures", anemoStats.TimestampFailures+droneStats.TimestampFailures,
		"aligned_pairs", batch.Stats.Aligned,
		"unmatched_rows", batch.Stats.Unmatched,
		"compared_rows", batch.Stats.Compared,
		"duration", elapsed,
	)
	r.notify(ctx, notify.Message{
		Title:    "Reconciliation Complete",
		Body:     successBody(in.Source, batch, elapsed),
		Priority: notify.PriorityDefault,
		Tags:     []string{"white_check_mark", "dash"},
	})
	return batch, nil
}

func (r *Reconciler) fail(ctx context.Context, logger *slog.Logger, source, stage string, err error) (domain.ReconciledBatch, error) {
	r.metrics.Batches.WithLabelValues("failure").Inc()
	logger.Error("batch failed", "stage", stage, "error", err)

	snippet := err.Error()
	if len(snippet) > 400 {
		snippet = snippet[:400]
	}
	r.notify(ctx, notify.Message{
		Title:    "Reconciliation Failed",
		Body:     fmt.Sprintf("Stage: %s\nSource: %s\nError: %s", stage, source, snippet),
		Priority: notify.PriorityHigh,
		Tags:     []string{"warning", "skull"},
	})
	return domain.ReconciledBatch{}, fmt.Errorf("%s: %w", stage, err)
}

// load writes the batch to every sink, retrying each with exponential backoff.
// All sinks are attempted even when one fails.
func (r *Reconciler) load(ctx context.Context, logger *slog.Logger, batch domain.ReconciledBatch) error {
	var errs []error
	for _, l := range r.loaders {
		if err := r.loadWithRetry(ctx, logger, l, batch); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", l.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (r *Reconciler) loadWithRetry(ctx context.Context, logger *slog.Logger, l BatchLoader, batch domain.ReconciledBatch) error {
	backoff := r.opts.InitialBackoff
	var err error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		if err = l.LoadBatch(ctx, batch); err == nil {
			return nil
		}
		r.metrics.SinkErrors.WithLabelValues(l.Name()).Inc()
		logger.Warn("load batch failed", "sink", l.Name(), "attempt", attempt, "error", err)

		if attempt == r.opts.MaxAttempts || ctx.Err() != nil {
			break
		}
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, r.opts.MaxBackoff)
	}
	return err
}

// checkHighWind sends one warning for the first leading sample whose
// magnitude exceeds the limit.
func (r *Reconciler) checkHighWind(ctx context.Context, logger *slog.Logger, source string, samples []domain.WindSample) {
	if r.opts.HighWindLimit <= 0 {
		return
	}
	n := min(len(samples), r.opts.HighWindSample)
	for _, s := range samples[:n] {
		if s.Magnitude == nil || *s.Magnitude <= r.opts.HighWindLimit {
			continue
		}
		logger.Warn("high wind", "speed", *s.Magnitude, "limit", r.opts.HighWindLimit, "ts", domain.FormatCanonical(s.Instant))
		r.notify(ctx, notify.Message{
			Title: "High Wind",
			Body: fmt.Sprintf("[ALERT] Wind %.1f m/s (> %.1f m/s)\n- time: %s\n- source: %s",
				*s.Magnitude, r.opts.HighWindLimit, domain.FormatCanonical(s.Instant), source),
			Priority: notify.PriorityHigh,
			Tags:     []string{"warning", "dash"},
		})
		return
	}
}

func (r *Reconciler) notify(ctx context.Context, msg notify.Message) {
	if r.notifier == nil {
		return
	}
	res := r.notifier.Notify(ctx, msg)
	if err := res.Err(); err != nil {
		r.logger.Warn("notification not delivered",
			"title", msg.Title,
			"delivered", res.Delivered(),
			"failed", len(res.Failed()),
			"error", err,
		)
	}
}

func (r *Reconciler) recordParse(source string, s domain.ParseStats) {
	r.metrics.RowsParsed.WithLabelValues(source).Add(float64(s.Total))
	r.metrics.ParseFailures.WithLabelValues(source).Add(float64(s.ParseFailures))
	r.metrics.TimestampFailures.WithLabelValues(source).Add(float64(s.TimestampFailures))
}

func successBody(source string, b domain.ReconciledBatch, elapsed time.Duration) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Source: %s\n", source)
	fmt.Fprintf(&sb, "Anemometer rows: %d (%d parse failures, %d bad timestamps)\n",
		b.Stats.Anemometer.Total, b.Stats.Anemometer.ParseFailures, b.Stats.Anemometer.TimestampFailures)
	fmt.Fprintf(&sb, "Drone rows: %d (%d parse failures, %d bad timestamps)\n",
		b.Stats.Drone.Total, b.Stats.Drone.ParseFailures, b.Stats.Drone.TimestampFailures)
	fmt.Fprintf(&sb, "Aligned pairs: %d, unmatched: %d, compared: %d\n",
		b.Stats.Aligned, b.Stats.Unmatched, b.Stats.Compared)
	fmt.Fprintf(&sb, "Processing time: %.2fs", elapsed.Seconds())
	return sb.String()
}
