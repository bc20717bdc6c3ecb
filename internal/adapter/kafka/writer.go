package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/wind-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/wind-telemetry-etl/internal/config"
	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of kafkago.Writer the adapter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes comparison rows and anomaly reports to Kafka.
// It implements pipeline.BatchLoader and monitor.ReportPublisher.
type Writer struct {
	comparisons messageWriter
	alerts      messageWriter
	logger      *slog.Logger
}

// NewWriter creates producers for the comparison and alert topics.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	return &Writer{
		comparisons: newProducer(cfg, cfg.KafkaComparisonTopic),
		alerts:      newProducer(cfg, cfg.KafkaAlertTopic),
		logger:      logger,
	}
}

func newProducer(cfg *config.Config, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchFlushInterval,
	}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "kafka" }

// LoadBatch publishes every comparison row of the batch in a single
// WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.ReconciledBatch) error {
	if len(batch.Comparisons) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(batch.Comparisons))
	for i := range batch.Comparisons {
		msg, err := serializeComparison(batch.ID, batch.ProcessedAt, batch.Comparisons[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.comparisons.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish comparisons: %w", err)
	}
	w.logger.Debug("comparisons published", "batch_id", batch.ID, "count", len(msgs))
	return nil
}

// PublishReports sends anomaly reports to the alert topic.
func (w *Writer) PublishReports(ctx context.Context, reports []anomaly.Report) error {
	if len(reports) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(reports))
	for i := range reports {
		msg, err := serializeReport(reports[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.alerts.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish anomaly reports: %w", err)
	}
	return nil
}

// Close flushes and closes both producers.
func (w *Writer) Close() error {
	return errors.Join(w.comparisons.Close(), w.alerts.Close())
}

// serializeComparison marshals one comparison row. Rows are keyed by sensor so
// a sensor's rows stay on one partition; untagged rows fall back to the batch.
func serializeComparison(batchID string, processedAt time.Time, c domain.WindComparison) (kafkago.Message, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize wind comparison: %w", err)
	}
	key := c.SensorID
	if key == "" {
		key = batchID
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "batch_id", Value: []byte(batchID)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}

// serializeReport marshals an anomaly report keyed by sensor name.
func serializeReport(r anomaly.Report) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize anomaly report: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.Sensor),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "kind", Value: []byte(r.Kind.String())},
			{Key: "severity", Value: []byte(r.Severity.String())},
		},
	}, nil
}
