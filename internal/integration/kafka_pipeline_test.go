//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/wind-telemetry-etl/internal/adapter/kafka"
	"github.com/couchcryptid/wind-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/wind-telemetry-etl/internal/config"
	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
	"github.com/couchcryptid/wind-telemetry-etl/internal/observability"
	"github.com/couchcryptid/wind-telemetry-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const (
	testComparisonTopic = "test-comparisons"
	testAlertTopic      = "test-alerts"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the duration of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("wind-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

func testConfig(broker string) *config.Config {
	return &config.Config{
		KafkaBrokers:         []string{broker},
		KafkaComparisonTopic: testComparisonTopic,
		KafkaAlertTopic:      testAlertTopic,
		BatchSize:            50,
		BatchFlushInterval:   100 * time.Millisecond,
	}
}

type receivedMessage struct {
	Key     string
	Value   []byte
	Headers map[string]string
}

func readMessages(ctx context.Context, t *testing.T, broker, topic string, n int) []receivedMessage {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]receivedMessage, 0, n)
	for len(out) < n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from %s", topic)
		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		out = append(out, receivedMessage{Key: string(msg.Key), Value: msg.Value, Headers: headers})
	}
	return out
}

var (
	anemometerLines = []string{
		"23:11:01:17:39:20.000 SN150 SN151 U 3.00 V 4.00 T 19.78",
		"23:11:01:17:40:20.000 SN150 SN151 U 0.00 V 2.00 T 19.80",
	}
	droneRows = []map[string]string{
		{domain.ColDroneUTC: "2023-11-01T17:39:25Z", domain.ColWindSpeed: "5", domain.ColWindDirection: "40"},
		{domain.ColDroneUTC: "2023-11-01T17:40:25Z", domain.ColWindSpeed: "6", domain.ColWindDirection: "10"},
	}
)

// TestPipelinePublishesComparisons runs a reconciliation with the Kafka writer
// as the only sink and reads the comparison rows back.
func TestPipelinePublishesComparisons(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testComparisonTopic)
	createTopic(t, broker, testAlertTopic)

	writer := kafka.NewWriter(testConfig(broker), discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	normalizer, err := domain.NewNormalizer("America/Vancouver")
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	r := pipeline.New(pipeline.DefaultOptions(), normalizer,
		notify.NewDispatcher(discardLogger(), metrics), discardLogger(), metrics, writer)

	batch, err := r.Run(ctx, pipeline.Input{
		Source:          "integration",
		AnemometerLines: anemometerLines,
		DroneRows:       droneRows,
	})
	require.NoError(t, err)
	require.Equal(t, 2, batch.Stats.Compared)

	msgs := readMessages(ctx, t, broker, testComparisonTopic, 2)
	for _, m := range msgs {
		assert.Equal(t, "150", m.Key)
		assert.Equal(t, batch.ID, m.Headers["batch_id"])
		_, err := time.Parse(time.RFC3339, m.Headers["processed_at"])
		assert.NoError(t, err, "processed_at should be valid RFC3339")
	}

	var first domain.WindComparison
	require.NoError(t, json.Unmarshal(msgs[0].Value, &first))
	assert.Equal(t, time.Date(2023, 11, 1, 17, 39, 25, 0, time.UTC), first.DroneTime)
	assert.InDelta(t, 5.0, first.DroneSpeed, 1e-9)
	assert.InDelta(t, 5.0, first.AnemometerSpeed, 1e-9)
	assert.InDelta(t, 5.0, first.OffsetSeconds, 1e-9)
}

// TestWriterPublishesReports verifies anomaly reports land on the alert topic.
func TestWriterPublishesReports(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testComparisonTopic)
	createTopic(t, broker, testAlertTopic)

	writer := kafka.NewWriter(testConfig(broker), discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	detector, err := anomaly.NewDetector(anomaly.DefaultOptions(), nil)
	require.NoError(t, err)
	reports := detector.EvaluateAll(map[string]float64{
		anomaly.SensorWindSpeed:   75,
		anomaly.SensorTemperature: 20,
	})
	require.Len(t, reports, 1)

	require.NoError(t, writer.PublishReports(ctx, reports))

	msgs := readMessages(ctx, t, broker, testAlertTopic, 1)
	assert.Equal(t, anomaly.SensorWindSpeed, msgs[0].Key)
	assert.Equal(t, "range", msgs[0].Headers["kind"])
	assert.Equal(t, "high", msgs[0].Headers["severity"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Value, &decoded))
	assert.InDelta(t, 75.0, decoded["value"], 1e-9)
}
