package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/wind-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
	"github.com/couchcryptid/wind-telemetry-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2023, 11, 1, 17, 0, 0, 0, time.UTC)

type fakeSource struct {
	mu     sync.Mutex
	at     time.Time
	values map[string]float64
	err    error
	calls  int
}

func (f *fakeSource) LatestSensorValues(context.Context) (time.Time, map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.at, f.values, f.err
}

func (f *fakeSource) set(at time.Time, values map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.at, f.values = at, values
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (r *recordingNotifier) Notify(_ context.Context, msg notify.Message) notify.DispatchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return notify.DispatchResult{}
}

type fakePublisher struct {
	reports []anomaly.Report
	err     error
}

func (f *fakePublisher) PublishReports(_ context.Context, reports []anomaly.Report) error {
	f.reports = append(f.reports, reports...)
	return f.err
}

type fakeHealth struct {
	err error
}

func (f *fakeHealth) CheckHealth(context.Context) error { return f.err }

func newTestMonitor(t *testing.T, source SensorSource, notifier notify.Notifier, opts ...Option) (*Monitor, *observability.Metrics) {
	t.Helper()
	detector, err := anomaly.NewDetector(anomaly.DefaultOptions(), clockwork.NewFakeClockAt(base))
	require.NoError(t, err)
	metrics := observability.NewMetricsForTesting()
	opts = append([]Option{WithSensorCheck("@every 1s", detector, source)}, opts...)
	m, err := New(notifier, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics, opts...)
	require.NoError(t, err)
	return m, metrics
}

func TestRunOnce_RangeAnomaly(t *testing.T) {
	source := &fakeSource{at: base, values: map[string]float64{
		anomaly.SensorWindSpeed:   60,
		anomaly.SensorTemperature: 20,
	}}
	notifier := &recordingNotifier{}
	publisher := &fakePublisher{}
	m, metrics := newTestMonitor(t, source, notifier, WithPublisher(publisher))

	reports, err := m.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.Equal(t, anomaly.SensorWindSpeed, reports[0].Sensor)
	assert.Equal(t, anomaly.KindRange, reports[0].Kind)
	assert.Equal(t, anomaly.SeverityHigh, reports[0].Severity)

	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, "Sensor Data Anomaly", notifier.msgs[0].Title)
	assert.Equal(t, notify.PriorityHigh, notifier.msgs[0].Priority)
	assert.Equal(t, reports, publisher.reports)
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.Anomalies.WithLabelValues("range", "high")), 0)
}

func TestRunOnce_SkipsRepeatedReading(t *testing.T) {
	source := &fakeSource{at: base, values: map[string]float64{anomaly.SensorTemperature: 99}}
	notifier := &recordingNotifier{}
	m, _ := newTestMonitor(t, source, notifier)

	first, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, first, 1)

	again, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, notifier.msgs, 1)

	source.set(base.Add(time.Minute), map[string]float64{anomaly.SensorTemperature: 99})
	next, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, next, 1)
}

func TestRunOnce_NoData(t *testing.T) {
	notifier := &recordingNotifier{}
	m, _ := newTestMonitor(t, &fakeSource{values: map[string]float64{}}, notifier)

	reports, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Empty(t, notifier.msgs)
}

func TestRunOnce_SourceError(t *testing.T) {
	m, _ := newTestMonitor(t, &fakeSource{err: errors.New("timeout")}, &recordingNotifier{})

	_, err := m.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestRunOnce_PublishError(t *testing.T) {
	source := &fakeSource{at: base, values: map[string]float64{anomaly.SensorTemperature: 99}}
	m, _ := newTestMonitor(t, source, &recordingNotifier{}, WithPublisher(&fakePublisher{err: errors.New("broker down")}))

	reports, err := m.RunOnce(context.Background())
	require.Error(t, err)
	assert.Len(t, reports, 1)
}

func TestRunOnce_ConnectionAlerts(t *testing.T) {
	source := &fakeSource{values: map[string]float64{}}
	notifier := &recordingNotifier{}
	health := &fakeHealth{err: errors.New("connection refused")}
	m, _ := newTestMonitor(t, source, notifier, WithHealthCheck(health))
	ctx := context.Background()

	_, err := m.RunOnce(ctx)
	require.Error(t, err)
	assert.Empty(t, notifier.msgs, "a single failure is tolerated")

	_, err = m.RunOnce(ctx)
	require.Error(t, err)
	require.Len(t, notifier.msgs, 1)
	assert.Equal(t, "Database Connection Lost", notifier.msgs[0].Title)
	assert.Equal(t, notify.PriorityUrgent, notifier.msgs[0].Priority)

	_, err = m.RunOnce(ctx)
	require.Error(t, err)
	assert.Len(t, notifier.msgs, 1, "alert is sent once per outage")
	assert.Equal(t, 0, source.callCount())

	health.err = nil
	_, err = m.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, notifier.msgs, 2)
	assert.Equal(t, "Database Connection Restored", notifier.msgs[1].Title)
	assert.Equal(t, 1, source.callCount())
}

func TestNew_InvalidSchedule(t *testing.T) {
	detector, err := anomaly.NewDetector(anomaly.DefaultOptions(), nil)
	require.NoError(t, err)
	_, err = New(&recordingNotifier{}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting(),
		WithSensorCheck("not a schedule", detector, &fakeSource{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensors")
}

func TestNew_RequiresACheck(t *testing.T) {
	_, err := New(&recordingNotifier{}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
	assert.Error(t, err)
}

func TestRunOnce_WithoutSensorCheck(t *testing.T) {
	m, err := New(&recordingNotifier{}, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting(),
		WithDiskCheck("@every 1m", "/", DefaultDiskThresholds(), fixedUsage(10, 0)))
	require.NoError(t, err)

	_, err = m.RunOnce(context.Background())
	assert.ErrorIs(t, err, errNoSensorCheck)
	assert.Equal(t, []string{"disk"}, m.Checks())
}

func TestMonitor_StartStop(t *testing.T) {
	source := &fakeSource{values: map[string]float64{}}
	m, metrics := newTestMonitor(t, source, &recordingNotifier{})

	m.Start(context.Background())
	assert.InDelta(t, 1, testutil.ToFloat64(metrics.MonitorRunning), 0)

	assert.Eventually(t, func() bool { return source.callCount() > 0 }, 5*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.Stop(stopCtx)
	assert.InDelta(t, 0, testutil.ToFloat64(metrics.MonitorRunning), 0)
}
