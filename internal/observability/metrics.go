package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wind_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// reconciliation service.
type Metrics struct {
	// Parsing metrics. labels: source={anemometer,drone}
	RowsParsed        *prometheus.CounterVec
	ParseFailures     *prometheus.CounterVec
	TimestampFailures *prometheus.CounterVec

	// Alignment metrics.
	AlignedPairs  prometheus.Counter
	UnmatchedRows prometheus.Counter

	// Batch processing metrics.
	Batches                 *prometheus.CounterVec // labels: outcome={success,failure}
	BatchProcessingDuration prometheus.Histogram
	SinkErrors              *prometheus.CounterVec // labels: sink

	// Detection and alerting.
	Anomalies     *prometheus.CounterVec // labels: kind, severity
	Notifications *prometheus.CounterVec // labels: channel, outcome={success,error}

	MonitorRunning prometheus.Gauge

	// System checks.
	DiskUsagePercent    prometheus.Gauge
	NotificationLatency prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsWithRegistry creates metrics registered with reg instead of the
// default registry. One-shot commands pass a private registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	m := newMetrics(true)
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them so tests can
// build as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		RowsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_parsed_total",
			Help:      help("Input rows read, by source."),
		}, []string{"source"}),
		ParseFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_failures_total",
			Help:      help("Rows that were not records, by source."),
		}, []string{"source"}),
		TimestampFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timestamp_failures_total",
			Help:      help("Rows dropped because their timestamp could not be normalized, by source."),
		}, []string{"source"}),
		AlignedPairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aligned_pairs_total",
			Help:      help("Drone rows matched to an anemometer reading."),
		}),
		UnmatchedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unmatched_rows_total",
			Help:      help("Drone rows with no anemometer reading within tolerance."),
		}),
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      help("Reconciliation batches by outcome."),
		}, []string{"outcome"}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      help("Duration of a complete parse-align-load cycle."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      help("Failed load attempts by sink."),
		}, []string{"sink"}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      help("Sensor anomalies by kind and severity."),
		}, []string{"kind", "severity"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      help("Notification deliveries by channel and outcome."),
		}, []string{"channel", "outcome"}),
		MonitorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitor_running",
			Help:      help("1 when the sensor monitor is scheduled, 0 otherwise."),
		}),
		DiskUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "disk_usage_percent",
			Help:      help("Used space on the monitored volume, in percent."),
		}),
		NotificationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "notification_latency_seconds",
			Help:      help("Round-trip time of the notification server ping."),
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RowsParsed,
		m.ParseFailures,
		m.TimestampFailures,
		m.AlignedPairs,
		m.UnmatchedRows,
		m.Batches,
		m.BatchProcessingDuration,
		m.SinkErrors,
		m.Anomalies,
		m.Notifications,
		m.MonitorRunning,
		m.DiskUsagePercent,
		m.NotificationLatency,
	}
}
