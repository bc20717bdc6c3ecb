package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Reconciliation.
	AlignTolerance time.Duration
	LocalTimezone  string
	KeepSensorIDs  bool

	// Anomaly detection.
	AnomalyWindowSize int
	AnomalyMinHistory int
	AnomalyZThreshold float64
	AnomalyZHigh      float64

	// High-wind alert on the leading anemometer samples of a batch.
	HighWindLimit  float64
	HighWindSample int

	// Scheduled checks: sensor readings, disk space and notification latency.
	MonitorEnabled      bool
	MonitorSchedule     string
	DiskPath            string
	DiskSchedule        string
	DiskWarnPercent     float64
	DiskCriticalPercent float64
	LatencySchedule     string
	LatencyThreshold    time.Duration

	// Kafka publishing.
	KafkaEnabled         bool
	KafkaBrokers         []string
	KafkaComparisonTopic string
	KafkaAlertTopic      string
	BatchSize            int
	BatchFlushInterval   time.Duration

	// Sinks. An empty URL disables the sink.
	DatabaseURL  string
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Notification channels. A channel is enabled when its target is set.
	NtfyServer        string
	NtfyTopic         string
	NtfyToken         string
	DiscordWebhookURL string
	NotifyTimeout     time.Duration

	LoadMaxAttempts int
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		LocalTimezone:   sharedcfg.EnvOrDefault("LOCAL_TIMEZONE", "America/Vancouver"),
		MonitorSchedule: sharedcfg.EnvOrDefault("MONITOR_SCHEDULE", "@every 60s"),
		DiskPath:        sharedcfg.EnvOrDefault("DISK_PATH", "/"),
		DiskSchedule:    sharedcfg.EnvOrDefault("DISK_CHECK_SCHEDULE", "@every 5m"),
		LatencySchedule: sharedcfg.EnvOrDefault("LATENCY_CHECK_SCHEDULE", "@every 60s"),

		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaComparisonTopic: sharedcfg.EnvOrDefault("KAFKA_COMPARISON_TOPIC", "wind-comparisons"),
		KafkaAlertTopic:      sharedcfg.EnvOrDefault("KAFKA_ALERT_TOPIC", "sensor-anomalies"),
		BatchSize:            batchSize,
		BatchFlushInterval:   flushInterval,

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUX_ORG"),
		InfluxBucket: os.Getenv("INFLUX_BUCKET"),

		NtfyServer:        strings.TrimRight(sharedcfg.EnvOrDefault("NTFY_SERVER", "https://ntfy.sh"), "/"),
		NtfyTopic:         os.Getenv("NTFY_TOPIC"),
		NtfyToken:         os.Getenv("NTFY_TOKEN"),
		DiscordWebhookURL: os.Getenv("DISCORD_WEBHOOK_URL"),
	}

	if cfg.AlignTolerance, err = parsePositiveDuration("ALIGN_TOLERANCE", "300s"); err != nil {
		return nil, err
	}
	if cfg.KeepSensorIDs, err = parseBool("KEEP_SENSOR_IDS", true); err != nil {
		return nil, err
	}
	if cfg.AnomalyWindowSize, err = parsePositiveInt("ANOMALY_WINDOW_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.AnomalyMinHistory, err = parsePositiveInt("ANOMALY_MIN_HISTORY", 10); err != nil {
		return nil, err
	}
	if cfg.AnomalyZThreshold, err = parsePositiveFloat("ANOMALY_Z_THRESHOLD", 3.0); err != nil {
		return nil, err
	}
	if cfg.AnomalyZHigh, err = parsePositiveFloat("ANOMALY_Z_HIGH", 4.0); err != nil {
		return nil, err
	}
	if cfg.HighWindLimit, err = parsePositiveFloat("HIGH_WIND_LIMIT", 12); err != nil {
		return nil, err
	}
	if cfg.HighWindSample, err = parsePositiveInt("HIGH_WIND_SAMPLE", 100); err != nil {
		return nil, err
	}
	if cfg.MonitorEnabled, err = parseBool("MONITOR_ENABLED", true); err != nil {
		return nil, err
	}
	if cfg.DiskWarnPercent, err = parsePositiveFloat("DISK_WARN_PERCENT", 80); err != nil {
		return nil, err
	}
	if cfg.DiskCriticalPercent, err = parsePositiveFloat("DISK_CRITICAL_PERCENT", 90); err != nil {
		return nil, err
	}
	if cfg.LatencyThreshold, err = parsePositiveDuration("LATENCY_THRESHOLD", "3s"); err != nil {
		return nil, err
	}
	if cfg.KafkaEnabled, err = parseBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.NotifyTimeout, err = parsePositiveDuration("NOTIFY_TIMEOUT", "5s"); err != nil {
		return nil, err
	}
	if cfg.LoadMaxAttempts, err = parsePositiveInt("LOAD_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, err := time.LoadLocation(c.LocalTimezone); err != nil || c.LocalTimezone == "" {
		return fmt.Errorf("invalid LOCAL_TIMEZONE %q", c.LocalTimezone)
	}
	if c.AnomalyMinHistory < 2 {
		return errors.New("ANOMALY_MIN_HISTORY must be at least 2")
	}
	if c.AnomalyWindowSize < c.AnomalyMinHistory {
		return errors.New("ANOMALY_WINDOW_SIZE must be at least ANOMALY_MIN_HISTORY")
	}
	if c.AnomalyZHigh < c.AnomalyZThreshold {
		return errors.New("ANOMALY_Z_HIGH must be at least ANOMALY_Z_THRESHOLD")
	}
	if c.MonitorEnabled {
		schedules := []struct{ key, spec string }{
			{"MONITOR_SCHEDULE", c.MonitorSchedule},
			{"DISK_CHECK_SCHEDULE", c.DiskSchedule},
			{"LATENCY_CHECK_SCHEDULE", c.LatencySchedule},
		}
		for _, s := range schedules {
			if _, err := cron.ParseStandard(s.spec); err != nil {
				return fmt.Errorf("invalid %s %q: %w", s.key, s.spec, err)
			}
		}
	}
	if c.DiskWarnPercent > c.DiskCriticalPercent || c.DiskCriticalPercent > 100 {
		return errors.New("DISK_WARN_PERCENT must not exceed DISK_CRITICAL_PERCENT, which must not exceed 100")
	}
	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaComparisonTopic == "" {
			return errors.New("KAFKA_COMPARISON_TOPIC is required")
		}
		if c.KafkaAlertTopic == "" {
			return errors.New("KAFKA_ALERT_TOPIC is required")
		}
	}
	if c.InfluxURL != "" && (c.InfluxOrg == "" || c.InfluxBucket == "") {
		return errors.New("INFLUX_ORG and INFLUX_BUCKET are required when INFLUX_URL is set")
	}
	return nil
}

// NtfyEnabled reports whether an ntfy topic is configured.
func (c *Config) NtfyEnabled() bool { return c.NtfyTopic != "" }

// DiscordEnabled reports whether a Discord webhook is configured.
func (c *Config) DiscordEnabled() bool { return c.DiscordWebhookURL != "" }

// StoreEnabled reports whether a database DSN is configured.
func (c *Config) StoreEnabled() bool { return c.DatabaseURL != "" }

// InfluxEnabled reports whether an InfluxDB endpoint is configured.
func (c *Config) InfluxEnabled() bool { return c.InfluxURL != "" }

func parsePositiveDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return f, nil
}

func parseBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q", key, s)
	}
	return b, nil
}
