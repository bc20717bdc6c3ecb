// Command reconciler runs the wind telemetry service: the upload endpoint that
// reconciles anemometer and drone logs, the configured sinks, and the
// scheduled sensor monitor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/wind-telemetry-etl/internal/adapter/httpadapter"
	"github.com/couchcryptid/wind-telemetry-etl/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/wind-telemetry-etl/internal/adapter/kafka"
	"github.com/couchcryptid/wind-telemetry-etl/internal/adapter/store"
	"github.com/couchcryptid/wind-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/wind-telemetry-etl/internal/config"
	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
	"github.com/couchcryptid/wind-telemetry-etl/internal/monitor"
	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
	"github.com/couchcryptid/wind-telemetry-etl/internal/observability"
	"github.com/couchcryptid/wind-telemetry-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("reconciler failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	normalizer, err := domain.NewNormalizer(cfg.LocalTimezone)
	if err != nil {
		return err
	}

	// Notification channels are feature-flagged by their targets.
	var (
		channels []notify.Channel
		ntfy     *notify.Ntfy
	)
	if cfg.NtfyEnabled() {
		ntfy = notify.NewNtfy(cfg.NtfyServer, cfg.NtfyTopic, cfg.NtfyToken, cfg.NotifyTimeout)
		channels = append(channels, ntfy)
	}
	if cfg.DiscordEnabled() {
		channels = append(channels, notify.NewDiscord(cfg.DiscordWebhookURL, cfg.NotifyTimeout, clockwork.NewRealClock()))
	}
	dispatcher := notify.NewDispatcher(logger, metrics, channels...)
	logger.Info("notification channels", "channels", dispatcher.Channels())

	var (
		loaders     []pipeline.BatchLoader
		db          *store.Store
		influxW     *influx.Writer
		kafkaW      *kafkaadapter.Writer
		monitorOpts []monitor.Option
	)
	if cfg.StoreEnabled() {
		if db, err = store.Open(cfg.DatabaseURL); err != nil {
			return err
		}
		loaders = append(loaders, db)
		monitorOpts = append(monitorOpts, monitor.WithHealthCheck(db))
		logger.Info("postgres sink enabled")
	}
	if cfg.InfluxEnabled() {
		influxW = influx.NewWriter(cfg, logger)
		loaders = append(loaders, influxW)
		logger.Info("influxdb sink enabled", "bucket", cfg.InfluxBucket)
	}
	if cfg.KafkaEnabled {
		kafkaW = kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, kafkaW)
		monitorOpts = append(monitorOpts, monitor.WithPublisher(kafkaW))
		logger.Info("kafka sink enabled", "comparison_topic", cfg.KafkaComparisonTopic, "alert_topic", cfg.KafkaAlertTopic)
	}

	opts := pipeline.DefaultOptions()
	opts.Tolerance = cfg.AlignTolerance
	opts.KeepSensorIDs = cfg.KeepSensorIDs
	opts.HighWindLimit = cfg.HighWindLimit
	opts.HighWindSample = cfg.HighWindSample
	opts.MaxAttempts = cfg.LoadMaxAttempts
	reconciler := pipeline.New(opts, normalizer, dispatcher, logger, metrics, loaders...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var mon *monitor.Monitor
	if cfg.MonitorEnabled {
		if mon, err = newMonitor(cfg, db, ntfy, dispatcher, logger, metrics, monitorOpts); err != nil {
			return err
		}
		mon.Start(ctx)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, reconciler, reconciler, logger, httpadapter.WithErrorNotifier(dispatcher))

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	started := dispatcher.Notify(ctx, notify.Message{
		Title:    "Application Started",
		Body:     fmt.Sprintf("Wind telemetry reconciler is listening on %s.", cfg.HTTPAddr),
		Priority: notify.PriorityDefault,
		Tags:     []string{"info", "rocket"},
	})
	if err := started.Err(); err != nil {
		logger.Warn("startup notification not delivered", "error", err)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if mon != nil {
		mon.Stop(shutdownCtx)
	}
	if kafkaW != nil {
		if err := kafkaW.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if influxW != nil {
		influxW.Close()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Error("database close error", "error", err)
		}
	}

	logger.Info("shutdown complete", "batches_processed", reconciler.Processed())
	return nil
}

// newMonitor schedules the disk check, the sensor check when a store is
// configured to read back from, and the latency check when ntfy is enabled.
func newMonitor(cfg *config.Config, db *store.Store, ntfy *notify.Ntfy, notifier notify.Notifier,
	logger *slog.Logger, metrics *observability.Metrics, opts []monitor.Option,
) (*monitor.Monitor, error) {
	opts = append(opts, monitor.WithDiskCheck(cfg.DiskSchedule, cfg.DiskPath, monitor.DiskThresholds{
		Warning:  cfg.DiskWarnPercent,
		Critical: cfg.DiskCriticalPercent,
	}, nil))

	if db != nil {
		detector, err := anomaly.NewDetector(anomaly.Options{
			WindowSize: cfg.AnomalyWindowSize,
			MinHistory: cfg.AnomalyMinHistory,
			ZThreshold: cfg.AnomalyZThreshold,
			ZHigh:      cfg.AnomalyZHigh,
			Rules:      anomaly.DefaultRangeRules(),
		}, nil)
		if err != nil {
			return nil, err
		}
		opts = append(opts, monitor.WithSensorCheck(cfg.MonitorSchedule, detector, db))
	} else {
		logger.Info("sensor check disabled: no DATABASE_URL")
	}

	if ntfy != nil {
		opts = append(opts, monitor.WithLatencyCheck(cfg.LatencySchedule, ntfy, cfg.LatencyThreshold))
	}
	return monitor.New(notifier, logger, metrics, opts...)
}
