// Package influx exports reconciled batches to InfluxDB v2 as time series.
package influx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/wind-telemetry-etl/internal/config"
	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	influxdomain "github.com/influxdata/influxdb-client-go/v2/domain"
)

// Measurement names.
const (
	MeasurementAnemometer = "anemometer"
	MeasurementDrone      = "drone_wind"
	MeasurementComparison = "wind_comparison"
)

// Writer implements pipeline.BatchLoader and pipeline.HealthChecker.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *slog.Logger
}

// NewWriter creates a blocking-write client for the configured bucket.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &Writer{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		logger:   logger,
	}
}

// Name identifies the sink in logs and metrics.
func (w *Writer) Name() string { return "influxdb" }

// LoadBatch writes one point per sample and comparison row.
func (w *Writer) LoadBatch(ctx context.Context, batch domain.ReconciledBatch) error {
	points := batchPoints(batch)
	if len(points) == 0 {
		return nil
	}
	if err := w.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	w.logger.Debug("points written", "batch_id", batch.ID, "count", len(points))
	return nil
}

// CheckHealth queries the server health endpoint.
func (w *Writer) CheckHealth(ctx context.Context) error {
	h, err := w.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health: %w", err)
	}
	if h.Status != influxdomain.HealthCheckStatusPass {
		return fmt.Errorf("influxdb health: status %s", h.Status)
	}
	return nil
}

// Close releases the client.
func (w *Writer) Close() {
	w.client.Close()
}

// batchPoints converts a batch into points. Rows without any numeric field are
// skipped since InfluxDB rejects field-less points.
func batchPoints(batch domain.ReconciledBatch) []*write.Point {
	points := make([]*write.Point, 0, len(batch.Anemometer)+len(batch.Drone)+len(batch.Comparisons))

	for _, s := range batch.Anemometer {
		fields := optionalFields(map[string]*float64{
			"u":           s.U,
			"v":           s.V,
			"temperature": s.Fields[domain.FieldT],
			"battery_pct": s.Fields[domain.FieldBatteryPct],
			"batt_v":      s.Fields[domain.FieldBattV],
			"batt_c":      s.Fields[domain.FieldBattC],
			"vector_mag":  s.Magnitude,
			"vector_dir":  s.Direction,
		})
		if len(fields) == 0 {
			continue
		}
		tags := map[string]string{"batch_id": batch.ID}
		if id := s.SourceID(); id != "" {
			tags["sensor_id"] = id
		}
		points = append(points, write.NewPoint(MeasurementAnemometer, tags, fields, s.Instant))
	}

	for _, s := range batch.Drone {
		fields := optionalFields(map[string]*float64{
			"wind_speed_mph":      s.WindSpeed,
			"wind_direction":      s.WindDirection,
			"drone_speed_mph":     s.PlatformSpeed,
			"drone_direction":     s.Heading,
			"true_wind_speed":     s.TrueWind.Speed,
			"true_wind_direction": s.TrueWind.Direction,
		})
		if len(fields) == 0 {
			continue
		}
		points = append(points, write.NewPoint(MeasurementDrone,
			map[string]string{"batch_id": batch.ID}, fields, s.Instant))
	}

	for _, c := range batch.Comparisons {
		fields := optionalFields(map[string]*float64{
			"speed_pct_diff":      c.SpeedPctDiff,
			"dir_diff":            c.DirDiff,
			"true_wind_speed":     c.TrueWindSpeed,
			"true_wind_direction": c.TrueWindDirection,
		})
		fields["drone_wind_speed"] = c.DroneSpeed
		fields["anemometer_speed"] = c.AnemometerSpeed
		fields["speed_diff"] = c.SpeedDiff
		fields["time_offset_s"] = c.OffsetSeconds
		tags := map[string]string{"batch_id": batch.ID}
		if c.SensorID != "" {
			tags["sensor_id"] = c.SensorID
		}
		points = append(points, write.NewPoint(MeasurementComparison, tags, fields, c.DroneTime))
	}
	return points
}

func optionalFields(in map[string]*float64) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}
