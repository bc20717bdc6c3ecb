// Package store persists reconciled batches in a relational database through
// gorm and serves the latest sensor readings to the monitor.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchcryptid/wind-telemetry-etl/internal/anomaly"
	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const insertBatchSize = 500

// Store writes measurements and comparisons. It implements
// pipeline.BatchLoader, pipeline.HealthChecker and monitor.SensorSource.
type Store struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return New(db)
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&AnemometerMeasurement{}, &DroneMeasurement{}, &WindComparison{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Name identifies the sink in logs and metrics.
func (s *Store) Name() string { return "postgres" }

// LoadBatch inserts the batch's samples and comparisons in one transaction.
func (s *Store) LoadBatch(ctx context.Context, batch domain.ReconciledBatch) error {
	anemo := make([]AnemometerMeasurement, len(batch.Anemometer))
	for i, sample := range batch.Anemometer {
		anemo[i] = newAnemometerMeasurement(batch.ID, sample)
	}
	drone := make([]DroneMeasurement, len(batch.Drone))
	for i, sample := range batch.Drone {
		drone[i] = newDroneMeasurement(batch.ID, sample)
	}
	cmp := make([]WindComparison, len(batch.Comparisons))
	for i, c := range batch.Comparisons {
		cmp[i] = newWindComparison(batch.ID, c)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(anemo) > 0 {
			if err := tx.CreateInBatches(anemo, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert anemometer measurements: %w", err)
			}
		}
		if len(drone) > 0 {
			if err := tx.CreateInBatches(drone, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert drone measurements: %w", err)
			}
		}
		if len(cmp) > 0 {
			if err := tx.CreateInBatches(cmp, insertBatchSize).Error; err != nil {
				return fmt.Errorf("insert wind comparisons: %w", err)
			}
		}
		return nil
	})
}

// CheckHealth pings the database.
func (s *Store) CheckHealth(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// LatestSensorValues returns the instant and values of the most recent
// anemometer reading, keyed by detector sensor name. Fields the reading lacks
// are omitted; an empty table yields a zero instant and an empty map.
func (s *Store) LatestSensorValues(ctx context.Context) (time.Time, map[string]float64, error) {
	var m AnemometerMeasurement
	err := s.db.WithContext(ctx).Order("measured_at DESC").Order("id DESC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, map[string]float64{}, nil
	}
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("query latest measurement: %w", err)
	}

	values := make(map[string]float64, 3)
	if m.VectorMag != nil {
		values[anomaly.SensorWindSpeed] = *m.VectorMag
	}
	if m.VectorDir != nil {
		values[anomaly.SensorWindDirection] = *m.VectorDir
	}
	if m.T != nil {
		values[anomaly.SensorTemperature] = *m.T
	}
	return m.MeasuredAt, values, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
