package store

import (
	"time"

	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
)

// AnemometerMeasurement is one parsed anemometer line.
type AnemometerMeasurement struct {
	ID           uint      `gorm:"primaryKey"`
	BatchID      string    `gorm:"size:36;index"`
	SensorID     string    `gorm:"size:32;index"`
	RawTimestamp string    `gorm:"size:64"`
	MeasuredAt   time.Time `gorm:"index"`

	U          *float64
	V          *float64
	T          *float64
	BatteryPct *float64
	BattV      *float64
	BattC      *float64
	VectorMag  *float64
	VectorDir  *float64
}

// DroneMeasurement is one drone telemetry row with its true wind.
type DroneMeasurement struct {
	ID           uint      `gorm:"primaryKey"`
	BatchID      string    `gorm:"size:36;index"`
	RawTimestamp string    `gorm:"size:64"`
	MeasuredAt   time.Time `gorm:"index"`

	WindSpeed         *float64
	WindDirection     *float64
	PlatformSpeed     *float64
	Heading           *float64
	TrueWindSpeed     *float64
	TrueWindDirection *float64
	Compensated       bool
}

// WindComparison is one aligned and compared drone/anemometer pair.
type WindComparison struct {
	ID             uint   `gorm:"primaryKey"`
	BatchID        string `gorm:"size:36;index"`
	SensorID       string `gorm:"size:32"`
	DroneTime      time.Time
	AnemometerTime time.Time
	OffsetSeconds  float64

	DroneSpeed          float64
	DroneDirection      *float64
	TrueWindSpeed       *float64
	TrueWindDirection   *float64
	AnemometerSpeed     float64
	AnemometerDirection *float64

	SpeedDiff    float64
	SpeedPctDiff *float64
	DirDiff      *float64
}

func newAnemometerMeasurement(batchID string, s domain.WindSample) AnemometerMeasurement {
	return AnemometerMeasurement{
		BatchID:      batchID,
		SensorID:     s.SourceID(),
		RawTimestamp: s.RawTimestamp,
		MeasuredAt:   s.Instant,
		U:            s.U,
		V:            s.V,
		T:            s.Fields[domain.FieldT],
		BatteryPct:   s.Fields[domain.FieldBatteryPct],
		BattV:        s.Fields[domain.FieldBattV],
		BattC:        s.Fields[domain.FieldBattC],
		VectorMag:    s.Magnitude,
		VectorDir:    s.Direction,
	}
}

func newDroneMeasurement(batchID string, s domain.DroneSample) DroneMeasurement {
	return DroneMeasurement{
		BatchID:           batchID,
		RawTimestamp:      s.RawTimestamp,
		MeasuredAt:        s.Instant,
		WindSpeed:         s.WindSpeed,
		WindDirection:     s.WindDirection,
		PlatformSpeed:     s.PlatformSpeed,
		Heading:           s.Heading,
		TrueWindSpeed:     s.TrueWind.Speed,
		TrueWindDirection: s.TrueWind.Direction,
		Compensated:       s.TrueWind.Compensated,
	}
}

func newWindComparison(batchID string, c domain.WindComparison) WindComparison {
	return WindComparison{
		BatchID:             batchID,
		SensorID:            c.SensorID,
		DroneTime:           c.DroneTime,
		AnemometerTime:      c.AnemometerTime,
		OffsetSeconds:       c.OffsetSeconds,
		DroneSpeed:          c.DroneSpeed,
		DroneDirection:      c.DroneDirection,
		TrueWindSpeed:       c.TrueWindSpeed,
		TrueWindDirection:   c.TrueWindDirection,
		AnemometerSpeed:     c.AnemometerSpeed,
		AnemometerDirection: c.AnemometerDirection,
		SpeedDiff:           c.SpeedDiff,
		SpeedPctDiff:        c.SpeedPctDiff,
		DirDiff:             c.DirDiff,
	}
}
