package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Drone export column names.
const (
	ColDroneUTC       = "Drone_Time(UTC+RFC3339)"
	ColLocalDate      = "CUSTOM.date [local]"
	ColLocalTime      = "CUSTOM.updateTime [local]"
	ColWindSpeed      = "WEATHER.windSpeed [MPH]"
	ColWindDirection  = "WEATHER.windDirection"
	ColMaxWindSpeed   = "WEATHER.maxWindSpeed [MPH]"
	ColDroneSpeedMPH  = "Drone_Speed"
	ColDroneSpeedMS   = "CUSTOM.speed [m/s]"
	metersPerSecToMPH = 2.237
)

// headingColumns are tried in order; the first present column supplies the
// platform heading.
var headingColumns = []string{
	"Drone_Direction",
	"CUSTOM.heading (°)",
	"CUSTOM.yaw [°]",
	"CUSTOM.direction [°]",
}

// ErrNoTimestampColumns is returned for rows that carry neither a UTC column
// nor the local date/time pair.
var ErrNoTimestampColumns = errors.New("row has no timestamp columns")

// RowError ties a row-level failure to its zero-based row index.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// ParseDroneRow converts one drone CSV row (keyed by header) into a sample
// with true wind applied. A returned error wrapping ErrNoTimestampColumns is
// a parse failure; any other error is a timestamp failure. The sample is
// still returned on timestamp failure with a zero Instant.
func ParseDroneRow(row map[string]string, n *Normalizer) (DroneSample, error) {
	s := DroneSample{
		RawReading: RawReading{Fields: make(map[string]*float64)},
	}

	for _, col := range []string{ColWindSpeed, ColWindDirection, ColMaxWindSpeed} {
		if raw, ok := row[col]; ok {
			s.Fields[col] = cellFloat(raw)
		}
	}
	s.WindSpeed = s.Fields[ColWindSpeed]
	s.WindDirection = s.Fields[ColWindDirection]
	s.Heading = droneHeading(row)
	s.PlatformSpeed = droneSpeed(row)

	s.TrueWind = ComputeTrueWind(
		Polar{Speed: s.WindSpeed, Heading: s.WindDirection},
		Polar{Speed: s.PlatformSpeed, Heading: s.Heading},
	)

	instant, raw, err := droneInstant(row, n)
	s.RawTimestamp = raw
	if err != nil {
		return s, err
	}
	s.Instant = instant
	return s, nil
}

// ParseDroneLog parses a batch of drone rows. Rows without a usable timestamp
// are excluded and reported in the returned row errors.
func ParseDroneLog(rows []map[string]string, n *Normalizer) ([]DroneSample, ParseStats, []RowError) {
	var (
		stats   ParseStats
		rowErrs []RowError
	)
	samples := make([]DroneSample, 0, len(rows))

	for i, row := range rows {
		stats.Total++
		s, err := ParseDroneRow(row, n)
		if err != nil {
			if errors.Is(err, ErrNoTimestampColumns) {
				stats.ParseFailures++
			} else {
				stats.TimestampFailures++
			}
			rowErrs = append(rowErrs, RowError{Row: i, Err: err})
			continue
		}
		samples = append(samples, s)
	}
	return samples, stats, rowErrs
}

func droneInstant(row map[string]string, n *Normalizer) (time.Time, string, error) {
	if raw := strings.TrimSpace(row[ColDroneUTC]); raw != "" {
		t, ok := NormalizeCanonical(raw)
		if !ok {
			return time.Time{}, raw, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
		}
		return t, raw, nil
	}

	date, hasDate := row[ColLocalDate]
	clock, hasClock := row[ColLocalTime]
	if !hasDate || !hasClock {
		return time.Time{}, "", ErrNoTimestampColumns
	}
	raw := strings.TrimSpace(date) + " " + strings.TrimSpace(clock)
	t, err := n.ParseLocal(date, clock)
	if err != nil {
		return time.Time{}, raw, err
	}
	return t, raw, nil
}

func droneHeading(row map[string]string) *float64 {
	for _, col := range headingColumns {
		if raw, ok := row[col]; ok {
			return cellFloat(raw)
		}
	}
	return nil
}

// droneSpeed returns platform speed in mph. Drone_Speed is already mph;
// CUSTOM.speed is m/s and gets converted.
func droneSpeed(row map[string]string) *float64 {
	if raw, ok := row[ColDroneSpeedMPH]; ok {
		return cellFloat(raw)
	}
	if raw, ok := row[ColDroneSpeedMS]; ok {
		if v := cellFloat(raw); v != nil {
			return floatPtr(*v * metersPerSecToMPH)
		}
	}
	return nil
}

// cellFloat converts a CSV cell, returning nil for empty, unparseable or
// non-finite values.
func cellFloat(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
