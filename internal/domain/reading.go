package domain

import (
	"time"
)

// Anemometer field keys as they appear in the raw protocol.
const (
	FieldU          = "U"
	FieldV          = "V"
	FieldT          = "T"
	FieldBatteryPct = "Battery%"
	FieldBattV      = "BATTV"
	FieldBattC      = "BATTC"
)

// RawReading is one parsed line or row from a sensor log. It is produced once
// by a parser and never mutated afterwards.
type RawReading struct {
	// SensorIDs holds up to two sensor tags (digits only, "SN" stripped).
	SensorIDs    []string `json:"sensor_ids,omitempty"`
	RawTimestamp string   `json:"raw_ts"`
	// Instant is the canonical UTC instant; zero when the timestamp could not be parsed.
	Instant time.Time `json:"ts"`
	// Fields maps a field name to its value. A nil value means the field was
	// present but unparseable; a missing key means it never appeared.
	Fields map[string]*float64 `json:"fields,omitempty"`
}

// HasInstant reports whether the reading carries a usable timestamp.
func (r RawReading) HasInstant() bool {
	return !r.Instant.IsZero()
}

// Field returns the numeric value of name and whether it is present.
func (r RawReading) Field(name string) (float64, bool) {
	v, ok := r.Fields[name]
	if !ok || v == nil {
		return 0, false
	}
	return *v, true
}

// SourceID returns the first sensor tag, or "" when none was kept.
func (r RawReading) SourceID() string {
	if len(r.SensorIDs) == 0 {
		return ""
	}
	return r.SensorIDs[0]
}

// WindSample is an anemometer reading with its derived wind vector. Magnitude
// and Direction are always recomputed from U and V.
type WindSample struct {
	RawReading

	U         *float64 `json:"u"`
	V         *float64 `json:"v"`
	Magnitude *float64 `json:"vector_mag"`
	Direction *float64 `json:"vector_dir"`
}

// At satisfies Timestamped.
func (s WindSample) At() time.Time { return s.Instant }

// NewWindSample derives the wind vector for a parsed reading.
func NewWindSample(r RawReading) WindSample {
	s := WindSample{RawReading: r}
	u, uok := r.Field(FieldU)
	v, vok := r.Field(FieldV)
	if uok {
		s.U = &u
	}
	if vok {
		s.V = &v
	}
	if uok && vok {
		mag := Magnitude(u, v)
		s.Magnitude = &mag
		if dir, ok := Direction(u, v); ok {
			s.Direction = &dir
		}
	}
	return s
}

// Polar is a speed/bearing pair. Either side may be absent.
type Polar struct {
	Speed   *float64 `json:"speed"`
	Heading *float64 `json:"heading"`
}

// TrueWindSample combines an apparent wind reading with the platform velocity
// at the same instant.
type TrueWindSample struct {
	Apparent  Polar    `json:"apparent"`
	Platform  Polar    `json:"platform"`
	Speed     *float64 `json:"true_speed"`
	Direction *float64 `json:"true_direction"`
	// Compensated is false when the platform heading was unknown and the
	// apparent wind was passed through unchanged.
	Compensated bool `json:"compensated"`
}

// DroneSample is one drone telemetry row with its wind reading and the true
// wind derived from it.
type DroneSample struct {
	RawReading

	WindSpeed     *float64       `json:"wind_speed_mph"`
	WindDirection *float64       `json:"wind_direction"`
	PlatformSpeed *float64       `json:"drone_speed_mph"`
	Heading       *float64       `json:"drone_direction_deg"`
	TrueWind      TrueWindSample `json:"true_wind"`
}

// At satisfies Timestamped.
func (s DroneSample) At() time.Time { return s.Instant }

// ParseStats counts what happened to the rows of one input stream.
type ParseStats struct {
	Total             int `json:"total_rows"`
	ParseFailures     int `json:"parse_failures"`
	TimestampFailures int `json:"timestamp_failures"`
}

// Usable is the number of rows that produced a timestamped sample.
func (s ParseStats) Usable() int {
	return s.Total - s.ParseFailures - s.TimestampFailures
}

func floatPtr(v float64) *float64 { return &v }
