package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// WindComparison is the derived-metric row for one aligned drone/anemometer pair.
type WindComparison struct {
	DroneTime      time.Time `json:"drone_time"`
	AnemometerTime time.Time `json:"anemometer_time"`
	OffsetSeconds  float64   `json:"time_offset_s"`

	DroneSpeed        float64  `json:"drone_wind_speed"`
	DroneDirection    *float64 `json:"drone_wind_direction"`
	TrueWindSpeed     *float64 `json:"true_wind_speed"`
	TrueWindDirection *float64 `json:"true_wind_direction"`

	AnemometerSpeed     float64  `json:"anemometer_speed"`
	AnemometerDirection *float64 `json:"anemometer_direction"`
	SensorID            string   `json:"sensor_id,omitempty"`

	// SpeedDiff is drone − anemometer.
	SpeedDiff float64 `json:"speed_diff"`
	// SpeedPctDiff is |SpeedDiff| relative to the anemometer speed, absent
	// when the anemometer reads zero.
	SpeedPctDiff *float64 `json:"speed_pct_diff"`
	// DirDiff is |drone − anemometer| mod 360, absent when either side lacks a direction.
	DirDiff *float64 `json:"dir_diff"`
}

// CompareWind computes comparison metrics for aligned pairs. Pairs missing
// the drone wind speed or the anemometer magnitude are dropped and counted.
func CompareWind(pairs []AlignedPair[DroneSample, WindSample]) ([]WindComparison, int) {
	out := make([]WindComparison, 0, len(pairs))
	dropped := 0

	for _, p := range pairs {
		if p.Reference.WindSpeed == nil || p.Ground.Magnitude == nil {
			dropped++
			continue
		}
		drone := *p.Reference.WindSpeed
		anemo := *p.Ground.Magnitude

		c := WindComparison{
			DroneTime:           p.Reference.Instant,
			AnemometerTime:      p.Ground.Instant,
			OffsetSeconds:       p.Offset.Seconds(),
			DroneSpeed:          drone,
			DroneDirection:      p.Reference.WindDirection,
			TrueWindSpeed:       p.Reference.TrueWind.Speed,
			TrueWindDirection:   p.Reference.TrueWind.Direction,
			AnemometerSpeed:     anemo,
			AnemometerDirection: p.Ground.Direction,
			SensorID:            p.Ground.SourceID(),
			SpeedDiff:           drone - anemo,
		}
		if anemo != 0 {
			c.SpeedPctDiff = floatPtr(math.Abs(c.SpeedDiff) / anemo * 100)
		}
		if c.DroneDirection != nil && c.AnemometerDirection != nil {
			c.DirDiff = floatPtr(math.Mod(math.Abs(*c.DroneDirection-*c.AnemometerDirection), 360))
		}
		out = append(out, c)
	}
	return out, dropped
}

// BatchStats is the per-batch data quality summary reported to operators.
type BatchStats struct {
	Anemometer ParseStats `json:"anemometer"`
	Drone      ParseStats `json:"drone"`
	Aligned    int        `json:"aligned_pairs"`
	Unmatched  int        `json:"unmatched_rows"`
	Incomplete int        `json:"incomplete_pairs"`
	Compared   int        `json:"compared_rows"`
}

// ReconciledBatch is the full output of one reconciliation pass.
type ReconciledBatch struct {
	ID          string           `json:"id"`
	Anemometer  []WindSample     `json:"-"`
	Drone       []DroneSample    `json:"-"`
	Comparisons []WindComparison `json:"comparisons"`
	Stats       BatchStats       `json:"stats"`
	ProcessedAt time.Time        `json:"processed_at"`
}

// Reconcile sorts copies of both sample sets, aligns drone rows (reference)
// to anemometer readings (ground) and computes comparison metrics. Parse
// statistics are left for the caller to fill in.
func Reconcile(anemometer []WindSample, drone []DroneSample, tolerance time.Duration) (ReconciledBatch, error) {
	ground := slices.Clone(anemometer)
	reference := slices.Clone(drone)
	SortByInstant(ground)
	SortByInstant(reference)

	aligned, err := Align(reference, ground, tolerance)
	if err != nil {
		return ReconciledBatch{}, fmt.Errorf("align series: %w", err)
	}
	comparisons, incomplete := CompareWind(aligned.Pairs)

	return ReconciledBatch{
		Anemometer:  ground,
		Drone:       reference,
		Comparisons: comparisons,
		Stats: BatchStats{
			Aligned:    len(aligned.Pairs),
			Unmatched:  aligned.Unmatched,
			Incomplete: incomplete,
			Compared:   len(comparisons),
		},
		ProcessedAt: clock.Now().UTC(),
	}, nil
}
