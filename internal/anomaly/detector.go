// Package anomaly flags sensor values that fall outside a fixed range or that
// deviate from the sensor's recent history by more than a z-score threshold.
package anomaly

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
)

// Range is an inclusive [Min, Max] interval.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether v lies inside the interval.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// RangeRule is the static plausibility range of one sensor.
type RangeRule struct {
	Range
	Severity Severity
}

// Sensor names with built-in range rules.
const (
	SensorWindSpeed     = "wind_speed"
	SensorWindDirection = "wind_direction"
	SensorTemperature   = "temperature"
	SensorHumidity      = "humidity"
	SensorPressure      = "pressure"
)

// DefaultRangeRules returns the built-in sensor ranges.
func DefaultRangeRules() map[string]RangeRule {
	return map[string]RangeRule{
		SensorWindSpeed:     {Range: Range{Min: 0, Max: 50}, Severity: SeverityHigh},      // m/s
		SensorWindDirection: {Range: Range{Min: 0, Max: 360}, Severity: SeverityDefault},  // degrees
		SensorTemperature:   {Range: Range{Min: -40, Max: 60}, Severity: SeverityDefault}, // celsius
		SensorHumidity:      {Range: Range{Min: 0, Max: 100}, Severity: SeverityDefault},  // %
		SensorPressure:      {Range: Range{Min: 800, Max: 1100}, Severity: SeverityHigh},  // hPa
	}
}

// Report is the outcome of evaluating one value.
type Report struct {
	Kind     Kind     `json:"kind"`
	Sensor   string   `json:"sensor"`
	Value    float64  `json:"value"`
	Severity Severity `json:"severity"`

	// ExpectedRange is set for range reports.
	ExpectedRange *Range `json:"expected_range,omitempty"`

	// Mean, StdDev and ZScore are set for statistical reports.
	Mean   float64 `json:"mean,omitempty"`
	StdDev float64 `json:"std_dev,omitempty"`
	ZScore float64 `json:"z_score,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// IsAnomaly reports whether either check fired.
func (r Report) IsAnomaly() bool {
	return r.Kind != KindNone
}

// Title is a short headline for notifications.
func (r Report) Title() string {
	switch r.Kind {
	case KindRange:
		return "Sensor Data Anomaly"
	case KindStatistical:
		return "Sensor Statistical Anomaly"
	default:
		return "Sensor Normal"
	}
}

// Message is the human-readable notification body.
func (r Report) Message() string {
	switch r.Kind {
	case KindRange:
		return fmt.Sprintf("Sensor anomaly detected!\nSensor: %s\nValue: %g\nNormal range: %g ~ %g",
			r.Sensor, r.Value, r.ExpectedRange.Min, r.ExpectedRange.Max)
	case KindStatistical:
		return fmt.Sprintf("Statistical sensor anomaly detected!\nSensor: %s\nValue: %.2f\nMean: %.2f\nZ-score: %.2f",
			r.Sensor, r.Value, r.Mean, math.Abs(r.ZScore))
	default:
		return fmt.Sprintf("Sensor %s = %g", r.Sensor, r.Value)
	}
}

// Options configures a Detector.
type Options struct {
	// WindowSize is the ring buffer capacity per sensor.
	WindowSize int
	// MinHistory is the number of values, the current one included, needed
	// before the statistical check runs.
	MinHistory int
	// ZThreshold is the |z| above which a value is anomalous.
	ZThreshold float64
	// ZHigh is the |z| above which a statistical anomaly is high severity.
	ZHigh float64
	// Rules maps sensor names to static ranges. Sensors without a rule only
	// get the statistical check.
	Rules map[string]RangeRule
}

// DefaultOptions returns a window of 100, a minimum of 10 values, and z
// thresholds of 3 and 4 with the default range rules.
func DefaultOptions() Options {
	return Options{
		WindowSize: 100,
		MinHistory: 10,
		ZThreshold: 3.0,
		ZHigh:      4.0,
		Rules:      DefaultRangeRules(),
	}
}

func (o Options) validate() error {
	var errs []error
	if o.MinHistory < 2 {
		errs = append(errs, fmt.Errorf("min history must be at least 2, got %d", o.MinHistory))
	}
	if o.WindowSize < o.MinHistory {
		errs = append(errs, fmt.Errorf("window size %d is smaller than min history %d", o.WindowSize, o.MinHistory))
	}
	if o.ZThreshold <= 0 {
		errs = append(errs, fmt.Errorf("z threshold must be positive, got %g", o.ZThreshold))
	}
	if o.ZHigh < o.ZThreshold {
		errs = append(errs, fmt.Errorf("high z threshold %g is below z threshold %g", o.ZHigh, o.ZThreshold))
	}
	for name, rule := range o.Rules {
		if rule.Min > rule.Max {
			errs = append(errs, fmt.Errorf("rule %s: min %g exceeds max %g", name, rule.Min, rule.Max))
		}
	}
	return errors.Join(errs...)
}

// Detector evaluates sensor values against range rules and a rolling z-score.
// It is safe for concurrent use.
type Detector struct {
	opts    Options
	history *HistoryArena
	clock   clockwork.Clock
}

// NewDetector validates opts and creates a detector. A nil clock uses real time.
func NewDetector(opts Options, clock clockwork.Clock) (*Detector, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("anomaly options: %w", err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Detector{
		opts:    opts,
		history: NewHistoryArena(opts.WindowSize),
		clock:   clock,
	}, nil
}

// History exposes the per-sensor windows.
func (d *Detector) History() *HistoryArena {
	return d.history
}

// Evaluate records value in the sensor's history and runs both checks. When
// both fire, the higher severity wins and the range report wins a tie.
// Non-finite values are neither recorded nor flagged.
func (d *Detector) Evaluate(sensor string, value float64) Report {
	none := Report{Kind: KindNone, Sensor: sensor, Value: value, EvaluatedAt: d.clock.Now().UTC()}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return none
	}

	rangeReport, rangeHit := d.checkRange(none)
	statReport, statHit := d.checkStatistical(none)

	switch {
	case rangeHit && statHit:
		if statReport.Severity > rangeReport.Severity {
			return statReport
		}
		return rangeReport
	case rangeHit:
		return rangeReport
	case statHit:
		return statReport
	default:
		return none
	}
}

// EvaluateAll evaluates every value and returns the anomalies ordered by
// sensor name.
func (d *Detector) EvaluateAll(values map[string]float64) []Report {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Report
	for _, name := range names {
		if r := d.Evaluate(name, values[name]); r.IsAnomaly() {
			out = append(out, r)
		}
	}
	return out
}

func (d *Detector) checkRange(base Report) (Report, bool) {
	rule, ok := d.opts.Rules[base.Sensor]
	if !ok || rule.Contains(base.Value) {
		return Report{}, false
	}
	expected := rule.Range
	base.Kind = KindRange
	base.Severity = rule.Severity
	base.ExpectedRange = &expected
	return base, true
}

func (d *Detector) checkStatistical(base Report) (Report, bool) {
	n, mean, std := d.history.Sensor(base.Sensor).Observe(base.Value)
	if n < d.opts.MinHistory || std == 0 {
		return Report{}, false
	}

	z := (base.Value - mean) / std
	if math.Abs(z) <= d.opts.ZThreshold {
		return Report{}, false
	}

	base.Kind = KindStatistical
	base.Mean = mean
	base.StdDev = std
	base.ZScore = z
	base.Severity = SeverityDefault
	if math.Abs(z) > d.opts.ZHigh {
		base.Severity = SeverityHigh
	}
	return base, true
}
