package anomaly

import "fmt"

// Severity ranks how urgently a report should be surfaced. The zero value is
// "no severity" and sorts below every real level.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityDefault
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityDefault:
		return "default"
	case SeverityHigh:
		return "high"
	default:
		return "none"
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSeverity is the inverse of Severity.String for the three real levels.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "low":
		return SeverityLow, nil
	case "default":
		return SeverityDefault, nil
	case "high":
		return SeverityHigh, nil
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// Kind tells which check produced a report.
type Kind int

const (
	KindNone Kind = iota
	KindRange
	KindStatistical
)

func (k Kind) String() string {
	switch k {
	case KindRange:
		return "range"
	case KindStatistical:
		return "statistical"
	default:
		return "none"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
