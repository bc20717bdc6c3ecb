package domain

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	// Zone rules ship with the binary so wall-clock parsing works in minimal images.
	_ "time/tzdata"
)

// CanonicalLayout is the serialized form of every normalized instant.
const CanonicalLayout = "2006-01-02T15:04:05.000Z"

var (
	// ErrClockAmbiguity is the parent of both DST transition failures.
	ErrClockAmbiguity = errors.New("clock ambiguity")
	// ErrNonexistentLocalTime marks a wall-clock time skipped by a forward transition.
	ErrNonexistentLocalTime = fmt.Errorf("%w: nonexistent local time", ErrClockAmbiguity)
	// ErrAmbiguousLocalTime marks a wall-clock time repeated by a backward transition.
	ErrAmbiguousLocalTime = fmt.Errorf("%w: ambiguous local time", ErrClockAmbiguity)
	// ErrInvalidTimestamp is returned when a wall-clock string does not parse.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// wallDateLayouts are the date encodings seen in drone exports.
var wallDateLayouts = []string{"2006-01-02", "2006/01/02", "1/2/2006"}

// wallClockLayout is a 12-hour clock. Fractional seconds after the seconds
// field are accepted by time.Parse without appearing in the layout.
const wallClockLayout = "3:04:05 PM"

// Canonicalize converts t to UTC with millisecond precision.
func Canonicalize(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Millisecond)
}

// FormatCanonical serializes t in CanonicalLayout. A zero instant yields "".
func FormatCanonical(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return Canonicalize(t).Format(CanonicalLayout)
}

// NormalizeCanonical parses an already-normalized, RFC 3339, or colon-dialect
// timestamp into its canonical instant.
func NormalizeCanonical(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if strings.Count(s, ":") == 5 && !strings.ContainsAny(s, "T ") {
		return ParseColonTimestamp(s)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return Canonicalize(t), true
}

// ParseColonTimestamp parses the anemometer dialect YY:MM:DD:HH:MM:SS[.mmm].
// The value is taken as UTC. Any structural or range problem yields false.
func ParseColonTimestamp(raw string) (time.Time, bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 6 {
		return time.Time{}, false
	}

	var fields [5]int
	for i := range fields {
		n, ok := parseDigits(parts[i])
		if !ok {
			return time.Time{}, false
		}
		fields[i] = n
	}
	yy, month, day, hour, minute := fields[0], fields[1], fields[2], fields[3], fields[4]

	secStr, fracStr, hasFrac := strings.Cut(parts[5], ".")
	sec, ok := parseDigits(secStr)
	if !ok {
		return time.Time{}, false
	}
	ms := 0
	if hasFrac && fracStr != "" {
		if !isDigits(fracStr) {
			return time.Time{}, false
		}
		fracStr = (fracStr + "000")[:3]
		ms, _ = strconv.Atoi(fracStr)
	}

	if yy > 99 || month < 1 || month > 12 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}
	year := 2000 + yy
	if day < 1 || day > daysIn(time.Month(month), year) {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(month), day, hour, minute, sec, ms*int(time.Millisecond), time.UTC), true
}

// Normalizer converts local wall-clock timestamps from a named civil time zone
// into canonical UTC instants.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer loads the IANA zone (e.g. "America/Vancouver").
func NewNormalizer(zone string) (*Normalizer, error) {
	if strings.TrimSpace(zone) == "" {
		return nil, errors.New("time zone name is required")
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", zone, err)
	}
	return &Normalizer{loc: loc}, nil
}

// Location returns the zone wall-clock strings are interpreted in.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}

// ParseLocal combines a date string and a 12-hour clock string (with AM/PM and
// optional fractional seconds), resolves it in the normalizer's zone and
// returns the canonical UTC instant.
func (n *Normalizer) ParseLocal(date, clock string) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.ToUpper(strings.TrimSpace(clock))
	if date == "" || clock == "" {
		return time.Time{}, fmt.Errorf("%w: empty date or clock", ErrInvalidTimestamp)
	}

	for _, layout := range wallDateLayouts {
		wall, err := time.Parse(layout+" "+wallClockLayout, date+" "+clock)
		if err != nil {
			continue
		}
		t, err := resolveLocal(wall, n.loc)
		if err != nil {
			return time.Time{}, err
		}
		return Canonicalize(t), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q %q", ErrInvalidTimestamp, date, clock)
}

// resolveLocal maps the wall-clock fields of wall (parsed as UTC) onto loc.
// It tries every offset the zone uses within half a day of the guess and keeps
// the ones whose round trip reproduces the wall clock: none means the time was
// skipped, more than one means it was repeated.
func resolveLocal(wall time.Time, loc *time.Location) (time.Time, error) {
	guess := time.Date(wall.Year(), wall.Month(), wall.Day(),
		wall.Hour(), wall.Minute(), wall.Second(), wall.Nanosecond(), loc)

	var offsets []int
	for _, probe := range []time.Time{guess.Add(-12 * time.Hour), guess, guess.Add(12 * time.Hour)} {
		_, off := probe.In(loc).Zone()
		if !slices.Contains(offsets, off) {
			offsets = append(offsets, off)
		}
	}

	var matches []time.Time
	for _, off := range offsets {
		candidate := wall.Add(-time.Duration(off) * time.Second)
		if sameWallClock(candidate.In(loc), wall) && !slices.ContainsFunc(matches, candidate.Equal) {
			matches = append(matches, candidate)
		}
	}

	switch len(matches) {
	case 0:
		return time.Time{}, fmt.Errorf("%w: %s in %s", ErrNonexistentLocalTime, wall.Format("2006-01-02 15:04:05.000"), loc)
	case 1:
		return matches[0].UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s in %s", ErrAmbiguousLocalTime, wall.Format("2006-01-02 15:04:05.000"), loc)
	}
}

func sameWallClock(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd &&
		a.Hour() == b.Hour() && a.Minute() == b.Minute() &&
		a.Second() == b.Second() && a.Nanosecond() == b.Nanosecond()
}

func daysIn(m time.Month, year int) int {
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// parseDigits accepts only unsigned decimal strings (no sign, no spaces).
func parseDigits(s string) (int, bool) {
	if !isDigits(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}
