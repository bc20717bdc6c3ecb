package domain

import (
	"math"
	"strconv"
	"strings"
)

// maxSensorTags is the number of SN tags the protocol allows after the timestamp.
const maxSensorTags = 2

// anemometerKeys is the recognized key set of the anemometer protocol.
var anemometerKeys = map[string]struct{}{
	FieldU:          {},
	FieldV:          {},
	FieldT:          {},
	FieldBatteryPct: {},
	FieldBattV:      {},
	FieldBattC:      {},
}

// ParseAnemometerLine parses one raw anemometer line. It returns false for
// blank lines and for lines that carry no recognized key. The timestamp is
// normalized from the colon dialect; an unparseable timestamp leaves Instant
// zero but still yields a record so callers can count it.
func ParseAnemometerLine(line string, keepSensorIDs bool) (RawReading, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return RawReading{}, false
	}

	r := RawReading{
		RawTimestamp: parts[0],
		Fields:       make(map[string]*float64),
	}
	if t, ok := ParseColonTimestamp(parts[0]); ok {
		r.Instant = t
	}

	i := 1
	for tags := 0; i < len(parts) && tags < maxSensorTags; tags++ {
		id, ok := sensorTag(parts[i])
		if !ok {
			break
		}
		if keepSensorIDs {
			r.SensorIDs = append(r.SensorIDs, id)
		}
		i++
	}

	recognized := false
	currentKey := ""
	for ; i < len(parts); i++ {
		tok := parts[i]
		if _, ok := anemometerKeys[tok]; ok {
			currentKey = tok
			recognized = true
			continue
		}
		if currentKey == "" {
			continue
		}
		r.Fields[currentKey] = parseFiniteOrNil(tok)
		currentKey = ""
	}

	if !recognized {
		return RawReading{}, false
	}
	return r, true
}

// ParseAnemometerLog parses a batch of raw lines into wind samples. Lines that
// are not records are counted as parse failures (blank lines are skipped
// without counting); records without a usable timestamp are counted as
// timestamp failures and excluded.
func ParseAnemometerLog(lines []string, keepSensorIDs bool) ([]WindSample, ParseStats) {
	var stats ParseStats
	samples := make([]WindSample, 0, len(lines))

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.Total++

		r, ok := ParseAnemometerLine(line, keepSensorIDs)
		if !ok {
			stats.ParseFailures++
			continue
		}
		if !r.HasInstant() {
			stats.TimestampFailures++
			continue
		}
		samples = append(samples, NewWindSample(r))
	}
	return samples, stats
}

// sensorTag matches "SN<digits>" (prefix case-insensitive) and returns the
// serial as a decimal number without leading zeros, so SN007 and SN7 agree.
func sensorTag(tok string) (string, bool) {
	if len(tok) < 3 || !strings.EqualFold(tok[:2], "SN") {
		return "", false
	}
	digits := tok[2:]
	if !isDigits(digits) {
		return "", false
	}
	if id := strings.TrimLeft(digits, "0"); id != "" {
		return id, true
	}
	return "0", true
}

// parseFiniteOrNil parses a float, returning nil for anything unparseable or
// non-finite so that bad values stay distinguishable from zero.
func parseFiniteOrNil(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
