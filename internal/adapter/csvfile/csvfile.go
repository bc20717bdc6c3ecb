// Package csvfile reads and writes the flat-file formats used by the CLIs and
// the upload endpoint: raw anemometer logs, drone CSV exports, the anemometer
// CSV export and the comparison CSV.
package csvfile

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
	"github.com/spf13/cast"
)

// AnemometerHeader is the column order of the anemometer CSV export.
var AnemometerHeader = []string{
	"raw_ts", "ts", "sn1", "sn2",
	"U", "V", "T", "BatteryPct", "BattV", "BattC",
	"VectorMag", "VectorDir",
}

// ComparisonHeader is the column order of the comparison CSV.
var ComparisonHeader = []string{
	"drone_time", "anemometer_time", "time_offset_s",
	"drone_wind_speed", "drone_wind_direction",
	"true_wind_speed", "true_wind_direction",
	"anemometer_speed", "anemometer_direction", "sensor_id",
	"speed_diff", "speed_pct_diff", "dir_diff",
}

const maxLineBytes = 1 << 20

// ReadLines returns every line of r without trailing newlines.
func ReadLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return lines, nil
}

// ReadDroneCSV reads a drone export into rows keyed by header. Short rows
// leave the missing columns absent; a UTF-8 BOM on the header is dropped.
func ReadDroneCSV(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read drone header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []map[string]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read drone row %d: %w", len(rows), err)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteAnemometerCSV writes samples in AnemometerHeader order. Absent values
// are empty cells.
func WriteAnemometerCSV(w io.Writer, samples []domain.WindSample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AnemometerHeader); err != nil {
		return err
	}
	for _, s := range samples {
		sn1, sn2 := "", ""
		if len(s.SensorIDs) > 0 {
			sn1 = s.SensorIDs[0]
		}
		if len(s.SensorIDs) > 1 {
			sn2 = s.SensorIDs[1]
		}
		rec := []string{
			s.RawTimestamp,
			domain.FormatCanonical(s.Instant),
			sn1, sn2,
			formatFloat(s.U),
			formatFloat(s.V),
			formatFloat(s.Fields[domain.FieldT]),
			formatFloat(s.Fields[domain.FieldBatteryPct]),
			formatFloat(s.Fields[domain.FieldBattV]),
			formatFloat(s.Fields[domain.FieldBattC]),
			formatFloat(s.Magnitude),
			formatFloat(s.Direction),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteComparisonCSV writes comparison rows in ComparisonHeader order.
func WriteComparisonCSV(w io.Writer, rows []domain.WindComparison) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ComparisonHeader); err != nil {
		return err
	}
	for _, c := range rows {
		rec := []string{
			domain.FormatCanonical(c.DroneTime),
			domain.FormatCanonical(c.AnemometerTime),
			cast.ToString(c.OffsetSeconds),
			cast.ToString(c.DroneSpeed),
			formatFloat(c.DroneDirection),
			formatFloat(c.TrueWindSpeed),
			formatFloat(c.TrueWindDirection),
			cast.ToString(c.AnemometerSpeed),
			formatFloat(c.AnemometerDirection),
			c.SensorID,
			cast.ToString(c.SpeedDiff),
			formatFloat(c.SpeedPctDiff),
			formatFloat(c.DirDiff),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return cast.ToString(*v)
}
