// Command convert turns a raw anemometer log into the anemometer CSV export
// with canonical UTC timestamps and the derived wind vector.
//
// Usage:
//
//	go run ./cmd/convert -in data/anemometer.txt -out data/anemometer.csv [-drop-sn]
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/wind-telemetry-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
)

func main() {
	in := flag.String("in", "", "raw anemometer log (.txt)")
	out := flag.String("out", "", "output CSV path (default: input with .csv extension)")
	dropSN := flag.Bool("drop-sn", false, "leave sensor tag columns empty")
	flag.Parse()

	logger := sharedobs.NewLogger(os.Getenv("LOG_LEVEL"), "text")

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		*out = strings.TrimSuffix(*in, ".txt") + ".csv"
	}

	if err := run(*in, *out, !*dropSN, logger); err != nil {
		logger.Error("convert failed", "error", err)
		os.Exit(1)
	}
}

func run(inPath, outPath string, keepSensorIDs bool, logger *slog.Logger) error {
	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	lines, err := csvfile.ReadLines(f)
	if err != nil {
		return err
	}
	samples, stats := convert(lines, keepSensorIDs)

	dst, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := csvfile.WriteAnemometerCSV(dst, samples); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	if err := dst.Close(); err != nil {
		return err
	}

	logger.Info("anemometer log converted",
		"in", inPath,
		"out", outPath,
		"rows", len(samples),
		"parse_failures", stats.ParseFailures,
		"timestamp_failures", stats.TimestampFailures,
	)
	return nil
}

// convert keeps records whose timestamp failed to parse, with an empty ts
// column, so the export stays line-for-line with the log.
func convert(lines []string, keepSensorIDs bool) ([]domain.WindSample, domain.ParseStats) {
	var stats domain.ParseStats
	samples := make([]domain.WindSample, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		stats.Total++
		r, ok := domain.ParseAnemometerLine(line, keepSensorIDs)
		if !ok {
			stats.ParseFailures++
			continue
		}
		if !r.HasInstant() {
			stats.TimestampFailures++
		}
		samples = append(samples, domain.NewWindSample(r))
	}
	return samples, stats
}
