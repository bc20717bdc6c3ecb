// Command compare reconciles an anemometer log with a drone CSV export offline
// and writes the per-pair comparison CSV plus a data quality summary.
//
// Usage:
//
//	go run ./cmd/compare \
//	  -anemometer data/anemometer.txt \
//	  -drone data/flight.csv \
//	  -out data/comparison.csv \
//	  -tz America/Vancouver -tolerance 300s
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/wind-telemetry-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
	"github.com/couchcryptid/wind-telemetry-etl/internal/observability"
	"github.com/couchcryptid/wind-telemetry-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
)

type options struct {
	anemometer string
	drone      string
	out        string
	zone       string
	tolerance  time.Duration
	dropSN     bool
}

func main() {
	var o options
	flag.StringVar(&o.anemometer, "anemometer", "", "raw anemometer log (.txt)")
	flag.StringVar(&o.drone, "drone", "", "drone CSV export")
	flag.StringVar(&o.out, "out", "comparison.csv", "output comparison CSV")
	flag.StringVar(&o.zone, "tz", "America/Vancouver", "time zone of local drone timestamps")
	flag.DurationVar(&o.tolerance, "tolerance", domain.DefaultTolerance, "maximum drone/anemometer offset")
	flag.BoolVar(&o.dropSN, "drop-sn", false, "ignore anemometer sensor tags")
	flag.Parse()

	logger := sharedobs.NewLogger(os.Getenv("LOG_LEVEL"), "text")

	if o.anemometer == "" || o.drone == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(context.Background(), o, os.Stdout, logger); err != nil {
		logger.Error("compare failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options, summary io.Writer, logger *slog.Logger) error {
	normalizer, err := domain.NewNormalizer(o.zone)
	if err != nil {
		return err
	}
	in, err := readInput(o)
	if err != nil {
		return err
	}

	opts := pipeline.DefaultOptions()
	opts.Tolerance = o.tolerance
	opts.KeepSensorIDs = !o.dropSN
	// Offline runs neither alert nor load anywhere.
	opts.HighWindLimit = 0
	metrics := observability.NewMetricsWithRegistry(prometheus.NewRegistry())
	r := pipeline.New(opts, normalizer, notify.NewDispatcher(logger, metrics), logger, metrics)

	batch, err := r.Run(ctx, in)
	if err != nil {
		return err
	}

	f, err := os.Create(o.out)
	if err != nil {
		return err
	}
	if err := csvfile.WriteComparisonCSV(f, batch.Comparisons); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", o.out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	writeSummary(summary, o.out, batch.Stats)
	if batch.Stats.Aligned == 0 {
		logger.Warn("no overlapping timestamps found; check the time zone or clock offset")
	}
	return nil
}

func readInput(o options) (pipeline.Input, error) {
	af, err := os.Open(o.anemometer)
	if err != nil {
		return pipeline.Input{}, err
	}
	defer af.Close()
	lines, err := csvfile.ReadLines(af)
	if err != nil {
		return pipeline.Input{}, err
	}

	df, err := os.Open(o.drone)
	if err != nil {
		return pipeline.Input{}, err
	}
	defer df.Close()
	rows, err := csvfile.ReadDroneCSV(df)
	if err != nil {
		return pipeline.Input{}, err
	}

	return pipeline.Input{Source: o.anemometer, AnemometerLines: lines, DroneRows: rows}, nil
}

func writeSummary(w io.Writer, out string, s domain.BatchStats) {
	fmt.Fprintf(w, "Anemometer rows:    %d (parse failures %d, timestamp failures %d)\n",
		s.Anemometer.Total, s.Anemometer.ParseFailures, s.Anemometer.TimestampFailures)
	fmt.Fprintf(w, "Drone rows:         %d (parse failures %d, timestamp failures %d)\n",
		s.Drone.Total, s.Drone.ParseFailures, s.Drone.TimestampFailures)
	fmt.Fprintf(w, "Aligned pairs:      %d\n", s.Aligned)
	fmt.Fprintf(w, "Unmatched drone:    %d\n", s.Unmatched)
	fmt.Fprintf(w, "Incomplete pairs:   %d\n", s.Incomplete)
	fmt.Fprintf(w, "Comparison rows:    %d -> %s\n", s.Compared, out)
}
