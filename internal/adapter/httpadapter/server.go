package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/wind-telemetry-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/wind-telemetry-etl/internal/domain"
	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
	"github.com/couchcryptid/wind-telemetry-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxUploadBytes = 64 << 20

// BatchRunner reconciles one pair of uploaded files.
type BatchRunner interface {
	Run(ctx context.Context, in pipeline.Input) (domain.ReconciledBatch, error)
}

// Server exposes health, readiness, metrics and the reconcile upload endpoint.
type Server struct {
	httpServer *http.Server
	runner     BatchRunner
	notifier   notify.Notifier
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithErrorNotifier sends an urgent alert for every 500 response.
func WithErrorNotifier(n notify.Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// NewServer creates an HTTP server with /healthz, /readyz and /metrics routes.
// POST /v1/reconcile is registered when runner is non-nil.
func NewServer(addr string, ready sharedobs.ReadinessChecker, runner BatchRunner, logger *slog.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		runner: runner,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.recoverErrors(mux),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	if runner != nil {
		mux.HandleFunc("POST /v1/reconcile", s.handleReconcile)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// reconcileResponse is the JSON body returned for a processed upload.
type reconcileResponse struct {
	ID          string            `json:"id"`
	Source      string            `json:"source"`
	ProcessedAt time.Time         `json:"processed_at"`
	Stats       domain.BatchStats `json:"stats"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse multipart form: %w", err))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll() //nolint:errcheck // temp file cleanup
	}

	anemoFile, anemoHeader, err := r.FormFile("anemometer")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("anemometer file: %w", err))
		return
	}
	defer anemoFile.Close()
	droneFile, _, err := r.FormFile("drone")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("drone file: %w", err))
		return
	}
	defer droneFile.Close()

	in, err := readInput(anemoFile, droneFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	in.Source = r.FormValue("source")
	if in.Source == "" {
		in.Source = anemoHeader.Filename
	}

	batch, err := s.runner.Run(r.Context(), in)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("reconcile upload failed", "source", in.Source, "error", err)
		writeError(w, status, err)
		return
	}

	sharedobs.WriteJSON(w, http.StatusOK, reconcileResponse{
		ID:          batch.ID,
		Source:      in.Source,
		ProcessedAt: batch.ProcessedAt,
		Stats:       batch.Stats,
	})
}

func readInput(anemo, drone multipart.File) (pipeline.Input, error) {
	lines, err := csvfile.ReadLines(anemo)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("anemometer file: %w", err)
	}
	rows, err := csvfile.ReadDroneCSV(drone)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("drone file: %w", err)
	}
	return pipeline.Input{AnemometerLines: lines, DroneRows: rows}, nil
}

func writeError(w http.ResponseWriter, status int, err error) {
	if rec, ok := w.(*statusRecorder); ok {
		rec.err = err
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
