package httpadapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/couchcryptid/wind-telemetry-etl/internal/notify"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
	err     error
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.status = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// recoverErrors turns handler panics into 500 responses and reports every
// 500 to the error notifier.
func (s *Server) recoverErrors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				err := fmt.Errorf("panic: %v", p)
				s.logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "error", err)
				if !rec.written {
					writeError(rec, http.StatusInternalServerError, errors.New("internal server error"))
				}
				s.reportServerError(r, err)
				return
			}
			if rec.status == http.StatusInternalServerError {
				s.reportServerError(r, rec.err)
			}
		}()
		next.ServeHTTP(rec, r)
	})
}

func (s *Server) reportServerError(r *http.Request, err error) {
	if s.notifier == nil {
		return
	}
	detail := "handler returned status 500"
	if err != nil {
		detail = err.Error()
	}
	msg := notify.Message{
		Title:    "Server Error",
		Body:     fmt.Sprintf("Server error occurred!\nRequest: %s %s\nError: %s", r.Method, r.URL.Path, detail),
		Priority: notify.PriorityUrgent,
		Tags:     []string{"warning", "skull", "computer"},
	}
	// The request context may already be cancelled by the time the alert goes out.
	res := s.notifier.Notify(context.WithoutCancel(r.Context()), msg)
	if nerr := res.Err(); nerr != nil {
		s.logger.Warn("notification not delivered", "title", msg.Title, "error", nerr)
	}
}
