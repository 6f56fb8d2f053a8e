// Package api exposes persisted course records and run control over a
// small JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"

	"resultsync-backend/internal/pipeline"
	"resultsync-backend/internal/records"
)

var tracer = otel.Tracer("resultsync.api")

// Runner executes one scrape run. Wired to Pipeline.Run in production;
// tests substitute their own.
type Runner func(ctx context.Context) (pipeline.RunSummary, error)

type Server struct {
	store records.Store
	run   Runner

	mu      sync.Mutex
	running bool
	last    *pipeline.RunSummary
	lastErr error
}

func NewServer(store records.Store, run Runner) *Server {
	return &Server{store: store, run: run}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/students", s.handleStudents)
		r.Get("/records/{student}", s.handleRecords)
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/latest", s.handleLatestRun)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStudents(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "api:students")
	defer span.End()

	students, err := s.store.Students(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list students", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list students")
		return
	}
	if students == nil {
		students = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": students})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "api:records")
	defer span.End()

	// Registration IDs often contain slashes ("U2021/1234"), so clients
	// send them percent-encoded.
	student, err := url.PathUnescape(chi.URLParam(r, "student"))
	if err != nil || student == "" {
		writeError(w, http.StatusBadRequest, "student is required")
		return
	}

	recs, err := s.store.List(ctx, student)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list records", "student", student, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if len(recs) == 0 {
		writeError(w, http.StatusNotFound, "no records for student")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"student": student,
		"records": recs,
	})
}

// handleStartRun kicks off a scrape run in the background. Only one run
// may be in flight at a time; the browser session is not shareable.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if s.run == nil {
		writeError(w, http.StatusServiceUnavailable, "run pipeline is not configured")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "a run is already in progress")
		return
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		// The request context dies with the HTTP request; the run must
		// outlive it.
		summary, err := s.run(context.Background())

		s.mu.Lock()
		s.running = false
		s.last = &summary
		s.lastErr = err
		s.mu.Unlock()

		if err != nil {
			slog.Error("background scrape run failed", "run_id", summary.RunID, "err", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		writeJSON(w, http.StatusOK, map[string]any{"status": "running"})
		return
	}
	if s.last == nil {
		writeError(w, http.StatusNotFound, "no runs yet")
		return
	}
	resp := map[string]any{
		"status":  "finished",
		"summary": s.last,
	}
	if s.lastErr != nil {
		resp["error"] = s.lastErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
