// Package api implements the submission acceptor: the HTTP surface workers
// and clients use to submit jobs, poll their status, and probe health.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ridgeline/foreman/pkg/log"
	"github.com/ridgeline/foreman/pkg/metrics"
	"github.com/ridgeline/foreman/pkg/storage"
	"github.com/ridgeline/foreman/pkg/types"
)

// Publisher appends an accepted job ID to the submission log. Satisfied by
// *queue.SubmissionLog; narrowed to an interface so the acceptor can be
// tested without a Redis instance.
type Publisher interface {
	Publish(ctx context.Context, jobID string) error
}

// Server is the HTTP submission acceptor.
type Server struct {
	store  storage.Store
	subLog Publisher
	mux    *http.ServeMux
	logger zerolog.Logger
}

func NewServer(store storage.Store, subLog Publisher) *Server {
	s := &Server{
		store:  store,
		subLog: subLog,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}

	s.mux.HandleFunc("/jobs", s.instrument("POST", s.handleSubmit))
	s.mux.HandleFunc("/jobs/", s.instrument("GET", s.handleGet))
	s.mux.HandleFunc("/internal/jobs/", s.instrument("POST", s.handleInternal))
	s.mux.HandleFunc("/healthz", s.instrument("GET", metrics.HealthHandler()))
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// ListenAndServe starts the HTTP server on addr, blocking until ctx is done
// or the server fails.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// instrument wraps h with method-restriction and the request metrics and
// logging every endpoint shares.
func (s *Server) instrument(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			metrics.APIRequestsTotal.WithLabelValues(r.Method, "405").Inc()
			return
		}

		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, statusBucket(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func statusBucket(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// submitRequest is the POST /jobs request body.
type submitRequest struct {
	Image      string   `json:"image"`
	Command    []string `json:"command,omitempty"`
	Script     string   `json:"script,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty"`
}

type submitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Image == "" {
		http.Error(w, "image is required", http.StatusBadRequest)
		return
	}
	if req.Command == nil && req.Script == "" {
		http.Error(w, "command or script is required", http.StatusBadRequest)
		return
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = types.DefaultMaxRetries
	}

	job := &types.Job{
		ID:         uuid.NewString(),
		Status:     types.StatusPending,
		Image:      req.Image,
		Command:    req.Command,
		Script:     req.Script,
		MaxRetries: maxRetries,
		CreatedAt:  time.Now(),
	}

	if err := s.store.CreateJob(job); err != nil {
		s.logger.Error().Err(err).Msg("create job failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := s.subLog.Publish(r.Context(), job.ID); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("publish to submission log failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(submitResponse{ID: job.ID, Status: string(job.Status)})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/jobs/"):]
	if id == "" {
		http.Error(w, "job id is required", http.StatusBadRequest)
		return
	}

	job, err := s.store.GetJob(id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("get job failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(job)
}

// startResponse is the POST /internal/jobs/{id}/start response body.
type startResponse struct {
	Started bool `json:"started"`
}

// completeRequest is the POST /internal/jobs/{id}/complete request body.
type completeRequest struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// completeResponse is the POST /internal/jobs/{id}/complete response body.
type completeResponse struct {
	Changed bool `json:"changed"`
}

// handleInternal dispatches the worker-facing job-transition endpoints.
// Workers never open the Job Store directly: every transition is an RPC
// to whichever replica owns the authoritative BoltDB instance, so the
// scheduler and reconciler running against that same database observe it
// immediately.
func (s *Server) handleInternal(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/internal/jobs/")
	idx := strings.LastIndex(rest, "/")
	if idx <= 0 {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	id, action := rest[:idx], rest[idx+1:]

	switch action {
	case "start":
		s.handleInternalStart(w, id)
	case "complete":
		s.handleInternalComplete(w, r, id)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleInternalStart(w http.ResponseWriter, id string) {
	started, err := s.store.StartJob(id)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("start job failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(startResponse{Started: started})
}

func (s *Server) handleInternalComplete(w http.ResponseWriter, r *http.Request, id string) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	changed, err := s.store.CompleteJob(id, types.Status(req.Status), req.Result)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", id).Msg("complete job failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(completeResponse{Changed: changed})
}
