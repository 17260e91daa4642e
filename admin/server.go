// Package admin exposes the operational status API: batch job polling, lock
// inspection, forced lock release, and audit trail queries.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"finflow"
	"finflow/batch"
	"finflow/lock"
	"finflow/metrics"
)

// Server is the admin HTTP server.
type Server struct {
	addr    string
	engine  *finflow.Engine
	tracker *batch.Tracker
	runner  *batch.Runner
	locker  lock.Locker
	metrics metrics.Metrics
	mux     *http.ServeMux
	server  *http.Server

	mu      sync.Mutex
	running bool
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithAddr sets the listen address.
func WithAddr(addr string) ServerOption {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithServerTracker sets the batch tracker backing job queries.
func WithServerTracker(tracker *batch.Tracker) ServerOption {
	return func(s *Server) {
		s.tracker = tracker
	}
}

// WithServerRunner sets the runner for operator-triggered batch runs.
func WithServerRunner(runner *batch.Runner) ServerOption {
	return func(s *Server) {
		s.runner = runner
	}
}

// WithServerMetrics sets the metrics sink.
func WithServerMetrics(m metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates the admin server over the engine.
func NewServer(engine *finflow.Engine, opts ...ServerOption) *Server {
	s := &Server{
		addr:    ":8080",
		engine:  engine,
		locker:  engine.Locker(),
		metrics: metrics.NewNoopMetrics(),
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /api/jobs/{jobID}", s.handleGetJob)
	s.mux.HandleFunc("POST /api/batch/reconcile", s.handleStartReconcile)
	s.mux.HandleFunc("GET /api/locks/{key}", s.handleGetLock)
	s.mux.HandleFunc("POST /api/locks/{key}/release", s.handleForceRelease)
	s.mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
}

// Start runs the server until Stop or a listener error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.mux,
	}
	return s.server.ListenAndServe()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// APIResponse is the envelope every endpoint returns.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError carries a machine-readable code with the message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeJobNotFound     = "JOB_NOT_FOUND"
	ErrCodeOperationFailed = "OPERATION_FAILED"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// handleHealthz GET /healthz
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetJob GET /api/jobs/{jobID}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeOperationFailed, "no batch tracker configured")
		return
	}

	status, err := s.tracker.GetStatus(r.PathValue("jobID"))
	if err != nil {
		if errors.Is(err, finflow.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, ErrCodeJobNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w, status)
}

// handleStartReconcile POST /api/batch/reconcile
func (s *Server) handleStartReconcile(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeOperationFailed, "no batch runner configured")
		return
	}

	jobID, err := s.runner.ReconcileTransactions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeOperationFailed, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, APIResponse{
		Success: true,
		Data:    map[string]string{"job_id": jobID},
	})
}

// handleGetLock GET /api/locks/{key}
func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	held, err := s.locker.IsLocked(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w, map[string]any{
		"key":    key,
		"locked": held,
	})
}

// handleForceRelease POST /api/locks/{key}/release
//
// Breaks the lock regardless of owner. Operator escape hatch for a crashed
// holder; business paths never call this.
func (s *Server) handleForceRelease(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.locker.ForceRelease(r.Context(), key); err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeOperationFailed, err.Error())
		return
	}
	s.metrics.LockForceReleased()
	writeSuccess(w, map[string]any{
		"key":      key,
		"released": true,
	})
}

// handleListTransactions GET /api/transactions
//
// Query params: entity_kind, entity_number, tx_type, limit, offset.
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := finflow.NewTxFilter()

	if kind := q.Get("entity_kind"); kind != "" {
		filter = filter.WithEntity(kind, q.Get("entity_number"))
	}
	if txType := q.Get("tx_type"); txType != "" {
		filter = filter.WithTxType(txType)
	}

	limit, offset := filter.Limit, 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}
	filter = filter.WithPagination(limit, offset)

	txs, total, err := s.engine.Store().ListTransactions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	writeSuccess(w, map[string]any{
		"transactions": txs,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}
