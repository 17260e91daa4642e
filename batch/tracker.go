// Package batch tracks long-running bulk operations and fans their items out
// over a worker pool. Progress lives in an in-process record per job, guarded
// independently of the entity locks, and is exposed as poll-able snapshots.
package batch

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"finflow"
	"finflow/metrics"
)

// JobState is the lifecycle state of a batch job.
type JobState string

const (
	JobStateProcessing JobState = "PROCESSING"
	JobStateCompleted  JobState = "COMPLETED"
	JobStateFailed     JobState = "FAILED"
)

// Job kinds reported by the runner.
const (
	JobKindImportPayments = "import_payments"
	JobKindStatusUpdate   = "status_update"
	JobKindCancelPayments = "cancel_payments"
	JobKindReconcile      = "reconcile_transactions"
	JobKindExport         = "export_transactions"
)

// JobStatus is a snapshot of a batch job's progress.
type JobStatus struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	State          JobState   `json:"state"`
	TotalItems     int        `json:"total_items"`
	ProcessedItems int        `json:"processed_items"`
	SuccessCount   int        `json:"success_count"`
	FailureCount   int        `json:"failure_count"`
	Errors         []string   `json:"errors,omitempty"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        *time.Time `json:"end_time,omitempty"`
}

// job is the mutable record behind a JobStatus. Each job carries its own
// mutex so concurrent workers on one job never contend with other jobs.
type job struct {
	mu     sync.Mutex
	status JobStatus
	sealed bool
}

// Tracker holds progress records for in-flight and finished batch jobs.
type Tracker struct {
	mu      sync.RWMutex
	jobs    map[string]*job
	logger  *slog.Logger
	metrics metrics.Metrics
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger.
func WithTrackerLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithTrackerMetrics sets the metrics sink.
func WithTrackerMetrics(m metrics.Metrics) TrackerOption {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		jobs:    make(map[string]*job),
		logger:  slog.Default(),
		metrics: metrics.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartJob registers a new job with zeroed counters and returns its id.
func (t *Tracker) StartJob(kind string, totalItems int) string {
	id := uuid.New().String()
	j := &job{
		status: JobStatus{
			ID:         id,
			Kind:       kind,
			State:      JobStateProcessing,
			TotalItems: totalItems,
			StartTime:  time.Now(),
		},
	}

	t.mu.Lock()
	t.jobs[id] = j
	t.mu.Unlock()

	t.metrics.BatchJobStarted(kind)
	t.logger.Info("batch job started", "job_id", id, "kind", kind, "total_items", totalItems)
	return id
}

// RecordItemResult atomically records one item's outcome. Results arriving
// after the job is sealed are logged and dropped so finished counters stay
// intact.
func (t *Tracker) RecordItemResult(jobID string, success bool, errMsg string) error {
	j, err := t.lookup(jobID)
	if err != nil {
		return err
	}

	j.mu.Lock()
	if j.sealed {
		j.mu.Unlock()
		t.logger.Warn("item result after job completion, dropping",
			"job_id", jobID, "success", success, "error", errMsg)
		return nil
	}
	j.status.ProcessedItems++
	if success {
		j.status.SuccessCount++
	} else {
		j.status.FailureCount++
		j.status.Errors = append(j.status.Errors, errMsg)
	}
	kind := j.status.Kind
	j.mu.Unlock()

	t.metrics.BatchItemProcessed(kind, success)
	return nil
}

// CompleteJob seals the job with a terminal state. Sealing twice is a no-op.
func (t *Tracker) CompleteJob(jobID string, state JobState) error {
	j, err := t.lookup(jobID)
	if err != nil {
		return err
	}

	j.mu.Lock()
	if j.sealed {
		j.mu.Unlock()
		return nil
	}
	j.sealed = true
	now := time.Now()
	j.status.State = state
	j.status.EndTime = &now
	snapshot := j.status
	j.mu.Unlock()

	t.metrics.BatchJobCompleted(snapshot.Kind, string(state), now.Sub(snapshot.StartTime))
	t.logger.Info("batch job completed",
		"job_id", jobID,
		"kind", snapshot.Kind,
		"state", state,
		"processed", snapshot.ProcessedItems,
		"success", snapshot.SuccessCount,
		"failure", snapshot.FailureCount,
	)
	return nil
}

// GetStatus returns a snapshot of the job's progress.
func (t *Tracker) GetStatus(jobID string) (JobStatus, error) {
	j, err := t.lookup(jobID)
	if err != nil {
		return JobStatus{}, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	snapshot := j.status
	snapshot.Errors = append([]string(nil), j.status.Errors...)
	return snapshot, nil
}

func (t *Tracker) lookup(jobID string) (*job, error) {
	t.mu.RLock()
	j, ok := t.jobs[jobID]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", finflow.ErrJobNotFound, jobID)
	}
	return j, nil
}
