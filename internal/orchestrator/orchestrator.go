package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"portal-sync/internal/metrics"
	"portal-sync/internal/models"
	"portal-sync/internal/reconcile"
	"portal-sync/internal/scraper"
)

var (
	// ErrAlreadyRunning is returned by Submit while a job is in flight.
	ErrAlreadyRunning = errors.New("a scrape job is already running")
	// ErrJobNotFound is returned by Status for unknown job ids.
	ErrJobNotFound = errors.New("job not found")
)

// Orchestrator owns the scrape job lifecycle. At most one job is in flight
// at a time: Submit rejects while a job is active rather than queueing, so a
// caller always gets an immediate answer. A single worker goroutine performs
// all job mutation; readers only ever see whole JobStatus snapshots.
type Orchestrator struct {
	source   scraper.Source
	engine   *reconcile.Engine
	recorder *metrics.Recorder
	timeout  time.Duration

	mu     sync.Mutex
	jobs   map[string]models.JobStatus
	active string

	work chan string
}

// New wires an Orchestrator. timeout bounds the extraction phase of each
// job; without it a stuck portal session would hold the single job slot
// forever.
func New(source scraper.Source, engine *reconcile.Engine, recorder *metrics.Recorder, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		source:   source,
		engine:   engine,
		recorder: recorder,
		timeout:  timeout,
		jobs:     make(map[string]models.JobStatus),
		work:     make(chan string, 1),
	}
}

// Start launches the worker goroutine. It returns immediately; the worker
// runs until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case jobID := <-o.work:
				o.run(ctx, jobID)
			}
		}
	}()
}

// Submit admits a new scrape job, returning its id, or ErrAlreadyRunning
// while another job is active. A returned id is immediately queryable via
// Status.
func (o *Orchestrator) Submit() (string, error) {
	o.mu.Lock()
	if o.active != "" {
		o.mu.Unlock()
		return "", ErrAlreadyRunning
	}
	jobID := uuid.New().String()
	o.active = jobID
	o.jobs[jobID] = models.JobStatus{JobID: jobID, State: models.JobStateQueued}
	o.mu.Unlock()

	// Capacity 1 and the active guard above make this send non-blocking.
	o.work <- jobID
	return jobID, nil
}

// Status returns the latest snapshot for a job. Snapshots are monotonic
// along queued -> running -> succeeded/failed; finished jobs remain
// queryable for the process lifetime.
func (o *Orchestrator) Status(jobID string) (models.JobStatus, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	status, ok := o.jobs[jobID]
	if !ok {
		return models.JobStatus{}, ErrJobNotFound
	}
	return status, nil
}

// publish replaces the job's snapshot; a terminal snapshot frees the
// single-job slot.
func (o *Orchestrator) publish(status models.JobStatus) {
	o.mu.Lock()
	o.jobs[status.JobID] = status
	if status.Terminal() && o.active == status.JobID {
		o.active = ""
	}
	o.mu.Unlock()
}

// run executes one job end to end. Every failure path lands in a terminal
// failed state with a finalized scrape run; no error escapes the job
// boundary.
func (o *Orchestrator) run(ctx context.Context, jobID string) {
	log := zap.L().With(zap.String("job_id", jobID))

	runID, err := o.recorder.StartRun(ctx)
	if err != nil {
		log.Error("open scrape run", zap.Error(err))
		o.publish(models.JobStatus{JobID: jobID, State: models.JobStateFailed, Error: err.Error()})
		return
	}

	status := models.JobStatus{JobID: jobID, State: models.JobStateRunning, RunID: runID}
	o.publish(status)
	log.Info("scrape job running", zap.Int64("run_id", runID))

	extractCtx, cancel := context.WithTimeout(ctx, o.timeout)
	records, err := o.source.Extract(extractCtx)
	cancel()
	if err != nil {
		o.fail(ctx, log, status, 0, 0, err)
		return
	}

	result, err := o.engine.Reconcile(ctx, records)
	if err != nil {
		o.fail(ctx, log, status, result.RecordsFound, result.RecordsSaved, err)
		return
	}

	// The run row must be finalized before the job is reported terminal; a
	// job that cannot record its outcome did not succeed.
	if err := o.recorder.FinishRun(ctx, runID, models.RunStatusSuccess, result.RecordsFound, result.RecordsSaved, nil); err != nil {
		log.Error("finalize scrape run", zap.Error(err))
		status.State = models.JobStateFailed
		status.RecordsFound = result.RecordsFound
		status.RecordsSaved = result.RecordsSaved
		status.Error = err.Error()
		o.publish(status)
		return
	}
	status.State = models.JobStateSucceeded
	status.RecordsFound = result.RecordsFound
	status.RecordsSaved = result.RecordsSaved
	o.publish(status)
	log.Info("scrape job succeeded",
		zap.Int("records_found", result.RecordsFound),
		zap.Int("records_saved", result.RecordsSaved))
}

func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, status models.JobStatus, found, saved int, jobErr error) {
	if err := o.recorder.FinishRun(ctx, status.RunID, models.RunStatusFailed, found, saved, jobErr); err != nil {
		log.Error("finalize failed scrape run", zap.Error(err))
	}
	status.State = models.JobStateFailed
	status.RecordsFound = found
	status.RecordsSaved = saved
	status.Error = jobErr.Error()
	o.publish(status)
	log.Warn("scrape job failed", zap.Error(jobErr))
}
