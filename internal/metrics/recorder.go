package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"portal-sync/internal/models"
	"portal-sync/internal/store"
)

// Recorder persists one ScrapeRun row per job attempt and keeps the
// Prometheus instruments in step with it.
type Recorder struct {
	store store.Store

	mu        sync.Mutex
	startedAt map[int64]time.Time
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(st store.Store) *Recorder {
	return &Recorder{store: st, startedAt: make(map[int64]time.Time)}
}

// StartRun opens a running scrape_run row and returns its id.
func (r *Recorder) StartRun(ctx context.Context) (int64, error) {
	id, err := r.store.CreateScrapeRun(ctx)
	if err != nil {
		return 0, err
	}
	ScrapesTriggered.Inc()
	r.mu.Lock()
	r.startedAt[id] = time.Now()
	r.mu.Unlock()
	return id, nil
}

// FinishRun finalizes the run exactly once with counts and outcome. runErr,
// when non-nil, becomes the persisted error message.
func (r *Recorder) FinishRun(ctx context.Context, runID int64, status string, found, saved int, runErr error) error {
	var msg *string
	if runErr != nil {
		m := runErr.Error()
		msg = &m
	}
	if err := r.store.FinishScrapeRun(ctx, runID, status, found, saved, msg); err != nil {
		return err
	}

	switch status {
	case models.RunStatusSuccess:
		ScrapesSucceeded.Inc()
	case models.RunStatusFailed:
		ScrapesFailed.Inc()
	}
	RecordsFound.Add(float64(found))
	RecordsSaved.Add(float64(saved))

	r.mu.Lock()
	if start, ok := r.startedAt[runID]; ok {
		LastRunDuration.Set(time.Since(start).Seconds())
		delete(r.startedAt, runID)
	}
	r.mu.Unlock()

	if total, err := r.store.CountAuthorizations(ctx); err == nil {
		StoredRecords.Set(float64(total))
	} else {
		zap.L().Warn("count stored records", zap.Error(err))
	}
	return nil
}
