package reconcile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"portal-sync/internal/models"
	"portal-sync/internal/store"
)

// Result summarizes one reconcile call. RecordsFound counts every record
// processed; RecordsSaved counts only inserts and content updates.
type Result struct {
	RecordsFound int `json:"records_found"`
	RecordsSaved int `json:"records_saved"`
}

// Engine merges scraped batches into the store without disturbing manually
// edited records.
type Engine struct {
	store store.Store
}

// New creates an Engine over the given store.
func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// Reconcile upserts each record by auth number. Every record in the batch
// counts as found, including ones with no auth number or a manually edited
// row; only actual writes count as saved.
// The first store failure aborts the call; records committed before it stay
// committed. Re-running the same batch is idempotent.
func (e *Engine) Reconcile(ctx context.Context, batch []models.RawRecord) (Result, error) {
	var res Result
	for _, rec := range batch {
		res.RecordsFound++
		if rec.AuthNumber == "" {
			zap.L().Warn("skipping record without auth number", zap.String("patient", rec.PatientName))
			continue
		}
		if rec.Status == "" {
			rec.Status = models.AuthStatusPending
		}

		saved, err := e.store.UpsertFromScrape(ctx, rec)
		if err != nil {
			return res, eris.Wrapf(err, "reconcile: persist %s", rec.AuthNumber)
		}
		if saved {
			res.RecordsSaved++
		}
	}
	return res, nil
}
