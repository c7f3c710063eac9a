package store

import (
	"context"

	"portal-sync/internal/models"
)

// ManualEdit is a partial update applied by an operator. Nil fields are left
// untouched. Applying an edit always sets is_manually_edited, which shields
// the record's content from later scrape writes.
type ManualEdit struct {
	PatientName *string
	AuthNumber  *string
	Status      *string
}

// Store defines persistence for authorization records and scrape runs.
type Store interface {
	// Authorizations
	UpsertFromScrape(ctx context.Context, rec models.RawRecord) (saved bool, err error)
	GetAuthorization(ctx context.Context, id int64) (*models.AuthorizationRecord, error)
	ListAuthorizations(ctx context.Context) ([]models.AuthorizationRecord, error)
	CountAuthorizations(ctx context.Context) (int64, error)
	ApplyManualEdit(ctx context.Context, id int64, edit ManualEdit) (*models.AuthorizationRecord, error)

	// Scrape runs
	CreateScrapeRun(ctx context.Context) (int64, error)
	FinishScrapeRun(ctx context.Context, id int64, status string, found, saved int, errMsg *string) error
	LatestScrapeRun(ctx context.Context) (*models.ScrapeRun, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close()
}
