package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"portal-sync/internal/models"
)

// MemoryStore is an in-process Store for local development and tests. It
// mirrors the Postgres implementation's semantics, including the
// manual-edit guard and the once-only terminal write on scrape runs.
type MemoryStore struct {
	mu         sync.Mutex
	byAuth     map[string]*models.AuthorizationRecord
	byID       map[int64]*models.AuthorizationRecord
	runs       map[int64]*models.ScrapeRun
	nextAuthID int64
	nextRunID  int64
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byAuth:     make(map[string]*models.AuthorizationRecord),
		byID:       make(map[int64]*models.AuthorizationRecord),
		runs:       make(map[int64]*models.ScrapeRun),
		nextAuthID: 1,
		nextRunID:  1,
	}
}

func (s *MemoryStore) UpsertFromScrape(_ context.Context, rec models.RawRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.byAuth[rec.AuthNumber]; ok {
		if existing.IsManuallyEdited {
			return false, nil
		}
		existing.PatientName = rec.PatientName
		existing.Status = rec.Status
		existing.UpdatedAt = now
		return true, nil
	}

	record := &models.AuthorizationRecord{
		ID:          s.nextAuthID,
		PatientName: rec.PatientName,
		AuthNumber:  rec.AuthNumber,
		Status:      rec.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.nextAuthID++
	s.byAuth[rec.AuthNumber] = record
	s.byID[record.ID] = record
	return true, nil
}

func (s *MemoryStore) GetAuthorization(_ context.Context, id int64) (*models.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListAuthorizations(_ context.Context) ([]models.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.AuthorizationRecord, 0, len(s.byAuth))
	for _, rec := range s.byAuth {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AuthNumber < out[j].AuthNumber })
	return out, nil
}

func (s *MemoryStore) CountAuthorizations(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.byAuth)), nil
}

func (s *MemoryStore) ApplyManualEdit(_ context.Context, id int64, edit ManualEdit) (*models.AuthorizationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	if edit.AuthNumber != nil && *edit.AuthNumber != rec.AuthNumber {
		if _, taken := s.byAuth[*edit.AuthNumber]; taken {
			return nil, eris.Errorf("store: auth number %s already exists", *edit.AuthNumber)
		}
		delete(s.byAuth, rec.AuthNumber)
		rec.AuthNumber = *edit.AuthNumber
		s.byAuth[rec.AuthNumber] = rec
	}
	if edit.PatientName != nil {
		rec.PatientName = *edit.PatientName
	}
	if edit.Status != nil {
		rec.Status = *edit.Status
	}
	rec.IsManuallyEdited = true
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) CreateScrapeRun(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &models.ScrapeRun{
		ID:        s.nextRunID,
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	s.nextRunID++
	s.runs[run.ID] = run
	return run.ID, nil
}

func (s *MemoryStore) FinishScrapeRun(_ context.Context, id int64, status string, found, saved int, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok || run.CompletedAt != nil {
		return eris.Errorf("store: scrape run %d missing or already finalized", id)
	}
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.DurationSeconds = now.Sub(run.StartedAt).Seconds()
	run.RecordsFound = found
	run.RecordsSaved = saved
	run.Status = status
	run.ErrorMessage = errMsg
	return nil
}

func (s *MemoryStore) LatestScrapeRun(_ context.Context) (*models.ScrapeRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.ScrapeRun
	for _, run := range s.runs {
		if latest == nil || run.StartedAt.After(latest.StartedAt) ||
			(run.StartedAt.Equal(latest.StartedAt) && run.ID > latest.ID) {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}
