package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-sync/internal/models"
)

func TestMemoryStore_UpsertAndList(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	saved, err := s.UpsertFromScrape(ctx, models.RawRecord{PatientName: "Jane Doe", AuthNumber: "B2", Status: "Pending"})
	require.NoError(t, err)
	assert.True(t, saved)
	saved, err = s.UpsertFromScrape(ctx, models.RawRecord{PatientName: "John Roe", AuthNumber: "A1", Status: "Pending"})
	require.NoError(t, err)
	assert.True(t, saved)

	records, err := s.ListAuthorizations(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "A1", records[0].AuthNumber)
	assert.Equal(t, "B2", records[1].AuthNumber)

	n, err := s.CountAuthorizations(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStore_ManualEditShieldsRecord(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	_, err := s.UpsertFromScrape(ctx, models.RawRecord{PatientName: "Jane Doe", AuthNumber: "A1", Status: "Pending"})
	require.NoError(t, err)

	status := "Denied"
	rec, err := s.ApplyManualEdit(ctx, 1, ManualEdit{Status: &status})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.True(t, rec.IsManuallyEdited)
	assert.Equal(t, "Denied", rec.Status)

	saved, err := s.UpsertFromScrape(ctx, models.RawRecord{PatientName: "Jane Doe", AuthNumber: "A1", Status: "Approved"})
	require.NoError(t, err)
	assert.False(t, saved)

	rec, err = s.GetAuthorization(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Denied", rec.Status)
}

func TestMemoryStore_ApplyManualEdit_Unknown(t *testing.T) {
	s := NewMemory()
	name := "Someone"
	rec, err := s.ApplyManualEdit(context.Background(), 123, ManualEdit{PatientName: &name})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestMemoryStore_FinishScrapeRunOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	id, err := s.CreateScrapeRun(ctx)
	require.NoError(t, err)

	require.NoError(t, s.FinishScrapeRun(ctx, id, models.RunStatusSuccess, 4, 4, nil))

	run, err := s.LatestScrapeRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	require.NotNil(t, run.CompletedAt)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, 4, run.RecordsFound)

	err = s.FinishScrapeRun(ctx, id, models.RunStatusFailed, 0, 0, nil)
	require.Error(t, err)
}
