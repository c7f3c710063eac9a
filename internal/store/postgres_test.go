package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portal-sync/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestUpsertFromScrape_Insert(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO patient_auth`).
		WithArgs("Jane Doe", "A1", "Pending").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	saved, err := s.UpsertFromScrape(context.Background(), models.RawRecord{
		PatientName: "Jane Doe",
		AuthNumber:  "A1",
		Status:      "Pending",
	})
	require.NoError(t, err)
	assert.True(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertFromScrape_ManuallyEditedRowSkipped(t *testing.T) {
	s, mock := newMockStore(t)

	// The conditional DO UPDATE excludes edited rows, so no row is affected.
	mock.ExpectExec(`INSERT INTO patient_auth`).
		WithArgs("Jane Doe", "A1", "Approved").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	saved, err := s.UpsertFromScrape(context.Background(), models.RawRecord{
		PatientName: "Jane Doe",
		AuthNumber:  "A1",
		Status:      "Approved",
	})
	require.NoError(t, err)
	assert.False(t, saved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAuthorization_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM patient_auth WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	rec, err := s.GetAuthorization(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyManualEdit_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE patient_auth`).
		WithArgs(int64(42), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	status := "Denied"
	rec, err := s.ApplyManualEdit(context.Background(), 42, ManualEdit{Status: &status})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateScrapeRun(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO scrape_run`).
		WithArgs(models.RunStatusRunning).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))

	id, err := s.CreateScrapeRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishScrapeRun_AlreadyFinalized(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE scrape_run`).
		WithArgs(int64(7), 3, 2, models.RunStatusSuccess, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishScrapeRun(context.Background(), 7, models.RunStatusSuccess, 3, 2, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already finalized")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestScrapeRun_Empty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM scrape_run`).
		WillReturnError(pgx.ErrNoRows)

	run, err := s.LatestScrapeRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}
