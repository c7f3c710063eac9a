package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"portal-sync/internal/models"
)

// Pool is the subset of pgxpool.Pool the store uses. Tests substitute a
// pgxmock pool.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store over a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a pooled connection to Postgres and verifies it.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse postgres dsn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping postgres")
	}
	return &PostgresStore{pool: pool}, nil
}

const authColumns = `id, patient_name, auth_number, status, is_manually_edited, created_at, updated_at`

// UpsertFromScrape inserts or refreshes one scraped record keyed by
// auth_number. The conditional update leaves manually edited rows untouched;
// re-reading the flag inside the row-level write is what keeps a concurrent
// manual edit from being clobbered by a scrape that started earlier.
func (s *PostgresStore) UpsertFromScrape(ctx context.Context, rec models.RawRecord) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO patient_auth (patient_name, auth_number, status, is_manually_edited, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, NOW(), NOW())
		ON CONFLICT (auth_number) DO UPDATE
		SET patient_name = EXCLUDED.patient_name,
		    status = EXCLUDED.status,
		    updated_at = NOW()
		WHERE NOT patient_auth.is_manually_edited
	`, rec.PatientName, rec.AuthNumber, rec.Status)
	if err != nil {
		return false, eris.Wrapf(err, "store: upsert auth %s", rec.AuthNumber)
	}
	return tag.RowsAffected() > 0, nil
}

// GetAuthorization fetches one record by id. Returns (nil, nil) when absent.
func (s *PostgresStore) GetAuthorization(ctx context.Context, id int64) (*models.AuthorizationRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+authColumns+` FROM patient_auth WHERE id = $1`, id)
	rec, err := scanAuth(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: get authorization")
	}
	return rec, nil
}

// ListAuthorizations returns all records ordered by auth_number so polling
// clients see a stable order.
func (s *PostgresStore) ListAuthorizations(ctx context.Context) ([]models.AuthorizationRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+authColumns+` FROM patient_auth ORDER BY auth_number`)
	if err != nil {
		return nil, eris.Wrap(err, "store: list authorizations")
	}
	defer rows.Close()

	var out []models.AuthorizationRecord
	for rows.Next() {
		rec, err := scanAuth(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan authorization")
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate authorizations")
	}
	return out, nil
}

// CountAuthorizations returns the total number of stored records.
func (s *PostgresStore) CountAuthorizations(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patient_auth`).Scan(&n); err != nil {
		return 0, eris.Wrap(err, "store: count authorizations")
	}
	return n, nil
}

// ApplyManualEdit applies a partial operator update and marks the record
// manually edited. Returns (nil, nil) when the id is unknown.
func (s *PostgresStore) ApplyManualEdit(ctx context.Context, id int64, edit ManualEdit) (*models.AuthorizationRecord, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE patient_auth
		SET patient_name = COALESCE($2, patient_name),
		    auth_number = COALESCE($3, auth_number),
		    status = COALESCE($4, status),
		    is_manually_edited = TRUE,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+authColumns,
		id, edit.PatientName, edit.AuthNumber, edit.Status)
	rec, err := scanAuth(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: apply manual edit")
	}
	return rec, nil
}

// CreateScrapeRun inserts a running scrape_run row and returns its id.
func (s *PostgresStore) CreateScrapeRun(ctx context.Context) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO scrape_run (started_at, status, records_found, records_saved)
		VALUES (NOW(), $1, 0, 0)
		RETURNING id
	`, models.RunStatusRunning).Scan(&id)
	if err != nil {
		return 0, eris.Wrap(err, "store: create scrape run")
	}
	return id, nil
}

// FinishScrapeRun finalizes a run. The completed_at guard makes the terminal
// write happen at most once; a second call is an error.
func (s *PostgresStore) FinishScrapeRun(ctx context.Context, id int64, status string, found, saved int, errMsg *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE scrape_run
		SET completed_at = NOW(),
		    duration_seconds = EXTRACT(EPOCH FROM (NOW() - started_at)),
		    records_found = $2,
		    records_saved = $3,
		    status = $4,
		    error_message = $5
		WHERE id = $1 AND completed_at IS NULL
	`, id, found, saved, status, errMsg)
	if err != nil {
		return eris.Wrap(err, "store: finish scrape run")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("store: scrape run %d missing or already finalized", id)
	}
	return nil
}

// LatestScrapeRun returns the most recently started run, or (nil, nil) when
// no run exists yet.
func (s *PostgresStore) LatestScrapeRun(ctx context.Context) (*models.ScrapeRun, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, started_at, completed_at, duration_seconds, records_found, records_saved, status, error_message
		FROM scrape_run
		ORDER BY started_at DESC
		LIMIT 1
	`)

	var run models.ScrapeRun
	var completed pgtype.Timestamptz
	var duration pgtype.Float8
	var errMsg pgtype.Text
	err := row.Scan(&run.ID, &run.StartedAt, &completed, &duration, &run.RecordsFound, &run.RecordsSaved, &run.Status, &errMsg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: latest scrape run")
	}
	if completed.Valid {
		t := completed.Time
		run.CompletedAt = &t
	}
	if duration.Valid {
		run.DurationSeconds = duration.Float64
	}
	if errMsg.Valid {
		m := errMsg.String
		run.ErrorMessage = &m
	}
	return &run, nil
}

// Ping verifies store connectivity for health checks.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func scanAuth(row pgx.Row) (*models.AuthorizationRecord, error) {
	var rec models.AuthorizationRecord
	if err := row.Scan(&rec.ID, &rec.PatientName, &rec.AuthNumber, &rec.Status, &rec.IsManuallyEdited, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}
