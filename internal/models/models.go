package models

import (
	"time"
)

// Authorization status values scraped from the portal or set by an operator.
const (
	AuthStatusPending  = "Pending"
	AuthStatusApproved = "Approved"
	AuthStatusDenied   = "Denied"
	AuthStatusExpired  = "Expired"
)

// ScrapeRun status values persisted in Postgres.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// Job states tracked in-process for the lifetime of the server.
const (
	JobStateQueued    = "queued"
	JobStateRunning   = "running"
	JobStateSucceeded = "succeeded"
	JobStateFailed    = "failed"
)

// AuthorizationRecord is one patient authorization row. AuthNumber is the
// natural key for reconciliation; the numeric ID exists only for the REST
// surface.
type AuthorizationRecord struct {
	ID               int64     `json:"id"`
	PatientName      string    `json:"patient_name"`
	AuthNumber       string    `json:"auth_number"`
	Status           string    `json:"status"`
	IsManuallyEdited bool      `json:"is_manually_edited"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RawRecord is one record as extracted from the portal, before reconciliation.
type RawRecord struct {
	PatientName string `json:"patient_name"`
	AuthNumber  string `json:"auth_number"`
	Status      string `json:"status"`
}

// ScrapeRun is the durable, append-only record of one job attempt.
// CompletedAt and DurationSeconds are set exactly once, at the terminal
// transition.
type ScrapeRun struct {
	ID              int64      `json:"id"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	DurationSeconds float64    `json:"duration_seconds"`
	RecordsFound    int        `json:"records_found"`
	RecordsSaved    int        `json:"records_saved"`
	Status          string     `json:"status"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
}

// JobStatus is an immutable snapshot of one scrape job. The orchestrator
// publishes whole values, so polling callers never see a torn update.
type JobStatus struct {
	JobID        string `json:"job_id"`
	State        string `json:"state"`
	RunID        int64  `json:"run_id,omitempty"`
	RecordsFound int    `json:"records_found,omitempty"`
	RecordsSaved int    `json:"records_saved,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Terminal reports whether the job can no longer change state.
func (j JobStatus) Terminal() bool {
	return j.State == JobStateSucceeded || j.State == JobStateFailed
}

// ValidAuthStatus reports whether s is one of the known authorization states.
func ValidAuthStatus(s string) bool {
	switch s {
	case AuthStatusPending, AuthStatusApproved, AuthStatusDenied, AuthStatusExpired:
		return true
	}
	return false
}
