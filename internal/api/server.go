package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"portal-sync/internal/metrics"
	"portal-sync/internal/models"
	"portal-sync/internal/orchestrator"
	"portal-sync/internal/ratelimit"
	"portal-sync/internal/store"
)

// JobService is the orchestrator surface the API depends on.
type JobService interface {
	Submit() (string, error)
	Status(jobID string) (models.JobStatus, error)
}

// Server wires the REST surface for the dashboard.
type Server struct {
	jobs     JobService
	store    store.Store
	limiter  *ratelimit.TriggerLimiter
	validate *validator.Validate
}

// New constructs the API server. limiter may be nil to disable rate
// limiting on the scrape trigger.
func New(jobs JobService, st store.Store, limiter *ratelimit.TriggerLimiter) *Server {
	return &Server{
		jobs:     jobs,
		store:    st,
		limiter:  limiter,
		validate: validator.New(),
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Mount("/metrics", metrics.Handler())

	r.Post("/api/scrape", s.handleTriggerScrape)
	r.Get("/api/scrape/status/{jobID}", s.handleScrapeStatus)
	r.Get("/api/authorizations", s.handleListAuthorizations)
	r.Patch("/api/authorizations/{id}", s.handlePatchAuthorization)
	r.Get("/api/stats", s.handleStats)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := s.store.Ping(r.Context()) == nil

	var lastSync *time.Time
	if run, err := s.store.LatestScrapeRun(r.Context()); err == nil && run != nil {
		lastSync = run.CompletedAt
	} else if err != nil {
		zap.L().Warn("fetch last sync time", zap.Error(err))
	}

	status := "healthy"
	database := "connected"
	if !dbHealthy {
		status = "degraded"
		database = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"database":       database,
		"last_sync_time": lastSync,
		"timestamp":      time.Now().UTC(),
	})
}

func (s *Server) handleTriggerScrape(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		allowed, _, err := s.limiter.AllowTrigger(r.Context(), clientKey(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !allowed {
			metrics.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	jobID, err := s.jobs.Submit()
	if errors.Is(err, orchestrator.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) handleScrapeStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	status, err := s.jobs.Status(jobID)
	if errors.Is(err, orchestrator.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListAuthorizations(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListAuthorizations(r.Context())
	if err != nil {
		zap.L().Error("list authorizations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list authorizations")
		return
	}
	if records == nil {
		records = []models.AuthorizationRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

type patchAuthorizationRequest struct {
	PatientName *string `json:"patient_name" validate:"omitempty,min=1"`
	AuthNumber  *string `json:"auth_number" validate:"omitempty,min=1"`
	Status      *string `json:"status" validate:"omitempty,oneof=Pending Approved Denied Expired"`
}

func (s *Server) handlePatchAuthorization(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}

	var req patchAuthorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PatientName == nil && req.AuthNumber == nil && req.Status == nil {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.store.ApplyManualEdit(r.Context(), id, store.ManualEdit{
		PatientName: req.PatientName,
		AuthNumber:  req.AuthNumber,
		Status:      req.Status,
	})
	if err != nil {
		zap.L().Error("apply manual edit", zap.Int64("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update record")
		return
	}
	if record == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.CountAuthorizations(r.Context())
	if err != nil {
		zap.L().Error("count authorizations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}
	lastRun, err := s.store.LatestScrapeRun(r.Context())
	if err != nil {
		zap.L().Error("latest scrape run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_records": total,
		"last_run":      lastRun,
	})
}

// clientKey identifies the caller for rate limiting, preferring the
// forwarded address when running behind a proxy.
func clientKey(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		return v
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
