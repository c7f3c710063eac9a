package scheduler

import (
	"errors"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"portal-sync/internal/orchestrator"
)

// Scheduler submits a scrape job on a cron schedule. A tick that lands while
// a job is still running is skipped; the orchestrator's single-job gate is
// the only admission control.
type Scheduler struct {
	cron *cron.Cron
	orch *orchestrator.Orchestrator
}

// New creates a scheduler bound to the orchestrator.
func New(orch *orchestrator.Orchestrator) *Scheduler {
	return &Scheduler{cron: cron.New(), orch: orch}
}

// Start registers the cron expression and begins ticking.
func (s *Scheduler) Start(spec string) error {
	_, err := s.cron.AddFunc(spec, s.tick)
	if err != nil {
		return eris.Wrapf(err, "scheduler: parse schedule %q", spec)
	}
	s.cron.Start()
	zap.L().Info("scheduler started", zap.String("schedule", spec))
	return nil
}

// Stop halts the cron loop. Running jobs are unaffected.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) tick() {
	jobID, err := s.orch.Submit()
	if errors.Is(err, orchestrator.ErrAlreadyRunning) {
		zap.L().Info("scheduled scrape skipped, job already running")
		return
	}
	if err != nil {
		zap.L().Error("scheduled scrape submit", zap.Error(err))
		return
	}
	zap.L().Info("scheduled scrape submitted", zap.String("job_id", jobID))
}
