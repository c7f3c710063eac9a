// One-shot extraction and reconcile run without the HTTP server, for cron
// jobs and manual operator use.
package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"portal-sync/internal/config"
	"portal-sync/internal/metrics"
	"portal-sync/internal/models"
	"portal-sync/internal/reconcile"
	"portal-sync/internal/scraper"
	"portal-sync/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("load config: %v", err)
		return 1
	}
	if err := config.InitLogger(cfg); err != nil {
		log.Printf("init logger: %v", err)
		return 1
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ScrapeTimeout)
	defer cancel()

	st, err := store.NewPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		zap.L().Error("connect postgres", zap.Error(err))
		return 1
	}
	defer st.Close()
	if err := st.RunMigrations(ctx); err != nil {
		zap.L().Error("migrations", zap.Error(err))
		return 1
	}

	source := scraper.NewPortal(scraper.Config{
		LoginURL:   cfg.PortalLoginURL,
		RecordsURL: cfg.PortalRecordsURL,
		Username:   cfg.PortalUsername,
		Password:   cfg.PortalPassword,
		Headless:   cfg.ScraperHeadless,
		Retries:    cfg.ScraperRetries,
	})
	engine := reconcile.New(st)
	recorder := metrics.NewRecorder(st)

	runID, err := recorder.StartRun(ctx)
	if err != nil {
		zap.L().Error("open scrape run", zap.Error(err))
		return 1
	}

	records, err := source.Extract(ctx)
	if err != nil {
		_ = recorder.FinishRun(ctx, runID, models.RunStatusFailed, 0, 0, err)
		zap.L().Error("extraction failed", zap.Error(err))
		return 1
	}

	result, err := engine.Reconcile(ctx, records)
	if err != nil {
		_ = recorder.FinishRun(ctx, runID, models.RunStatusFailed, result.RecordsFound, result.RecordsSaved, err)
		zap.L().Error("reconcile failed", zap.Error(err))
		return 1
	}

	if err := recorder.FinishRun(ctx, runID, models.RunStatusSuccess, result.RecordsFound, result.RecordsSaved, nil); err != nil {
		zap.L().Error("finalize scrape run", zap.Error(err))
		return 1
	}
	zap.L().Info("scrape complete",
		zap.Int("records_found", result.RecordsFound),
		zap.Int("records_saved", result.RecordsSaved))
	return 0
}
