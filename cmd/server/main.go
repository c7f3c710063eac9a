package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"portal-sync/internal/api"
	"portal-sync/internal/config"
	"portal-sync/internal/metrics"
	"portal-sync/internal/orchestrator"
	"portal-sync/internal/ratelimit"
	"portal-sync/internal/reconcile"
	"portal-sync/internal/scheduler"
	"portal-sync/internal/scraper"
	"portal-sync/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.InitLogger(cfg); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := openStore(ctx, cfg)
	if err != nil {
		zap.L().Fatal("open store", zap.Error(err))
	}
	defer st.Close()

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

	orch := orchestrator.New(source, engine, recorder, cfg.ScrapeTimeout)
	orch.Start(ctx)

	var limiter *ratelimit.TriggerLimiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		limiter = ratelimit.NewTriggerLimiter(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	}

	if cfg.ScrapeSchedule != "" {
		sched := scheduler.New(orch)
		if err := sched.Start(cfg.ScrapeSchedule); err != nil {
			zap.L().Fatal("start scheduler", zap.Error(err))
		}
		defer sched.Stop()
	}

	server := api.New(orch, st, limiter)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	zap.L().Info("api listening", zap.String("port", cfg.HTTPPort))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

// openStore selects the configured backend. Postgres waits for the database
// to come up and applies migrations before serving.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	if cfg.StoreDriver == "memory" {
		zap.L().Warn("using in-memory store, records will not survive restart")
		return store.NewMemory(), nil
	}

	var st *store.PostgresStore
	var err error
	for attempt := 1; attempt <= 30; attempt++ {
		st, err = store.NewPostgres(ctx, cfg.PostgresDSN)
		if err == nil {
			break
		}
		zap.L().Info("database not ready, retrying", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return nil, err
	}
	if err := st.RunMigrations(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
