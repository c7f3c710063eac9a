package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	ScrapesTriggered = prometheus.NewCounter(prometheus.CounterOpts{Name: "portalsync_scrapes_triggered_total", Help: "Scrape jobs admitted"})
	ScrapesSucceeded = prometheus.NewCounter(prometheus.CounterOpts{Name: "portalsync_scrapes_succeeded_total", Help: "Scrape jobs that completed successfully"})
	ScrapesFailed    = prometheus.NewCounter(prometheus.CounterOpts{Name: "portalsync_scrapes_failed_total", Help: "Scrape jobs that ended in failure"})
	RecordsFound     = prometheus.NewCounter(prometheus.CounterOpts{Name: "portalsync_records_found_total", Help: "Records observed across all scrapes"})
	RecordsSaved     = prometheus.NewCounter(prometheus.CounterOpts{Name: "portalsync_records_saved_total", Help: "Records inserted or updated across all scrapes"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "portalsync_rate_limit_rejects_total", Help: "Scrape triggers rejected by the rate limiter"})
	LastRunDuration  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "portalsync_last_run_duration_seconds", Help: "Duration of the most recent scrape run"})
	StoredRecords    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "portalsync_stored_records", Help: "Authorization records currently in the store"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			ScrapesTriggered,
			ScrapesSucceeded,
			ScrapesFailed,
			RecordsFound,
			RecordsSaved,
			RateLimitRejects,
			LastRunDuration,
			StoredRecords,
		)
	})
	return promhttp.Handler()
}
