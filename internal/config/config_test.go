package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "https://the-internet.herokuapp.com/login", cfg.PortalLoginURL)
	assert.True(t, cfg.ScraperHeadless)
	assert.Equal(t, 2*time.Minute, cfg.ScrapeTimeout)
	assert.Empty(t, cfg.ScrapeSchedule)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("SCRAPE_TIMEOUT", "45s")
	t.Setenv("SCRAPE_SCHEDULE", "0 * * * *")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.HTTPPort)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 45*time.Second, cfg.ScrapeTimeout)
	assert.Equal(t, "0 * * * *", cfg.ScrapeSchedule)
}
