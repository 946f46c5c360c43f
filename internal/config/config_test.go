package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Scraper.Timeout)
	assert.Equal(t, 3, cfg.Scraper.MaxRetries)
	assert.Equal(t, 2, cfg.Scraper.BackoffFactor)
	assert.True(t, cfg.Scraper.VerifySSL)
	assert.Equal(t, 48*time.Hour, cfg.Monitor.Interval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SCRAPER_TIMEOUT", "30s")
	t.Setenv("SCRAPER_USE_PROXY", "true")
	t.Setenv("SCRAPER_DOMAINS", "trendyol.com, ty.gl")
	t.Setenv("CHECKER_INTERVAL", "2h")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Scraper.Timeout)
	assert.True(t, cfg.Scraper.UseProxy)
	assert.Equal(t, []string{"trendyol.com", "ty.gl"}, cfg.Scraper.Domains)
	assert.Equal(t, 2*time.Hour, cfg.Checker.Interval)
}

func TestValidatePartialCredentials(t *testing.T) {
	t.Setenv("TRENDYOL_API_KEY", "key-only")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())

	t.Setenv("TRENDYOL_API_SECRET", "secret")
	t.Setenv("TRENDYOL_SUPPLIER_ID", "42")

	cfg, err = Load()
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}

func TestValidateDelayOrder(t *testing.T) {
	t.Setenv("SCRAPER_MIN_DELAY", "5s")
	t.Setenv("SCRAPER_MAX_DELAY", "1s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}
