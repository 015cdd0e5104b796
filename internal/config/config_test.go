package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/asos-pipeline/internal/config"
)

// clearEnv unsets every variable Load reads so the ambient environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"STATIONS", "START_DATE", "END_DATE", "NCEI_BASE_URL",
		"RAW_DIR", "CORPUS_DIR", "STATION_CATALOG", "FORCE_REFETCH",
		"WORKERS", "FETCH_TIMEOUT", "MAX_ATTEMPTS", "BACKOFF_BASE",
		"BACKOFF_MAX", "EXCLUDE_FLAGGED_FROM_COMPLETENESS",
		"METRICS_ADDR", "SCHEDULE", "LOG_LEVEL", "LOG_FORMAT",
		"SHUTDOWN_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"KNYC", "KJFK", "KLGA"}, cfg.Stations)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), cfg.EndDate)
	assert.Equal(t, "data/raw", cfg.RawDir)
	assert.Equal(t, "data/corpus", cfg.CorpusDir)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.BackoffMax)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.ForceRefetch)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, cfg.Schedule)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATIONS", "KSEA, KPDX")
	t.Setenv("START_DATE", "2023-06-01")
	t.Setenv("END_DATE", "2023-08-31")
	t.Setenv("WORKERS", "8")
	t.Setenv("BACKOFF_BASE", "100ms")
	t.Setenv("FORCE_REFETCH", "true")
	t.Setenv("EXCLUDE_FLAGGED_FROM_COMPLETENESS", "true")
	t.Setenv("SCHEDULE", "0 3 * * *")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"KSEA", "KPDX"}, cfg.Stations)
	assert.Equal(t, time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 100*time.Millisecond, cfg.BackoffBase)
	assert.True(t, cfg.ForceRefetch)
	assert.True(t, cfg.ExcludeFlaggedFromCompleteness)
	assert.Equal(t, "0 3 * * *", cfg.Schedule)
}

func TestLoad_RejectsBadDate(t *testing.T) {
	clearEnv(t)
	t.Setenv("START_DATE", "01/06/2023")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "START_DATE")
}

func TestLoad_RejectsInvertedDateRange(t *testing.T) {
	clearEnv(t)
	t.Setenv("START_DATE", "2024-06-01")
	t.Setenv("END_DATE", "2024-01-01")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precedes")
}

func TestLoad_RejectsBadStationID(t *testing.T) {
	clearEnv(t)
	t.Setenv("STATIONS", "KNYC,JFK")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_RejectsBackoffMaxBelowBase(t *testing.T) {
	clearEnv(t)
	t.Setenv("BACKOFF_BASE", "10s")
	t.Setenv("BACKOFF_MAX", "1s")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKOFF_MAX")
}

func TestLoad_RejectsTooManyWorkers(t *testing.T) {
	clearEnv(t)
	t.Setenv("WORKERS", "100")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_RejectsBadDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("FETCH_TIMEOUT", "soon")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FETCH_TIMEOUT")
}
