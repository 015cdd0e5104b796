// Package config loads pipeline settings from environment variables, with
// .env support in the CLI and struct-level validation at load time.
// Configuration errors are fatal and raised before any work starts.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the immutable run configuration threaded into the enumerator
// and workers. No component reads ambient state after Load returns.
type Config struct {
	Stations  []string  `validate:"min=1,dive,len=4"`
	StartDate time.Time `validate:"required"`
	EndDate   time.Time `validate:"required"`

	BaseURL      string `validate:"required,url"`
	RawDir       string `validate:"required"`
	CorpusDir    string `validate:"required"`
	CatalogPath  string // empty = built-in catalog
	ForceRefetch bool

	Workers      int           `validate:"min=1,max=64"`
	FetchTimeout time.Duration `validate:"min=1s"`
	MaxAttempts  int           `validate:"min=1,max=10"`
	BackoffBase  time.Duration `validate:"min=1ms"`
	BackoffMax   time.Duration `validate:"min=1ms"`

	// Coverage policy: when true, out-of-range-flagged values are excluded
	// from the completeness numerator.
	ExcludeFlaggedFromCompleteness bool

	MetricsAddr     string // empty disables the metrics HTTP server
	Schedule        string // cron expression; empty = run once
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration `validate:"min=1s"`
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	startDate, err := parseDate("START_DATE", "2024-01-01")
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("END_DATE", "2024-12-31")
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parseDurationEnv("FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	backoffBase, err := parseDurationEnv("BACKOFF_BASE", "500ms")
	if err != nil {
		return nil, err
	}
	backoffMax, err := parseDurationEnv("BACKOFF_MAX", "30s")
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Stations:     splitList(envOrDefault("STATIONS", "KNYC,KJFK,KLGA")),
		StartDate:    startDate,
		EndDate:      endDate,
		BaseURL:      envOrDefault("NCEI_BASE_URL", "https://www.ncei.noaa.gov/data/automated-surface-observing-system-five-minute/access"),
		RawDir:       envOrDefault("RAW_DIR", "data/raw"),
		CorpusDir:    envOrDefault("CORPUS_DIR", "data/corpus"),
		CatalogPath:  os.Getenv("STATION_CATALOG"),
		ForceRefetch: envBool("FORCE_REFETCH"),

		Workers:      envInt("WORKERS", 4),
		FetchTimeout: fetchTimeout,
		MaxAttempts:  envInt("MAX_ATTEMPTS", 4),
		BackoffBase:  backoffBase,
		BackoffMax:   backoffMax,

		ExcludeFlaggedFromCompleteness: envBool("EXCLUDE_FLAGGED_FROM_COMPLETENESS"),

		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		Schedule:        os.Getenv("SCHEDULE"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration, including rules the struct tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.EndDate.Before(c.StartDate) {
		return fmt.Errorf("invalid configuration: END_DATE %s precedes START_DATE %s",
			c.EndDate.Format(time.DateOnly), c.StartDate.Format(time.DateOnly))
	}
	if c.BackoffMax < c.BackoffBase {
		return fmt.Errorf("invalid configuration: BACKOFF_MAX is below BACKOFF_BASE")
	}
	return nil
}

var validate = validator.New()

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	return os.Getenv(key) == "true"
}

func envInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDate(key, fallback string) (time.Time, error) {
	raw := envOrDefault(key, fallback)
	t, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", key, raw)
	}
	return t, nil
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}
