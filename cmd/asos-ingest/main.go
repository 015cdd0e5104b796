// Command asos-ingest runs the ASOS five-minute ingestion pipeline:
// enumerate station-months, fetch raw extracts from the NCEI archive,
// decode, normalize, quality-control, persist Parquet tables, and audit
// corpus coverage.
//
// Configuration comes from environment variables (a local .env file is
// honored); the flags below override the station set, date range, and
// refetch behavior for one invocation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/couchcryptid/asos-pipeline/internal/adapter/http"
	"github.com/couchcryptid/asos-pipeline/internal/adapter/ncei"
	"github.com/couchcryptid/asos-pipeline/internal/catalog"
	"github.com/couchcryptid/asos-pipeline/internal/config"
	"github.com/couchcryptid/asos-pipeline/internal/corpus"
	"github.com/couchcryptid/asos-pipeline/internal/coverage"
	"github.com/couchcryptid/asos-pipeline/internal/domain"
	"github.com/couchcryptid/asos-pipeline/internal/observability"
	"github.com/couchcryptid/asos-pipeline/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	stations := flag.String("stations", "", "comma-separated station IDs (overrides STATIONS)")
	start := flag.String("start", "", "start date YYYY-MM-DD (overrides START_DATE)")
	end := flag.String("end", "", "end date YYYY-MM-DD (overrides END_DATE)")
	force := flag.Bool("force", false, "refetch and rewrite units that already exist")
	validateOnly := flag.Bool("validate-only", false, "skip ingestion, only recompute coverage reports")
	catalogPath := flag.String("catalog", "", "station catalog CSV (overrides STATION_CATALOG)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}
	if err := applyFlags(cfg, *stations, *start, *end, *force, *catalogPath); err != nil {
		slog.Error("invalid flags", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			logger.Error("failed to load station catalog", "error", err)
			return 1
		}
	}
	if err := cat.Validate(cfg.Stations); err != nil {
		logger.Error("station set rejected", "error", err)
		return 1
	}

	units, err := domain.EnumerateUnits(cfg.Stations, cfg.StartDate, cfg.EndDate)
	if err != nil {
		logger.Error("cannot enumerate retrieval units", "error", err)
		return 1
	}

	cache, err := ncei.NewCache(cfg.RawDir)
	if err != nil {
		logger.Error("cannot initialize raw cache", "error", err)
		return 1
	}
	store, err := corpus.NewStore(cfg.CorpusDir, logger)
	if err != nil {
		logger.Error("cannot initialize corpus", "error", err)
		return 1
	}

	client := ncei.NewClient(ncei.Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.FetchTimeout,
		MaxAttempts: cfg.MaxAttempts,
		BackoffBase: cfg.BackoffBase,
		BackoffMax:  cfg.BackoffMax,
	}, cache, clock, logger, metrics)

	validator := coverage.NewValidator(store, coverage.Policy{
		ExcludeOutOfRange: cfg.ExcludeFlaggedFromCompleteness,
	}, logger)

	p := pipeline.New(client, store, validator, clock, logger, metrics, cfg.Workers, cfg.ForceRefetch)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if cfg.MetricsAddr != "" {
		srv = httpadapter.NewServer(cfg.MetricsAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	code := 0
	if cfg.Schedule != "" && !*validateOnly {
		code = runScheduled(ctx, cfg, p, units, logger)
	} else {
		code = runOnce(ctx, cfg, p, units, *validateOnly, logger)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}
	return code
}

// runOnce executes one ingest-then-validate cycle. The run succeeds even
// with failed units; the exit code reflects whether the corpus is complete.
func runOnce(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline,
	units []domain.RetrievalUnit, validateOnly bool, logger *slog.Logger) int {

	runLogger := logger.With("run_id", uuid.NewString())

	var failed int
	if !validateOnly {
		summary, err := p.Run(ctx, units)
		if err != nil {
			runLogger.Error("ingestion run error", "error", err)
			return 1
		}
		printSummary(summary)
		failed = len(summary.Failed)
	}

	reports, err := p.ValidateAll(ctx, cfg.Stations)
	if err != nil {
		runLogger.Error("coverage validation failed", "error", err)
		return 1
	}
	printReports(reports)

	if failed > 0 {
		return 1
	}
	return 0
}

// runScheduled re-runs ingestion on a cron schedule until interrupted.
// The archive gains one file per station per month, so a daily or monthly
// schedule keeps the corpus current without manual runs.
func runScheduled(ctx context.Context, cfg *config.Config, p *pipeline.Pipeline,
	units []domain.RetrievalUnit, logger *slog.Logger) int {

	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Cron(cfg.Schedule).Do(func() {
		runOnce(ctx, cfg, p, units, false, logger)
	})
	if err != nil {
		logger.Error("invalid schedule", "schedule", cfg.Schedule, "error", err)
		return 1
	}

	logger.Info("scheduled mode", "schedule", cfg.Schedule)
	scheduler.StartAsync()
	<-ctx.Done()
	scheduler.Stop()
	logger.Info("scheduler stopped")
	return 0
}

func applyFlags(cfg *config.Config, stations, start, end string, force bool, catalogPath string) error {
	if stations != "" {
		cfg.Stations = nil
		for _, s := range strings.Split(stations, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Stations = append(cfg.Stations, s)
			}
		}
	}
	if start != "" {
		t, err := time.ParseInLocation(time.DateOnly, start, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid -start %q: expected YYYY-MM-DD", start)
		}
		cfg.StartDate = t
	}
	if end != "" {
		t, err := time.ParseInLocation(time.DateOnly, end, time.UTC)
		if err != nil {
			return fmt.Errorf("invalid -end %q: expected YYYY-MM-DD", end)
		}
		cfg.EndDate = t
	}
	if force {
		cfg.ForceRefetch = true
	}
	if catalogPath != "" {
		cfg.CatalogPath = catalogPath
	}
	return cfg.Validate()
}

func printSummary(s pipeline.Summary) {
	fmt.Printf("ingestion: %d written, %d skipped, %d failed, %d records in %v\n",
		len(s.Written), len(s.Skipped), len(s.Failed), s.Records, s.Duration.Round(time.Millisecond))
	for _, f := range s.Failed {
		fmt.Printf("  FAILED %s: %v\n", f.Unit, f.Err)
	}
}

func printReports(reports []domain.CoverageReport) {
	for _, r := range reports {
		pct := 0.0
		if r.ExpectedSamples > 0 {
			pct = 100 * float64(r.ActualSamples) / float64(r.ExpectedSamples)
		}
		fmt.Printf("coverage %s: %d/%d samples (%.1f%%), %d gap(s)\n",
			r.Unit(), r.ActualSamples, r.ExpectedSamples, pct, len(r.Gaps))
	}
}
