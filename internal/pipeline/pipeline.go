// Package pipeline orchestrates ingestion: a bounded worker pool runs
// fetch, decode, normalize/QC, and write for one retrieval unit at a time,
// so units are both the unit of concurrency and of failure isolation. A
// failed unit never blocks or aborts the others.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/asos-pipeline/internal/corpus"
	"github.com/couchcryptid/asos-pipeline/internal/coverage"
	"github.com/couchcryptid/asos-pipeline/internal/decode"
	"github.com/couchcryptid/asos-pipeline/internal/domain"
	"github.com/couchcryptid/asos-pipeline/internal/observability"
	"github.com/couchcryptid/asos-pipeline/internal/qc"
)

// Fetcher retrieves the raw extract for one unit.
type Fetcher interface {
	Fetch(ctx context.Context, unit domain.RetrievalUnit) (domain.RawExtract, error)
}

// Store persists and enumerates station-month tables.
type Store interface {
	Exists(unit domain.RetrievalUnit) bool
	Write(unit domain.RetrievalUnit, retrievedAt time.Time, records []domain.ObservationRecord) (corpus.Manifest, error)
	Dir() string
}

// UnitFailure records one unit that could not be ingested.
type UnitFailure struct {
	Unit domain.RetrievalUnit
	Err  error
}

// Summary is the result of one ingestion run. The run as a whole succeeds
// even with failed units; the caller inspects Failed to decide whether a
// partial run is acceptable.
type Summary struct {
	Written  []domain.RetrievalUnit
	Skipped  []domain.RetrievalUnit
	Failed   []UnitFailure
	Records  int
	Duration time.Duration
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	fetcher   Fetcher
	store     Store
	validator *coverage.Validator
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	workers   int
	force     bool
	processed atomic.Int64
}

// New creates a pipeline. workers bounds ingestion concurrency; force
// disables the idempotent skip so every unit is refetched and rewritten.
func New(fetcher Fetcher, store Store, validator *coverage.Validator, clock clockwork.Clock,
	logger *slog.Logger, metrics *observability.Metrics, workers int, force bool) *Pipeline {

	if workers <= 0 {
		workers = 4
	}
	return &Pipeline{
		fetcher:   fetcher,
		store:     store,
		validator: validator,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		workers:   workers,
		force:     force,
	}
}

// CheckReadiness reports ready once at least one unit has been processed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if p.processed.Load() == 0 {
		return fmt.Errorf("no retrieval units processed yet")
	}
	return nil
}

// Run ingests the given units through the bounded worker pool and returns
// the full written/skipped/failed accounting. Cancellation stops new units
// from starting; in-flight units finish or fail cleanly.
func (p *Pipeline) Run(ctx context.Context, units []domain.RetrievalUnit) (Summary, error) {
	start := p.clock.Now()
	p.logger.Info("ingestion run started", "units", len(units), "workers", p.workers, "force", p.force)
	p.metrics.RunActive.Set(1)
	defer p.metrics.RunActive.Set(0)

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
		sem     = make(chan struct{}, p.workers)
	)

	for _, unit := range units {
		if ctx.Err() != nil {
			mu.Lock()
			summary.Failed = append(summary.Failed, UnitFailure{Unit: unit, Err: ctx.Err()})
			mu.Unlock()
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(unit domain.RetrievalUnit) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, rows, err := p.processUnit(ctx, unit)
			p.processed.Add(1)

			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case unitWritten:
				summary.Written = append(summary.Written, unit)
				summary.Records += rows
			case unitSkipped:
				summary.Skipped = append(summary.Skipped, unit)
			case unitFailed:
				summary.Failed = append(summary.Failed, UnitFailure{Unit: unit, Err: err})
			}
		}(unit)
	}
	wg.Wait()

	sortUnits(summary.Written)
	sortUnits(summary.Skipped)
	sort.Slice(summary.Failed, func(i, j int) bool {
		return summary.Failed[i].Unit.String() < summary.Failed[j].Unit.String()
	})

	summary.Duration = p.clock.Since(start)
	p.logger.Info("ingestion run finished",
		"written", len(summary.Written),
		"skipped", len(summary.Skipped),
		"failed", len(summary.Failed),
		"records", summary.Records,
		"duration", summary.Duration)
	return summary, nil
}

type unitOutcome int

const (
	unitWritten unitOutcome = iota
	unitSkipped
	unitFailed
)

// processUnit runs one unit end-to-end. Every failure is per-unit: it is
// logged, counted, and returned, never propagated as a run-ending error.
func (p *Pipeline) processUnit(ctx context.Context, unit domain.RetrievalUnit) (unitOutcome, int, error) {
	if !p.force && p.store.Exists(unit) {
		p.logger.Debug("unit already persisted, skipping", "unit", unit.String())
		return unitSkipped, 0, nil
	}

	start := p.clock.Now()
	defer func() {
		p.metrics.UnitDuration.Observe(p.clock.Since(start).Seconds())
	}()

	extract, err := p.fetcher.Fetch(ctx, unit)
	if err != nil {
		p.logger.Error("unit fetch failed", "unit", unit.String(), "error", err)
		return unitFailed, 0, err
	}

	raws, err := decode.DecodeAll(unit, bytes.NewReader(extract.Body))
	if err != nil {
		// Only an I/O-level read error lands here; malformed lines decode
		// into anomaly placeholders instead.
		p.logger.Error("unit decode failed", "unit", unit.String(), "error", err)
		return unitFailed, 0, fmt.Errorf("decode %s: %w", unit, err)
	}
	p.metrics.RecordsDecoded.Add(float64(len(raws)))

	records := qc.Apply(qc.NormalizeAll(raws))
	p.observeQC(unit, len(raws), records)

	manifest, err := p.store.Write(unit, extract.RetrievedAt, records)
	if err != nil {
		p.logger.Error("unit write failed", "unit", unit.String(), "error", err)
		return unitFailed, 0, err
	}
	p.metrics.TablesWritten.Inc()

	p.logger.Info("unit ingested",
		"unit", unit.String(),
		"rows", manifest.RowCount,
		"from_cache", extract.FromCache)
	return unitWritten, manifest.RowCount, nil
}

func (p *Pipeline) observeQC(unit domain.RetrievalUnit, decoded int, records []domain.ObservationRecord) {
	dropped := decoded - len(records)
	if dropped > 0 {
		p.metrics.DuplicatesDropped.Add(float64(dropped))
	}

	anomalies := 0
	for _, rec := range records {
		for _, f := range rec.Flags {
			p.metrics.QCFlags.WithLabelValues(string(f.Kind)).Inc()
			if f.Kind == domain.FlagParseAnomaly {
				anomalies++
			}
		}
	}
	if anomalies > 0 {
		p.metrics.ParseAnomalies.Add(float64(anomalies))
		p.logger.Warn("parse anomalies in extract", "unit", unit.String(), "count", anomalies)
	}
}

// ValidateAll recomputes coverage reports for every persisted month of the
// given stations and saves the combined report JSON next to the corpus.
// Runs after ingestion completes, per-station work is independent.
func (p *Pipeline) ValidateAll(ctx context.Context, stations []string) ([]domain.CoverageReport, error) {
	var all []domain.CoverageReport
	for _, station := range stations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reports, err := p.validator.ValidateStation(station)
		if err != nil {
			return nil, err
		}
		all = append(all, reports...)
	}

	if err := p.saveReport(all); err != nil {
		p.logger.Warn("coverage report save failed", "error", err)
	}
	return all, nil
}

func (p *Pipeline) saveReport(reports []domain.CoverageReport) error {
	raw, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(p.store.Dir(), "coverage_report.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	p.logger.Info("coverage report saved", "path", path, "station_months", len(reports))
	return nil
}

func sortUnits(units []domain.RetrievalUnit) {
	sort.Slice(units, func(i, j int) bool {
		return units[i].String() < units[j].String()
	})
}
