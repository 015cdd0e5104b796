// Package coverage audits the persisted corpus: temporal gaps against the
// nominal five-minute cadence, per-variable completeness, and QC-flag
// incidence. Read-only and idempotent; it never touches raw extracts.
package coverage

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/asos-pipeline/internal/corpus"
	"github.com/couchcryptid/asos-pipeline/internal/domain"
)

// Policy controls how flagged values count toward completeness. The
// upstream documentation leaves this open; the default treats a value that
// is present but out-of-range-flagged as present.
type Policy struct {
	ExcludeOutOfRange bool
}

// Validator derives coverage reports from persisted station-month tables.
type Validator struct {
	store  *corpus.Store
	policy Policy
	logger *slog.Logger
}

// NewValidator creates a validator over a corpus store.
func NewValidator(store *corpus.Store, policy Policy, logger *slog.Logger) *Validator {
	return &Validator{store: store, policy: policy, logger: logger}
}

// Validate builds the coverage report for one persisted station-month.
func (v *Validator) Validate(unit domain.RetrievalUnit) (domain.CoverageReport, error) {
	records, err := v.store.Read(unit)
	if err != nil {
		return domain.CoverageReport{}, fmt.Errorf("validate %s: %w", unit, err)
	}

	report := domain.CoverageReport{
		StationID:       unit.StationID,
		Year:            unit.Year,
		Month:           unit.Month,
		ExpectedSamples: unit.Days() * domain.SamplesPerDay,
		Completeness:    completeness(records, v.policy),
		FlagTally:       tally(records),
	}

	timestamps := observedTimestamps(records)
	report.ActualSamples = len(timestamps)
	report.Gaps = findGaps(timestamps)

	v.logger.Debug("coverage computed",
		"unit", unit.String(),
		"actual", report.ActualSamples,
		"expected", report.ExpectedSamples,
		"gaps", len(report.Gaps))
	return report, nil
}

// ValidateStation reports on every persisted month for one station.
func (v *Validator) ValidateStation(stationID string) ([]domain.CoverageReport, error) {
	units, err := v.store.Units(stationID)
	if err != nil {
		return nil, err
	}

	reports := make([]domain.CoverageReport, 0, len(units))
	for _, unit := range units {
		report, err := v.Validate(unit)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func observedTimestamps(records []domain.ObservationRecord) []domain.ObservationRecord {
	out := records[:0:0]
	for _, rec := range records {
		if !rec.Timestamp.IsZero() {
			out = append(out, rec)
		}
	}
	return out
}

// findGaps scans time-sorted records for inter-sample spans strictly
// longer than two cadences. Anything at or below that threshold is
// ordinary inter-sample variation. The reported interval starts at the
// first expected-but-missing slot and ends at the next observed sample, so
// its duration equals the span of missing data.
func findGaps(records []domain.ObservationRecord) []domain.GapInterval {
	var gaps []domain.GapInterval
	for i := 1; i < len(records); i++ {
		prev, next := records[i-1].Timestamp, records[i].Timestamp
		if next.Sub(prev) > 2*domain.Cadence {
			gaps = append(gaps, domain.GapInterval{
				Start: prev.Add(domain.Cadence),
				End:   next,
			})
		}
	}
	return gaps
}

// completeness returns, per canonical variable, the fraction of records
// where the field is present.
func completeness(records []domain.ObservationRecord, policy Policy) map[string]float64 {
	variables := []string{
		"temperature_c", "dewpoint_c", "wind_speed_ms", "wind_gust_ms",
		"wind_dir_deg", "pressure_hpa", "visibility_km",
	}

	counts := make(map[string]int, len(variables))
	for _, rec := range records {
		for field, v := range fieldValues(rec) {
			if v == nil {
				continue
			}
			if policy.ExcludeOutOfRange && flaggedOutOfRange(rec, field) {
				continue
			}
			counts[field]++
		}
	}

	out := make(map[string]float64, len(variables))
	for _, field := range variables {
		if len(records) == 0 {
			out[field] = 0
			continue
		}
		out[field] = float64(counts[field]) / float64(len(records))
	}
	return out
}

func fieldValues(rec domain.ObservationRecord) map[string]*float64 {
	return map[string]*float64{
		"temperature_c": rec.TemperatureC,
		"dewpoint_c":    rec.DewpointC,
		"wind_speed_ms": rec.WindSpeedMS,
		"wind_gust_ms":  rec.WindGustMS,
		"wind_dir_deg":  rec.WindDirDeg,
		"pressure_hpa":  rec.PressureHPa,
		"visibility_km": rec.VisibilityKM,
	}
}

func flaggedOutOfRange(rec domain.ObservationRecord, field string) bool {
	for _, f := range rec.Flags {
		if f.Kind == domain.FlagOutOfRange && f.Field == field {
			return true
		}
	}
	return false
}

func tally(records []domain.ObservationRecord) map[domain.FlagKind]int {
	out := make(map[domain.FlagKind]int)
	for _, rec := range records {
		for _, f := range rec.Flags {
			out[f.Kind]++
		}
	}
	return out
}
