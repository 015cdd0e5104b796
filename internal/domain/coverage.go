package domain

import "time"

// Cadence is the nominal interval between consecutive ASOS observations.
const Cadence = 5 * time.Minute

// SamplesPerDay is the expected observation count for one full day at the
// nominal cadence.
const SamplesPerDay = int(24 * time.Hour / Cadence)

// GapInterval is a contiguous span with no observations, strictly longer
// than two nominal cadences. Start is the first expected-but-missing slot;
// End is the timestamp of the next observed sample.
type GapInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Duration returns the length of the gap.
func (g GapInterval) Duration() time.Duration {
	return g.End.Sub(g.Start)
}

// CoverageReport summarizes temporal density, per-variable completeness,
// and QC-flag incidence for one persisted station-month. Derived data,
// recomputed on demand; never a source of truth.
type CoverageReport struct {
	StationID       string             `json:"station_id"`
	Year            int                `json:"year"`
	Month           time.Month         `json:"month"`
	ExpectedSamples int                `json:"expected_samples"`
	ActualSamples   int                `json:"actual_samples"`
	Gaps            []GapInterval      `json:"gaps,omitempty"`
	Completeness    map[string]float64 `json:"completeness"`
	FlagTally       map[FlagKind]int   `json:"qc_flag_tally"`
}

// Unit returns the retrieval unit the report describes.
func (r CoverageReport) Unit() RetrievalUnit {
	return RetrievalUnit{StationID: r.StationID, Year: r.Year, Month: r.Month}
}
