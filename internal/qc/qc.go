package qc

import (
	"sort"
	"time"

	"github.com/couchcryptid/asos-pipeline/internal/domain"
)

// bounds is the fixed physically-plausible range table, in canonical
// units, keyed by the corpus column name.
type boundRange struct {
	Min, Max float64
}

var bounds = map[string]boundRange{
	"temperature_c": {-60, 60},
	"dewpoint_c":    {-60, 60},
	"wind_speed_ms": {0, 113},
	"wind_gust_ms":  {0, 113},
	"wind_dir_deg":  {0, 360},
	"pressure_hpa":  {850, 1085},
	"visibility_km": {0, 161},
}

// Apply runs quality control over one station-month of normalized records:
// range-flags implausible values, collapses exact duplicate timestamps,
// and returns the records time-sorted, ready for persistence.
func Apply(records []domain.ObservationRecord) []domain.ObservationRecord {
	for i := range records {
		flagRanges(&records[i])
	}
	records = collapseDuplicates(records)

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].SourceLine < records[j].SourceLine
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records
}

func flagRanges(rec *domain.ObservationRecord) {
	for field, v := range map[string]*float64{
		"temperature_c": rec.TemperatureC,
		"dewpoint_c":    rec.DewpointC,
		"wind_speed_ms": rec.WindSpeedMS,
		"wind_gust_ms":  rec.WindGustMS,
		"wind_dir_deg":  rec.WindDirDeg,
		"pressure_hpa":  rec.PressureHPa,
		"visibility_km": rec.VisibilityKM,
	} {
		if v == nil {
			continue
		}
		b := bounds[field]
		if *v < b.Min || *v > b.Max {
			rec.AddFlag(domain.OutOfRange(field))
		}
	}
}

// collapseDuplicates keeps exactly one record per timestamp: the one with
// the most present fields, ties broken by the lower source line number.
// Each dropped duplicate is audited as one duplicate_timestamp flag on the
// keeper. Anomaly placeholders carry no timestamp and are passed through.
func collapseDuplicates(records []domain.ObservationRecord) []domain.ObservationRecord {
	byTime := make(map[time.Time]int, len(records))
	out := make([]domain.ObservationRecord, 0, len(records))

	for _, rec := range records {
		if rec.Timestamp.IsZero() {
			out = append(out, rec)
			continue
		}

		i, seen := byTime[rec.Timestamp]
		if !seen {
			byTime[rec.Timestamp] = len(out)
			out = append(out, rec)
			continue
		}

		keeper := &out[i]
		if betterKeeper(rec, *keeper) {
			// The audit trail of prior collapses moves to the new keeper.
			for _, f := range keeper.Flags {
				if f.Kind == domain.FlagDuplicateTimestamp {
					rec.AddFlag(f)
				}
			}
			*keeper = rec
		}
		keeper.AddFlag(domain.QCFlag{Kind: domain.FlagDuplicateTimestamp})
	}
	return out
}

func betterKeeper(candidate, current domain.ObservationRecord) bool {
	cp, kp := candidate.PresentFieldCount(), current.PresentFieldCount()
	if cp != kp {
		return cp > kp
	}
	return candidate.SourceLine < current.SourceLine
}
