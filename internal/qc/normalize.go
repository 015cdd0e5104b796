// Package qc normalizes decoded observations into canonical units and
// applies quality control: physical range flagging and duplicate-timestamp
// collapse. Flags annotate data for downstream filtering; they never
// mutate measured values.
package qc

import (
	"github.com/couchcryptid/asos-pipeline/internal/decode"
	"github.com/couchcryptid/asos-pipeline/internal/domain"
)

// Unit conversion factors from ASOS source units to canonical units.
const (
	knotsToMS = 0.514444  // knots -> m/s
	inHgToHPa = 33.8639   // inches of mercury -> hPa
	milesToKM = 1.609344  // statute miles -> km
)

// Normalize converts one raw record to canonical units. It operates on
// freshly decoded source values only, so re-running the pipeline never
// converts twice. Anomaly and month-boundary markers become QC flags.
func Normalize(raw decode.RawRecord) domain.ObservationRecord {
	rec := domain.ObservationRecord{
		StationID:  raw.StationID,
		Timestamp:  raw.Timestamp,
		SourceLine: raw.Line,
	}

	if raw.Anomaly {
		rec.AddFlag(domain.QCFlag{Kind: domain.FlagParseAnomaly})
		return rec
	}

	rec.TemperatureC = fToC(raw.TempF)
	rec.DewpointC = fToC(raw.DewpointF)
	rec.WindSpeedMS = scale(raw.WindSpeedKt, knotsToMS)
	rec.WindGustMS = scale(raw.WindGustKt, knotsToMS)
	rec.WindDirDeg = scale(raw.WindDirDeg, 1)
	rec.PressureHPa = scale(raw.AltimeterInHg, inHgToHPa)
	rec.VisibilityKM = scale(raw.VisibilityMi, milesToKM)
	rec.PresentWeather = raw.PresentWx

	if raw.MonthBoundary {
		rec.AddFlag(domain.QCFlag{Kind: domain.FlagMonthBoundary})
	}
	return rec
}

// NormalizeAll converts a decoded extract in order.
func NormalizeAll(raws []decode.RawRecord) []domain.ObservationRecord {
	out := make([]domain.ObservationRecord, len(raws))
	for i, raw := range raws {
		out[i] = Normalize(raw)
	}
	return out
}

func fToC(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := (*f - 32.0) * 5.0 / 9.0
	return &c
}

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	scaled := *v * factor
	return &scaled
}
