package qc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/asos-pipeline/internal/decode"
	"github.com/couchcryptid/asos-pipeline/internal/domain"
	"github.com/couchcryptid/asos-pipeline/internal/qc"
)

func f64(v float64) *float64 { return &v }

func ts(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, time.UTC)
}

func TestNormalize_UnitConversions(t *testing.T) {
	raw := decode.RawRecord{
		StationID:     "KJFK",
		Timestamp:     ts(15, 10, 0),
		TempF:         f64(32),
		DewpointF:     f64(212),
		WindSpeedKt:   f64(10),
		WindGustKt:    f64(20),
		WindDirDeg:    f64(270),
		AltimeterInHg: f64(29.92),
		VisibilityMi:  f64(10),
		PresentWx:     "SN",
		Line:          7,
	}

	rec := qc.Normalize(raw)

	require.NotNil(t, rec.TemperatureC)
	assert.InDelta(t, 0, *rec.TemperatureC, 1e-9)
	require.NotNil(t, rec.DewpointC)
	assert.InDelta(t, 100, *rec.DewpointC, 1e-9)
	require.NotNil(t, rec.WindSpeedMS)
	assert.InDelta(t, 5.14444, *rec.WindSpeedMS, 1e-5)
	require.NotNil(t, rec.WindGustMS)
	assert.InDelta(t, 10.28888, *rec.WindGustMS, 1e-5)
	require.NotNil(t, rec.PressureHPa)
	assert.InDelta(t, 1013.21, *rec.PressureHPa, 0.1)
	require.NotNil(t, rec.VisibilityKM)
	assert.InDelta(t, 16.09344, *rec.VisibilityKM, 1e-5)
	assert.Equal(t, "SN", rec.PresentWeather)
	assert.Equal(t, 7, rec.SourceLine)
	assert.Empty(t, rec.Flags)
}

func TestNormalize_AbsentStaysAbsent(t *testing.T) {
	rec := qc.Normalize(decode.RawRecord{StationID: "KJFK", Timestamp: ts(1, 0, 0), Line: 1})

	assert.Nil(t, rec.TemperatureC)
	assert.Nil(t, rec.WindSpeedMS)
	assert.Nil(t, rec.PressureHPa)
	assert.Equal(t, 0, rec.PresentFieldCount())
}

func TestNormalize_AnomalyAndBoundaryFlags(t *testing.T) {
	anomaly := qc.Normalize(decode.RawRecord{StationID: "KJFK", Line: 42, Anomaly: true})
	assert.True(t, anomaly.HasFlag(domain.FlagParseAnomaly))
	assert.Equal(t, 42, anomaly.SourceLine)

	boundary := qc.Normalize(decode.RawRecord{
		StationID: "KJFK", Timestamp: ts(1, 0, 0), Line: 1, MonthBoundary: true,
	})
	assert.True(t, boundary.HasFlag(domain.FlagMonthBoundary))
}

func TestApply_OutOfRangeFlaggedNotMutated(t *testing.T) {
	records := []domain.ObservationRecord{{
		StationID:    "KJFK",
		Timestamp:    ts(10, 0, 0),
		TemperatureC: f64(200), // physically implausible
		PressureHPa:  f64(1013),
		SourceLine:   1,
	}}

	out := qc.Apply(records)
	require.Len(t, out, 1)

	// The value is flagged, not changed.
	require.NotNil(t, out[0].TemperatureC)
	assert.Equal(t, 200.0, *out[0].TemperatureC)
	assert.Contains(t, out[0].Flags, domain.OutOfRange("temperature_c"))
	assert.NotContains(t, out[0].Flags, domain.OutOfRange("pressure_hpa"))
}

func TestApply_RangeBoundsInclusive(t *testing.T) {
	records := []domain.ObservationRecord{{
		StationID:    "KJFK",
		Timestamp:    ts(10, 0, 0),
		TemperatureC: f64(60), // exactly at the bound
		WindSpeedMS:  f64(113),
		PressureHPa:  f64(849.9),
		SourceLine:   1,
	}}

	out := qc.Apply(records)
	require.Len(t, out, 1)
	assert.NotContains(t, out[0].Flags, domain.OutOfRange("temperature_c"))
	assert.NotContains(t, out[0].Flags, domain.OutOfRange("wind_speed_ms"))
	assert.Contains(t, out[0].Flags, domain.OutOfRange("pressure_hpa"))
}

func TestApply_DuplicateKeepsMostComplete(t *testing.T) {
	dup := ts(5, 12, 0)
	records := []domain.ObservationRecord{
		{StationID: "KJFK", Timestamp: dup, TemperatureC: f64(5), SourceLine: 1},
		{StationID: "KJFK", Timestamp: dup, TemperatureC: f64(6), WindSpeedMS: f64(3), SourceLine: 2},
		{StationID: "KJFK", Timestamp: ts(5, 12, 5), TemperatureC: f64(5.5), SourceLine: 3},
	}

	out := qc.Apply(records)
	require.Len(t, out, 2)

	// Line 2 wins: strictly more present fields.
	kept := out[0]
	assert.Equal(t, 2, kept.SourceLine)
	assert.Equal(t, 6.0, *kept.TemperatureC)
	assert.True(t, kept.HasFlag(domain.FlagDuplicateTimestamp))
	assert.False(t, out[1].HasFlag(domain.FlagDuplicateTimestamp))
}

func TestApply_DuplicateTieBreaksOnLineNumber(t *testing.T) {
	dup := ts(6, 0, 0)
	records := []domain.ObservationRecord{
		{StationID: "KJFK", Timestamp: dup, TemperatureC: f64(1), SourceLine: 10},
		{StationID: "KJFK", Timestamp: dup, TemperatureC: f64(2), SourceLine: 11},
	}

	out := qc.Apply(records)
	require.Len(t, out, 1)
	assert.Equal(t, 10, out[0].SourceLine)
	assert.Equal(t, 1.0, *out[0].TemperatureC)
}

func TestApply_OneFlagPerCollapsedDuplicate(t *testing.T) {
	dup := ts(7, 8, 30)
	records := []domain.ObservationRecord{
		{StationID: "KJFK", Timestamp: dup, TemperatureC: f64(1), SourceLine: 1},
		{StationID: "KJFK", Timestamp: dup, TemperatureC: f64(1), SourceLine: 2},
		{StationID: "KJFK", Timestamp: dup, TemperatureC: f64(1), SourceLine: 3},
	}

	out := qc.Apply(records)
	require.Len(t, out, 1)

	flags := 0
	for _, f := range out[0].Flags {
		if f.Kind == domain.FlagDuplicateTimestamp {
			flags++
		}
	}
	assert.Equal(t, 2, flags, "one audit flag per dropped duplicate")
}

func TestApply_SortsByTimestamp(t *testing.T) {
	records := []domain.ObservationRecord{
		{StationID: "KJFK", Timestamp: ts(2, 0, 0), SourceLine: 2},
		{StationID: "KJFK", Timestamp: ts(1, 0, 0), SourceLine: 1},
		{StationID: "KJFK", SourceLine: 3, Flags: []domain.QCFlag{{Kind: domain.FlagParseAnomaly}}},
	}

	out := qc.Apply(records)
	require.Len(t, out, 3)
	// Anomaly placeholders (zero timestamp) sort to the front.
	assert.True(t, out[0].Timestamp.IsZero())
	assert.True(t, out[1].Timestamp.Before(out[2].Timestamp))
}
