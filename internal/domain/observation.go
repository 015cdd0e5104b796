package domain

import (
	"fmt"
	"strings"
	"time"
)

// RetrievalUnit identifies one station-month granule of the upstream
// archive. It is the atomic unit of fetch, persistence, and failure
// isolation.
type RetrievalUnit struct {
	StationID string
	Year      int
	Month     time.Month
}

func (u RetrievalUnit) String() string {
	return fmt.Sprintf("%s %04d-%02d", u.StationID, u.Year, int(u.Month))
}

// MonthStart returns midnight UTC on the first day of the unit's month.
func (u RetrievalUnit) MonthStart() time.Time {
	return time.Date(u.Year, u.Month, 1, 0, 0, 0, 0, time.UTC)
}

// Contains reports whether t falls within the unit's calendar month.
func (u RetrievalUnit) Contains(t time.Time) bool {
	start := u.MonthStart()
	return !t.Before(start) && t.Before(start.AddDate(0, 1, 0))
}

// Days returns the number of calendar days in the unit's month.
func (u RetrievalUnit) Days() int {
	return u.MonthStart().AddDate(0, 1, -1).Day()
}

// RawExtract is the unparsed content of one retrieval unit plus provenance.
type RawExtract struct {
	Unit        RetrievalUnit
	Body        []byte
	SourceURL   string
	RetrievedAt time.Time
	FromCache   bool
}

// FlagKind enumerates the quality-control flag taxonomy.
type FlagKind string

const (
	FlagOutOfRange         FlagKind = "out_of_range"
	FlagDuplicateTimestamp FlagKind = "duplicate_timestamp"
	FlagParseAnomaly       FlagKind = "parse_anomaly"
	FlagMonthBoundary      FlagKind = "month_boundary"
)

// QCFlag marks a record or one of its fields as suspect without mutating
// the data. Field is set only for out_of_range flags.
type QCFlag struct {
	Kind  FlagKind
	Field string
}

// OutOfRange builds an out_of_range flag for the named canonical field.
func OutOfRange(field string) QCFlag {
	return QCFlag{Kind: FlagOutOfRange, Field: field}
}

func (f QCFlag) String() string {
	if f.Field == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + ":" + f.Field
}

// ParseQCFlag is the inverse of String, used when reading flags back from
// the persisted corpus.
func ParseQCFlag(s string) QCFlag {
	kind, field, ok := strings.Cut(s, ":")
	if !ok {
		return QCFlag{Kind: FlagKind(s)}
	}
	return QCFlag{Kind: FlagKind(kind), Field: field}
}

// ObservationRecord is one decoded, normalized reading. All measurement
// fields are optional; nil means the station did not report the value.
// Anomaly placeholder records carry only StationID and SourceLine.
type ObservationRecord struct {
	StationID      string
	Timestamp      time.Time // UTC; zero for anomaly placeholders
	TemperatureC   *float64
	DewpointC      *float64
	WindSpeedMS    *float64
	WindGustMS     *float64
	WindDirDeg     *float64
	PressureHPa    *float64
	VisibilityKM   *float64
	PresentWeather string
	Flags          []QCFlag
	SourceLine     int
}

// AddFlag appends a QC flag to the record.
func (r *ObservationRecord) AddFlag(f QCFlag) {
	r.Flags = append(r.Flags, f)
}

// HasFlag reports whether the record carries at least one flag of the
// given kind.
func (r *ObservationRecord) HasFlag(kind FlagKind) bool {
	for _, f := range r.Flags {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// PresentFieldCount counts non-absent measurement fields. Used to pick the
// keeper when collapsing duplicate timestamps.
func (r *ObservationRecord) PresentFieldCount() int {
	n := 0
	for _, v := range []*float64{
		r.TemperatureC, r.DewpointC, r.WindSpeedMS, r.WindGustMS,
		r.WindDirDeg, r.PressureHPa, r.VisibilityKM,
	} {
		if v != nil {
			n++
		}
	}
	if r.PresentWeather != "" {
		n++
	}
	return n
}
