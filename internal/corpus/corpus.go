// Package corpus persists station-month tables as Parquet files with JSON
// manifests. A table is immutable once written; re-ingesting a unit fully
// replaces the file via temp-write-and-rename, so the corpus never holds a
// partially written or version-interleaved table.
package corpus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/couchcryptid/asos-pipeline/internal/decode"
	"github.com/couchcryptid/asos-pipeline/internal/domain"
)

// Row is the canonical Parquet schema of a StationMonthTable.
type Row struct {
	TimestampUTC       int64    `parquet:"timestamp_utc"` // unix seconds; 0 for anomaly placeholders
	TemperatureC       *float64 `parquet:"temperature_c,optional"`
	DewpointC          *float64 `parquet:"dewpoint_c,optional"`
	WindSpeedMS        *float64 `parquet:"wind_speed_ms,optional"`
	WindGustMS         *float64 `parquet:"wind_gust_ms,optional"`
	WindDirDeg         *float64 `parquet:"wind_dir_deg,optional"`
	PressureHPa        *float64 `parquet:"pressure_hpa,optional"`
	VisibilityKM       *float64 `parquet:"visibility_km,optional"`
	PresentWeatherCode string   `parquet:"present_weather_code"`
	QCFlags            []string `parquet:"qc_flags,list"`
	SourceLine         int32    `parquet:"source_line"`
}

// Manifest describes one persisted station-month table.
type Manifest struct {
	StationID      string     `json:"station_id"`
	Year           int        `json:"year"`
	Month          time.Month `json:"month"`
	RowCount       int        `json:"row_count"`
	FirstTimestamp time.Time  `json:"first_timestamp,omitzero"`
	LastTimestamp  time.Time  `json:"last_timestamp,omitzero"`
	RetrievedAt    time.Time  `json:"retrieved_at"`
	DecoderVersion string     `json:"decoder_version"`
}

// Store reads and writes the corpus directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore creates the corpus directory if needed.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create corpus dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the corpus root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) tablePath(unit domain.RetrievalUnit) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%04d%02d.parquet", unit.StationID, unit.Year, int(unit.Month)))
}

func (s *Store) manifestPath(unit domain.RetrievalUnit) string {
	return s.tablePath(unit) + ".manifest.json"
}

// Exists reports whether a non-empty table and its manifest are already
// persisted for the unit. Drives the idempotent skip.
func (s *Store) Exists(unit domain.RetrievalUnit) bool {
	info, err := os.Stat(s.tablePath(unit))
	if err != nil || info.Size() == 0 {
		return false
	}
	_, err = os.Stat(s.manifestPath(unit))
	return err == nil
}

// Write persists one station-month table, fully replacing any previous
// version of the unit. Records must already be normalized, QC-flagged,
// and time-sorted.
func (s *Store) Write(unit domain.RetrievalUnit, retrievedAt time.Time, records []domain.ObservationRecord) (Manifest, error) {
	rows := make([]Row, len(records))
	for i, rec := range records {
		rows[i] = toRow(rec)
	}

	dest := s.tablePath(unit)
	if err := writeParquet(dest, rows); err != nil {
		return Manifest{}, fmt.Errorf("write table %s: %w", unit, err)
	}

	m := Manifest{
		StationID:      unit.StationID,
		Year:           unit.Year,
		Month:          unit.Month,
		RowCount:       len(records),
		RetrievedAt:    retrievedAt,
		DecoderVersion: decode.LayoutVersion,
	}
	for _, rec := range records {
		if rec.Timestamp.IsZero() {
			continue
		}
		if m.FirstTimestamp.IsZero() || rec.Timestamp.Before(m.FirstTimestamp) {
			m.FirstTimestamp = rec.Timestamp
		}
		if rec.Timestamp.After(m.LastTimestamp) {
			m.LastTimestamp = rec.Timestamp
		}
	}

	if err := writeJSONAtomic(s.manifestPath(unit), m); err != nil {
		return Manifest{}, fmt.Errorf("write manifest %s: %w", unit, err)
	}

	s.logger.Info("table written", "unit", unit.String(), "rows", m.RowCount)
	return m, nil
}

// Read loads one persisted station-month table.
func (s *Store) Read(unit domain.RetrievalUnit) ([]domain.ObservationRecord, error) {
	rows, err := parquet.ReadFile[Row](s.tablePath(unit))
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", unit, err)
	}

	records := make([]domain.ObservationRecord, len(rows))
	for i, row := range rows {
		records[i] = fromRow(unit.StationID, row)
	}
	return records, nil
}

// Manifest loads the manifest for one unit.
func (s *Store) Manifest(unit domain.RetrievalUnit) (Manifest, error) {
	var m Manifest
	raw, err := os.ReadFile(s.manifestPath(unit))
	if err != nil {
		return m, fmt.Errorf("read manifest %s: %w", unit, err)
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return m, fmt.Errorf("parse manifest %s: %w", unit, err)
	}
	return m, nil
}

// Units lists the persisted station-months for one station, sorted
// chronologically.
func (s *Store) Units(stationID string) ([]domain.RetrievalUnit, error) {
	pattern := filepath.Join(s.dir, stationID+"_*.parquet")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("scan corpus for %s: %w", stationID, err)
	}

	var units []domain.RetrievalUnit
	for _, path := range matches {
		var year, month int
		name := filepath.Base(path)
		if _, err := fmt.Sscanf(name, stationID+"_%4d%2d.parquet", &year, &month); err != nil {
			continue
		}
		if month < 1 || month > 12 {
			continue
		}
		units = append(units, domain.RetrievalUnit{StationID: stationID, Year: year, Month: time.Month(month)})
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Year != units[j].Year {
			return units[i].Year < units[j].Year
		}
		return units[i].Month < units[j].Month
	})
	return units, nil
}

func writeParquet(dest string, rows []Row) error {
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	w := parquet.NewGenericWriter[Row](f, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		f.Close()
		os.Remove(tmp) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	return nil
}

func writeJSONAtomic(dest string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return err
	}
	return nil
}

func toRow(rec domain.ObservationRecord) Row {
	row := Row{
		TemperatureC:       rec.TemperatureC,
		DewpointC:          rec.DewpointC,
		WindSpeedMS:        rec.WindSpeedMS,
		WindGustMS:         rec.WindGustMS,
		WindDirDeg:         rec.WindDirDeg,
		PressureHPa:        rec.PressureHPa,
		VisibilityKM:       rec.VisibilityKM,
		PresentWeatherCode: rec.PresentWeather,
		SourceLine:         int32(rec.SourceLine),
	}
	if !rec.Timestamp.IsZero() {
		row.TimestampUTC = rec.Timestamp.Unix()
	}
	for _, f := range rec.Flags {
		row.QCFlags = append(row.QCFlags, f.String())
	}
	return row
}

func fromRow(stationID string, row Row) domain.ObservationRecord {
	rec := domain.ObservationRecord{
		StationID:      stationID,
		TemperatureC:   row.TemperatureC,
		DewpointC:      row.DewpointC,
		WindSpeedMS:    row.WindSpeedMS,
		WindGustMS:     row.WindGustMS,
		WindDirDeg:     row.WindDirDeg,
		PressureHPa:    row.PressureHPa,
		VisibilityKM:   row.VisibilityKM,
		PresentWeather: row.PresentWeatherCode,
		SourceLine:     int(row.SourceLine),
	}
	if row.TimestampUTC != 0 {
		rec.Timestamp = time.Unix(row.TimestampUTC, 0).UTC()
	}
	for _, s := range row.QCFlags {
		rec.Flags = append(rec.Flags, domain.ParseQCFlag(s))
	}
	return rec
}
