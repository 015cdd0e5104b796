package decode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/asos-pipeline/internal/domain"
)

// RawRecord is one decoded line in source units, before normalization.
// Absent fields are nil. An Anomaly record is a placeholder for a line
// that could not be decoded; it carries only StationID and Line.
type RawRecord struct {
	StationID     string
	Timestamp     time.Time // UTC; zero when Anomaly
	WindDirDeg    *float64
	WindSpeedKt   *float64
	WindGustKt    *float64
	VisibilityMi  *float64
	TempF         *float64
	DewpointF     *float64
	AltimeterInHg *float64
	PresentWx     string
	Line          int
	Anomaly       bool
	MonthBoundary bool // timestamp outside the extract's own month
}

// Decoder lazily parses one raw monthly extract, one line per Next call.
// Malformed lines never abort the stream: they yield anomaly placeholders
// and decoding continues. A caller may stop consuming at any point.
type Decoder struct {
	unit    domain.RetrievalUnit
	scanner *bufio.Scanner
	line    int
	rec     RawRecord
}

// NewDecoder creates a decoder for one retrieval unit's extract.
func NewDecoder(unit domain.RetrievalUnit, r io.Reader) *Decoder {
	return &Decoder{unit: unit, scanner: bufio.NewScanner(r)}
}

// Next advances to the next line. It returns false at end of input.
func (d *Decoder) Next() bool {
	if !d.scanner.Scan() {
		return false
	}
	d.line++
	d.rec = d.parseLine(d.scanner.Text())
	return true
}

// Record returns the record decoded by the last call to Next.
func (d *Decoder) Record() RawRecord {
	return d.rec
}

// Err returns the first underlying read error, if any.
func (d *Decoder) Err() error {
	return d.scanner.Err()
}

// DecodeAll drains a decoder, returning every record including anomaly
// placeholders.
func DecodeAll(unit domain.RetrievalUnit, r io.Reader) ([]RawRecord, error) {
	d := NewDecoder(unit, r)
	var out []RawRecord
	for d.Next() {
		out = append(out, d.Record())
	}
	return out, d.Err()
}

func (d *Decoder) parseLine(line string) RawRecord {
	if len(line) < layout.MinLine {
		return d.anomaly()
	}

	ts, ok := parseTimestamp(cut(line, layout.Date), cut(line, layout.TimeOfDay))
	if !ok {
		return d.anomaly()
	}

	return RawRecord{
		StationID:     d.unit.StationID,
		Timestamp:     ts,
		WindDirDeg:    numField(line, layout.WindDir),
		WindSpeedKt:   numField(line, layout.WindSpeed),
		WindGustKt:    numField(line, layout.WindGust),
		VisibilityMi:  numField(line, layout.Visibility),
		TempF:         numField(line, layout.Temp),
		DewpointF:     numField(line, layout.Dewpoint),
		AltimeterInHg: numField(line, layout.Altimeter),
		PresentWx:     cut(line, layout.PresentWx),
		Line:          d.line,
		MonthBoundary: !d.unit.Contains(ts),
	}
}

func (d *Decoder) anomaly() RawRecord {
	return RawRecord{StationID: d.unit.StationID, Line: d.line, Anomaly: true}
}

// cut extracts and trims one field; spans past the end of a short line
// yield the empty string, which downstream maps to absent.
func cut(line string, s span) string {
	start, end := s.Offset, s.Offset+s.Width
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[start:end])
}

// numField parses a numeric field, mapping sentinels and unparseable
// tokens to absent.
func numField(line string, n numSpan) *float64 {
	raw := cut(line, n.span)
	if _, missing := missingSentinels[raw]; missing {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	v *= n.Scale
	return &v
}

func parseTimestamp(date, hhmm string) (time.Time, bool) {
	ts, err := time.ParseInLocation("200601021504", date+hhmm, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
