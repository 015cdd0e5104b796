// Package decode parses ASOS five-minute fixed-width monthly extracts into
// typed raw records. The byte layout is a versioned, data-driven table so
// an upstream format revision changes constants, not control flow.
package decode

// LayoutVersion identifies the field layout the decoder implements. Stored
// in every StationMonthTable manifest so a corpus mixing decoder revisions
// is detectable.
const LayoutVersion = "asos5min-v1"

// span is a half-open byte range [Offset, Offset+Width) within a line.
type span struct {
	Offset int
	Width  int
}

// numSpan is a span holding a numeric field. Scale converts the archive's
// integer encoding to source units, e.g. 0.1 for tenths of °F.
type numSpan struct {
	span
	Scale float64
}

// layoutTable maps each field of the 68-byte observation line to its byte
// range. Offsets follow the NCEI ASOS five-minute format description;
// fields are separated by single spaces.
type layoutTable struct {
	MinLine    int
	LineLen    int
	Station    span
	WBAN       span
	Date       span // YYYYMMDD
	TimeOfDay  span // HHMM, UTC
	DataType   span
	WindDir    numSpan // degrees
	WindSpeed  numSpan // knots
	WindGust   numSpan // knots
	Visibility numSpan // statute miles
	Temp       numSpan // tenths of °F
	Dewpoint   numSpan // tenths of °F
	Altimeter  numSpan // hundredths of inHg
	PresentWx  span
}

var layout = layoutTable{
	MinLine:    50,
	LineLen:    68,
	Station:    span{0, 4},
	WBAN:       span{5, 5},
	Date:       span{11, 8},
	TimeOfDay:  span{20, 4},
	DataType:   span{25, 3},
	WindDir:    numSpan{span{29, 3}, 1},
	WindSpeed:  numSpan{span{33, 3}, 1},
	WindGust:   numSpan{span{37, 3}, 1},
	Visibility: numSpan{span{41, 5}, 1},
	Temp:       numSpan{span{47, 5}, 0.1},
	Dewpoint:   numSpan{span{53, 5}, 0.1},
	Altimeter:  numSpan{span{59, 5}, 0.01},
	PresentWx:  span{65, 3},
}

// missingSentinels are the ASOS codes for absent data. "M" means not
// reported; the repeated forms mean an inoperative sensor. Both decode to
// an absent field.
var missingSentinels = map[string]struct{}{
	"M":   {},
	"MM":  {},
	"MMM": {},
	"/":   {},
	"":    {},
}
