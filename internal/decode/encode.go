package decode

import (
	"fmt"
	"math"
	"strings"
)

// EncodeLine renders a RawRecord back into the fixed-width archive format.
// Used by the fixture generator and tests; the decoder round-trips its
// output. Absent fields encode as the "M" sentinel.
func EncodeLine(rec RawRecord, wban string) string {
	buf := []byte(strings.Repeat(" ", layout.LineLen))

	place(buf, layout.Station, rec.StationID)
	place(buf, layout.WBAN, wban)
	place(buf, layout.Date, rec.Timestamp.UTC().Format("20060102"))
	place(buf, layout.TimeOfDay, rec.Timestamp.UTC().Format("1504"))
	place(buf, layout.DataType, "5MN")
	placeNum(buf, layout.WindDir, rec.WindDirDeg)
	placeNum(buf, layout.WindSpeed, rec.WindSpeedKt)
	placeNum(buf, layout.WindGust, rec.WindGustKt)
	placeVis(buf, layout.Visibility, rec.VisibilityMi)
	placeNum(buf, layout.Temp, rec.TempF)
	placeNum(buf, layout.Dewpoint, rec.DewpointF)
	placeNum(buf, layout.Altimeter, rec.AltimeterInHg)
	place(buf, layout.PresentWx, rec.PresentWx)

	return string(buf)
}

func place(buf []byte, s span, value string) {
	if len(value) > s.Width {
		value = value[:s.Width]
	}
	// Right-align within the span, matching the archive's padding.
	copy(buf[s.Offset+s.Width-len(value):], value)
}

func placeNum(buf []byte, n numSpan, v *float64) {
	if v == nil {
		place(buf, n.span, "M")
		return
	}
	scaled := int(math.Round(*v / n.Scale))
	place(buf, n.span, fmt.Sprintf("%d", scaled))
}

// placeVis keeps visibility as a decimal, the one field the archive does
// not integer-scale.
func placeVis(buf []byte, n numSpan, v *float64) {
	if v == nil {
		place(buf, n.span, "M")
		return
	}
	place(buf, n.span, fmt.Sprintf("%.2f", *v))
}
