// Command genfixture fabricates one synthetic station-month extract in the
// ASOS five-minute fixed-width format, with optional gap and duplicate
// injection. Useful for demos and for exercising the pipeline offline.
//
// Usage:
//
//	go run ./cmd/genfixture -station KJFK -year 2024 -month 1 \
//	  -gap-start 2024-01-15T10:00:00Z -gap-minutes 60 -duplicates 3 \
//	  -out 64010KJFK202401.dat
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/couchcryptid/asos-pipeline/internal/catalog"
	"github.com/couchcryptid/asos-pipeline/internal/decode"
	"github.com/couchcryptid/asos-pipeline/internal/domain"
)

func main() {
	station := flag.String("station", "KJFK", "station identifier")
	year := flag.Int("year", 2024, "year")
	month := flag.Int("month", 1, "month (1-12)")
	out := flag.String("out", "", "output path (default stdout)")
	gapStart := flag.String("gap-start", "", "RFC3339 start of an injected observation gap")
	gapMinutes := flag.Int("gap-minutes", 0, "length of the injected gap in minutes")
	duplicates := flag.Int("duplicates", 0, "extra duplicate-timestamp lines to inject after the first observation")
	flag.Parse()

	if *month < 1 || *month > 12 {
		fmt.Fprintln(os.Stderr, "genfixture: -month must be 1..12")
		os.Exit(1)
	}

	cat := catalog.Default()
	st, ok := cat.Lookup(*station)
	if !ok {
		// Stations outside the built-in catalog still get a fixture; the
		// WBAN column is cosmetic for decoding purposes.
		st = catalog.Station{ID: *station, WBAN: "00000"}
	}

	var gapFrom time.Time
	if *gapStart != "" {
		t, err := time.Parse(time.RFC3339, *gapStart)
		if err != nil {
			fmt.Fprintf(os.Stderr, "genfixture: invalid -gap-start: %v\n", err)
			os.Exit(1)
		}
		gapFrom = t.UTC()
	}
	gapUntil := gapFrom.Add(time.Duration(*gapMinutes) * time.Minute)

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "genfixture: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	unit := domain.RetrievalUnit{StationID: st.ID, Year: *year, Month: time.Month(*month)}
	bw := bufio.NewWriter(w)
	lines := 0

	monthStart := unit.MonthStart()
	monthEnd := monthStart.AddDate(0, 1, 0)
	for ts := monthStart; ts.Before(monthEnd); ts = ts.Add(domain.Cadence) {
		if !gapFrom.IsZero() && !ts.Before(gapFrom) && ts.Before(gapUntil) {
			continue
		}
		fmt.Fprintln(bw, decode.EncodeLine(observation(st, ts), st.WBAN))
		lines++
		if ts.Equal(monthStart) {
			for i := 0; i < *duplicates; i++ {
				fmt.Fprintln(bw, decode.EncodeLine(observation(st, ts), st.WBAN))
				lines++
			}
		}
	}

	if err := bw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "genfixture: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "genfixture: %s, %d lines\n", unit, lines)
}

// observation produces a plausible reading with a slow diurnal swing so
// fixtures are not wall-to-wall constants.
func observation(st catalog.Station, ts time.Time) decode.RawRecord {
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	tempF := 40 + 15*math.Sin((hour-9)*math.Pi/12)
	dewF := tempF - 8
	windKt := 8 + 4*math.Sin(hour*math.Pi/6)
	dirDeg := math.Mod(180+30*math.Sin(hour*math.Pi/8), 360)
	altInHg := 29.92 + 0.05*math.Sin(hour*math.Pi/12)
	visMi := 10.0

	return decode.RawRecord{
		StationID:     st.ID,
		Timestamp:     ts,
		WindDirDeg:    &dirDeg,
		WindSpeedKt:   &windKt,
		VisibilityMi:  &visMi,
		TempF:         &tempF,
		DewpointF:     &dewF,
		AltimeterInHg: &altInHg,
	}
}
