// Package domain models NOAA ASOS five-minute surface observations.
//
// # Data Source
//
// Observations originate from the NOAA NCEI Automated Surface Observing
// System (ASOS) five-minute archive, published at
// https://www.ncei.noaa.gov/data/automated-surface-observing-system-five-minute/access.
// The archive is organized as one fixed-width text file per station per
// calendar month, named {YEAR}/64010{STATION}{YYYYMM}.dat. The 64010 prefix
// is the dataset indicator; STATION is the four-letter ICAO identifier
// (e.g. KJFK) and the file holds one observation per line at a nominal
// five-minute cadence, so a 31-day month carries up to 8928 lines.
//
// # ASOS Conventions
//
// Field encoding in the raw extracts (see internal/decode for the layout):
//
//	Temperature and dewpoint: tenths of degrees Fahrenheit, e.g. "  725" = 72.5 °F.
//	Wind speed and gust:      whole knots.
//	Wind direction:           degrees true, 0-360.
//	Altimeter setting:        hundredths of inches of mercury, e.g. " 2992" = 29.92 inHg.
//	Visibility:               statute miles.
//
// Missing values use the sentinels "M", "MM", "MMM", and "/". "M" marks a
// field the station did not report; the repeated-letter forms mark an
// inoperative sensor. Both decode to an absent optional field, never to a
// numeric zero.
//
// After normalization all measurements are canonical SI-adjacent units:
// degrees Celsius, meters per second, hectopascals, and kilometers.
//
// # Timestamps
//
// Each line carries a YYYYMMDD date and an HHMM time, both UTC. Day-rollover
// lines at month edges can land just outside the file's own month; such
// records are kept and annotated with a month_boundary flag rather than
// rejected, because they are an expected artifact of how the archive cuts
// files.
//
// # Quality Control Flags
//
// QC flags annotate suspect data without removing it:
//
//	out_of_range:<field>  value outside the physical bound table
//	duplicate_timestamp   recorded on the kept record, once per collapsed duplicate
//	parse_anomaly         placeholder for a line that could not be decoded
//	month_boundary        timestamp falls outside the extract's month
//
// Exact duplicate timestamps are the one case where records are dropped:
// the keeper is the record with the fewest missing fields, ties broken by
// the lower source line number, and the collapse is audited via the
// duplicate_timestamp flags on the keeper.
package domain
