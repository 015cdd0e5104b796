// Package catalog holds the read-only ASOS station metadata used to
// validate requested station identifiers and to build archive filenames.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ErrUnknownStation marks a requested station identifier absent from the
// catalog. Wrapped with the offending ID by Validate.
var ErrUnknownStation = errors.New("unknown station")

// Station describes one ASOS site.
type Station struct {
	ID          string  // four-letter ICAO identifier, e.g. KJFK
	WBAN        string  // five-digit WBAN number used in archive filenames
	Name        string
	Lat         float64
	Lon         float64
	ElevationFt float64
}

// Catalog is an immutable station_id -> Station mapping.
type Catalog struct {
	stations map[string]Station
	order    []string
}

// Default returns the built-in NYC-area station set.
func Default() *Catalog {
	return New([]Station{
		{ID: "KNYC", WBAN: "94728", Name: "New York City Central Park", Lat: 40.7789, Lon: -73.9692, ElevationFt: 154},
		{ID: "KJFK", WBAN: "94789", Name: "John F Kennedy International Airport", Lat: 40.6398, Lon: -73.7789, ElevationFt: 13},
		{ID: "KLGA", WBAN: "14732", Name: "LaGuardia Airport", Lat: 40.7769, Lon: -73.8740, ElevationFt: 21},
	})
}

// New builds a catalog from a station list. Later duplicates win.
func New(stations []Station) *Catalog {
	c := &Catalog{stations: make(map[string]Station, len(stations))}
	for _, s := range stations {
		if _, seen := c.stations[s.ID]; !seen {
			c.order = append(c.order, s.ID)
		}
		c.stations[s.ID] = s
	}
	return c
}

// LoadCSV reads a catalog from CSV with a header row of
// id,wban,name,lat,lon,elevation_ft.
func LoadCSV(r io.Reader) (*Catalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 6

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read station catalog: %w", err)
	}
	if len(rows) < 2 {
		return nil, errors.New("station catalog has no data rows")
	}

	stations := make([]Station, 0, len(rows)-1)
	for i, row := range rows[1:] {
		lat, errLat := strconv.ParseFloat(row[3], 64)
		lon, errLon := strconv.ParseFloat(row[4], 64)
		elev, errElev := strconv.ParseFloat(row[5], 64)
		if row[0] == "" || row[1] == "" || errLat != nil || errLon != nil || errElev != nil {
			return nil, fmt.Errorf("station catalog row %d is malformed", i+2)
		}
		stations = append(stations, Station{
			ID:          row[0],
			WBAN:        row[1],
			Name:        row[2],
			Lat:         lat,
			Lon:         lon,
			ElevationFt: elev,
		})
	}
	return New(stations), nil
}

// LoadFile reads a CSV catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open station catalog: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

// Lookup returns the station for an identifier.
func (c *Catalog) Lookup(id string) (Station, bool) {
	s, ok := c.stations[id]
	return s, ok
}

// IDs returns all station identifiers in catalog order.
func (c *Catalog) IDs() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Validate checks that every requested identifier exists in the catalog.
// Reported as a configuration error before any pipeline work starts.
func (c *Catalog) Validate(ids []string) error {
	for _, id := range ids {
		if _, ok := c.stations[id]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownStation, id)
		}
	}
	return nil
}
