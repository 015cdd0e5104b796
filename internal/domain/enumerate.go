package domain

import (
	"errors"
	"time"
)

// Configuration errors raised before any pipeline work starts.
var (
	ErrEmptyStationSet = errors.New("station set is empty")
	ErrBadDateRange    = errors.New("end date precedes start date")
)

// EnumerateUnits expands a station set and an inclusive date range into the
// full set of retrieval units, one per station per calendar month touched
// by the range. Partial months at the boundaries enumerate in full because
// the archive publishes whole months only. Pure; no network or disk access.
func EnumerateUnits(stations []string, start, end time.Time) ([]RetrievalUnit, error) {
	if len(stations) == 0 {
		return nil, ErrEmptyStationSet
	}
	if end.Before(start) {
		return nil, ErrBadDateRange
	}

	first := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)

	var units []RetrievalUnit
	for _, station := range stations {
		for cur := first; !cur.After(last); cur = cur.AddDate(0, 1, 0) {
			units = append(units, RetrievalUnit{
				StationID: station,
				Year:      cur.Year(),
				Month:     cur.Month(),
			})
		}
	}
	return units, nil
}
