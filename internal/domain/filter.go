package domain

import (
	"strconv"
	"strings"
	"time"
)

// timestampLayouts are the wire forms observed across archive years. All
// parsed values are normalized to UTC; layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// BoundingBox is an inclusive rectangular region in WGS-84 coordinates.
type BoundingBox struct {
	LatMin float64
	LatMax float64
	LonMin float64
	LonMax float64
}

// Contains reports whether the point lies inside the box, bounds included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.LatMin && lat <= b.LatMax && lon >= b.LonMin && lon <= b.LonMax
}

// FilterRules holds the pollutant/country/time/region predicates applied to
// every batch. Build with NewFilterRules so the values are normalized; a
// zero FilterRules matches nothing.
type FilterRules struct {
	Pollutants map[string]bool // lowercase whitelist
	Country    string          // uppercase; empty disables country filtering
	Start      time.Time       // inclusive, UTC
	End        time.Time       // inclusive, UTC
	BBox       BoundingBox
}

// NewFilterRules normalizes the configured filter values: pollutants are
// lowercased, the country code uppercased, and the date window widened to
// [start 00:00:00, end 23:59:59] UTC inclusive.
func NewFilterRules(pollutants []string, country string, startDate, endDate time.Time, bbox BoundingBox) FilterRules {
	whitelist := make(map[string]bool, len(pollutants))
	for _, p := range pollutants {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			whitelist[p] = true
		}
	}

	start := time.Date(startDate.Year(), startDate.Month(), startDate.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(endDate.Year(), endDate.Month(), endDate.Day(), 23, 59, 59, 0, time.UTC)

	return FilterRules{
		Pollutants: whitelist,
		Country:    strings.ToUpper(strings.TrimSpace(country)),
		Start:      start,
		End:        end,
		BBox:       bbox,
	}
}

// DropStats counts rows removed by each filter predicate. A batch skipped
// for missing required columns is counted whole under SchemaMiss. The
// counts are returned to the caller so row loss is observable, not just
// logged.
type DropStats struct {
	SchemaMiss    int
	Pollutant     int
	Country       int
	BadTimestamp  int
	OutOfWindow   int
	BadCoordinate int
	OutOfBounds   int
}

// Total returns the number of dropped rows across all reasons.
func (d DropStats) Total() int {
	return d.SchemaMiss + d.Pollutant + d.Country + d.BadTimestamp +
		d.OutOfWindow + d.BadCoordinate + d.OutOfBounds
}

// Add accumulates another batch's drop counts.
func (d *DropStats) Add(other DropStats) {
	d.SchemaMiss += other.SchemaMiss
	d.Pollutant += other.Pollutant
	d.Country += other.Country
	d.BadTimestamp += other.BadTimestamp
	d.OutOfWindow += other.OutOfWindow
	d.BadCoordinate += other.BadCoordinate
	d.OutOfBounds += other.OutOfBounds
}

// FilterBatch applies the configured predicates to one raw batch and
// projects the survivors onto the canonical observation schema.
//
// A batch whose columns cannot resolve pollutant, coordinates, or timestamp
// yields zero observations with every row counted under SchemaMiss — some
// archives legitimately lack those columns, so this is policy, not failure.
// Rows with unparseable timestamps or coordinates are dropped individually.
// An empty result is a valid, common outcome.
func FilterBatch(batch RawBatch, fields CanonicalFields, rules FilterRules) ([]Observation, DropStats) {
	var drops DropStats

	if !fields.HasRequired() {
		drops.SchemaMiss = len(batch.Rows)
		return nil, drops
	}

	out := make([]Observation, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		parameter := strings.ToLower(strings.TrimSpace(row[fields.Parameter]))
		if !rules.Pollutants[parameter] {
			drops.Pollutant++
			continue
		}

		// Permissive default: no country column means no country filter.
		if fields.Country != "" && rules.Country != "" {
			if !strings.EqualFold(strings.TrimSpace(row[fields.Country]), rules.Country) {
				drops.Country++
				continue
			}
		}

		ts, err := ParseTimestamp(row[fields.Timestamp])
		if err != nil {
			drops.BadTimestamp++
			continue
		}
		if ts.Before(rules.Start) || ts.After(rules.End) {
			drops.OutOfWindow++
			continue
		}

		lat, errLat := strconv.ParseFloat(strings.TrimSpace(row[fields.Latitude]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(row[fields.Longitude]), 64)
		if errLat != nil || errLon != nil {
			drops.BadCoordinate++
			continue
		}
		if !rules.BBox.Contains(lat, lon) {
			drops.OutOfBounds++
			continue
		}

		out = append(out, Observation{
			Parameter:  parameter,
			Value:      optFloat(row, fields.Value),
			Unit:       optString(row, fields.Unit),
			Country:    optString(row, fields.Country),
			Latitude:   lat,
			Longitude:  lon,
			Timestamp:  ts,
			Location:   optString(row, fields.Location),
			City:       optString(row, fields.City),
			SourceName: optString(row, fields.SourceName),
		})
	}

	return out, drops
}

// ParseTimestamp parses an archive timestamp in any of the known layouts,
// normalized to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// optString returns the row's value for an optional resolved column, or nil
// when the column never resolved. A resolved-but-empty cell stays an empty
// string so the artifact distinguishes "absent column" from "blank value".
func optString(row map[string]string, col string) *string {
	if col == "" {
		return nil
	}
	v := row[col]
	return &v
}

// optFloat parses the row's value for an optional numeric column. Rows are
// not filtered on value; an unparseable or absent value loads as null and
// the loader skips it there.
func optFloat(row map[string]string, col string) *float64 {
	if col == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
	if err != nil {
		return nil
	}
	return &v
}
