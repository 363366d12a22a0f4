package domain

import "time"

// RawBatch is one bounded chunk of rows decoded from a source archive.
// Column names vary by source and year, so values stay as strings until the
// filter resolves and parses them.
type RawBatch struct {
	Columns []string
	Rows    []map[string]string
}

// Observation is a filtered, schema-uniform measurement destined for the
// artifact. Pointer fields are nil when the source column never resolved
// for the batch that produced the row; required fields (parameter,
// coordinates, timestamp) are always populated because rows lacking them
// never survive the filter.
type Observation struct {
	Parameter  string
	Value      *float64
	Unit       *string
	Country    *string
	Latitude   float64
	Longitude  float64
	Timestamp  time.Time
	Location   *string
	City       *string
	SourceName *string
}

// Monitor is a dimension row: one physical sensor/location, keyed by the
// ID derived from its location name.
type Monitor struct {
	ID   string
	Name string
	Lon  float64
	Lat  float64
}

// Reading is a fact row: one pollutant value at one monitor at one instant.
// Uniqueness over (MonitorID, Timestamp, Pollutant) is enforced by the
// store, not here.
type Reading struct {
	MonitorID string
	Timestamp time.Time
	Pollutant string
	Value     float64
	Unit      *string
}
