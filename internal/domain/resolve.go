package domain

// Candidate source column names per logical field, in priority order.
// These cover the known OpenAQ bulk schema variants: the flat CSV export,
// the S3 parquet dump with dotted coordinate columns, and the older
// measurement API layout.
var (
	parameterCandidates = []string{"parameter", "pollutant"}
	countryCandidates   = []string{"country"}
	latitudeCandidates  = []string{"latitude", "coordinates.latitude", "lat"}
	longitudeCandidates = []string{"longitude", "coordinates.longitude", "lon", "lng"}
	timestampCandidates = []string{"date_utc", "utc", "timestamp", "datetime", "date.utc"}
	valueCandidates     = []string{"value"}
	unitCandidates      = []string{"unit"}
	locationCandidates  = []string{"location"}
	cityCandidates      = []string{"city"}
	sourceCandidates    = []string{"sourceName", "source"}
)

// CanonicalFields maps each logical field to the source column carrying it
// in the current batch. An empty string means the field did not resolve,
// which is a normal outcome rather than an error: some archives simply lack
// the column under any known name.
type CanonicalFields struct {
	Parameter  string
	Country    string
	Latitude   string
	Longitude  string
	Timestamp  string
	Value      string
	Unit       string
	Location   string
	City       string
	SourceName string
}

// HasRequired reports whether the fields the filter cannot work without
// (pollutant, coordinates, timestamp) all resolved.
func (f CanonicalFields) HasRequired() bool {
	return f.Parameter != "" && f.Latitude != "" && f.Longitude != "" && f.Timestamp != ""
}

// ResolveColumns picks, for every logical field, the first candidate name
// present in the batch's column set.
func ResolveColumns(columns []string) CanonicalFields {
	available := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		available[c] = struct{}{}
	}

	first := func(candidates []string) string {
		for _, c := range candidates {
			if _, ok := available[c]; ok {
				return c
			}
		}
		return ""
	}

	return CanonicalFields{
		Parameter:  first(parameterCandidates),
		Country:    first(countryCandidates),
		Latitude:   first(latitudeCandidates),
		Longitude:  first(longitudeCandidates),
		Timestamp:  first(timestampCandidates),
		Value:      first(valueCandidates),
		Unit:       first(unitCandidates),
		Location:   first(locationCandidates),
		City:       first(cityCandidates),
		SourceName: first(sourceCandidates),
	}
}
