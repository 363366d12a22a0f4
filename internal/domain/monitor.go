package domain

import (
	"regexp"
	"strings"
)

// nonAlnumRe matches maximal runs of characters outside [A-Za-z0-9]; each
// run collapses to a single underscore in the monitor ID.
var nonAlnumRe = regexp.MustCompile(`[^A-Za-z0-9]+`)

const (
	monitorIDTag     = "OAQ"
	monitorIDUnknown = "OAQ_unknown"
)

// MonitorID derives the stable natural key for a location name. The same
// name always produces the same ID, which is what makes the monitor upsert
// idempotent across runs and replays.
//
// Distinct names that differ only in punctuation ("Site #1" and "Site_1")
// collapse to the same ID and therefore the same monitor row. That collision
// is a known property of the scheme, kept because the ID doubles as the
// stored primary key for data already loaded.
func MonitorID(location string) string {
	s := strings.Trim(nonAlnumRe.ReplaceAllString(location, "_"), "_")
	if s == "" {
		return monitorIDUnknown
	}
	return monitorIDTag + "_" + s
}
