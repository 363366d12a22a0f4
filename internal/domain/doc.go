// Package domain models OpenAQ bulk air-quality observations.
//
// # Data Source
//
// Observations come from OpenAQ bulk archive exports: large csv.gz or
// parquet files, one of several schema variants depending on the export
// year. Column names are not stable across variants — coordinates appear as
// "latitude"/"longitude", "coordinates.latitude"/"coordinates.longitude",
// or "lat"/"lon"; timestamps as "date_utc", "utc", "timestamp", "datetime",
// or "date.utc". [ResolveColumns] maps whatever a batch carries onto the
// canonical field set, once per batch.
//
// # Filtering
//
// [FilterBatch] narrows a batch to the configured pollutant whitelist,
// country, inclusive UTC date window, and inclusive bounding box. Pollutant
// names are lowercased before matching ("PM25" and "pm25" are the same
// parameter). Rows with unparseable timestamps or coordinates are dropped
// and counted; a batch missing a required column is skipped whole. Both are
// normal outcomes of heterogeneous archives, not errors.
//
// # Monitor Identity
//
// Monitor IDs are deterministic slugs of the free-text location name:
// non-alphanumeric runs collapse to "_", the result is trimmed and prefixed
// with "OAQ". "Osborn Rd." becomes "OAQ_Osborn_Rd". Deterministic IDs make
// the monitor upsert idempotent (ON CONFLICT DO NOTHING) and replays safe
// without coordination. Names that normalize to the same slug share one
// monitor row; see [MonitorID].
package domain
