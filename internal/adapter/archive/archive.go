// Package archive decodes bulk source files (csv, csv.gz, parquet) into
// bounded batches of raw rows. Decoding stays schema-agnostic: whatever
// columns a file carries come through as strings, and the domain layer
// resolves and filters them per batch.
package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
)

// Source yields bounded batches of raw rows from one archive file.
// Next returns io.EOF after the last batch.
type Source interface {
	Next(ctx context.Context) (domain.RawBatch, error)
	Close() error
}

// Open opens a local archive file as a batch source, dispatching on the
// file extension.
func Open(path string, batchSize int) (Source, error) {
	switch {
	case strings.HasSuffix(path, ".csv.gz"):
		return openCSV(path, batchSize, true)
	case strings.HasSuffix(path, ".csv"):
		return openCSV(path, batchSize, false)
	case strings.HasSuffix(path, ".parquet"):
		return openParquet(path, batchSize)
	default:
		return nil, fmt.Errorf("unsupported archive format: %s", path)
	}
}
