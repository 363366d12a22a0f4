// Package artifact persists normalized observations as a single parquet
// file and reads them back in bounded batches. The artifact is the durable
// hand-off between the ingest pass and the load pass.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
)

// Schema is the artifact's fixed column set. It is locked up front rather
// than inferred from the first batch: batches that resolved fewer optional
// columns pad them with nulls, so every batch in one artifact shares the
// same schema regardless of which source variant produced it.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "parameter", Type: arrow.BinaryTypes.String},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "unit", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "country", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "latitude", Type: arrow.PrimitiveTypes.Float64},
	{Name: "longitude", Type: arrow.PrimitiveTypes.Float64},
	{Name: "timestamp_utc", Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: "location", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "city", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "sourceName", Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// Writer accumulates observation batches from any number of source files
// into one parquet artifact. The file is created lazily on the first
// non-empty batch and written under a temporary name, renamed into place on
// Close — so a run that matches nothing leaves no artifact, and a crashed
// run leaves no half-artifact under the final name. Memory use is bounded
// by one batch.
type Writer struct {
	path    string
	tmpPath string
	file    *os.File
	pw      *pqarrow.FileWriter
	builder *array.RecordBuilder
	rows    int64
	closed  bool
}

// NewWriter prepares a writer targeting path. No file is created until the
// first non-empty Append.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Append writes one batch of observations. Empty batches are a no-op.
func (w *Writer) Append(obs []domain.Observation) error {
	if w.closed {
		return fmt.Errorf("append to closed artifact writer")
	}
	if len(obs) == 0 {
		return nil
	}
	if w.pw == nil {
		if err := w.open(); err != nil {
			return err
		}
	}

	for _, o := range obs {
		w.appendRow(o)
	}
	rec := w.builder.NewRecord()
	defer rec.Release()

	if err := w.pw.Write(rec); err != nil {
		return fmt.Errorf("write artifact batch: %w", err)
	}
	w.rows += int64(len(obs))
	return nil
}

// Rows returns the number of observations written so far.
func (w *Writer) Rows() int64 {
	return w.rows
}

// Close finalizes the artifact, renaming the temporary file into place.
// It is safe to call on every exit path: calling it again is a no-op, and
// if nothing was ever written there is no file to finalize.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.pw == nil {
		return nil
	}

	w.builder.Release()
	if err := w.pw.Close(); err != nil {
		w.file.Close()
		os.Remove(w.tmpPath)
		return fmt.Errorf("finalize artifact: %w", err)
	}
	// pw.Close closes the underlying sink, so the file is usually already
	// closed here; only a genuine close failure is an error.
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		os.Remove(w.tmpPath)
		return fmt.Errorf("close artifact file: %w", err)
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		return fmt.Errorf("rename artifact into place: %w", err)
	}
	return nil
}

func (w *Writer) open() error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}

	w.tmpPath = filepath.Join(dir, uuid.New().String()+".parquet.tmp")
	file, err := os.Create(w.tmpPath)
	if err != nil {
		return fmt.Errorf("create artifact file: %w", err)
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithMaxRowGroupLength(1 << 16),
	)
	pw, err := pqarrow.NewFileWriter(Schema, file, writerProps, pqarrow.NewArrowWriterProperties())
	if err != nil {
		file.Close()
		os.Remove(w.tmpPath)
		return fmt.Errorf("create parquet writer: %w", err)
	}

	w.file = file
	w.pw = pw
	w.builder = array.NewRecordBuilder(memory.DefaultAllocator, Schema)
	return nil
}

func (w *Writer) appendRow(o domain.Observation) {
	w.builder.Field(0).(*array.StringBuilder).Append(o.Parameter)
	appendOptFloat(w.builder.Field(1).(*array.Float64Builder), o.Value)
	appendOptString(w.builder.Field(2).(*array.StringBuilder), o.Unit)
	appendOptString(w.builder.Field(3).(*array.StringBuilder), o.Country)
	w.builder.Field(4).(*array.Float64Builder).Append(o.Latitude)
	w.builder.Field(5).(*array.Float64Builder).Append(o.Longitude)
	w.builder.Field(6).(*array.TimestampBuilder).Append(arrow.Timestamp(o.Timestamp.UnixMicro()))
	appendOptString(w.builder.Field(7).(*array.StringBuilder), o.Location)
	appendOptString(w.builder.Field(8).(*array.StringBuilder), o.City)
	appendOptString(w.builder.Field(9).(*array.StringBuilder), o.SourceName)
}

func appendOptString(b *array.StringBuilder, v *string) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}

func appendOptFloat(b *array.Float64Builder, v *float64) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(*v)
}
