package artifact

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
)

// Reader streams the artifact back as bounded observation batches, so the
// loader never holds more than one batch in memory.
type Reader struct {
	pf *file.Reader
	rr pqarrow.RecordReader
}

// OpenReader opens the artifact at path for batched reading.
func OpenReader(ctx context.Context, path string, batchSize int) (*Reader, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(batchSize)}, memory.DefaultAllocator)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("open arrow reader: %w", err)
	}

	rr, err := fr.GetRecordReader(ctx, nil, nil)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("open record reader: %w", err)
	}

	return &Reader{pf: pf, rr: rr}, nil
}

// Next returns the next batch of observations, or io.EOF after the last.
// Columns missing from the artifact (one written by an older build) simply
// stay nil on every row.
func (r *Reader) Next() ([]domain.Observation, error) {
	if !r.rr.Next() {
		if err := r.rr.Err(); err != nil && err != io.EOF {
			return nil, fmt.Errorf("read artifact batch: %w", err)
		}
		return nil, io.EOF
	}

	rec := r.rr.Record()
	schema := rec.Schema()
	n := int(rec.NumRows())
	out := make([]domain.Observation, n)

	for i := 0; i < n; i++ {
		if s := stringAt(rec, schema, "parameter", i); s != nil {
			out[i].Parameter = *s
		}
		out[i].Value = floatAt(rec, schema, "value", i)
		out[i].Unit = stringAt(rec, schema, "unit", i)
		out[i].Country = stringAt(rec, schema, "country", i)
		if f := floatAt(rec, schema, "latitude", i); f != nil {
			out[i].Latitude = *f
		}
		if f := floatAt(rec, schema, "longitude", i); f != nil {
			out[i].Longitude = *f
		}
		if t := timeAt(rec, schema, "timestamp_utc", i); t != nil {
			out[i].Timestamp = *t
		}
		out[i].Location = stringAt(rec, schema, "location", i)
		out[i].City = stringAt(rec, schema, "city", i)
		out[i].SourceName = stringAt(rec, schema, "sourceName", i)
	}
	return out, nil
}

// Close releases the record reader and the underlying file.
func (r *Reader) Close() error {
	r.rr.Release()
	return r.pf.Close()
}

func columnByName(rec arrow.Record, schema *arrow.Schema, name string) arrow.Array {
	indices := schema.FieldIndices(name)
	if len(indices) == 0 {
		return nil
	}
	return rec.Column(indices[0])
}

func stringAt(rec arrow.Record, schema *arrow.Schema, name string, i int) *string {
	col, ok := columnByName(rec, schema, name).(*array.String)
	if !ok || col.IsNull(i) {
		return nil
	}
	v := col.Value(i)
	return &v
}

func floatAt(rec arrow.Record, schema *arrow.Schema, name string, i int) *float64 {
	col, ok := columnByName(rec, schema, name).(*array.Float64)
	if !ok || col.IsNull(i) {
		return nil
	}
	v := col.Value(i)
	return &v
}

func timeAt(rec arrow.Record, schema *arrow.Schema, name string, i int) *time.Time {
	col, ok := columnByName(rec, schema, name).(*array.Timestamp)
	if !ok || col.IsNull(i) {
		return nil
	}
	unit := col.DataType().(*arrow.TimestampType).Unit
	v := col.Value(i).ToTime(unit).UTC()
	return &v
}
