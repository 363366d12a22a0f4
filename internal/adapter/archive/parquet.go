package archive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet/file"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
)

// parquetSource reads a parquet archive in bounded record batches,
// rendering every cell as a string so parquet and CSV sources feed the
// filter identically. Null cells and unsupported column types are omitted
// from the row map.
type parquetSource struct {
	pf      *file.Reader
	rr      pqarrow.RecordReader
	columns []string
}

func openParquet(path string, batchSize int) (*parquetSource, error) {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	fr, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{BatchSize: int64(batchSize)}, memory.DefaultAllocator)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("open arrow reader: %w", err)
	}

	schema, err := fr.Schema()
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("read parquet schema: %w", err)
	}
	columns := make([]string, 0, schema.NumFields())
	for i := 0; i < schema.NumFields(); i++ {
		columns = append(columns, schema.Field(i).Name)
	}

	rr, err := fr.GetRecordReader(context.Background(), nil, nil)
	if err != nil {
		pf.Close()
		return nil, fmt.Errorf("open record reader: %w", err)
	}

	return &parquetSource{pf: pf, rr: rr, columns: columns}, nil
}

func (s *parquetSource) Next(ctx context.Context) (domain.RawBatch, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawBatch{}, err
	}
	if !s.rr.Next() {
		if err := s.rr.Err(); err != nil && err != io.EOF {
			return domain.RawBatch{}, fmt.Errorf("read parquet batch: %w", err)
		}
		return domain.RawBatch{}, io.EOF
	}

	rec := s.rr.Record()
	n := int(rec.NumRows())
	rows := make([]map[string]string, n)
	for i := range rows {
		rows[i] = make(map[string]string, len(s.columns))
	}

	for c := 0; c < int(rec.NumCols()); c++ {
		name := rec.ColumnName(c)
		col := rec.Column(c)
		for i := 0; i < n; i++ {
			if col.IsNull(i) {
				continue
			}
			if v, ok := cellString(col, i); ok {
				rows[i][name] = v
			}
		}
	}

	return domain.RawBatch{Columns: s.columns, Rows: rows}, nil
}

func (s *parquetSource) Close() error {
	s.rr.Release()
	return s.pf.Close()
}

func cellString(col arrow.Array, i int) (string, bool) {
	switch arr := col.(type) {
	case *array.String:
		return arr.Value(i), true
	case *array.LargeString:
		return arr.Value(i), true
	case *array.Float64:
		return strconv.FormatFloat(arr.Value(i), 'f', -1, 64), true
	case *array.Float32:
		return strconv.FormatFloat(float64(arr.Value(i)), 'f', -1, 32), true
	case *array.Int64:
		return strconv.FormatInt(arr.Value(i), 10), true
	case *array.Int32:
		return strconv.FormatInt(int64(arr.Value(i)), 10), true
	case *array.Boolean:
		return strconv.FormatBool(arr.Value(i)), true
	case *array.Timestamp:
		unit := arr.DataType().(*arrow.TimestampType).Unit
		return arr.Value(i).ToTime(unit).UTC().Format(time.RFC3339), true
	default:
		return "", false
	}
}
