package archive

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
)

// csvSource reads a (possibly gzipped) CSV archive in bounded batches.
// The first record is the header; rows with a mismatched field count are
// malformed source data and are skipped, not fatal.
type csvSource struct {
	file      *os.File
	gz        *gzip.Reader
	reader    *csv.Reader
	header    []string
	batchSize int
}

func openCSV(path string, batchSize int, gzipped bool) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	var r io.Reader = f
	var gz *gzip.Reader
	if gzipped {
		gz, err = gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		r = gz
	}

	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if gz != nil {
			gz.Close()
		}
		f.Close()
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	return &csvSource{
		file:      f,
		gz:        gz,
		reader:    cr,
		header:    header,
		batchSize: batchSize,
	}, nil
}

func (s *csvSource) Next(ctx context.Context) (domain.RawBatch, error) {
	if err := ctx.Err(); err != nil {
		return domain.RawBatch{}, err
	}

	rows := make([]map[string]string, 0, s.batchSize)
	for len(rows) < s.batchSize {
		record, err := s.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			continue
		}
		if err != nil {
			return domain.RawBatch{}, fmt.Errorf("read csv row: %w", err)
		}
		if len(record) != len(s.header) {
			continue
		}

		row := make(map[string]string, len(s.header))
		for i, col := range s.header {
			row[col] = record[i]
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return domain.RawBatch{}, io.EOF
	}
	return domain.RawBatch{Columns: s.header, Rows: rows}, nil
}

func (s *csvSource) Close() error {
	if s.gz != nil {
		s.gz.Close()
	}
	return s.file.Close()
}
