// Command genfixtures writes small sample archives in the two bulk formats
// (csv.gz and parquet) for local pipeline runs and manual testing. The rows
// straddle the default filter configuration: some match, some fall outside
// the bounding box, window, or pollutant whitelist.
//
// Usage:
//
//	go run ./cmd/genfixtures -out-dir data/fixtures
package main

import (
	"compress/gzip"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/apache/arrow/go/v18/parquet"
	"github.com/apache/arrow/go/v18/parquet/pqarrow"
)

var header = []string{"location", "city", "country", "parameter", "value", "unit", "date_utc", "latitude", "longitude", "sourceName"}

var rows = [][]string{
	{"Newark Firehouse", "Newark", "US", "pm25", "11.4", "µg/m³", "2020-06-01T00:00:00Z", "40.72", "-74.19", "AirNow"},
	{"Newark Firehouse", "Newark", "US", "no2", "18.2", "ppb", "2020-06-01T00:00:00Z", "40.72", "-74.19", "AirNow"},
	{"Phila. Lab", "Philadelphia", "US", "pm25", "9.1", "µg/m³", "2021-03-15T12:00:00Z", "39.99", "-75.08", "AirNow"},
	{"Denver CAMP", "Denver", "US", "pm25", "14.0", "µg/m³", "2020-06-01T00:00:00Z", "39.75", "-104.99", "AirNow"}, // outside bbox
	{"Newark Firehouse", "Newark", "US", "o3", "0.031", "ppm", "2020-06-01T01:00:00Z", "40.72", "-74.19", "AirNow"}, // not whitelisted
	{"Phila. Lab", "Philadelphia", "US", "pm25", "7.7", "µg/m³", "2017-01-01T00:00:00Z", "39.99", "-75.08", "AirNow"}, // before window
}

func main() {
	outDir := flag.String("out-dir", "data/fixtures", "directory for generated fixtures")
	flag.Parse()

	if err := run(*outDir); err != nil {
		log.Fatal(err)
	}
}

func run(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	csvPath := filepath.Join(outDir, "openaq_sample.csv.gz")
	if err := writeCSVGz(csvPath); err != nil {
		return fmt.Errorf("write %s: %w", csvPath, err)
	}
	fmt.Println("wrote", csvPath)

	pqPath := filepath.Join(outDir, "openaq_sample.parquet")
	if err := writeParquet(pqPath); err != nil {
		return fmt.Errorf("write %s: %w", pqPath, err)
	}
	fmt.Println("wrote", pqPath)
	return nil
}

func writeCSVGz(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	w := csv.NewWriter(gz)

	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return gz.Close()
}

// writeParquet renders the same rows with the dotted coordinate columns of
// the S3 export variant, so the fixtures exercise two schema layouts.
func writeParquet(path string) error {
	fields := []arrow.Field{
		{Name: "location", Type: arrow.BinaryTypes.String},
		{Name: "city", Type: arrow.BinaryTypes.String},
		{Name: "country", Type: arrow.BinaryTypes.String},
		{Name: "parameter", Type: arrow.BinaryTypes.String},
		{Name: "value", Type: arrow.PrimitiveTypes.Float64},
		{Name: "unit", Type: arrow.BinaryTypes.String},
		{Name: "date_utc", Type: arrow.BinaryTypes.String},
		{Name: "coordinates.latitude", Type: arrow.PrimitiveTypes.Float64},
		{Name: "coordinates.longitude", Type: arrow.PrimitiveTypes.Float64},
		{Name: "sourceName", Type: arrow.BinaryTypes.String},
	}
	schema := arrow.NewSchema(fields, nil)

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	// The two layouts share column positions; only the coordinate names differ.
	for _, row := range rows {
		for i, cell := range row {
			switch b := builder.Field(i).(type) {
			case *array.StringBuilder:
				b.Append(cell)
			case *array.Float64Builder:
				var v float64
				fmt.Sscanf(cell, "%g", &v)
				b.Append(v)
			}
		}
	}
	rec := builder.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w, err := pqarrow.NewFileWriter(schema, f, parquet.NewWriterProperties(), pqarrow.NewArrowWriterProperties())
	if err != nil {
		return err
	}
	if err := w.Write(rec); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
