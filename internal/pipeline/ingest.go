// Package pipeline orchestrates the two passes of the ETL: ingest (source
// archives → filtered parquet artifact) and load (artifact → store).
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
	"github.com/couchcryptid/airquality-etl-service/internal/observability"
)

// BatchSource yields bounded batches of raw rows from one archive file.
// Next returns io.EOF after the last batch.
type BatchSource interface {
	Next(ctx context.Context) (domain.RawBatch, error)
	Close() error
}

// SourceOpener opens a local archive path as a batch source.
type SourceOpener func(path string, batchSize int) (BatchSource, error)

// ArtifactAppender accumulates filtered batches into the durable artifact.
// Finalization (Close) belongs to the caller so it runs on every exit path.
type ArtifactAppender interface {
	Append(obs []domain.Observation) error
	Rows() int64
}

// Fetcher stages a remote archive into a local temp file.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// IngestSummary reports what one ingest run did. A run with zero matched
// rows is a valid terminal state ("nothing matched the filters"), distinct
// from a run that failed.
type IngestSummary struct {
	Files       int
	FailedFiles int
	RowsRead    int
	RowsMatched int
	Drops       domain.DropStats
	StartedAt   time.Time
	Duration    time.Duration
}

// Ingestor runs the ingest pass: download (if remote), resolve, filter,
// append. Files are processed in order; the download of the next file
// overlaps the filtering of the current one through a bounded hand-off
// channel, so at most one staged file waits in memory.
type Ingestor struct {
	fetcher   Fetcher
	open      SourceOpener
	writer    ArtifactAppender
	rules     domain.FilterRules
	batchSize int
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// NewIngestor creates an Ingestor with the given stages and observability.
func NewIngestor(fetcher Fetcher, open SourceOpener, writer ArtifactAppender, rules domain.FilterRules, batchSize int, logger *slog.Logger, metrics *observability.Metrics) *Ingestor {
	return &Ingestor{
		fetcher:   fetcher,
		open:      open,
		writer:    writer,
		rules:     rules,
		batchSize: batchSize,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once the run has processed at least one batch.
func (ing *Ingestor) CheckReadiness(_ context.Context) error {
	if !ing.ready.Load() {
		return errors.New("ingest has not processed any batches yet")
	}
	return nil
}

// stagedFile is one input handed from the download stage to the filter
// stage. Download failures travel through the channel so the consumer owns
// all accounting.
type stagedFile struct {
	name string
	path string
	temp bool
	err  error
}

// Run ingests every input in order: URLs are downloaded first, local paths
// read in place. A file that fails to download or decode is logged, counted,
// and skipped; the artifact writer survives to the next file. Run returns
// an error only when the run as a whole cannot continue (artifact write
// failure); cancellation stops cleanly with the summary so far.
func (ing *Ingestor) Run(ctx context.Context, urls, paths []string) (IngestSummary, error) {
	summary := IngestSummary{StartedAt: clock.Now()}
	ing.logger.Info("ingest started",
		"urls", len(urls), "paths", len(paths), "batch_size", ing.batchSize)
	ing.metrics.PipelineRunning.Set(1)
	defer ing.metrics.PipelineRunning.Set(0)

	g, gctx := errgroup.WithContext(ctx)
	files := make(chan stagedFile, 1)

	g.Go(func() error {
		defer close(files)
		for _, url := range urls {
			path, err := ing.fetcher.Fetch(gctx, url)
			f := stagedFile{name: url, path: path, temp: true, err: err}
			select {
			case files <- f:
			case <-gctx.Done():
				if f.temp && f.err == nil {
					os.Remove(f.path)
				}
				return gctx.Err()
			}
		}
		for _, path := range paths {
			select {
			case files <- stagedFile{name: path, path: path}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for f := range files {
			if f.err != nil {
				ing.logger.Error("input file failed, skipping", "file", f.name, "error", f.err)
				ing.metrics.FileFailures.Inc()
				summary.FailedFiles++
				continue
			}

			err := ing.processFile(gctx, f, &summary)
			if f.temp {
				os.Remove(f.path)
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return err
			}
		}
		return nil
	})

	err := g.Wait()
	summary.Duration = clock.Since(summary.StartedAt)

	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		ing.logger.Info("ingest stopping", "reason", err)
		err = nil
	}
	return summary, err
}

// processFile streams one archive through resolve → filter → append. An
// unreadable file is skipped (counted, nil returned); an artifact write
// failure aborts the run.
func (ing *Ingestor) processFile(ctx context.Context, f stagedFile, summary *IngestSummary) error {
	src, err := ing.open(f.path, ing.batchSize)
	if err != nil {
		ing.logger.Error("input file unreadable, skipping", "file", f.name, "error", err)
		ing.metrics.FileFailures.Inc()
		summary.FailedFiles++
		return nil
	}
	defer src.Close()

	fileRows, fileMatched := 0, 0
	for {
		batch, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if err != nil {
			ing.logger.Error("archive decode failed, abandoning file", "file", f.name, "error", err)
			ing.metrics.FileFailures.Inc()
			summary.FailedFiles++
			return nil
		}

		start := clock.Now()
		fields := domain.ResolveColumns(batch.Columns)
		obs, drops := domain.FilterBatch(batch, fields, ing.rules)

		if err := ing.writer.Append(obs); err != nil {
			return err
		}

		fileRows += len(batch.Rows)
		fileMatched += len(obs)
		summary.RowsRead += len(batch.Rows)
		summary.RowsMatched += len(obs)
		summary.Drops.Add(drops)

		ing.metrics.RowsRead.Add(float64(len(batch.Rows)))
		ing.metrics.RowsMatched.Add(float64(len(obs)))
		ing.metrics.ObserveDrops(dropReasons(drops))
		ing.metrics.BatchDuration.Observe(clock.Since(start).Seconds())
		ing.ready.Store(true)

		if drops.SchemaMiss > 0 {
			ing.logger.Warn("batch skipped: required columns unresolved",
				"file", f.name, "rows", drops.SchemaMiss, "columns", batch.Columns)
		}
	}

	summary.Files++
	ing.metrics.FilesProcessed.Inc()
	ing.logger.Info("file processed", "file", f.name, "rows_read", fileRows, "rows_matched", fileMatched)
	return nil
}

func dropReasons(d domain.DropStats) map[string]int {
	return map[string]int{
		"schema_miss":    d.SchemaMiss,
		"pollutant":      d.Pollutant,
		"country":        d.Country,
		"bad_timestamp":  d.BadTimestamp,
		"out_of_window":  d.OutOfWindow,
		"bad_coordinate": d.BadCoordinate,
		"out_of_bounds":  d.OutOfBounds,
	}
}
