package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
	"github.com/couchcryptid/airquality-etl-service/internal/observability"
)

// ArtifactSource reads the artifact back in bounded observation batches.
// Next returns io.EOF after the last batch.
type ArtifactSource interface {
	Next() ([]domain.Observation, error)
}

// BatchStore persists one batch of monitors and readings transactionally.
// Implementations must tolerate repeats: loading the same batch twice must
// not duplicate rows or fail.
type BatchStore interface {
	LoadBatch(ctx context.Context, monitors []domain.Monitor, readings []domain.Reading) error
}

// LoadSummary reports what one load run did.
type LoadSummary struct {
	Batches     int
	RowsRead    int
	Readings    int // reading rows sent to the store; duplicates dropped server-side
	Monitors    int // distinct monitor IDs seen across the run
	SkippedRows int // rows missing location, timestamp, pollutant, or value
	StartedAt   time.Time
	Duration    time.Duration
}

// Loader runs the load pass: artifact batches → monitor upserts + reading
// inserts, one transaction per batch.
type Loader struct {
	store   BatchStore
	logger  *slog.Logger
	metrics *observability.Metrics
	ready   atomic.Bool
}

// NewLoader creates a Loader with the given store and observability.
func NewLoader(store BatchStore, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{store: store, logger: logger, metrics: metrics}
}

// CheckReadiness returns nil once the run has committed at least one batch.
func (l *Loader) CheckReadiness(_ context.Context) error {
	if !l.ready.Load() {
		return errors.New("load has not committed any batches yet")
	}
	return nil
}

// Run loads every artifact batch into the store. A store failure is fatal
// for the run; because every write is idempotent, rerunning the load after
// a crash or partial run is always safe.
func (l *Loader) Run(ctx context.Context, src ArtifactSource) (LoadSummary, error) {
	summary := LoadSummary{StartedAt: clock.Now()}
	l.logger.Info("load started")
	l.metrics.PipelineRunning.Set(1)
	defer l.metrics.PipelineRunning.Set(0)

	seenMonitors := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			l.logger.Info("load stopping", "reason", err)
			break
		}

		rows, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			summary.Duration = clock.Since(summary.StartedAt)
			return summary, err
		}

		start := clock.Now()
		monitors, readings, skipped := buildBatch(rows)

		if err := l.store.LoadBatch(ctx, monitors, readings); err != nil {
			summary.Duration = clock.Since(summary.StartedAt)
			return summary, err
		}

		for _, m := range monitors {
			seenMonitors[m.ID] = struct{}{}
		}
		summary.Batches++
		summary.RowsRead += len(rows)
		summary.Readings += len(readings)
		summary.SkippedRows += skipped

		l.ready.Store(true)
		l.metrics.LoadBatches.Inc()
		l.metrics.ReadingsInserted.Add(float64(len(readings)))
		l.metrics.RowsSkipped.Add(float64(skipped))
		l.metrics.BatchDuration.Observe(clock.Since(start).Seconds())

		l.logger.Info("batch loaded",
			"rows", len(rows), "monitors", len(monitors), "readings", len(readings), "skipped", skipped)
	}

	summary.Monitors = len(seenMonitors)
	summary.Duration = clock.Since(summary.StartedAt)
	return summary, nil
}

// buildBatch derives the monitor and reading rows for one artifact batch.
//
// Monitors are deduplicated by ID within the batch, last-seen coordinates
// winning in-batch; across batches and runs the store's first write wins.
// Reading rows require a location (for the monitor ID), timestamp,
// pollutant, and value; rows missing any are counted as skipped, which is
// expected for archives whose optional columns never resolved.
func buildBatch(rows []domain.Observation) ([]domain.Monitor, []domain.Reading, int) {
	monitorIdx := make(map[string]int)
	monitors := make([]domain.Monitor, 0)
	readings := make([]domain.Reading, 0, len(rows))
	skipped := 0

	for _, row := range rows {
		if row.Location == nil {
			skipped++
			continue
		}
		id := domain.MonitorID(*row.Location)

		m := domain.Monitor{ID: id, Name: *row.Location, Lon: row.Longitude, Lat: row.Latitude}
		if i, ok := monitorIdx[id]; ok {
			monitors[i] = m
		} else {
			monitorIdx[id] = len(monitors)
			monitors = append(monitors, m)
		}

		if row.Timestamp.IsZero() || row.Parameter == "" || row.Value == nil {
			skipped++
			continue
		}
		readings = append(readings, domain.Reading{
			MonitorID: id,
			Timestamp: row.Timestamp,
			Pollutant: row.Parameter,
			Value:     *row.Value,
			Unit:      row.Unit,
		})
	}
	return monitors, readings, skipped
}
