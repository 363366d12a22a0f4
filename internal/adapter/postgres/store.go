// Package postgres persists monitors and readings into a PostGIS-enabled
// store with duplicate-tolerant semantics: every write is safe to repeat.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
)

const (
	monitorSource     = "OpenAQ"
	monitorSensorType = "pm25/no2 bulk"

	// First-write-wins: an existing monitor's name and coordinates are
	// never overwritten by re-ingestion.
	upsertMonitorSQL = `INSERT INTO pollution_monitors (monitor_id, name, source, sensor_type, geom)
VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326))
ON CONFLICT (monitor_id) DO NOTHING`

	// Duplicate readings are silently dropped, never updated.
	insertReadingSQL = `INSERT INTO pollution_readings (monitor_id, timestamp, pollutant, value, unit)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT ON CONSTRAINT unique_reading DO NOTHING`
)

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis`,
	`CREATE TABLE IF NOT EXISTS pollution_monitors (
		monitor_id  TEXT PRIMARY KEY,
		name        TEXT,
		source      TEXT,
		sensor_type TEXT,
		geom        geometry(Point, 4326)
	)`,
	`CREATE TABLE IF NOT EXISTS pollution_readings (
		monitor_id TEXT NOT NULL REFERENCES pollution_monitors (monitor_id),
		timestamp  TIMESTAMPTZ NOT NULL,
		pollutant  TEXT NOT NULL,
		value      DOUBLE PRECISION,
		unit       TEXT,
		CONSTRAINT unique_reading UNIQUE (monitor_id, timestamp, pollutant)
	)`,
}

// Store wraps a pgx connection pool over the pollution tables.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the store. A connection failure here is fatal for the
// run; it is always safe to retry the whole load later because every write
// is idempotent.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the pollution tables and the PostGIS extension if
// they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// LoadBatch persists one batch of monitors and readings inside a single
// transaction, committed per batch so an interrupted load resumes where it
// left off. Conflicts (already-seen monitors, duplicate readings) are
// expected and resolved server-side by the ON CONFLICT clauses.
func (s *Store) LoadBatch(ctx context.Context, monitors []domain.Monitor, readings []domain.Reading) error {
	if len(monitors) == 0 && len(readings) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin load batch: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, m := range monitors {
		batch.Queue(upsertMonitorSQL, m.ID, m.Name, monitorSource, monitorSensorType, m.Lon, m.Lat)
	}
	for _, r := range readings {
		batch.Queue(insertReadingSQL, r.MonitorID, r.Timestamp, r.Pollutant, r.Value, r.Unit)
	}

	res := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return fmt.Errorf("load batch statement %d: %w", i, err)
		}
	}
	if err := res.Close(); err != nil {
		return fmt.Errorf("close load batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit load batch: %w", err)
	}
	return nil
}

// Counts returns the current monitor and reading row counts. Used by the
// load summary and the integration tests.
func (s *Store) Counts(ctx context.Context) (monitors, readings int64, err error) {
	if err = s.pool.QueryRow(ctx, `SELECT count(*) FROM pollution_monitors`).Scan(&monitors); err != nil {
		return 0, 0, fmt.Errorf("count monitors: %w", err)
	}
	if err = s.pool.QueryRow(ctx, `SELECT count(*) FROM pollution_readings`).Scan(&readings); err != nil {
		return 0, 0, fmt.Errorf("count readings: %w", err)
	}
	return monitors, readings, nil
}
