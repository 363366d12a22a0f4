//go:build integration

package integration

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/couchcryptid/airquality-etl-service/internal/adapter/artifact"
	"github.com/couchcryptid/airquality-etl-service/internal/adapter/postgres"
	"github.com/couchcryptid/airquality-etl-service/internal/domain"
	"github.com/couchcryptid/airquality-etl-service/internal/observability"
	"github.com/couchcryptid/airquality-etl-service/internal/pipeline"
)

// startPostgres launches a PostGIS-enabled postgres container and returns a
// connected store with the schema applied.
func startPostgres(t *testing.T, ctx context.Context) *postgres.Store {
	t.Helper()

	ctr, err := tcpostgres.Run(ctx, "postgis/postgis:16-3.4-alpine",
		tcpostgres.WithDatabase("airquality"),
		tcpostgres.WithUsername("airquality"),
		tcpostgres.WithPassword("airquality"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgres.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func ptr[T any](v T) *T { return &v }

func writeArtifact(t *testing.T, path string) {
	t.Helper()
	ts := time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)
	w := artifact.NewWriter(path)
	require.NoError(t, w.Append([]domain.Observation{
		{
			Parameter: "pm25", Value: ptr(9.5), Unit: ptr("µg/m³"),
			Latitude: 40.7, Longitude: -74.0, Timestamp: ts,
			Location: ptr("NYC-1"),
		},
		{
			Parameter: "pm25", Value: ptr(11.0), Unit: ptr("µg/m³"),
			Latitude: 40.7, Longitude: -74.0, Timestamp: ts.Add(time.Hour),
			Location: ptr("NYC-1"),
		},
		{
			Parameter: "no2", Value: ptr(21.0),
			Latitude: 40.8, Longitude: -73.9, Timestamp: ts,
			Location: ptr("Newark Firehouse"),
		},
	}))
	require.NoError(t, w.Close())
}

func runLoad(t *testing.T, ctx context.Context, store *postgres.Store, path string) pipeline.LoadSummary {
	t.Helper()
	r, err := artifact.OpenReader(ctx, path, 1000)
	require.NoError(t, err)
	defer r.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := pipeline.NewLoader(store, logger, observability.NewMetricsForTesting())

	summary, err := loader.Run(ctx, r)
	require.NoError(t, err)
	return summary
}

func TestLoadArtifactIntoPostgres(t *testing.T) {
	ctx := context.Background()
	store := startPostgres(t, ctx)

	path := filepath.Join(t.TempDir(), "artifact.parquet")
	writeArtifact(t, path)

	summary := runLoad(t, ctx, store, path)
	assert.Equal(t, 3, summary.RowsRead)
	assert.Equal(t, 3, summary.Readings)
	assert.Equal(t, 2, summary.Monitors)

	monitors, readings, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), monitors, "two distinct locations, two monitors")
	assert.Equal(t, int64(3), readings)
}

func TestLoadArtifactIntoPostgres_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := startPostgres(t, ctx)

	path := filepath.Join(t.TempDir(), "artifact.parquet")
	writeArtifact(t, path)

	runLoad(t, ctx, store, path)
	monitorsFirst, readingsFirst, err := store.Counts(ctx)
	require.NoError(t, err)

	// Reloading the same artifact is a no-op thanks to the ON CONFLICT
	// clauses, never an error or a duplicate row.
	runLoad(t, ctx, store, path)
	monitorsSecond, readingsSecond, err := store.Counts(ctx)
	require.NoError(t, err)

	assert.Equal(t, monitorsFirst, monitorsSecond)
	assert.Equal(t, readingsFirst, readingsSecond)
}

func TestLoadBatch_DuplicateReadingsWithinBatch(t *testing.T) {
	ctx := context.Background()
	store := startPostgres(t, ctx)

	ts := time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC)
	monitors := []domain.Monitor{{ID: "OAQ_NYC_1", Name: "NYC-1", Lon: -74.0, Lat: 40.7}}
	readings := []domain.Reading{
		{MonitorID: "OAQ_NYC_1", Timestamp: ts, Pollutant: "pm25", Value: 9.5, Unit: ptr("µg/m³")},
		{MonitorID: "OAQ_NYC_1", Timestamp: ts, Pollutant: "pm25", Value: 9.9, Unit: ptr("µg/m³")},
	}

	require.NoError(t, store.LoadBatch(ctx, monitors, readings))

	_, count, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count, "the duplicate key is dropped, the first value kept")
}
