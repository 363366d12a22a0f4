// Command load runs the loading pass: it reads the parquet artifact
// produced by cmd/ingest in bounded batches and idempotently persists
// monitor and reading rows into the Postgres/PostGIS store. Loading the
// same artifact twice leaves the tables unchanged.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/airquality-etl-service/internal/adapter/artifact"
	httpadapter "github.com/couchcryptid/airquality-etl-service/internal/adapter/http"
	"github.com/couchcryptid/airquality-etl-service/internal/adapter/postgres"
	"github.com/couchcryptid/airquality-etl-service/internal/config"
	"github.com/couchcryptid/airquality-etl-service/internal/observability"
	"github.com/couchcryptid/airquality-etl-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateLoad(); err != nil {
		slog.Error("invalid load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("store connection failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		logger.Error("schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	reader, err := artifact.OpenReader(ctx, cfg.ArtifactPath, cfg.BatchSize)
	if err != nil {
		logger.Error("artifact open failed", "path", cfg.ArtifactPath, "error", err)
		os.Exit(1)
	}
	defer reader.Close()

	loader := pipeline.NewLoader(store, logger, metrics)

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, loader, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background()) //nolint:errcheck // best-effort drain
	}

	summary, err := loader.Run(ctx, reader)

	logger.Info("load finished",
		"batches", summary.Batches,
		"rows_read", summary.RowsRead,
		"monitors", summary.Monitors,
		"readings", summary.Readings,
		"skipped_rows", summary.SkippedRows,
		"duration", summary.Duration,
	)

	if err != nil {
		logger.Error("load failed; rerun is safe, all writes are idempotent", "error", err)
		os.Exit(1)
	}
}
