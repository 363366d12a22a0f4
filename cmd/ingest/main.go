// Command ingest runs the ingestion pass: it streams the configured bulk
// archives (remote URLs and/or local files), filters them down to the
// configured pollutant/country/time/region subset, and accumulates the
// survivors into a single parquet artifact for cmd/load.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/couchcryptid/airquality-etl-service/internal/adapter/archive"
	"github.com/couchcryptid/airquality-etl-service/internal/adapter/artifact"
	"github.com/couchcryptid/airquality-etl-service/internal/adapter/fetch"
	httpadapter "github.com/couchcryptid/airquality-etl-service/internal/adapter/http"
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
	if err := cfg.ValidateIngest(); err != nil {
		slog.Error("invalid ingest config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	paths, err := expandGlob(cfg.InputGlob)
	if err != nil {
		logger.Error("bad INPUT_GLOB", "glob", cfg.InputGlob, "error", err)
		os.Exit(1)
	}
	if len(cfg.InputURLs) == 0 && len(paths) == 0 {
		logger.Error("no input files found", "glob", cfg.InputGlob)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher := fetch.NewDownloader(cfg.DownloadTimeout, cfg.DownloadRetries, logger)
	writer := artifact.NewWriter(cfg.ArtifactPath)
	opener := func(path string, batchSize int) (pipeline.BatchSource, error) {
		return archive.Open(path, batchSize)
	}

	ing := pipeline.NewIngestor(fetcher, opener, writer, cfg.FilterRules(), cfg.BatchSize, logger, metrics)

	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, ing, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background()) //nolint:errcheck // best-effort drain
	}

	summary, runErr := ing.Run(ctx, cfg.InputURLs, paths)

	// Finalize on every path: whatever was filtered before a failure is
	// still a usable artifact.
	closeErr := writer.Close()

	logger.Info("ingest finished",
		"files", summary.Files,
		"failed_files", summary.FailedFiles,
		"rows_read", summary.RowsRead,
		"rows_matched", summary.RowsMatched,
		"rows_dropped", summary.Drops.Total(),
		"duration", summary.Duration,
	)

	switch {
	case runErr != nil:
		logger.Error("ingest failed", "error", runErr)
	case closeErr != nil:
		logger.Error("artifact finalize failed", "error", closeErr)
	case writer.Rows() == 0:
		logger.Info("no data matched filters; artifact not written", "path", cfg.ArtifactPath)
	default:
		logger.Info("artifact written", "path", cfg.ArtifactPath, "rows", writer.Rows())
	}
	if runErr != nil || closeErr != nil {
		os.Exit(1)
	}
}

func expandGlob(pattern string) ([]string, error) {
	if pattern == "" {
		return nil, nil
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
