// Package fetch stages remote bulk archives into local temp files.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"
)

// Downloader streams archive URLs to temp files with bounded retries.
// Transport failures are retried with exponential backoff; exhausting the
// retry budget is fatal for that URL only, and the caller moves on to the
// next file.
type Downloader struct {
	client   *http.Client
	logger   *slog.Logger
	attempts int
}

// NewDownloader creates a downloader. attempts is the total number of tries
// per URL, minimum 1.
func NewDownloader(timeout time.Duration, attempts int, logger *slog.Logger) *Downloader {
	if attempts < 1 {
		attempts = 1
	}
	return &Downloader{
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
		attempts: attempts,
	}
}

// Fetch downloads url into a temp file and returns its path. The caller
// removes the file once it has been processed.
func (d *Downloader) Fetch(ctx context.Context, url string) (string, error) {
	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= d.attempts; attempt++ {
		path, err := d.fetchOnce(ctx, url)
		if err == nil {
			return path, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", err
		}

		if attempt < d.attempts {
			d.logger.Warn("download failed, retrying",
				"url", url, "attempt", attempt, "backoff", backoff, "error", err)
			if !sleepWithContext(ctx, backoff) {
				return "", ctx.Err()
			}
			backoff = nextBackoff(backoff, maxBackoff)
		}
	}
	return "", fmt.Errorf("download %s after %d attempts: %w", url, d.attempts, lastErr)
}

func (d *Downloader) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "openaq-*"+archiveExt(url))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("stream download: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return tmp.Name(), nil
}

// archiveExt preserves the source extension so the archive opener can
// dispatch on it. Defaults to .parquet, the bulk export's native format.
func archiveExt(url string) string {
	base := path.Base(url)
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}
	switch {
	case strings.HasSuffix(base, ".csv.gz"):
		return ".csv.gz"
	case strings.HasSuffix(base, ".csv"):
		return ".csv"
	default:
		return ".parquet"
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
