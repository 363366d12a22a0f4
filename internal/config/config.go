package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
)

const dateLayout = "2006-01-02"

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Filter configuration.
	Pollutants []string
	Country    string
	StartDate  time.Time
	EndDate    time.Time
	BBox       domain.BoundingBox

	// Pipeline configuration.
	BatchSize    int
	ArtifactPath string
	InputURLs    []string
	InputGlob    string

	// Store configuration.
	DatabaseURL string

	// Download configuration.
	DownloadTimeout time.Duration
	DownloadRetries int

	// Observability.
	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables (optionally a .env
// file), applying defaults where unset. Per-command requirements are checked
// separately by ValidateIngest and ValidateLoad.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	startDate, err := parseDate("START_DATE", "2019-01-01")
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate("END_DATE", "2024-12-31")
	if err != nil {
		return nil, err
	}
	if endDate.Before(startDate) {
		return nil, errors.New("END_DATE precedes START_DATE")
	}

	bbox, err := parseBBox()
	if err != nil {
		return nil, err
	}

	batchSize, err := parsePositiveInt("BATCH_SIZE", 50000)
	if err != nil {
		return nil, err
	}

	downloadTimeout, err := parsePositiveDuration("DOWNLOAD_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	downloadRetries, err := parsePositiveInt("DOWNLOAD_RETRIES", 4)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Pollutants:      parseList(envOrDefault("POLLUTANTS", "pm25,no2")),
		Country:         strings.TrimSpace(envOrDefault("COUNTRY", "US")),
		StartDate:       startDate,
		EndDate:         endDate,
		BBox:            bbox,
		BatchSize:       batchSize,
		ArtifactPath:    envOrDefault("ARTIFACT_PATH", "data/filtered_openaq.parquet"),
		InputURLs:       parseList(os.Getenv("INPUT_URLS")),
		InputGlob:       strings.TrimSpace(os.Getenv("INPUT_GLOB")),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DownloadTimeout: downloadTimeout,
		DownloadRetries: downloadRetries,
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
	}

	if len(cfg.Pollutants) == 0 {
		return nil, errors.New("POLLUTANTS must name at least one pollutant")
	}

	return cfg, nil
}

// ValidateIngest checks the settings the ingest command cannot run without.
func (c *Config) ValidateIngest() error {
	if len(c.InputURLs) == 0 && c.InputGlob == "" {
		return errors.New("at least one of INPUT_URLS or INPUT_GLOB is required")
	}
	if c.ArtifactPath == "" {
		return errors.New("ARTIFACT_PATH is required")
	}
	return nil
}

// ValidateLoad checks the settings the load command cannot run without.
func (c *Config) ValidateLoad() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.ArtifactPath == "" {
		return errors.New("ARTIFACT_PATH is required")
	}
	return nil
}

// FilterRules builds the normalized filter predicates from the configured
// whitelist, country, window, and bounding box.
func (c *Config) FilterRules() domain.FilterRules {
	return domain.NewFilterRules(c.Pollutants, c.Country, c.StartDate, c.EndDate, c.BBox)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseDate(key, fallback string) (time.Time, error) {
	v := envOrDefault(key, fallback)
	t, err := time.ParseInLocation(dateLayout, v, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return t, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parsePositiveDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseBBox() (domain.BoundingBox, error) {
	latMin, err := parseFloat("BBOX_LAT_MIN", 38.5)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	latMax, err := parseFloat("BBOX_LAT_MAX", 42.3)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	lonMin, err := parseFloat("BBOX_LON_MIN", -75.5)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	lonMax, err := parseFloat("BBOX_LON_MAX", -71.5)
	if err != nil {
		return domain.BoundingBox{}, err
	}
	if latMin > latMax || lonMin > lonMax {
		return domain.BoundingBox{}, errors.New("bounding box min exceeds max")
	}
	return domain.BoundingBox{LatMin: latMin, LatMax: latMax, LonMin: lonMin, LonMax: lonMax}, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
