package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
)

// clearEnv unsets every variable Load reads so tests see only what they set.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"POLLUTANTS", "COUNTRY", "START_DATE", "END_DATE",
		"BBOX_LAT_MIN", "BBOX_LAT_MAX", "BBOX_LON_MIN", "BBOX_LON_MAX",
		"BATCH_SIZE", "ARTIFACT_PATH", "INPUT_URLS", "INPUT_GLOB",
		"DATABASE_URL", "DOWNLOAD_TIMEOUT", "DOWNLOAD_RETRIES",
		"HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"pm25", "no2"}, cfg.Pollutants)
	assert.Equal(t, "US", cfg.Country)
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), cfg.StartDate)
	assert.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), cfg.EndDate)
	assert.Equal(t, domain.BoundingBox{LatMin: 38.5, LatMax: 42.3, LonMin: -75.5, LonMax: -71.5}, cfg.BBox)
	assert.Equal(t, 50000, cfg.BatchSize)
	assert.Equal(t, "data/filtered_openaq.parquet", cfg.ArtifactPath)
	assert.Empty(t, cfg.InputURLs)
	assert.Empty(t, cfg.InputGlob)
	assert.Equal(t, 5*time.Minute, cfg.DownloadTimeout)
	assert.Equal(t, 4, cfg.DownloadRetries)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("POLLUTANTS", " pm25 , o3 ")
	t.Setenv("COUNTRY", "GB")
	t.Setenv("START_DATE", "2021-03-01")
	t.Setenv("END_DATE", "2021-03-31")
	t.Setenv("BBOX_LAT_MIN", "51.0")
	t.Setenv("BBOX_LAT_MAX", "52.0")
	t.Setenv("BBOX_LON_MIN", "-1.0")
	t.Setenv("BBOX_LON_MAX", "0.5")
	t.Setenv("BATCH_SIZE", "1000")
	t.Setenv("INPUT_URLS", "https://example.com/a.csv.gz,https://example.com/b.parquet")
	t.Setenv("DOWNLOAD_TIMEOUT", "30s")
	t.Setenv("DOWNLOAD_RETRIES", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"pm25", "o3"}, cfg.Pollutants)
	assert.Equal(t, "GB", cfg.Country)
	assert.Equal(t, domain.BoundingBox{LatMin: 51.0, LatMax: 52.0, LonMin: -1.0, LonMax: 0.5}, cfg.BBox)
	assert.Equal(t, 1000, cfg.BatchSize)
	assert.Equal(t, []string{"https://example.com/a.csv.gz", "https://example.com/b.parquet"}, cfg.InputURLs)
	assert.Equal(t, 30*time.Second, cfg.DownloadTimeout)
	assert.Equal(t, 2, cfg.DownloadRetries)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad start date", "START_DATE", "March 1st"},
		{"bad batch size", "BATCH_SIZE", "-5"},
		{"non-numeric batch size", "BATCH_SIZE", "lots"},
		{"bad bbox value", "BBOX_LAT_MIN", "north"},
		{"bad download timeout", "DOWNLOAD_TIMEOUT", "0s"},
		{"bad download retries", "DOWNLOAD_RETRIES", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_InvertedWindowAndBox(t *testing.T) {
	t.Run("end before start", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("START_DATE", "2022-01-01")
		t.Setenv("END_DATE", "2021-01-01")

		_, err := Load()
		assert.ErrorContains(t, err, "END_DATE precedes START_DATE")
	})

	t.Run("bbox min exceeds max", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("BBOX_LAT_MIN", "45.0")
		t.Setenv("BBOX_LAT_MAX", "40.0")

		_, err := Load()
		assert.ErrorContains(t, err, "bounding box min exceeds max")
	})
}

func TestValidateIngest(t *testing.T) {
	t.Run("requires an input source", func(t *testing.T) {
		cfg := &Config{ArtifactPath: "out.parquet"}
		assert.Error(t, cfg.ValidateIngest())
	})

	t.Run("glob alone is enough", func(t *testing.T) {
		cfg := &Config{InputGlob: "data/*.csv.gz", ArtifactPath: "out.parquet"}
		assert.NoError(t, cfg.ValidateIngest())
	})

	t.Run("requires artifact path", func(t *testing.T) {
		cfg := &Config{InputURLs: []string{"https://example.com/a.csv.gz"}}
		assert.Error(t, cfg.ValidateIngest())
	})
}

func TestValidateLoad(t *testing.T) {
	t.Run("requires database url", func(t *testing.T) {
		cfg := &Config{ArtifactPath: "out.parquet"}
		assert.Error(t, cfg.ValidateLoad())
	})

	t.Run("complete", func(t *testing.T) {
		cfg := &Config{DatabaseURL: "postgres://localhost/airq", ArtifactPath: "out.parquet"}
		assert.NoError(t, cfg.ValidateLoad())
	})
}

func TestFilterRules(t *testing.T) {
	cfg := &Config{
		Pollutants: []string{"PM25"},
		Country:    "us",
		StartDate:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
		BBox:       domain.BoundingBox{LatMin: 38.5, LatMax: 42.3, LonMin: -75.5, LonMax: -71.5},
	}

	rules := cfg.FilterRules()

	assert.True(t, rules.Pollutants["pm25"])
	assert.Equal(t, "US", rules.Country)
	assert.Equal(t, time.Date(2020, 12, 31, 23, 59, 59, 0, time.UTC), rules.End)
}
