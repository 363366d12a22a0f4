package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveColumns(t *testing.T) {
	t.Run("flat CSV variant", func(t *testing.T) {
		fields := ResolveColumns([]string{
			"location", "city", "country", "parameter", "value", "unit",
			"date_utc", "latitude", "longitude", "sourceName",
		})

		assert.Equal(t, "parameter", fields.Parameter)
		assert.Equal(t, "country", fields.Country)
		assert.Equal(t, "latitude", fields.Latitude)
		assert.Equal(t, "longitude", fields.Longitude)
		assert.Equal(t, "date_utc", fields.Timestamp)
		assert.Equal(t, "sourceName", fields.SourceName)
		assert.True(t, fields.HasRequired())
	})

	t.Run("dotted S3 export variant", func(t *testing.T) {
		fields := ResolveColumns([]string{
			"pollutant", "value", "coordinates.latitude", "coordinates.longitude",
			"date.utc", "source",
		})

		assert.Equal(t, "pollutant", fields.Parameter)
		assert.Equal(t, "coordinates.latitude", fields.Latitude)
		assert.Equal(t, "coordinates.longitude", fields.Longitude)
		assert.Equal(t, "date.utc", fields.Timestamp)
		assert.Equal(t, "source", fields.SourceName)
		assert.Empty(t, fields.Country)
		assert.True(t, fields.HasRequired())
	})

	t.Run("priority order prefers earlier candidates", func(t *testing.T) {
		fields := ResolveColumns([]string{"lat", "latitude", "timestamp", "date_utc", "parameter"})

		assert.Equal(t, "latitude", fields.Latitude)
		assert.Equal(t, "date_utc", fields.Timestamp)
	})

	t.Run("missing required field", func(t *testing.T) {
		fields := ResolveColumns([]string{"parameter", "longitude", "date_utc"})

		assert.Empty(t, fields.Latitude)
		assert.False(t, fields.HasRequired())
	})

	t.Run("no columns", func(t *testing.T) {
		fields := ResolveColumns(nil)

		assert.Equal(t, CanonicalFields{}, fields)
		assert.False(t, fields.HasRequired())
	})
}
