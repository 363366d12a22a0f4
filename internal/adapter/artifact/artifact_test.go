package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/airquality-etl-service/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func sampleObservations() []domain.Observation {
	return []domain.Observation{
		{
			Parameter: "pm25",
			Value:     ptr(9.5),
			Unit:      ptr("µg/m³"),
			Country:   ptr("US"),
			Latitude:  40.7,
			Longitude: -74.0,
			Timestamp: time.Date(2021, 5, 1, 12, 0, 0, 0, time.UTC),
			Location:  ptr("NYC-1"),
			City:      ptr("New York"),
		},
		{
			// Optional columns that never resolved travel as nulls.
			Parameter: "no2",
			Latitude:  40.8,
			Longitude: -73.9,
			Timestamp: time.Date(2021, 5, 1, 13, 0, 0, 0, time.UTC),
		},
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.parquet")
	want := sampleObservations()

	w := NewWriter(path)
	require.NoError(t, w.Append(want[:1]))
	require.NoError(t, w.Append(nil), "empty batches are a no-op")
	require.NoError(t, w.Append(want[1:]))
	assert.Equal(t, int64(2), w.Rows())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "closing twice is harmless")

	r, err := OpenReader(context.Background(), path, 100)
	require.NoError(t, err)
	defer r.Close()

	var got []domain.Observation
	for {
		batch, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, batch...)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("artifact round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, time.UTC, got[0].Timestamp.Location())
}

func TestWriter_LazyCreation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "artifact.parquet")

	w := NewWriter(path)
	require.NoError(t, w.Append(nil))
	require.NoError(t, w.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "a run that matches nothing writes no artifact")
	_, err = os.Stat(filepath.Join(dir, "out"))
	assert.True(t, os.IsNotExist(err), "not even the directory")
}

func TestWriter_NoPartialFileUnderFinalName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.parquet")

	w := NewWriter(path)
	require.NoError(t, w.Append(sampleObservations()))

	// Before Close the data lives only under the temporary name.
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, w.Close())
	_, err = os.Stat(path)
	assert.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "the temporary file is gone after rename")
}

func TestWriter_AppendAfterClose(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "artifact.parquet"))
	require.NoError(t, w.Close())

	assert.Error(t, w.Append(sampleObservations()))
}

func TestWriter_BatchesAcrossFilesShareSchema(t *testing.T) {
	// Batches from different source variants resolve different optional
	// columns; the artifact pads the gaps with nulls instead of erroring.
	path := filepath.Join(t.TempDir(), "artifact.parquet")

	w := NewWriter(path)
	require.NoError(t, w.Append(sampleObservations()[:1]))
	require.NoError(t, w.Append([]domain.Observation{{
		Parameter:  "pm25",
		Value:      ptr(7.1),
		Latitude:   39.9,
		Longitude:  -75.1,
		Timestamp:  time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC),
		Location:   ptr("Philadelphia"),
		SourceName: ptr("AirNow"),
	}}))
	require.NoError(t, w.Close())

	r, err := OpenReader(context.Background(), path, 100)
	require.NoError(t, err)
	defer r.Close()

	batch, err := r.Next()
	require.NoError(t, err)
	require.Len(t, batch, 2)

	assert.Nil(t, batch[0].SourceName)
	assert.Equal(t, "AirNow", *batch[1].SourceName)
	assert.Nil(t, batch[1].Unit)
}

func TestOpenReader_MissingFile(t *testing.T) {
	_, err := OpenReader(context.Background(), filepath.Join(t.TempDir(), "absent.parquet"), 100)
	assert.Error(t, err)
}
