package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timberline/sortline/internal/geom"
	"github.com/timberline/sortline/internal/roi"
)

func sampleDocument() roi.Document {
	doc := roi.NewDocument()
	doc.Cameras["top_camera"] = map[string]roi.Definition{
		"inspection_zone": {
			Camera:           "top_camera",
			ID:               "inspection_zone",
			Rect:             geom.Rect{X1: 64, Y1: 0, X2: 1216, Y2: 108},
			Active:           true,
			Name:             "Top Inspection Zone",
			OverlapThreshold: 0.3,
		},
		"edge_zone": {
			Camera:           "top_camera",
			ID:               "edge_zone",
			Rect:             geom.Rect{X1: 0, Y1: 0, X2: 64, Y2: 720},
			Active:           false,
			Name:             "Edge Zone",
			OverlapThreshold: 0.5,
		},
	}
	doc.Cameras["bottom_camera"] = map[string]roi.Definition{
		"inspection_zone": {
			Camera:           "bottom_camera",
			ID:               "inspection_zone",
			Rect:             geom.Rect{X1: 64, Y1: 612, X2: 1216, Y2: 720},
			Active:           true,
			Name:             "Bottom Inspection Zone",
			OverlapThreshold: 0.3,
		},
	}
	return doc
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry", "roi_registry.json")
	fs := NewFileStore(path)

	// Nothing persisted yet.
	_, ok, err := fs.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	want := sampleDocument()
	require.NoError(t, fs.Save(want))

	got, ok, err := fs.Load()
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestFileStoreOverwrites(t *testing.T) {
	t.Parallel()

	fs := NewFileStore(filepath.Join(t.TempDir(), "roi.json"))
	require.NoError(t, fs.Save(sampleDocument()))

	small := roi.NewDocument()
	small.Cameras["cam"] = map[string]roi.Definition{
		"only": {Camera: "cam", ID: "only", Rect: geom.Rect{X1: 0, Y1: 0, X2: 1, Y2: 1}, Active: true, Name: "Only", OverlapThreshold: 0.3},
	}
	require.NoError(t, fs.Save(small))

	got, ok, err := fs.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Cameras, 1)
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roi.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, _, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestFileStoreRejectsFutureSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roi.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"schema_version": 99, "cameras": {}}`), 0o644))

	_, _, err := NewFileStore(path).Load()
	assert.Error(t, err)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	_, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)

	want := sampleDocument()
	require.NoError(t, s.Save(want))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("document mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLiteStoreSaveReplaces(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(sampleDocument()))

	small := roi.NewDocument()
	small.Cameras["cam"] = map[string]roi.Definition{
		"only": {Camera: "cam", ID: "only", Rect: geom.Rect{X1: 1, Y1: 2, X2: 3, Y2: 4}, Active: false, Name: "Only", OverlapThreshold: 0.7},
	}
	require.NoError(t, s.Save(small))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got.Cameras, 1)

	def := got.Cameras["cam"]["only"]
	assert.False(t, def.Active)
	assert.InDelta(t, 0.7, def.OverlapThreshold, 1e-9)
	assert.Equal(t, geom.Rect{X1: 1, Y1: 2, X2: 3, Y2: 4}, def.Rect)
}

func TestSQLiteStoreReopens(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "registry.db")

	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(sampleDocument()))
	require.NoError(t, s.Close())

	// Re-opening runs migrations idempotently and sees the saved rows.
	s2, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	got, ok, err := s2.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Cameras, 2)
}
