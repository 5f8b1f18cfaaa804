package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liliang-cn/askcorpus/internal/domain"
)

func buildTestIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := New("test-model", 3,
		[]domain.Chunk{
			{ID: "a.txt#00000", Source: "a.txt", Ordinal: 0, Text: "alpha content"},
			{ID: "a.txt#00001", Source: "a.txt", Ordinal: 1, Start: 10, Text: "beta content"},
			{ID: "b.txt#00000", Source: "b.txt", Ordinal: 0, Text: "gamma content"},
		},
		[][]float32{
			{0.5, 0.5, 0},
			{0, 1, 0},
			{0.2, 0.3, 0.9},
		},
	)
	require.NoError(t, err)
	return ix
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	ix := buildTestIndex(t)
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ix.Size(), loaded.Size())
	assert.Equal(t, ix.Dimension(), loaded.Dimension())
	assert.Equal(t, ix.Model(), loaded.Model())

	queries := [][]float32{
		{1, 0, 0},
		{0, 0, 1},
		{0.3, 0.3, 0.3},
	}
	for _, q := range queries {
		want, err := ix.Query(q, 3)
		require.NoError(t, err)
		got, err := loaded.Query(q, 3)
		require.NoError(t, err)
		assert.Equal(t, want, got, "query %v differs after reload", q)
	}
}

func TestSave_LeavesNoTempFile(t *testing.T) {
	ix := buildTestIndex(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")
	require.NoError(t, ix.Save(path))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestSave_ReplacesExistingSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")

	first := buildTestIndex(t)
	require.NoError(t, first.Save(path))

	second, err := New("test-model", 2,
		[]domain.Chunk{{ID: "c.txt#00000", Source: "c.txt", Text: "only one"}},
		[][]float32{{1, 0}},
	)
	require.NoError(t, err)
	require.NoError(t, second.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Size())
	assert.Equal(t, 2, loaded.Dimension())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.ErrorIs(t, err, domain.ErrIndexLoad)
}

func TestLoad_CorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrIndexLoad)
}

func TestLoad_FormatVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	snap := `{"manifest":{"format_version":99,"model":"m","dimension":3,"chunk_count":0,"built_at":"2024-01-01T00:00:00Z"},"entries":[]}`
	require.NoError(t, os.WriteFile(path, []byte(snap), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrIndexLoad)
}

func TestLoad_MissingDimensionTag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	snap := `{"manifest":{"format_version":1,"model":"m","chunk_count":0,"built_at":"2024-01-01T00:00:00Z"},"entries":[]}`
	require.NoError(t, os.WriteFile(path, []byte(snap), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrIndexLoad)
}

func TestLoad_ChunkCountMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	snap := `{"manifest":{"format_version":1,"model":"m","dimension":3,"chunk_count":5,"built_at":"2024-01-01T00:00:00Z"},"entries":[]}`
	require.NoError(t, os.WriteFile(path, []byte(snap), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrIndexLoad)
}

func TestLoad_EntryDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	snap := `{"manifest":{"format_version":1,"model":"m","dimension":3,"chunk_count":1,"built_at":"2024-01-01T00:00:00Z"},` +
		`"entries":[{"chunk":{"id":"a#00000","source":"a","ordinal":0,"start":0,"text":"t"},"vector":[1,0]}]}`
	require.NoError(t, os.WriteFile(path, []byte(snap), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, domain.ErrIndexLoad)
}
