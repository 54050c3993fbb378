package vectorstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timeless-residents/handson-line-works/internal/document"
)

// TestSaveLoad_RoundTrip verifies the artifact pair survives a save/load
// cycle with documents, embeddings and ordering intact.
func TestSaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")

	updated := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	chunks := []document.Chunk{
		{ID: "a", Content: "vacation policy", FileName: "hr.pdf", FileType: "pdf", UpdatedAt: updated},
		{ID: "b", Content: "expense rules", FileName: "finance.md", FileType: "md", UpdatedAt: updated},
	}
	embeddings := [][]float32{{1, 0}, {0, 1}}

	ix := NewFlatIndex(0)
	require.NoError(t, ix.Add(ctx, chunks, embeddings))
	require.NoError(t, ix.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, 2, loaded.Dimension())

	results, err := loaded.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, "vacation policy", results[0].Chunk.Content)
	assert.True(t, results[0].Chunk.UpdatedAt.Equal(updated))
}

// TestLoad_Missing verifies the not-found sentinel for a fresh path.
func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.ErrorIs(t, err, ErrIndexNotFound)
}

// TestLoad_MissingVectorHalf verifies that the pair is loaded or not at all.
func TestLoad_MissingVectorHalf(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.json")

	ix := NewFlatIndex(0)
	require.NoError(t, ix.Add(ctx, []document.Chunk{{ID: "a"}}, [][]float32{{1}}))
	require.NoError(t, ix.Save(path))
	require.NoError(t, os.Remove(path+".vec"))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrIndexNotFound)
}

// TestLoad_Corrupt verifies malformed artifacts are rejected, not guessed at.
func TestLoad_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrPersistence)
}

// TestLoad_UnsupportedVersion verifies the schema version guard.
func TestLoad_UnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 99, "dimension": 2, "documents": []}`), 0o644))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "version")
}

// TestLoad_InconsistentPair verifies cross-checking of the two halves.
func TestLoad_InconsistentPair(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.json")
	pathB := filepath.Join(dir, "b.json")

	one := NewFlatIndex(0)
	require.NoError(t, one.Add(ctx, []document.Chunk{{ID: "a"}}, [][]float32{{1}}))
	require.NoError(t, one.Save(pathA))

	two := NewFlatIndex(0)
	require.NoError(t, two.Add(ctx, []document.Chunk{{ID: "b"}, {ID: "c"}}, [][]float32{{1}, {2}}))
	require.NoError(t, two.Save(pathB))

	// Pair a's documents with b's vectors.
	data, err := os.ReadFile(pathB + ".vec")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(pathA+".vec", data, 0o644))

	_, err = Load(pathA)
	require.ErrorIs(t, err, ErrPersistence)
}

// TestSave_CreatesParentDir verifies saving into a fresh directory tree.
func TestSave_CreatesParentDir(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "nested", "index.json")

	ix := NewFlatIndex(0)
	require.NoError(t, ix.Add(ctx, []document.Chunk{{ID: "a"}}, [][]float32{{1}}))
	require.NoError(t, ix.Save(path))

	_, err := Load(path)
	require.NoError(t, err)
}
