package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timeless-residents/handson-line-works/internal/document"
)

func chunk(id, content string) document.Chunk {
	return document.Chunk{ID: id, Content: content, FileName: id + ".txt", FileType: "txt"}
}

// TestAdd_CountMismatch verifies that mismatched inputs are rejected and
// leave the index unchanged.
func TestAdd_CountMismatch(t *testing.T) {
	ix := NewFlatIndex(0)
	err := ix.Add(context.Background(), []document.Chunk{chunk("a", "one")}, nil)
	require.ErrorIs(t, err, ErrCountMismatch)
	assert.Equal(t, 0, ix.Len())
}

// TestAdd_DimensionMismatch verifies that a batch with inconsistent
// dimensions is rejected whole.
func TestAdd_DimensionMismatch(t *testing.T) {
	ix := NewFlatIndex(0)
	chunks := []document.Chunk{chunk("a", "one"), chunk("b", "two")}
	embeddings := [][]float32{{1, 0}, {1, 0, 0}}

	err := ix.Add(context.Background(), chunks, embeddings)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 0, ix.Len(), "failed add must leave the index unchanged")
	assert.Equal(t, 0, ix.Dimension())
}

// TestAdd_FixesDimension verifies the dimension is established by the first
// add and enforced afterwards.
func TestAdd_FixesDimension(t *testing.T) {
	ix := NewFlatIndex(0)
	ctx := context.Background()

	require.NoError(t, ix.Add(ctx, []document.Chunk{chunk("a", "one")}, [][]float32{{1, 0, 0}}))
	assert.Equal(t, 3, ix.Dimension())

	err := ix.Add(ctx, []document.Chunk{chunk("b", "two")}, [][]float32{{1, 0}})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, ix.Len())
}

// TestSearch_Ranking verifies distance-based ranking and the score transform.
func TestSearch_Ranking(t *testing.T) {
	ix := NewFlatIndex(0)
	ctx := context.Background()
	chunks := []document.Chunk{chunk("a", "first"), chunk("b", "second")}
	embeddings := [][]float32{{1, 0}, {0, 1}}
	require.NoError(t, ix.Add(ctx, chunks, embeddings))

	results, err := ix.Search(ctx, []float32{0.9, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].Chunk.ID)
	assert.Equal(t, "b", results[1].Chunk.ID)

	// score = 1/(1+d) with d the squared L2 distance
	assert.InDelta(t, 1.0/(1.0+0.02), results[0].Score, 1e-9)
	assert.InDelta(t, 1.0/(1.0+1.62), results[1].Score, 1e-9)
	assert.Greater(t, results[0].Score, results[1].Score)
}

// TestSearch_TiesKeepInsertionOrder verifies stable ordering for equal scores.
func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	ix := NewFlatIndex(0)
	ctx := context.Background()
	chunks := []document.Chunk{chunk("first", "x"), chunk("second", "x"), chunk("third", "x")}
	embeddings := [][]float32{{0, 1}, {0, 1}, {0, 1}}
	require.NoError(t, ix.Add(ctx, chunks, embeddings))

	results, err := ix.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Chunk.ID)
	assert.Equal(t, "second", results[1].Chunk.ID)
	assert.Equal(t, "third", results[2].Chunk.ID)
}

// TestSearch_KClamp verifies k larger than the index is clamped.
func TestSearch_KClamp(t *testing.T) {
	ix := NewFlatIndex(0)
	ctx := context.Background()
	require.NoError(t, ix.Add(ctx,
		[]document.Chunk{chunk("a", "one"), chunk("b", "two")},
		[][]float32{{1, 0}, {0, 1}}))

	results, err := ix.Search(ctx, []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

// TestSearch_EmptyIndex verifies searching nothing returns nothing.
func TestSearch_EmptyIndex(t *testing.T) {
	ix := NewFlatIndex(0)
	results, err := ix.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// TestSearch_QueryDimensionMismatch verifies a bad query is rejected.
func TestSearch_QueryDimensionMismatch(t *testing.T) {
	ix := NewFlatIndex(0)
	ctx := context.Background()
	require.NoError(t, ix.Add(ctx, []document.Chunk{chunk("a", "one")}, [][]float32{{1, 0}}))

	_, err := ix.Search(ctx, []float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

// TestStats verifies per-type document counts.
func TestStats(t *testing.T) {
	ix := NewFlatIndex(0)
	ctx := context.Background()
	chunks := []document.Chunk{
		{ID: "1", FileType: "pdf"},
		{ID: "2", FileType: "pdf"},
		{ID: "3", FileType: "md"},
	}
	embeddings := [][]float32{{1}, {2}, {3}}
	require.NoError(t, ix.Add(ctx, chunks, embeddings))

	stats := ix.Stats()
	assert.Equal(t, 3, stats.DocumentCount)
	assert.Equal(t, 1, stats.Dimension)
	assert.Equal(t, map[string]int{"pdf": 2, "md": 1}, stats.DocumentTypes)
}
