//go:build integration

package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timeless-residents/handson-line-works/internal/document"
)

// setupQdrant connects to a local Qdrant and skips the test when none is
// running.
func setupQdrant(t *testing.T) *QdrantIndex {
	t.Helper()
	ix, err := NewQdrantIndex("localhost", 6334, "kb_documents_test", 2)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	t.Cleanup(func() { ix.Close() })
	return ix
}

func TestQdrant_AddAndSearch(t *testing.T) {
	ix := setupQdrant(t)
	ctx := context.Background()

	updated := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	chunks := []document.Chunk{
		{
			ID:        uuid.New().String(),
			Content:   "Employees accrue 20 days of paid leave per year.",
			FileName:  "hr-policy.pdf",
			FileType:  "pdf",
			UpdatedAt: updated,
		},
		{
			ID:        uuid.New().String(),
			Content:   "Receipts are required for expenses above 5000 yen.",
			FileName:  "finance.md",
			FileType:  "md",
			UpdatedAt: updated,
		},
	}
	require.NoError(t, ix.Add(ctx, chunks, [][]float32{{1, 0}, {0, 1}}))

	results, err := ix.Search(ctx, []float32{0.9, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0].Chunk
	assert.Equal(t, "hr-policy.pdf", got.FileName)
	assert.Contains(t, got.Content, "paid leave")
	assert.True(t, got.UpdatedAt.Equal(updated))
	assert.Greater(t, results[0].Score, 0.0)
}

func TestQdrant_RejectsDimensionMismatch(t *testing.T) {
	ix := setupQdrant(t)
	ctx := context.Background()

	err := ix.Add(ctx, []document.Chunk{{ID: uuid.New().String()}}, [][]float32{{1, 0, 0}})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ix.Search(ctx, []float32{1}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}
