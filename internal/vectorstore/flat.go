package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/timeless-residents/handson-line-works/internal/document"
)

// Backend is the write-and-search contract shared by index implementations.
// FlatIndex is the exact, file-backed default; QdrantIndex is the server-backed
// alternative. The contract is identical, so backends can be swapped without
// changing callers.
type Backend interface {
	Add(ctx context.Context, chunks []document.Chunk, embeddings [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)
}

// SearchResult pairs a stored chunk with its similarity score for one query.
type SearchResult struct {
	Chunk document.Chunk
	Score float64
}

// Stats summarizes the index contents.
type Stats struct {
	DocumentCount int
	DocumentTypes map[string]int
	Dimension     int
}

// FlatIndex is an exact nearest-neighbor index over (chunk, embedding) pairs.
// Documents and embeddings are kept as parallel ordered slices; the position
// in the sequence is the implicit identifier used during search. All embeddings
// share one dimension, fixed by the first Add.
//
// Scoring is 1/(1+d) over squared Euclidean distance. This is a monotonic
// transform of L2 distance, not a probability and not cosine similarity;
// embeddings are not assumed unit-normalized, so ranking must stay
// distance-based.
type FlatIndex struct {
	mu         sync.RWMutex
	documents  []document.Chunk
	embeddings [][]float32
	dimension  int
}

var _ Backend = (*FlatIndex)(nil)

// NewFlatIndex creates an empty index. A dimension of 0 leaves the dimension
// to be established by the first Add call.
func NewFlatIndex(dimension int) *FlatIndex {
	return &FlatIndex{dimension: dimension}
}

// Add appends chunks and their embeddings to the index. The two sequences
// must have equal length and every embedding must match the index dimension.
// On success the new entries are immediately searchable; on failure the index
// is unchanged.
func (ix *FlatIndex) Add(ctx context.Context, chunks []document.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d documents, %d embeddings", ErrCountMismatch, len(chunks), len(embeddings))
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	dimension := ix.dimension
	for i, emb := range embeddings {
		if dimension == 0 {
			dimension = len(emb)
		}
		if len(emb) != dimension {
			return fmt.Errorf("%w: embedding %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(emb), dimension)
		}
	}

	ix.dimension = dimension
	ix.documents = append(ix.documents, chunks...)
	ix.embeddings = append(ix.embeddings, embeddings...)
	return nil
}

// Search returns the k stored entries nearest to the query embedding,
// sorted by descending score. Ties are broken by insertion order. k is
// clamped to the document count; an empty index returns no results.
func (ix *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.documents) == 0 {
		return nil, nil
	}
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), ix.dimension)
	}
	if k > len(ix.documents) {
		k = len(ix.documents)
	}
	if k <= 0 {
		return nil, nil
	}

	results := make([]SearchResult, len(ix.documents))
	for i, emb := range ix.embeddings {
		d := squaredL2(query, emb)
		results[i] = SearchResult{
			Chunk: ix.documents[i],
			Score: 1.0 / (1.0 + d),
		}
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results[:k], nil
}

// Len returns the number of indexed entries.
func (ix *FlatIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.documents)
}

// Dimension returns the embedding dimension, or 0 if nothing has been added.
func (ix *FlatIndex) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dimension
}

// Stats reports document counts by file type and the index dimension.
func (ix *FlatIndex) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	types := make(map[string]int)
	for _, doc := range ix.documents {
		if doc.FileType != "" {
			types[doc.FileType]++
		}
	}
	return Stats{
		DocumentCount: len(ix.documents),
		DocumentTypes: types,
		Dimension:     ix.dimension,
	}
}

// Entries returns copies of the ordered document and embedding sequences.
// Used by re-indexing flows that rebuild the index without some sources.
func (ix *FlatIndex) Entries() ([]document.Chunk, [][]float32) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	docs := make([]document.Chunk, len(ix.documents))
	copy(docs, ix.documents)
	embs := make([][]float32, len(ix.embeddings))
	copy(embs, ix.embeddings)
	return docs, embs
}

func squaredL2(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum
}
