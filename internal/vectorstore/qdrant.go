package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/timeless-residents/handson-line-works/internal/document"
)

// QdrantIndex is the server-backed Backend implementation. Persistence and
// the searchable structure live inside Qdrant, so Save/Load do not apply;
// the collection is the durable artifact.
//
// Qdrant returns its own similarity scores, so the 1/(1+d) transform of the
// flat index is configured here as a Euclid-distance collection to keep
// rankings consistent with the exact backend.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

var _ Backend = (*QdrantIndex)(nil)

// NewQdrantIndex connects to Qdrant and ensures the collection exists with
// the given vector dimension and Euclidean distance.
func NewQdrantIndex(host string, port int, collection string, dimension int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}

	ix := &QdrantIndex{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}
	if err := ix.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, err
	}
	return ix, nil
}

func (ix *QdrantIndex) ensureCollection(ctx context.Context) error {
	collections, err := ix.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, name := range collections {
		if name == ix.collection {
			return nil
		}
	}

	err = ix.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: ix.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(ix.dimension),
			Distance: qdrant.Distance_Euclid,
		}),
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

// Add upserts chunks with their embeddings into the collection.
func (ix *QdrantIndex) Add(ctx context.Context, chunks []document.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("%w: %d documents, %d embeddings", ErrCountMismatch, len(chunks), len(embeddings))
	}
	for i, emb := range embeddings {
		if len(emb) != ix.dimension {
			return fmt.Errorf("%w: embedding %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(emb), ix.dimension)
		}
	}

	points := make([]*qdrant.PointStruct, len(chunks))
	for i, chunk := range chunks {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(chunk.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"content":      chunk.Content,
				"source":       chunk.Source,
				"file_name":    chunk.FileName,
				"file_type":    chunk.FileType,
				"chunk_index":  int64(chunk.ChunkIndex),
				"total_chunks": int64(chunk.TotalChunks),
				"created_at":   chunk.CreatedAt.Format(time.RFC3339),
				"updated_at":   chunk.UpdatedAt.Format(time.RFC3339),
			}),
		}
	}

	_, err := ix.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: ix.collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}
	return nil
}

// Search performs a nearest-neighbor query against the collection and
// converts the returned Euclidean scores into the 1/(1+d) scale used by
// the flat backend.
func (ix *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != ix.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(query), ix.dimension)
	}

	points, err := ix.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: ix.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, point := range points {
		payload := point.Payload
		chunk := document.Chunk{
			ID:          point.Id.GetUuid(),
			Content:     payload["content"].GetStringValue(),
			Source:      payload["source"].GetStringValue(),
			FileName:    payload["file_name"].GetStringValue(),
			FileType:    payload["file_type"].GetStringValue(),
			ChunkIndex:  int(payload["chunk_index"].GetIntegerValue()),
			TotalChunks: int(payload["total_chunks"].GetIntegerValue()),
		}
		if t, err := time.Parse(time.RFC3339, payload["created_at"].GetStringValue()); err == nil {
			chunk.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, payload["updated_at"].GetStringValue()); err == nil {
			chunk.UpdatedAt = t
		}

		// Qdrant's Euclid score is the distance itself for ascending order.
		d := float64(point.Score)
		results = append(results, SearchResult{
			Chunk: chunk,
			Score: 1.0 / (1.0 + d*d),
		})
	}
	return results, nil
}

// Close releases the client connection.
func (ix *QdrantIndex) Close() error {
	if ix.client != nil {
		return ix.client.Close()
	}
	return nil
}
