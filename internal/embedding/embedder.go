package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"

	"github.com/timeless-residents/handson-line-works/internal/rag"
	"github.com/timeless-residents/handson-line-works/internal/retry"
)

const (
	// DefaultModel is the embedding model used unless configured otherwise.
	DefaultModel = "text-embedding-3-small"

	// DefaultBatchSize balances requests-per-minute against tokens-per-minute
	// limits during bulk indexing.
	DefaultBatchSize = 500
)

// Embedder generates embeddings through the OpenAI API with bounded retries.
// It implements rag.EmbeddingProvider.
type Embedder struct {
	client    *Client
	model     string
	batchSize int
	policy    retry.Policy
}

var _ rag.EmbeddingProvider = (*Embedder)(nil)

// NewEmbedder creates an embedder. An empty model selects DefaultModel; a
// batchSize of 0 selects DefaultBatchSize.
func NewEmbedder(client *Client, model string, batchSize int) *Embedder {
	if model == "" {
		model = DefaultModel
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Embedder{
		client:    client,
		model:     model,
		batchSize: batchSize,
		policy:    retry.DefaultPolicy(),
	}
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	// Newlines degrade embedding quality for some models.
	text = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))

	embeddings, err := e.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", rag.ErrEmbedding, err)
	}
	return embeddings[0], nil
}

// EmbedAll generates embeddings for the given texts in batches, preserving
// order.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string) ([][]float32, error) {
	var all [][]float32
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))
		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("%w: batch %d-%d: %v", rag.ErrEmbedding, i, end, err)
		}
		all = append(all, embeddings...)
	}
	return all, nil
}

// embedBatch issues one embeddings request, retrying rate-limit and server
// errors with exponential backoff. Client errors fail immediately.
func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: e.model,
		})
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return retry.Permanent(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
		}

		embeddings = make([][]float32, len(resp.Data))
		for i, data := range resp.Data {
			embeddings[i] = toFloat32(data.Embedding)
		}
		return nil
	}

	if err := e.policy.Do(ctx, operation); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// isRetryable reports whether the error is a rate limit (429) or server-side
// (5xx) failure worth retrying.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	// Transport-level failures (timeouts, resets) are retryable.
	return true
}

// toFloat32 narrows the API's float64 vectors to the storage representation.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
