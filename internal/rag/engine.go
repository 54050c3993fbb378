package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/timeless-residents/handson-line-works/internal/document"
	"github.com/timeless-residents/handson-line-works/internal/vectorstore"
)

// NoMatchAnswer is returned when retrieval finds nothing relevant. The
// generation provider is not consulted in that case.
const NoMatchAnswer = "I'm sorry, I couldn't find any information related to your question. " +
	"Please try rephrasing it or ask about a different topic."

// DegradedAnswer is returned when the generation provider keeps failing
// after retries.
const DegradedAnswer = "I'm sorry, something went wrong while generating an answer. " +
	"Please try again in a little while."

const previewLength = 100

// Retriever is the read-only slice of the vector index the engine needs.
// The engine never mutates the index.
type Retriever interface {
	Search(ctx context.Context, query []float32, k int) ([]vectorstore.SearchResult, error)
}

// UsedDocument records one retrieved chunk that grounded an answer.
type UsedDocument struct {
	Source      string    `json:"source"`
	FileName    string    `json:"file_name"`
	FileType    string    `json:"file_type"`
	ChunkIndex  int       `json:"chunk_index"`
	Score       float64   `json:"score"`
	UpdatedAt   time.Time `json:"updated_at"`
	Preview     string    `json:"content_preview"`
}

// Engine combines vector retrieval with text generation to produce grounded,
// cited answers. Session state is owned by the caller; the engine only
// consumes the history it is handed.
type Engine struct {
	embedder  EmbeddingProvider
	generator GenerationProvider
	retriever Retriever
	topK      int
	logger    *slog.Logger
}

// NewEngine creates an engine searching the top k chunks per query.
func NewEngine(embedder EmbeddingProvider, generator GenerationProvider, retriever Retriever, topK int, logger *slog.Logger) *Engine {
	if topK <= 0 {
		topK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder:  embedder,
		generator: generator,
		retriever: retriever,
		topK:      topK,
		logger:    logger,
	}
}

// SearchRelevant embeds the query and returns the top-k matching chunks.
func (e *Engine) SearchRelevant(ctx context.Context, query string, k int) ([]vectorstore.SearchResult, error) {
	if k <= 0 {
		k = e.topK
	}
	embedding, err := e.embedder.Embed(ctx, query)
	if err != nil {
		// The embedding client wraps ErrEmbedding itself; only bare
		// errors from other implementations need the sentinel attached.
		if errors.Is(err, ErrEmbedding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	results, err := e.retriever.Search(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return results, nil
}

// GenerateAnswer produces a grounded answer for the query. When retrieval
// finds nothing, a fixed no-match answer is returned without calling the
// generation provider. A generation failure after retries degrades to an
// apologetic answer rather than an error; only embedding and retrieval
// failures propagate.
func (e *Engine) GenerateAnswer(ctx context.Context, query string, history []Turn) (string, []UsedDocument, Metadata, error) {
	results, err := e.SearchRelevant(ctx, query, e.topK)
	if err != nil {
		return "", nil, Metadata{Error: err.Error()}, err
	}

	if len(results) == 0 {
		e.logger.Info("no relevant documents for query")
		return NoMatchAnswer, []UsedDocument{}, Metadata{NoMatch: true}, nil
	}

	systemPrompt := buildGroundedPrompt(results)

	turns := make([]Turn, 0, len(history)+1)
	turns = append(turns, history...)
	turns = append(turns, Turn{Role: "user", Content: query})

	answer, meta, err := e.generator.Complete(ctx, systemPrompt, turns)
	if err != nil {
		e.logger.Warn("generation failed, returning degraded answer", "error", err)
		return DegradedAnswer, usedDocuments(results), Metadata{Error: err.Error()}, nil
	}

	return answer, usedDocuments(results), meta, nil
}

// buildGroundedPrompt embeds each retrieved chunk with its citation and
// instructs the model to answer only from the supplied context, to disclose
// missing information instead of inventing it, and to cite its sources.
func buildGroundedPrompt(results []vectorstore.SearchResult) string {
	var b strings.Builder
	b.WriteString("You are an assistant answering questions about internal policies and documents.\n")
	b.WriteString("Answer the user's question using ONLY the context below.\n")
	b.WriteString("If the context does not contain the requested information, say so honestly instead of inventing an answer.\n")
	b.WriteString("End your answer with the source references for the documents you used, ")
	b.WriteString("in the form [Source: file name, last updated: date].\n\n")
	b.WriteString("Context:\n")

	for i, result := range results {
		fmt.Fprintf(&b, "--- Document %d ---\n", i+1)
		b.WriteString(strings.TrimSpace(result.Chunk.Content))
		b.WriteString("\n")
		b.WriteString(document.FormatCitation(result.Chunk))
		b.WriteString("\n\n")
	}

	b.WriteString("Answer the user's question based on this context.")
	return b.String()
}

func usedDocuments(results []vectorstore.SearchResult) []UsedDocument {
	used := make([]UsedDocument, len(results))
	for i, result := range results {
		used[i] = UsedDocument{
			Source:     result.Chunk.Source,
			FileName:   result.Chunk.FileName,
			FileType:   result.Chunk.FileType,
			ChunkIndex: result.Chunk.ChunkIndex,
			Score:      result.Score,
			UpdatedAt:  result.Chunk.UpdatedAt,
			Preview:    result.Chunk.Preview(previewLength),
		}
	}
	return used
}

// FormatAnswerWithCitations appends citations for the top used documents
// when the generated answer does not already contain any.
func FormatAnswerWithCitations(answer string, used []UsedDocument) string {
	if strings.Contains(answer, "[Source:") {
		return answer
	}
	if len(used) == 0 {
		return answer
	}

	limit := len(used)
	if limit > 3 {
		limit = 3
	}
	citations := make([]string, 0, limit)
	for _, doc := range used[:limit] {
		citations = append(citations,
			fmt.Sprintf("[Source: %s, last updated: %s]", doc.FileName, doc.UpdatedAt.Format("2006-01-02")))
	}
	return answer + "\n\n" + strings.Join(citations, "\n")
}
