package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/timeless-residents/handson-line-works/internal/document"
	"github.com/timeless-residents/handson-line-works/internal/github"
	"github.com/timeless-residents/handson-line-works/internal/vectorstore"
)

// BatchEmbedder generates embeddings for many texts at once.
type BatchEmbedder interface {
	EmbedAll(ctx context.Context, texts []string) ([][]float32, error)
}

// IndexResult contains statistics about an ingestion run.
type IndexResult struct {
	TotalFiles   int
	IndexedFiles int
	TotalChunks  int
	Failed       []document.FailedFile
	Duration     time.Duration
}

// Pipeline runs ingestion end to end: extract and chunk documents, request
// embeddings and append to the vector backend. With the default file-backed
// index the artifact is persisted after every run; a save failure is always
// surfaced to the caller, since losing a batch ingestion silently is worse
// than failing the run. Server-backed stores persist on their own.
type Pipeline struct {
	processor *document.Processor
	embedder  BatchEmbedder
	backend   vectorstore.Backend
	indexPath string
	logger    *slog.Logger
}

// NewPipeline creates a pipeline writing the flat index artifact to
// indexPath when the backend is file-backed.
func NewPipeline(processor *document.Processor, embedder BatchEmbedder, backend vectorstore.Backend, indexPath string, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		processor: processor,
		embedder:  embedder,
		backend:   backend,
		indexPath: indexPath,
		logger:    logger,
	}
}

// save persists the index artifact for file-backed indexes.
func (p *Pipeline) save() error {
	if ix, ok := p.backend.(*vectorstore.FlatIndex); ok {
		if err := ix.Save(p.indexPath); err != nil {
			return fmt.Errorf("save index: %w", err)
		}
	}
	return nil
}

// IndexDirectory processes every supported document under dir and indexes
// the resulting chunks. Per-file failures are recorded and skipped; they
// never abort the batch.
func (p *Pipeline) IndexDirectory(ctx context.Context, dir string) (*IndexResult, error) {
	start := time.Now()

	chunks, failed, err := p.processor.ProcessDirectory(dir)
	if err != nil {
		return nil, fmt.Errorf("process directory: %w", err)
	}
	result := &IndexResult{
		Failed: failed,
	}
	seen := make(map[string]bool)
	for _, c := range chunks {
		seen[c.Source] = true
	}
	result.TotalFiles = len(seen) + len(failed)
	result.IndexedFiles = len(seen)

	if len(chunks) == 0 {
		p.logger.Warn("no chunks produced", "dir", dir)
		result.Duration = time.Since(start)
		return result, nil
	}

	if err := p.indexChunks(ctx, chunks); err != nil {
		return nil, err
	}
	result.TotalChunks = len(chunks)

	if err := p.save(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	p.logger.Info("indexing complete",
		"files", result.IndexedFiles,
		"failed", len(result.Failed),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

// UpdateFile re-indexes a single document: chunks previously indexed from
// the same source are dropped and replaced by the file's current content,
// then the rebuilt index is persisted. Only the file-backed index supports
// this; a server-backed store would delete by filter instead.
func (p *Pipeline) UpdateFile(ctx context.Context, path string) (*IndexResult, error) {
	start := time.Now()

	current, ok := p.backend.(*vectorstore.FlatIndex)
	if !ok {
		return nil, fmt.Errorf("update requires the file-backed index")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	chunks, err := p.processor.ProcessFile(absPath)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := p.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return nil, err
	}

	// Rebuild without the source's previous chunks, then append the new ones.
	oldDocs, oldEmbs := current.Entries()
	rebuilt := vectorstore.NewFlatIndex(0)
	var keptDocs []document.Chunk
	var keptEmbs [][]float32
	for i, doc := range oldDocs {
		if doc.Source == absPath {
			continue
		}
		keptDocs = append(keptDocs, doc)
		keptEmbs = append(keptEmbs, oldEmbs[i])
	}
	if len(keptDocs) > 0 {
		if err := rebuilt.Add(ctx, keptDocs, keptEmbs); err != nil {
			return nil, fmt.Errorf("rebuild index: %w", err)
		}
	}
	if err := rebuilt.Add(ctx, chunks, embeddings); err != nil {
		return nil, fmt.Errorf("add updated chunks: %w", err)
	}

	if err := rebuilt.Save(p.indexPath); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}
	p.backend = rebuilt

	p.logger.Info("updated document in index",
		"path", absPath,
		"chunks", len(chunks),
		"total", rebuilt.Len(),
	)
	return &IndexResult{
		TotalFiles:   1,
		IndexedFiles: 1,
		TotalChunks:  len(chunks),
		Duration:     time.Since(start),
	}, nil
}

// IndexGitHub fetches markdown documents from a repository path and indexes
// them. Per-document fetch failures are recorded and skipped.
func (p *Pipeline) IndexGitHub(ctx context.Context, fetcher *github.Fetcher) (*IndexResult, error) {
	start := time.Now()
	result := &IndexResult{}

	paths, err := fetcher.ListDocs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote docs: %w", err)
	}
	result.TotalFiles = len(paths)
	p.logger.Info("found remote documents", "count", len(paths))

	var chunks []document.Chunk
	for _, docPath := range paths {
		fetched, err := fetcher.FetchDoc(ctx, docPath)
		if err != nil {
			p.logger.Warn("failed to fetch document", "path", docPath, "error", err)
			result.Failed = append(result.Failed, document.FailedFile{Path: docPath, Reason: err.Error()})
			continue
		}
		docChunks := p.processor.ProcessText(fetched.Content, fetched.Path, "md", fetched.UpdatedAt)
		chunks = append(chunks, docChunks...)
		result.IndexedFiles++
	}

	if len(chunks) > 0 {
		if err := p.indexChunks(ctx, chunks); err != nil {
			return nil, err
		}
		result.TotalChunks = len(chunks)
		if err := p.save(); err != nil {
			return nil, err
		}
	}

	result.Duration = time.Since(start)
	p.logger.Info("remote indexing complete",
		"files", result.IndexedFiles,
		"failed", len(result.Failed),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

func (p *Pipeline) indexChunks(ctx context.Context, chunks []document.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	embeddings, err := p.embedder.EmbedAll(ctx, texts)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	if err := p.backend.Add(ctx, chunks, embeddings); err != nil {
		return fmt.Errorf("add to index: %w", err)
	}
	return nil
}
