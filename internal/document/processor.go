package document

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Chunk is an immutable unit of extracted text with positional metadata.
// Its identity within a source is (Source, ChunkIndex).
type Chunk struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`
	FileName    string    `json:"file_name"`
	FileType    string    `json:"file_type"`
	ChunkIndex  int       `json:"chunk_index"`
	TotalChunks int       `json:"total_chunks"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Preview returns the first n runes of the chunk content with an ellipsis
// when the content is longer.
func (c Chunk) Preview(n int) string {
	runes := []rune(c.Content)
	if len(runes) <= n {
		return c.Content
	}
	return string(runes[:n]) + "..."
}

// FormatCitation renders the provenance reference attached to answers.
func FormatCitation(c Chunk) string {
	return fmt.Sprintf("[Source: %s, last updated: %s]", c.FileName, c.UpdatedAt.Format("2006-01-02"))
}

// FailedFile records a file that could not be processed during a directory scan.
type FailedFile struct {
	Path   string
	Reason string
}

// Processor extracts, normalizes and chunks documents.
type Processor struct {
	splitter *Splitter
	logger   *slog.Logger
}

// NewProcessor creates a processor with the given chunking parameters.
func NewProcessor(chunkSize, chunkOverlap int, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		splitter: NewSplitter(chunkSize, chunkOverlap),
		logger:   logger,
	}
}

// ProcessFile loads a document, normalizes its text and splits it into
// chunks carrying positional metadata and file timestamps. Source is the
// absolute path, so re-indexing the same file later matches its previous
// chunks regardless of how the path was spelled.
func (p *Processor) ProcessFile(path string) ([]Chunk, error) {
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtraction, path, err)
	}

	text, err := Load(path)
	if err != nil {
		return nil, err
	}

	pieces := p.splitter.Split(Normalize(text))
	if len(pieces) == 0 {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtraction, path, err)
	}
	modified := info.ModTime()

	fileName := filepath.Base(path)
	fileType := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{
			ID:          uuid.New().String(),
			Content:     piece,
			Source:      path,
			FileName:    fileName,
			FileType:    fileType,
			ChunkIndex:  i,
			TotalChunks: len(pieces),
			CreatedAt:   modified,
			UpdatedAt:   modified,
		}
	}
	return chunks, nil
}

// ProcessText chunks already-extracted text, for content that does not live
// on the local filesystem (e.g. documents fetched from a remote repository).
func (p *Processor) ProcessText(text, source, fileType string, updatedAt time.Time) []Chunk {
	pieces := p.splitter.Split(Normalize(text))
	if len(pieces) == 0 {
		return nil
	}

	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{
			ID:          uuid.New().String(),
			Content:     piece,
			Source:      source,
			FileName:    filepath.Base(source),
			FileType:    fileType,
			ChunkIndex:  i,
			TotalChunks: len(pieces),
			CreatedAt:   updatedAt,
			UpdatedAt:   updatedAt,
		}
	}
	return chunks
}

// ProcessDirectory walks a directory tree and processes every supported file.
// Files with unsupported formats or extraction failures are recorded and
// skipped; the scan itself never aborts because of a single bad file.
func (p *Processor) ProcessDirectory(dir string) ([]Chunk, []FailedFile, error) {
	var chunks []Chunk
	var failed []FailedFile

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !IsSupported(path) {
			p.logger.Debug("skipping unsupported file", "path", path)
			return nil
		}

		fileChunks, err := p.ProcessFile(path)
		if err != nil {
			p.logger.Warn("failed to process document", "path", path, "error", err)
			failed = append(failed, FailedFile{Path: path, Reason: err.Error()})
			return nil
		}
		chunks = append(chunks, fileChunks...)
		p.logger.Info("processed document", "path", path, "chunks", len(fileChunks))
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return chunks, failed, nil
}
