package document

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// TestProcessFile_SingleChunk verifies metadata on a document that fits in
// one chunk.
func TestProcessFile_SingleChunk(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "policy.txt", "Employees accrue 20 days of paid leave per year.")

	p := NewProcessor(1000, 200, nil)
	chunks, err := p.ProcessFile(path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}

	chunk := chunks[0]
	if chunk.ID == "" {
		t.Error("Chunk missing ID")
	}
	if chunk.Source != path {
		t.Errorf("Source: expected %q, got %q", path, chunk.Source)
	}
	if chunk.FileName != "policy.txt" {
		t.Errorf("FileName: expected policy.txt, got %q", chunk.FileName)
	}
	if chunk.FileType != "txt" {
		t.Errorf("FileType: expected txt, got %q", chunk.FileType)
	}
	if chunk.ChunkIndex != 0 || chunk.TotalChunks != 1 {
		t.Errorf("Position: expected 0/1, got %d/%d", chunk.ChunkIndex, chunk.TotalChunks)
	}

	info, _ := os.Stat(path)
	if !chunk.UpdatedAt.Equal(info.ModTime()) {
		t.Errorf("UpdatedAt should be the file mtime, got %v", chunk.UpdatedAt)
	}
}

// TestProcessFile_MultiChunkPositions verifies chunk index bookkeeping.
func TestProcessFile_MultiChunkPositions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "long.txt", strings.Repeat("regulation text. ", 300))

	p := NewProcessor(500, 100, nil)
	chunks, err := p.ProcessFile(path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("Expected multiple chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.ChunkIndex != i {
			t.Errorf("Chunk %d has index %d", i, chunk.ChunkIndex)
		}
		if chunk.TotalChunks != len(chunks) {
			t.Errorf("Chunk %d TotalChunks: expected %d, got %d", i, len(chunks), chunk.TotalChunks)
		}
	}
}

// TestProcessFile_CanonicalSource verifies a relative path is recorded as
// its absolute form, so the same file always maps to one source.
func TestProcessFile_CanonicalSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "policy.txt", "Remote work needs manager approval.")
	t.Chdir(dir)

	p := NewProcessor(1000, 200, nil)
	chunks, err := p.ProcessFile("policy.txt")
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd failed: %v", err)
	}
	want := filepath.Join(wd, "policy.txt")
	if len(chunks) != 1 || chunks[0].Source != want {
		t.Errorf("Source: expected %q, got %q", want, chunks[0].Source)
	}
}

// TestProcessText verifies chunking of content that has no local file.
func TestProcessText(t *testing.T) {
	p := NewProcessor(1000, 200, nil)
	updated := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	chunks := p.ProcessText("Remote handbook content.", "docs/handbook.md", "md", updated)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].FileName != "handbook.md" {
		t.Errorf("FileName: expected handbook.md, got %q", chunks[0].FileName)
	}
	if !chunks[0].UpdatedAt.Equal(updated) {
		t.Errorf("UpdatedAt: expected %v, got %v", updated, chunks[0].UpdatedAt)
	}

	if chunks := p.ProcessText("   ", "empty.md", "md", updated); chunks != nil {
		t.Errorf("Expected nil for blank text, got %d chunks", len(chunks))
	}
}

// TestProcessDirectory verifies that unsupported files are skipped and broken
// files are recorded without aborting the scan.
func TestProcessDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "First document.")
	writeFile(t, dir, "b.md", "# Second\n\nSecond document.")
	writeFile(t, dir, "image.png", "\x89PNG not a document")
	writeFile(t, dir, "broken.docx", "this is not a zip archive")

	p := NewProcessor(1000, 200, nil)
	chunks, failed, err := p.ProcessDirectory(dir)
	if err != nil {
		t.Fatalf("ProcessDirectory failed: %v", err)
	}

	sources := make(map[string]bool)
	for _, c := range chunks {
		sources[c.FileName] = true
	}
	if !sources["a.txt"] || !sources["b.md"] {
		t.Errorf("Expected chunks from a.txt and b.md, got %v", sources)
	}
	if sources["image.png"] {
		t.Error("Unsupported file was indexed")
	}

	if len(failed) != 1 {
		t.Fatalf("Expected 1 failed file, got %d", len(failed))
	}
	if filepath.Base(failed[0].Path) != "broken.docx" {
		t.Errorf("Expected broken.docx to fail, got %s", failed[0].Path)
	}
}

// TestLoad_UnsupportedFormat verifies the sentinel error for unknown extensions.
func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load("diagram.svg")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Expected ErrUnsupportedFormat, got %v", err)
	}
}

// TestLoad_Markdown verifies that markdown syntax does not leak into text.
func TestLoad_Markdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "guide.md", "# Vacation Policy\n\nEmployees get **20 days** per year.\n")

	text, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if strings.Contains(text, "#") || strings.Contains(text, "**") {
		t.Errorf("Markdown syntax leaked into extracted text: %q", text)
	}
	if !strings.Contains(text, "Vacation Policy") || !strings.Contains(text, "20 days") {
		t.Errorf("Extracted text missing content: %q", text)
	}
}

// TestNormalize verifies whitespace collapsing and control stripping.
func TestNormalize(t *testing.T) {
	input := "  Line one.\n\nLine\ttwo.\x00\x1F  "
	got := Normalize(input)
	want := "Line one. Line two."
	if got != want {
		t.Errorf("Normalize: expected %q, got %q", want, got)
	}
}

// TestChunkPreview verifies rune-aware truncation.
func TestChunkPreview(t *testing.T) {
	c := Chunk{Content: "こんにちは、世界"}
	if got := c.Preview(5); got != "こんにちは..." {
		t.Errorf("Preview: expected truncated content, got %q", got)
	}
	if got := c.Preview(100); got != c.Content {
		t.Errorf("Preview: short content should be returned whole, got %q", got)
	}
}

// TestFormatCitation verifies the citation rendering.
func TestFormatCitation(t *testing.T) {
	c := Chunk{
		FileName:  "policy.pdf",
		UpdatedAt: time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC),
	}
	want := "[Source: policy.pdf, last updated: 2025-01-15]"
	if got := FormatCitation(c); got != want {
		t.Errorf("FormatCitation: expected %q, got %q", want, got)
	}
}
