package document

import (
	"strings"
	"unicode/utf8"
)

// defaultSeparators is the priority order for recursive splitting: paragraph
// boundary, line boundary, sentence boundary (Japanese and Latin), word
// boundary, and finally individual runes.
var defaultSeparators = []string{"\n\n", "\n", "。", ". ", " ", ""}

// Splitter divides text into chunks of at most ChunkSize runes, with adjacent
// chunks overlapping by up to ChunkOverlap runes. It recursively splits on the
// largest separator still present in an oversized piece.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
	separators   []string
}

// NewSplitter creates a splitter with the given size and overlap. An overlap
// greater than or equal to the chunk size is reduced to half the chunk size.
func NewSplitter(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Splitter{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}
}

// Split breaks text into ordered chunks. Empty input yields no chunks; input
// shorter than the chunk size yields exactly one chunk.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= s.ChunkSize {
		return []string{text}
	}
	return s.splitRecursive(text, s.separators)
}

func (s *Splitter) splitRecursive(text string, separators []string) []string {
	// Pick the first separator that occurs in the text; the empty separator
	// (rune-level split) always matches.
	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" {
			separator = ""
			break
		}
		if strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	splits := splitKeepingSeparator(text, separator)

	var chunks []string
	var pending []string
	for _, piece := range splits {
		if utf8.RuneCountInString(piece) <= s.ChunkSize {
			pending = append(pending, piece)
			continue
		}
		if len(pending) > 0 {
			chunks = append(chunks, s.merge(pending)...)
			pending = nil
		}
		if len(remaining) == 0 {
			chunks = append(chunks, piece)
		} else {
			chunks = append(chunks, s.splitRecursive(piece, remaining)...)
		}
	}
	if len(pending) > 0 {
		chunks = append(chunks, s.merge(pending)...)
	}
	return chunks
}

// merge accumulates small pieces into chunks up to ChunkSize runes, carrying
// up to ChunkOverlap trailing runes into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var current []string
	total := 0

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > s.ChunkSize && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, ""))
			// Drop leading pieces until the retained tail fits both the
			// overlap budget and the incoming piece.
			for total > s.ChunkOverlap || (total+n > s.ChunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if len(current) > 0 {
		if joined := strings.Join(current, ""); strings.TrimSpace(joined) != "" {
			chunks = append(chunks, joined)
		}
	}
	return chunks
}

// splitKeepingSeparator splits text on separator, keeping the separator
// attached to the end of the preceding piece so no characters are lost.
// An empty separator splits into individual runes.
func splitKeepingSeparator(text, separator string) []string {
	if separator == "" {
		runes := []rune(text)
		pieces := make([]string, len(runes))
		for i, r := range runes {
			pieces[i] = string(r)
		}
		return pieces
	}

	parts := strings.Split(text, separator)
	pieces := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += separator
		}
		if part != "" {
			pieces = append(pieces, part)
		}
	}
	return pieces
}
