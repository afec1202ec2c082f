package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"pdfrag/internal/domain"
)

// defaultSeparators are tried in order: paragraphs, lines, sentences, words.
// The empty separator is the hard per-character cut.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveChunker splits text on the coarsest natural boundary that yields
// pieces no longer than chunkSize runes, then packs adjacent pieces into
// chunks that share up to overlap runes with their predecessor.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

// NewRecursiveChunker creates a chunker. An overlap that is not smaller than
// chunkSize is clamped to a quarter of chunkSize.
func NewRecursiveChunker(chunkSize, overlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &RecursiveChunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: defaultSeparators,
	}
}

// Chunk splits text into chunks tagged with source.
func (c *RecursiveChunker) Chunk(text, source string) []domain.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	pieces := c.split(text, c.separators)
	chunks := make([]domain.Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, domain.Chunk{
			ID:     uuid.NewString(),
			Source: source,
			Text:   p,
			Index:  len(chunks),
		})
	}
	return chunks
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	sep := ""
	var finer []string
	for i, s := range separators {
		if s == "" {
			break
		}
		if strings.Contains(text, s) {
			sep = s
			finer = separators[i+1:]
			break
		}
	}

	var out, fitting []string
	for _, piece := range splitKeep(text, sep) {
		if runeLen(piece) <= c.chunkSize {
			fitting = append(fitting, piece)
			continue
		}
		if len(fitting) > 0 {
			out = append(out, c.merge(fitting)...)
			fitting = nil
		}
		if len(finer) == 0 {
			out = append(out, c.merge(splitKeep(piece, ""))...)
			continue
		}
		out = append(out, c.split(piece, finer)...)
	}
	if len(fitting) > 0 {
		out = append(out, c.merge(fitting)...)
	}
	return out
}

// merge packs pieces (each at most chunkSize runes) into chunks. When a chunk
// is emitted, pieces are dropped from the front of the window until what
// remains fits in overlap, and that remainder starts the next chunk.
func (c *RecursiveChunker) merge(pieces []string) []string {
	var chunks []string
	var window []string
	total := 0

	for _, p := range pieces {
		n := runeLen(p)
		if total+n > c.chunkSize && len(window) > 0 {
			if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
				chunks = append(chunks, doc)
			}
			for len(window) > 0 && (total > c.overlap || total+n > c.chunkSize) {
				total -= runeLen(window[0])
				window = window[1:]
			}
		}
		window = append(window, p)
		total += n
	}
	if doc := strings.TrimSpace(strings.Join(window, "")); doc != "" {
		chunks = append(chunks, doc)
	}
	return chunks
}

// splitKeep splits text after each occurrence of sep, keeping the separator
// attached to the preceding piece so the pieces concatenate back to text.
// An empty sep splits into single runes.
func splitKeep(text, sep string) []string {
	if sep == "" {
		out := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			out = append(out, string(r))
		}
		return out
	}
	parts := strings.SplitAfter(text, sep)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
