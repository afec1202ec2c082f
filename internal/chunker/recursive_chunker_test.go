package chunker

import (
	"fmt"
	"strings"
	"testing"
	"unicode"
	"unicode/utf8"

	"pdfrag/internal/domain"
)

const lorem = `Retrieval augmented generation combines search with a language model.
The retriever finds passages that are close to the question in embedding space.

The generator reads those passages and writes an answer. When the passages do not
contain the answer the model should say so instead of guessing.

Chunking matters because embeddings of very long passages blur their meaning, while
very short passages lose the surrounding context that makes them understandable.`

func TestRecursiveChunkerEmptyInput(t *testing.T) {
	c := NewRecursiveChunker(100, 10)
	for _, in := range []string{"", "   ", "\n\n\t"} {
		if got := c.Chunk(in, "a.pdf"); len(got) != 0 {
			t.Errorf("Chunk(%q) returned %d chunks", in, len(got))
		}
	}
}

func TestRecursiveChunkerSingleChunkScenario(t *testing.T) {
	c := NewRecursiveChunker(1000, 0)
	chunks := c.Chunk("Paris is the capital of France.", "a.pdf")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Source != "a.pdf" {
		t.Errorf("source = %q", chunks[0].Source)
	}
	if chunks[0].Text != "Paris is the capital of France." {
		t.Errorf("text = %q", chunks[0].Text)
	}
	if chunks[0].ID == "" {
		t.Error("chunk ID not set")
	}
}

func TestRecursiveChunkerBoundsAndMetadata(t *testing.T) {
	tests := []struct {
		size, overlap int
	}{
		{40, 0},
		{60, 15},
		{120, 30},
		{200, 50},
	}
	for _, tt := range tests {
		c := NewRecursiveChunker(tt.size, tt.overlap)
		chunks := c.Chunk(lorem, "doc.pdf")
		if len(chunks) < 2 {
			t.Fatalf("size=%d: expected several chunks, got %d", tt.size, len(chunks))
		}
		for i, ch := range chunks {
			if n := utf8.RuneCountInString(ch.Text); n > tt.size {
				t.Errorf("size=%d: chunk %d has %d runes", tt.size, i, n)
			}
			if ch.Source != "doc.pdf" || ch.Index != i {
				t.Errorf("size=%d: chunk %d metadata = %q/%d", tt.size, i, ch.Source, ch.Index)
			}
		}
	}
}

func TestRecursiveChunkerCoversWholeText(t *testing.T) {
	for _, size := range []int{35, 80, 150} {
		c := NewRecursiveChunker(size, size/5)
		chunks := c.Chunk(lorem, "doc.pdf")
		assertCoverage(t, lorem, chunks)
	}
}

func TestRecursiveChunkerOverlap(t *testing.T) {
	words := make([]string, 100)
	for i := range words {
		words[i] = fmt.Sprintf("word%03d", i)
	}
	text := strings.Join(words, " ")

	const size, overlap = 50, 16
	chunks := NewRecursiveChunker(size, overlap).Chunk(text, "doc.pdf")
	if len(chunks) < 10 {
		t.Fatalf("expected many chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		shared := sharedBoundary(chunks[i-1].Text, chunks[i].Text)
		if shared == 0 {
			t.Errorf("chunks %d/%d do not overlap:\n%q\n%q", i-1, i, chunks[i-1].Text, chunks[i].Text)
		}
		if shared > overlap {
			t.Errorf("chunks %d/%d share %d runes, more than overlap %d", i-1, i, shared, overlap)
		}
	}

	plain := NewRecursiveChunker(size, 0).Chunk(text, "doc.pdf")
	for i := 1; i < len(plain); i++ {
		if shared := sharedBoundary(plain[i-1].Text, plain[i].Text); shared != 0 {
			t.Errorf("overlap=0 but chunks %d/%d share %d runes", i-1, i, shared)
		}
	}
}

func TestRecursiveChunkerAvoidsMidWordCuts(t *testing.T) {
	c := NewRecursiveChunker(30, 0)
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima"
	words := map[string]bool{}
	for _, w := range strings.Fields(text) {
		words[w] = true
	}
	for _, ch := range c.Chunk(text, "w.pdf") {
		for _, w := range strings.Fields(ch.Text) {
			if !words[w] {
				t.Errorf("chunk %q contains a cut word %q", ch.Text, w)
			}
		}
	}
}

func TestRecursiveChunkerHardCutsLongTokens(t *testing.T) {
	c := NewRecursiveChunker(10, 2)
	text := "abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGHI"
	chunks := c.Chunk(text, "x.pdf")
	if len(chunks) < 5 {
		t.Fatalf("expected hard cuts, got %d chunks", len(chunks))
	}
	for _, ch := range chunks {
		if utf8.RuneCountInString(ch.Text) > 10 {
			t.Errorf("chunk too long: %d", utf8.RuneCountInString(ch.Text))
		}
	}
	assertCoverage(t, text, chunks)
}

func TestNewRecursiveChunkerClampsOverlap(t *testing.T) {
	c := NewRecursiveChunker(100, 100)
	if c.overlap != 25 {
		t.Errorf("overlap = %d, want 25", c.overlap)
	}
	c = NewRecursiveChunker(0, -1)
	if c.chunkSize != 1000 || c.overlap != 250 {
		t.Errorf("defaults = %d/%d", c.chunkSize, c.overlap)
	}
}

// assertCoverage checks that chunks appear in order in text and that every
// non-space character of text lies inside at least one chunk.
func assertCoverage(t *testing.T, text string, chunks []domain.Chunk) {
	t.Helper()
	start, covered := 0, 0
	for i, ch := range chunks {
		idx := strings.Index(text[start:], ch.Text)
		if idx < 0 {
			t.Fatalf("chunk %d is not an in-order substring of the text: %q", i, ch.Text)
		}
		idx += start
		if gap := text[covered:max(covered, idx)]; strings.TrimFunc(gap, unicode.IsSpace) != "" {
			t.Fatalf("text between chunks %d and %d is not covered: %q", i-1, i, gap)
		}
		start = idx
		covered = max(covered, idx+len(ch.Text))
	}
	if rest := text[covered:]; strings.TrimFunc(rest, unicode.IsSpace) != "" {
		t.Fatalf("trailing text not covered: %q", rest)
	}
}

// sharedBoundary returns the length in runes of the longest suffix of prev
// that is also a prefix of next.
func sharedBoundary(prev, next string) int {
	pr, nr := []rune(prev), []rune(next)
	for k := min(len(pr), len(nr)); k > 0; k-- {
		if string(pr[len(pr)-k:]) == string(nr[:k]) {
			return k
		}
	}
	return 0
}
