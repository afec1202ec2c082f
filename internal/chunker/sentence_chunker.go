package chunker

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"pdfrag/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 || overlapSentences >= sentencesPerChunk {
		overlapSentences = 0
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

func (c *SentenceChunker) Chunk(text, source string) []domain.Chunk {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	sentences := c.splitter.FindAllString(trimmed, -1)
	if tail := strings.TrimSpace(trimmed[c.coveredLen(trimmed):]); tail != "" {
		// trailing text without terminal punctuation
		sentences = append(sentences, tail)
	}
	for i := range sentences {
		sentences[i] = strings.Join(strings.Fields(sentences[i]), " ")
	}
	var chunks []domain.Chunk
	i := 0
	for i < len(sentences) {
		end := i + c.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, domain.Chunk{
			ID:     uuid.NewString(),
			Source: source,
			Text:   strings.Join(sentences[i:end], " "),
			Index:  len(chunks),
		})
		if end == len(sentences) {
			break
		}
		i = end - c.overlapSentences
	}
	return chunks
}

// coveredLen returns the byte offset just past the last sentence match.
func (c *SentenceChunker) coveredLen(text string) int {
	locs := c.splitter.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return 0
	}
	return locs[len(locs)-1][1]
}
