// Package summarizer produces short extractive summaries of indexed
// documents.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"pdfrag/internal/domain"
	"pdfrag/internal/textutil"
)

var sentencePattern = regexp.MustCompile(`[^.!?]+[.!?]+`)

// FrequencySummarizer ranks sentences by word frequency (stopwords filtered).
type FrequencySummarizer struct {
	stopwords map[string]struct{}
}

// NewFrequencySummarizer creates a frequency-based sentence ranker summarizer.
func NewFrequencySummarizer() *FrequencySummarizer {
	return &FrequencySummarizer{
		stopwords: defaultStopwords(),
	}
}

// Summarize returns up to maxSentences sentences of text, picked by the
// frequency of their content words and kept in document order.
func (s *FrequencySummarizer) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return "", nil
	}

	freq := map[string]float64{}
	tokens := make([][]string, len(sentences))
	for i, sent := range sentences {
		tokens[i] = s.contentTokens(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(sentences))
	for i, toks := range tokens {
		score := 0.0
		for _, tok := range toks {
			score += freq[tok] / maxF
		}
		// Normalize by sentence length to avoid bias
		if l := float64(len(toks)); l > 0 {
			score /= math.Sqrt(l)
		}
		scores[i] = pair{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " "), nil
}

// splitSentences returns whitespace-normalised sentences. Trailing text
// without terminal punctuation counts as a sentence.
func splitSentences(text string) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}
	var out []string
	end := 0
	for _, loc := range sentencePattern.FindAllStringIndex(text, -1) {
		if sent := strings.TrimSpace(text[loc[0]:loc[1]]); sent != "" {
			out = append(out, sent)
		}
		end = loc[1]
	}
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func (s *FrequencySummarizer) contentTokens(text string) []string {
	raw := textutil.Words(text)
	out := raw[:0]
	for _, tok := range raw {
		if _, ok := s.stopwords[tok]; !ok {
			out = append(out, tok)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Noop returns no summary; it backs summarizer.type "none".
type Noop struct{}

func (Noop) Summarize(string, int) (string, error) { return "", nil }

var (
	_ domain.Summarizer = (*FrequencySummarizer)(nil)
	_ domain.Summarizer = Noop{}
)
