package service

import (
	"context"
	"math"
	"sort"
	"strings"

	"pdfrag/internal/applog"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/textutil"
	"pdfrag/internal/vectorstore"
)

// Retriever embeds queries and searches the vector store.
type Retriever struct {
	embedder domain.Embedder
	store    vectorstore.Storage
	chunks   []domain.Chunk
	topK     int
}

// NewRetriever creates a retriever. chunks backs the lexical fallback used
// when a query embeds to the zero vector.
func NewRetriever(embedder domain.Embedder, store vectorstore.Storage, chunks []domain.Chunk, topK int) *Retriever {
	if topK <= 0 {
		topK = 3
	}
	return &Retriever{embedder: embedder, store: store, chunks: chunks, topK: topK}
}

// Retrieve returns at most k chunks ordered by ascending distance to query.
// k <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = r.topK
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewError(domain.KindQuery, "empty query", nil)
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, domain.NewError(domain.KindQuery, "embed query", err)
	}
	if embedding.IsZero(vec) {
		applog.Debug("[retrieve] query has no known terms, using lexical overlap", "query", query)
		return r.lexicalSearch(query, k), nil
	}
	res, err := r.store.Search(ctx, vec, k)
	if err != nil {
		return nil, domain.NewError(domain.KindQuery, "search index", err)
	}
	applog.Debug("[retrieve] search done", "k", k, "results", len(res))
	return res, nil
}

// lexicalSearch ranks chunks by Ochiai token overlap, reported as the
// distance 2-2*sim so it orders like the vector scores.
func (r *Retriever) lexicalSearch(query string, k int) []domain.SearchResult {
	qset := textutil.WordSet(query)
	out := make([]domain.SearchResult, len(r.chunks))
	for i, ch := range r.chunks {
		out[i] = domain.SearchResult{Chunk: ch, Score: 2 - 2*overlapOchiai(qset, ch.Text)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if k > len(out) {
		k = len(out)
	}
	return out[:k]
}

// overlapOchiai is |A∩B| / sqrt(|A||B|) over distinct lower-cased words.
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	seen := textutil.WordSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	return float64(textutil.Shared(qset, seen)) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
