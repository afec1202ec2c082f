// Package app assembles the indexing pipeline and chat sessions from
// configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pdfrag/internal/applog"
	"pdfrag/internal/chunker"
	"pdfrag/internal/config"
	"pdfrag/internal/display"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding/cache"
	"pdfrag/internal/embedding/openai"
	"pdfrag/internal/embedding/tfidf"
	"pdfrag/internal/extract"
	"pdfrag/internal/index"
	llmopenai "pdfrag/internal/llm/openai"
	"pdfrag/internal/service"
	"pdfrag/internal/session"
	"pdfrag/internal/summarizer"
	"pdfrag/internal/vectorstore"
	"pdfrag/internal/vectorstore/memory"
	"pdfrag/internal/vectorstore/qdrant"
)

// closers releases resources in reverse order of acquisition.
type closers []func() error

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			applog.Warn("[app] close failed", "error", err)
		}
	}
}

// Indexer is an index builder with the connections it holds.
type Indexer struct {
	*service.Indexer
	closers closers
}

// Close releases cache and vector store connections.
func (ix *Indexer) Close() { ix.closers.close() }

// NewIndexer wires the extractor, chunker, embedder, summarizer and optional
// remote vector store named by cfg.
func NewIndexer(ctx context.Context, cfg *config.AppConfig) (*Indexer, error) {
	out := &Indexer{}
	ch, chInfo := NewChunker(cfg.Chunker)

	requested := 0
	if cfg.Embedder.Type == "openai" {
		requested = cfg.Embedder.Dimensions
	}
	emb, err := newEmbedder(cfg, index.EmbedderInfo{
		Type:                cfg.Embedder.Type,
		Model:               cfg.Embedder.Model,
		RequestedDimensions: requested,
	})
	if err != nil {
		return nil, err
	}
	emb = withCache(ctx, cfg, emb, &out.closers)

	opts := service.IndexerOptions{
		Extensions:          cfg.Index.Extensions,
		SummarySentences:    cfg.Summarizer.MaxSentences,
		RequestedDimensions: requested,
		Chunker:             chInfo,
		Backend:             index.BackendInfo{Type: "memory"},
	}
	if cfg.VectorStore.Type == "qdrant" {
		q := cfg.VectorStore.Qdrant
		name := fmt.Sprintf("%s-%s", q.CollectionPrefix, uuid.NewString()[:8])
		st, err := newQdrant(q, name)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.closers = append(out.closers, st.Close)
		opts.Remote = st
		opts.Backend = index.BackendInfo{Type: "qdrant", Collection: name}
	}
	if q := cfg.VectorStore.Qdrant; q != nil && q.Host != "" {
		opts.DropCollection = func(ctx context.Context, collection string) error {
			return dropQdrantCollection(ctx, q, collection)
		}
	}

	out.Indexer = service.NewIndexer(extract.NewRegistry(), ch, emb, NewSummarizer(cfg.Summarizer), opts)
	return out, nil
}

// NewChunker builds the configured chunker and describes it for the manifest.
func NewChunker(cfg config.ChunkerConfig) (domain.Chunker, index.ChunkerInfo) {
	if cfg.Type == "sentence" {
		return chunker.NewSentenceChunker(cfg.SentencesPerChunk, cfg.OverlapSentences), index.ChunkerInfo{
			Type:              "sentence",
			SentencesPerChunk: cfg.SentencesPerChunk,
			OverlapSentences:  cfg.OverlapSentences,
		}
	}
	return chunker.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap), index.ChunkerInfo{
		Type:         "recursive",
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}
}

func NewSummarizer(cfg config.SummarizerConfig) domain.Summarizer {
	if cfg.Type == "none" {
		return summarizer.Noop{}
	}
	return summarizer.NewFrequencySummarizer()
}

// Chat is a ready chat session over a loaded index.
type Chat struct {
	Manifest index.Manifest
	Session  *session.Session
	Renderer *display.Renderer
	Model    string
	TopK     int

	closers closers
}

// Close releases cache and vector store connections.
func (c *Chat) Close() { c.closers.close() }

// Banner describes the loaded index and the model answering questions.
func (c *Chat) Banner() string { return c.Renderer.Banner(c.Manifest, c.Model, c.TopK) }

// OpenChat loads the index in dir and builds a session around it. The query
// embedder is rebuilt from the manifest, not from cfg, so queries land in
// the same vector space as the chunks.
func OpenChat(ctx context.Context, cfg *config.AppConfig, dir string, topK int) (*Chat, error) {
	ix, err := index.Load(dir)
	if err != nil {
		return nil, err
	}
	m := ix.Manifest
	applog.Info("[chat] index loaded", "path", dir, "chunks", m.Chunks, "sources", len(m.Sources), "embedder", m.Embedder.Type)
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}

	c := &Chat{Manifest: m, TopK: topK}
	emb, err := queryEmbedder(ctx, cfg, ix, &c.closers)
	if err != nil {
		c.Close()
		return nil, err
	}
	store, err := openStore(ctx, cfg, ix, &c.closers)
	if err != nil {
		c.Close()
		return nil, err
	}

	completer, err := llmopenai.New(llmopenai.Config{
		BaseURL:     cfg.OpenAI.BaseURL,
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
	})
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Model = completer.Model()

	retriever := service.NewRetriever(emb, store, ix.Chunks(), topK)
	answerer := service.NewAnswerer(completer, cfg.LLM.HistoryTurns)
	c.Session = session.New(retriever, answerer, topK)
	c.Renderer = display.NewRenderer(display.Thresholds{
		Good:       cfg.Retrieval.GoodThreshold,
		Borderline: cfg.Retrieval.BorderlineThreshold,
	}, cfg.Retrieval.PreviewChars)
	return c, nil
}

func queryEmbedder(ctx context.Context, cfg *config.AppConfig, ix *index.Index, cl *closers) (domain.Embedder, error) {
	info := ix.Manifest.Embedder
	if info.Type != cfg.Embedder.Type || (info.Model != "" && info.Model != cfg.Embedder.Model) ||
		(info.Type == "openai" && info.RequestedDimensions != cfg.Embedder.Dimensions) {
		applog.Warn("[chat] index was built with a different embedder than configured; using the index's",
			"index_embedder", info.Type, "index_model", info.Model, "index_dimensions", info.RequestedDimensions,
			"config_embedder", cfg.Embedder.Type, "config_model", cfg.Embedder.Model, "config_dimensions", cfg.Embedder.Dimensions)
	}
	emb, err := newEmbedder(cfg, info)
	if err != nil {
		return nil, err
	}
	if se, ok := emb.(domain.StatefulEmbedder); ok {
		state := ix.EmbedderState()
		if len(state) == 0 {
			return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("index has no %s state", info.Type), nil)
		}
		if err := se.Restore(state); err != nil {
			return nil, domain.NewError(domain.KindNotFound, fmt.Sprintf("restore %s state", info.Type), err)
		}
	}
	return withCache(ctx, cfg, emb, cl), nil
}

// newEmbedder builds the embedder described by info. Connection settings
// come from cfg; the model, requested output size and, when known, the
// resulting dimension come from info.
func newEmbedder(cfg *config.AppConfig, info index.EmbedderInfo) (domain.Embedder, error) {
	switch info.Type {
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	case "openai":
		c, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKey:     cfg.OpenAI.APIKey,
			Model:      info.Model,
			Dimensions: info.RequestedDimensions,
			BatchSize:  cfg.Embedder.BatchSize,
			MaxRetries: cfg.Embedder.MaxRetries,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		if info.Dimension > 0 {
			c.SetDimension(info.Dimension)
		}
		return c, nil
	default:
		return nil, domain.NewError(domain.KindConfiguration, fmt.Sprintf("unknown embedder %q", info.Type), nil)
	}
}

// withCache wraps emb with the Redis cache when one is configured.
// Stateful embedders are left alone: their vectors depend on the corpus.
func withCache(ctx context.Context, cfg *config.AppConfig, emb domain.Embedder, cl *closers) domain.Embedder {
	if cfg.Cache.RedisURL == "" {
		return emb
	}
	if _, stateful := emb.(domain.StatefulEmbedder); stateful {
		return emb
	}
	backend, err := cache.NewRedisBackend(ctx, cfg.Cache.RedisURL)
	if err != nil {
		applog.Warn("[cache] redis unavailable, embedding without cache", "error", err)
		return emb
	}
	*cl = append(*cl, backend.Close)
	return cache.New(emb, backend, time.Duration(cfg.Cache.TTLSecs)*time.Second)
}

// openStore serves searches from the index's own backend. A Qdrant-backed
// index falls back to the local copy of its vectors when no Qdrant
// connection is configured.
func openStore(ctx context.Context, cfg *config.AppConfig, ix *index.Index, cl *closers) (vectorstore.Storage, error) {
	b := ix.Manifest.Backend
	if b.Type == "qdrant" {
		if cfg.VectorStore.Qdrant != nil && cfg.VectorStore.Qdrant.Host != "" {
			st, err := newQdrant(cfg.VectorStore.Qdrant, b.Collection)
			if err != nil {
				return nil, err
			}
			st.SetDimension(ix.Manifest.Embedder.Dimension)
			*cl = append(*cl, st.Close)
			return st, nil
		}
		applog.Warn("[chat] index lives in qdrant but none is configured, searching locally", "collection", b.Collection)
	}

	st := memory.NewStorage()
	if err := st.Init(ctx, ix.Manifest.Embedder.Dimension); err != nil {
		return nil, domain.NewError(domain.KindNotFound, "load index vectors", err)
	}
	if err := st.Upsert(ctx, ix.Chunks(), ix.Vectors()); err != nil {
		return nil, domain.NewError(domain.KindNotFound, "load index vectors", err)
	}
	return st, nil
}

func dropQdrantCollection(ctx context.Context, q *config.QdrantConfig, collection string) error {
	st, err := newQdrant(q, collection)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Clear(ctx)
}

func newQdrant(q *config.QdrantConfig, collection string) (*qdrant.Storage, error) {
	st, err := qdrant.NewStorage(qdrant.Config{
		Host:       q.Host,
		Port:       q.Port,
		APIKey:     q.APIKey,
		UseTLS:     q.UseTLS,
		Collection: collection,
		Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "connect to qdrant", err)
	}
	return st, nil
}
