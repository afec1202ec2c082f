package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"pdfrag/internal/applog"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	api        *openai.Client
	model      string
	dimensions int
	dimension  int
	batchSize  int
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int // requested output size; 0 keeps the model default
	BatchSize  int
	MaxRetries int
	Timeout    time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.NewError(domain.KindConfiguration, "missing OpenAI API key for embeddings", nil)
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	apiCfg.HTTPClient = &http.Client{Timeout: t}

	return &Client{
		api:        openai.NewClientWithConfig(apiCfg),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		backoff:    retryDelay,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Model returns the embedding model name.
func (c *Client) Model() string { return c.model }

// Prepare is not required for remote embedding. The dimension is set lazily
// on the first successful response.
func (c *Client) Prepare(corpus []string) error { return nil }

// Dimension returns the dimensionality of the produced embedding vectors, or
// 0 before the first request.
func (c *Client) Dimension() int { return c.dimension }

// SetDimension records a dimension known from a persisted index so that a
// response of a different size is rejected.
func (c *Client) SetDimension(d int) { c.dimension = d }

// Embed returns the normalised embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in requests of at most BatchSize inputs, keeping
// the input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, b := range embedding.Batches(len(texts), c.batchSize) {
		vecs, err := c.create(ctx, texts[b[0]:b[1]])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) create(ctx context.Context, inputs []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input:      inputs,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	}

	var resp openai.EmbeddingResponse
	var err error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err = c.api.CreateEmbeddings(ctx, req)
		if err == nil {
			break
		}
		if !retryable(err) || attempt == c.maxRetries {
			return nil, fmt.Errorf("openai embeddings failed: %w", err)
		}
		applog.Debug("[embed] retrying", "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}

	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(inputs))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	vecs := make([][]float32, len(data))
	for i, d := range data {
		v := make([]float32, len(d.Embedding))
		for j, x := range d.Embedding {
			v[j] = float32(x)
		}
		if len(v) == 0 {
			return nil, errors.New("no embedding returned")
		}
		if c.dimension == 0 {
			c.dimension = len(v)
		} else if len(v) != c.dimension {
			return nil, fmt.Errorf("openai embeddings: dimension %d, expected %d", len(v), c.dimension)
		}
		embedding.Normalize(v)
		vecs[i] = v
	}
	return vecs, nil
}

// retryable reports whether err is a rate limit, a server error, or a
// transport failure.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

var _ domain.Embedder = (*Client)(nil)
