// Package cache wraps an embedder with a key/value cache of vectors, keyed by
// embedder identity and a hash of the text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"

	"pdfrag/internal/applog"
	"pdfrag/internal/domain"
)

// Backend stores raw cache entries.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisBackend is a Backend on a Redis server.
type RedisBackend struct {
	redis *redis.Client
}

// NewRedisBackend connects to the server at url (redis://...) and pings it.
func NewRedisBackend(ctx context.Context, url string) (*RedisBackend, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, "parse cache.redis_url", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBackend{redis: rdb}, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := b.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.redis.Set(ctx, key, value, ttl).Err()
}

// Close releases the connection pool.
func (b *RedisBackend) Close() error { return b.redis.Close() }

// Embedder serves vectors from the backend and delegates misses to the
// wrapped embedder. Backend failures are logged and treated as misses.
type Embedder struct {
	domain.Embedder
	backend Backend
	ttl     time.Duration
	prefix  string
}

// New wraps inner. A ttl of zero or less defaults to 24h.
func New(inner domain.Embedder, backend Backend, ttl time.Duration) *Embedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Embedder{
		Embedder: inner,
		backend:  backend,
		ttl:      ttl,
		prefix:   "pdfrag:emb:",
	}
}

// Embed returns the cached vector for text, computing it on a miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch looks every text up and sends only the misses to the wrapped
// embedder, in one batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if v, ok := e.lookup(ctx, text); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		applog.Debug("[cache] hit", "texts", len(texts))
		return out, nil
	}

	vecs, err := e.Embedder.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, v := range vecs {
		out[missIdx[j]] = v
		e.store(ctx, missTexts[j], v)
	}
	applog.Debug("[cache] batch", "texts", len(texts), "misses", len(missTexts))
	return out, nil
}

func (e *Embedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	data, ok, err := e.backend.Get(ctx, e.key(text))
	if err != nil {
		applog.Warn("[cache] get failed", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	v, err := decodeVector(data)
	if err != nil || (e.Dimension() > 0 && len(v) != e.Dimension()) {
		return nil, false
	}
	return v, true
}

func (e *Embedder) store(ctx context.Context, text string, v []float32) {
	if err := e.backend.Set(ctx, e.key(text), encodeVector(v), e.ttl); err != nil {
		applog.Warn("[cache] set failed", "error", err)
	}
}

func (e *Embedder) key(text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%s:%s:%x", e.prefix, e.Name(), e.Model(), hash[:16])
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("bad cached vector length %d", len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
