// Package vectorstore defines the similarity search backends that serve a
// loaded index.
package vectorstore

import (
	"context"

	"pdfrag/internal/domain"
)

// Storage holds chunk vectors and answers nearest-neighbour queries. Scores
// are squared Euclidean distances, ascending.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
}
