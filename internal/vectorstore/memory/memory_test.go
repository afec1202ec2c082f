package memory

import (
	"context"
	"math"
	"testing"

	"pdfrag/internal/domain"
)

func seeded(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()
	s := NewStorage()
	if err := s.Init(ctx, 2); err != nil {
		t.Fatal(err)
	}
	chunks := []domain.Chunk{{ID: "a", Text: "east"}, {ID: "b", Text: "north"}, {ID: "c", Text: "west"}, {ID: "d", Text: "north again"}}
	vectors := [][]float32{{1, 0}, {0, 1}, {-1, 0}, {0, 1}}
	if err := s.Upsert(ctx, chunks, vectors); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSearchOrderAndScores(t *testing.T) {
	s := seeded(t)
	res, err := s.Search(context.Background(), []float32{1, 0}, 4)
	if err != nil {
		t.Fatal(err)
	}
	wantIDs := []string{"a", "b", "d", "c"}
	wantScores := []float64{0, 2, 2, 4}
	for i, r := range res {
		if r.Chunk.ID != wantIDs[i] {
			t.Errorf("rank %d = %s, want %s", i, r.Chunk.ID, wantIDs[i])
		}
		if math.Abs(r.Score-wantScores[i]) > 1e-9 {
			t.Errorf("score %d = %v, want %v", i, r.Score, wantScores[i])
		}
	}
}

func TestSearchBounds(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	for _, k := range []int{1, 3, 4, 10} {
		res, err := s.Search(ctx, []float32{0, 1}, k)
		if err != nil {
			t.Fatal(err)
		}
		want := k
		if want > s.Len() {
			want = s.Len()
		}
		if len(res) != want {
			t.Errorf("k=%d: got %d results, want %d", k, len(res), want)
		}
	}
	if _, err := s.Search(ctx, []float32{1, 0, 0}, 1); err == nil {
		t.Error("expected dimension mismatch error")
	}
}

func TestUpsertValidation(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	if err := s.Init(ctx, 0); err == nil {
		t.Error("expected error for zero dimension")
	}
	_ = s.Init(ctx, 2)
	if err := s.Upsert(ctx, []domain.Chunk{{ID: "x"}}, nil); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := s.Upsert(ctx, []domain.Chunk{{ID: "x"}}, [][]float32{{1}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if err := s.Clear(ctx); err != nil || s.Len() != 0 {
		t.Errorf("Clear: %v, len %d", err, s.Len())
	}
}
