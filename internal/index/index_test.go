package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"pdfrag/internal/domain"
)

func sample(t *testing.T, source string, n int) *Index {
	t.Helper()
	ix := New(Manifest{
		Embedder: EmbedderInfo{Type: "tfidf"},
		Chunker:  ChunkerInfo{Type: "recursive", ChunkSize: 100, ChunkOverlap: 20},
	})
	chunks := make([]domain.Chunk, n)
	vectors := make([][]float32, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{ID: fmt.Sprintf("%s-%d", source, i), Source: source, Text: fmt.Sprintf("text %d of %s", i, source), Index: i}
		vectors[i] = []float32{float32(i), 0.5, -1}
	}
	if err := ix.Add(chunks, vectors); err != nil {
		t.Fatal(err)
	}
	ix.AddSource(SourceInfo{Name: source, Chunks: n, Summary: "about " + source})
	return ix
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pdf_index")
	ix := sample(t, "a.pdf", 3)
	ix.SetEmbedderState([]byte(`{"terms":["x"]}`))
	if err := ix.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Len() != 3 || got.Manifest.Chunks != 3 {
		t.Fatalf("len = %d, manifest chunks = %d", got.Len(), got.Manifest.Chunks)
	}
	if got.Manifest.Embedder.Dimension != 3 || got.Manifest.Embedder.Type != "tfidf" {
		t.Errorf("embedder = %+v", got.Manifest.Embedder)
	}
	if got.Manifest.CreatedAt.IsZero() {
		t.Error("created_at not set")
	}
	if len(got.Manifest.Sources) != 1 || got.Manifest.Sources[0].Summary != "about a.pdf" {
		t.Errorf("sources = %+v", got.Manifest.Sources)
	}
	for i, c := range got.Chunks() {
		if c.ID != fmt.Sprintf("a.pdf-%d", i) || c.Index != i {
			t.Errorf("chunk %d = %+v", i, c)
		}
		if got.Vectors()[i][0] != float32(i) {
			t.Errorf("vector %d = %v", i, got.Vectors()[i])
		}
	}
	if string(got.EmbedderState()) != `{"terms":["x"]}` {
		t.Errorf("state = %q", got.EmbedderState())
	}
}

func TestSaveReplacesPreviousIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	if err := sample(t, "old.pdf", 2).Save(dir); err != nil {
		t.Fatal(err)
	}
	if err := sample(t, "new.pdf", 5).Save(dir); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 5 || got.Manifest.Sources[0].Name != "new.pdf" {
		t.Errorf("index not replaced: %d chunks, %+v", got.Len(), got.Manifest.Sources)
	}
	entries, _ := os.ReadDir(filepath.Dir(dir))
	if len(entries) != 1 {
		t.Errorf("leftover temp directories: %v", entries)
	}
}

func TestSaveRefusesForeignDirectory(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(keep, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := sample(t, "a.pdf", 1).Save(dir)
	if !errors.Is(err, domain.ErrIndexBuild) {
		t.Fatalf("expected IndexBuildFailure, got %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("foreign file was removed")
	}
}

func TestSaveFailureLeavesNothing(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(blocker, "idx")
	if err := sample(t, "a.pdf", 1).Save(dir); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 1 {
		t.Errorf("unexpected entries after failed save: %v", entries)
	}

	if err := New(Manifest{}).Save(filepath.Join(root, "empty")); !errors.Is(err, domain.ErrIndexBuild) {
		t.Errorf("empty index: got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "empty")); !errors.Is(err, os.ErrNotExist) {
		t.Error("empty index left a directory behind")
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ResourceNotFound, got %v", err)
	}
	if domain.HintOf(err) == "" {
		t.Error("expected a hint")
	}
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DBFile), []byte("garbage"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ResourceNotFound, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	combined := New(Manifest{Embedder: EmbedderInfo{Type: "tfidf"}})
	for _, src := range []string{"a.pdf", "b.pdf"} {
		if err := combined.Merge(sample(t, src, 2)); err != nil {
			t.Fatalf("Merge %s: %v", src, err)
		}
	}
	if combined.Len() != 4 || len(combined.Manifest.Sources) != 2 || combined.Manifest.Chunks != 4 {
		t.Errorf("merged = %d chunks, %d sources", combined.Len(), len(combined.Manifest.Sources))
	}

	other := New(Manifest{Embedder: EmbedderInfo{Type: "openai", Model: "text-embedding-3-small"}})
	if err := combined.Merge(other); err == nil {
		t.Error("expected embedder mismatch error")
	}
	wide := New(Manifest{Embedder: EmbedderInfo{Type: "tfidf"}})
	_ = wide.Add([]domain.Chunk{{ID: "w"}}, [][]float32{{1, 2, 3, 4}})
	if err := combined.Merge(wide); err == nil {
		t.Error("expected dimension mismatch error")
	}
}
