package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdfrag/internal/domain"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunker.ChunkSize != 1000 || cfg.Chunker.ChunkOverlap != 200 {
		t.Errorf("chunker defaults = %d/%d", cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("top_k default = %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.GoodThreshold != 0.4 || cfg.Retrieval.BorderlineThreshold != 0.5 {
		t.Errorf("thresholds = %v/%v", cfg.Retrieval.GoodThreshold, cfg.Retrieval.BorderlineThreshold)
	}
	if cfg.Embedder.Type != "openai" || cfg.Embedder.Model != "text-embedding-3-small" {
		t.Errorf("embedder = %s/%s", cfg.Embedder.Type, cfg.Embedder.Model)
	}
}

func TestLoadYAMLAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
embedder:
  type: tfidf
chunker:
  chunk_size: 500
  chunk_overlap: 50
retrieval:
  top_k: 7
  good_threshold: 0.3
  borderline_threshold: 0.6
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PDFRAG_TOP_K", "9")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embedder.Type != "tfidf" {
		t.Errorf("embedder type = %s", cfg.Embedder.Type)
	}
	if cfg.Chunker.ChunkSize != 500 || cfg.Chunker.ChunkOverlap != 50 {
		t.Errorf("chunker = %d/%d", cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	}
	if cfg.Retrieval.TopK != 9 {
		t.Errorf("env override not applied, top_k = %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.GoodThreshold != 0.3 {
		t.Errorf("good threshold = %v", cfg.Retrieval.GoodThreshold)
	}
	if cfg.OpenAI.APIKey != "sk-test" {
		t.Errorf("credential not resolved")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yml  string
		want string
	}{
		{"unknown embedder", "embedder:\n  type: magic\n", "unknown embedder"},
		{"inverted thresholds", "retrieval:\n  good_threshold: 0.9\n  borderline_threshold: 0.5\n", "good_threshold"},
		{"qdrant without host", "vector_store:\n  type: qdrant\n", "qdrant"},
		{"bad temperature", "llm:\n  temperature: 3\n", "temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			if err := os.WriteFile(path, []byte(tt.yml), 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestRequireCredential(t *testing.T) {
	cfg := defaultConfig()
	cfg.OpenAI.APIKey = ""

	err := cfg.RequireCredential(true)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("chat without key: got %v", err)
	}
	if !strings.Contains(domain.HintOf(err), "OPENAI_API_KEY=") {
		t.Errorf("hint = %q", domain.HintOf(err))
	}

	cfg.Embedder.Type = "tfidf"
	if err := cfg.RequireCredential(false); err != nil {
		t.Errorf("tfidf indexing should not need a key: %v", err)
	}

	cfg.OpenAI.APIKey = "sk-x"
	if err := cfg.RequireCredential(true); err != nil {
		t.Errorf("unexpected error with key set: %v", err)
	}
}

func TestSaveRoundTripOmitsAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.OpenAI.APIKey = "sk-secret"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("API key was written to disk")
	}
}

func TestLoadReadsDotenvWithoutExporting(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-from-dotenv\nPDFRAG_TOP_K=6\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PDFRAG_TOP_K", "")
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("PDFRAG_TOP_K")

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-from-dotenv" {
		t.Errorf("api key = %q", cfg.OpenAI.APIKey)
	}
	if cfg.Retrieval.TopK != 6 {
		t.Errorf("top_k from .env = %d", cfg.Retrieval.TopK)
	}
	if _, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		t.Error("Load exported OPENAI_API_KEY into the process environment")
	}
	if _, ok := os.LookupEnv("PDFRAG_TOP_K"); ok {
		t.Error("Load exported PDFRAG_TOP_K into the process environment")
	}
}

func TestLoadProcessEnvBeatsDotenv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-from-dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err := Load(filepath.Join(dir, "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-from-env" {
		t.Errorf("api key = %q", cfg.OpenAI.APIKey)
	}
}

func TestLoadMalformedDotenv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("KEY=\"unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	_, err := Load(filepath.Join(dir, "absent.yaml"))
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestEnsureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pdfrag", "config.yaml")
	created, err := EnsureFile(path)
	if err != nil || !created {
		t.Fatalf("first EnsureFile = %v, %v", created, err)
	}
	if err := os.WriteFile(path, []byte("retrieval:\n  top_k: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	created, err = EnsureFile(path)
	if err != nil || created {
		t.Fatalf("second EnsureFile = %v, %v", created, err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "top_k: 9") {
		t.Error("EnsureFile overwrote an existing config")
	}
}
