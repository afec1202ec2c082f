package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pdfrag/internal/domain"
)

func writeConfig(t *testing.T, yml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", domain.NewError(domain.KindConfiguration, "bad", nil), exitConfig},
		{"not found", domain.NewError(domain.KindNotFound, "missing", nil), exitNotFound},
		{"build", domain.NewError(domain.KindIndexBuild, "embed", nil), exitFailure},
		{"plain", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunIndexMissingFolder(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PDFRAG_EMBEDDER", "")
	cfg := writeConfig(t, "embedder:\n  type: tfidf\nlog:\n  level: error\n")
	missing := filepath.Join(t.TempDir(), "nope")
	out := filepath.Join(t.TempDir(), "idx")
	if code := run([]string{"--config", cfg, "index", missing, out}); code != exitNotFound {
		t.Errorf("exit = %d, want %d", code, exitNotFound)
	}
}

func TestRunIndexThenChatMissingCredential(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PDFRAG_EMBEDDER", "")
	cfg := writeConfig(t, "embedder:\n  type: tfidf\nlog:\n  level: error\nindex:\n  extensions: [\".txt\"]\n")
	docs := t.TempDir()
	if err := os.WriteFile(filepath.Join(docs, "a.txt"), []byte("Paris is the capital of France."), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "idx")

	if code := run([]string{"--config", cfg, "index", docs, out}); code != exitOK {
		t.Fatalf("index exit = %d", code)
	}
	if _, err := os.Stat(filepath.Join(out, "index.db")); err != nil {
		t.Fatalf("index not written: %v", err)
	}
	if code := run([]string{"--config", cfg, "chat", out}); code != exitConfig {
		t.Errorf("chat without key exit = %d, want %d", code, exitConfig)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	t.Setenv("PDFRAG_EMBEDDER", "")
	cfg := writeConfig(t, "embedder:\n  type: magic\n")
	if code := run([]string{"--config", cfg, "index", t.TempDir()}); code != exitConfig {
		t.Errorf("exit = %d, want %d", code, exitConfig)
	}
}

func TestRunWritesDefaultConfigOnlyAfterCredentialCheck(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PDFRAG_EMBEDDER", "")
	t.Setenv("PDFRAG_VECTOR_STORE", "")
	t.Setenv("PDFRAG_REDIS_URL", "")
	path := filepath.Join(home, ".config", "pdfrag", "config.yaml")
	missing := filepath.Join(t.TempDir(), "idx")

	if code := run([]string{"--log-level", "error", "chat", missing}); code != exitConfig {
		t.Fatalf("chat without key exit = %d, want %d", code, exitConfig)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("default config written before credential check: %v", err)
	}

	t.Setenv("OPENAI_API_KEY", "sk-test")
	if code := run([]string{"--log-level", "error", "chat", missing}); code != exitNotFound {
		t.Fatalf("chat with key exit = %d, want %d", code, exitNotFound)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("default config not written: %v", err)
	}
}
