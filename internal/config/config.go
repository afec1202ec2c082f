package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pdfrag/internal/domain"
)

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// OpenAIConfig holds connection details shared by the embedder and the LLM.
// The API key itself is never written to the config file; it is resolved from
// the environment variable named by APIKeyEnv.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`

	APIKey string `yaml:"-"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	MaxRetries int    `yaml:"max_retries"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects the backend that serves similarity search.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	APIKey           string `yaml:"api_key"`
	UseTLS           bool   `yaml:"use_tls"`
	CollectionPrefix string `yaml:"collection_prefix"`
	TimeoutSecs      int    `yaml:"timeout_secs"`
}

// RetrievalConfig configures search and how matches are shown.
type RetrievalConfig struct {
	TopK                int     `yaml:"top_k"`
	GoodThreshold       float64 `yaml:"good_threshold"`
	BorderlineThreshold float64 `yaml:"borderline_threshold"`
	PreviewChars        int     `yaml:"preview_chars"`
}

// LLMConfig configures the chat completion model.
type LLMConfig struct {
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	HistoryTurns int     `yaml:"history_turns"`
}

// CacheConfig enables the Redis embedding cache when RedisURL is set.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTLSecs  int    `yaml:"ttl_secs"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// IndexConfig configures where indexes live and which files are indexed.
type IndexConfig struct {
	DefaultPath string   `yaml:"default_path"`
	Extensions  []string `yaml:"extensions"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	LLM         LLMConfig         `yaml:"llm"`
	Cache       CacheConfig       `yaml:"cache"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Index       IndexConfig       `yaml:"index"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// A .env file in the working directory is read first; process environment
// variables take precedence over it, and PDFRAG_ variables override file
// values. The process environment is never modified.
func Load(path string) (*AppConfig, error) {
	env, err := readDotenv(".env")
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.NewError(domain.KindConfiguration, fmt.Sprintf("parse config %q", path), err)
		}
	}
	cfg.applyEnv(env)
	applyConfigDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.OpenAI.APIKey = strings.TrimSpace(env.get(cfg.OpenAI.APIKeyEnv))
	return cfg, nil
}

// environ resolves variables from the process environment, then from a
// .env file.
type environ map[string]string

func (e environ) get(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return e[key]
}

// readDotenv parses path without exporting its values. A missing file is
// not an error.
func readDotenv(path string) (environ, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return environ{}, nil
	}
	vars, err := godotenv.Read(path)
	if err != nil {
		return nil, domain.NewError(domain.KindConfiguration, fmt.Sprintf("parse %s", path), err)
	}
	return environ(vars), nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfrag/config.yaml.
// If neither exists, it returns defaults and the user path; nothing is
// written until EnsureFile is called.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// EnsureFile writes the default config to path if no file exists there.
// It reports whether a file was created.
func EnsureFile(path string) (bool, error) {
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := Save(path, defaultConfig()); err != nil {
		return false, err
	}
	return true, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// UsesOpenAI reports whether the given stage needs the OpenAI credential.
// Chat always needs it for answer generation.
func (c *AppConfig) UsesOpenAI(chat bool) bool {
	return chat || c.Embedder.Type == "openai"
}

// RequireCredential fails with a ConfigurationError when the OpenAI API key is
// missing for a stage that needs it.
func (c *AppConfig) RequireCredential(chat bool) error {
	if !c.UsesOpenAI(chat) || c.OpenAI.APIKey != "" {
		return nil
	}
	return domain.NewError(domain.KindConfiguration,
		fmt.Sprintf("%s not found in environment", c.OpenAI.APIKeyEnv), nil).
		WithHint(fmt.Sprintf("create a .env file with: %s=your_key", c.OpenAI.APIKeyEnv))
}

// Validate checks value ranges and known implementation names.
func (c *AppConfig) Validate() error {
	var problems []string
	switch c.Embedder.Type {
	case "openai", "tfidf":
	default:
		problems = append(problems, fmt.Sprintf("unknown embedder %q", c.Embedder.Type))
	}
	switch c.Chunker.Type {
	case "recursive", "sentence":
	default:
		problems = append(problems, fmt.Sprintf("unknown chunker %q", c.Chunker.Type))
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.Host == "" {
			problems = append(problems, "qdrant vector store requires vector_store.qdrant.host")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown vector store %q", c.VectorStore.Type))
	}
	if c.Summarizer.Type != "frequency" && c.Summarizer.Type != "none" {
		problems = append(problems, fmt.Sprintf("unknown summarizer %q", c.Summarizer.Type))
	}
	if c.Chunker.ChunkSize <= 0 {
		problems = append(problems, "chunker.chunk_size must be positive")
	}
	if c.Chunker.ChunkOverlap < 0 {
		problems = append(problems, "chunker.chunk_overlap must not be negative")
	}
	if c.Retrieval.TopK <= 0 {
		problems = append(problems, "retrieval.top_k must be positive")
	}
	if c.Retrieval.GoodThreshold > c.Retrieval.BorderlineThreshold {
		problems = append(problems, "retrieval.good_threshold must not exceed retrieval.borderline_threshold")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("llm.temperature %.2f outside [0, 2]", c.LLM.Temperature))
	}
	if len(problems) > 0 {
		return domain.NewError(domain.KindConfiguration, "invalid config: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

func (c *AppConfig) applyEnv(env environ) {
	applyString(env, "PDFRAG_LOG_LEVEL", &c.Log.Level)
	applyString(env, "PDFRAG_LOG_FORMAT", &c.Log.Format)
	applyString(env, "PDFRAG_OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	applyString(env, "PDFRAG_EMBEDDER", &c.Embedder.Type)
	applyString(env, "PDFRAG_EMBEDDING_MODEL", &c.Embedder.Model)
	applyInt(env, "PDFRAG_CHUNK_SIZE", &c.Chunker.ChunkSize)
	applyInt(env, "PDFRAG_CHUNK_OVERLAP", &c.Chunker.ChunkOverlap)
	applyInt(env, "PDFRAG_TOP_K", &c.Retrieval.TopK)
	applyFloat64(env, "PDFRAG_GOOD_THRESHOLD", &c.Retrieval.GoodThreshold)
	applyFloat64(env, "PDFRAG_BORDERLINE_THRESHOLD", &c.Retrieval.BorderlineThreshold)
	applyString(env, "PDFRAG_LLM_MODEL", &c.LLM.Model)
	applyFloat64(env, "PDFRAG_LLM_TEMPERATURE", &c.LLM.Temperature)
	applyString(env, "PDFRAG_REDIS_URL", &c.Cache.RedisURL)
	applyString(env, "PDFRAG_VECTOR_STORE", &c.VectorStore.Type)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Log: LogConfig{Level: "info", Format: "console"},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			TimeoutSecs: 60,
		},
		Embedder: EmbedderConfig{
			Type:       "openai",
			Model:      "text-embedding-3-small",
			BatchSize:  64,
			MaxRetries: 5,
		},
		Chunker: ChunkerConfig{
			Type:              "recursive",
			ChunkSize:         1000,
			ChunkOverlap:      200,
			SentencesPerChunk: 5,
			OverlapSentences:  1,
		},
		VectorStore: VectorStoreConfig{Type: "memory"},
		Retrieval: RetrievalConfig{
			TopK:                3,
			GoodThreshold:       0.4,
			BorderlineThreshold: 0.5,
			PreviewChars:        200,
		},
		LLM: LLMConfig{
			Model:        "gpt-4",
			Temperature:  0.1,
			HistoryTurns: 5,
		},
		Cache:      CacheConfig{TTLSecs: 86400},
		Summarizer: SummarizerConfig{Type: "frequency", MaxSentences: 2},
		Index: IndexConfig{
			DefaultPath: "pdf_index",
			Extensions:  []string{".pdf"},
		},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 60
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.Model == "" {
		cfg.Embedder.Model = "text-embedding-3-small"
	}
	if cfg.Embedder.BatchSize <= 0 {
		cfg.Embedder.BatchSize = 64
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Port == 0 {
			q.Port = 6334
		}
		if q.CollectionPrefix == "" {
			q.CollectionPrefix = "pdfrag"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if cfg.Retrieval.PreviewChars <= 0 {
		cfg.Retrieval.PreviewChars = 200
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4"
	}
	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences <= 0 {
		cfg.Summarizer.MaxSentences = 2
	}
	if cfg.Cache.TTLSecs <= 0 {
		cfg.Cache.TTLSecs = 86400
	}
	if cfg.Index.DefaultPath == "" {
		cfg.Index.DefaultPath = "pdf_index"
	}
	if len(cfg.Index.Extensions) == 0 {
		cfg.Index.Extensions = []string{".pdf"}
	}
}

func applyString(env environ, key string, target *string) {
	if v := strings.TrimSpace(env.get(key)); v != "" {
		*target = v
	}
}

func applyInt(env environ, key string, target *int) {
	if v := strings.TrimSpace(env.get(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyFloat64(env environ, key string, target *float64) {
	if v := strings.TrimSpace(env.get(key)); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			*target = n
		}
	}
}
