// Package config reads configuration from the environment. Every knob has
// a default that works offline (hash embedder, SQLite index under the data
// dir), so a bare `studyrag` run needs no environment at all.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// ErrInvalid reports a configuration value that cannot work.
var ErrInvalid = errors.New("invalid configuration")

// Provider and backend names accepted by the configuration.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"

	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Config is the full runtime configuration.
type Config struct {
	// Embedding provider: openai, ollama or hash.
	EmbeddingProvider  string `envconfig:"STUDYRAG_EMBEDDING_PROVIDER" default:"hash"`
	EmbeddingModel     string `envconfig:"STUDYRAG_EMBEDDING_MODEL"`
	EmbeddingDimension int    `envconfig:"STUDYRAG_EMBEDDING_DIMENSION"`

	// Answer generation provider: openai or ollama.
	AnswerProvider string `envconfig:"STUDYRAG_ANSWER_PROVIDER" default:"openai"`
	AnswerModel    string `envconfig:"STUDYRAG_ANSWER_MODEL"`
	// AnswerAPIKey and AnswerBaseURL default to the OpenAI settings below,
	// so a single key serves both; set them to route answers elsewhere,
	// e.g. through OpenRouter.
	AnswerAPIKey  string `envconfig:"STUDYRAG_ANSWER_API_KEY"`
	AnswerBaseURL string `envconfig:"STUDYRAG_ANSWER_BASE_URL"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`
	OllamaBaseURL string `envconfig:"OLLAMA_BASE_URL"`

	// Index backend: sqlite or qdrant.
	IndexBackend string `envconfig:"STUDYRAG_INDEX_BACKEND" default:"sqlite"`
	// DataDir holds the SQLite index and the subject catalog.
	// Default: ~/.studyrag.
	DataDir string `envconfig:"STUDYRAG_DATA_DIR"`

	QdrantHost       string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort       int    `envconfig:"QDRANT_PORT" default:"6334"`
	QdrantAPIKey     string `envconfig:"QDRANT_API_KEY"`
	QdrantUseTLS     bool   `envconfig:"QDRANT_USE_TLS" default:"false"`
	QdrantCollection string `envconfig:"QDRANT_COLLECTION" default:"studyrag"`

	// CatalogPath points at the subject registry JSON.
	// Default: <DataDir>/subjects.json; a missing file disables validation.
	CatalogPath string `envconfig:"STUDYRAG_CATALOG"`

	ChunkSize    int `envconfig:"STUDYRAG_CHUNK_SIZE" default:"500"`
	ChunkOverlap int `envconfig:"STUDYRAG_CHUNK_OVERLAP" default:"50"`
	TopK         int `envconfig:"STUDYRAG_TOP_K" default:"5"`
	Workers      int `envconfig:"STUDYRAG_WORKERS" default:"4"`

	// ServeHTTP switches the MCP server from stdio to Streamable HTTP.
	ServeHTTP bool   `envconfig:"STUDYRAG_SERVE_HTTP" default:"false"`
	HTTPAddr  string `envconfig:"STUDYRAG_HTTP_ADDR" default:":8080"`

	LogLevel string `envconfig:"STUDYRAG_LOG_LEVEL" default:"info"`
}

// Load reads the environment, fills derived defaults and validates.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".studyrag")
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = filepath.Join(cfg.DataDir, "subjects.json")
	}
	if cfg.AnswerAPIKey == "" {
		cfg.AnswerAPIKey = cfg.OpenAIAPIKey
	}
	if cfg.AnswerBaseURL == "" {
		cfg.AnswerBaseURL = cfg.OpenAIBaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enums and numeric relationships. Credentials are checked
// by the component constructors that need them.
func (c *Config) Validate() error {
	switch c.EmbeddingProvider {
	case ProviderOpenAI, ProviderOllama, ProviderHash:
	default:
		return fmt.Errorf("%w: embedding provider %q", ErrInvalid, c.EmbeddingProvider)
	}
	switch c.AnswerProvider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("%w: answer provider %q", ErrInvalid, c.AnswerProvider)
	}
	switch c.IndexBackend {
	case BackendSQLite, BackendQdrant:
	default:
		return fmt.Errorf("%w: index backend %q", ErrInvalid, c.IndexBackend)
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size %d", ErrInvalid, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d with chunk size %d", ErrInvalid, c.ChunkOverlap, c.ChunkSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top-k %d", ErrInvalid, c.TopK)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers)
	}
	return nil
}

// IndexPath is the SQLite index location under the data dir.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.db")
}

// SlogLevel maps the configured log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
