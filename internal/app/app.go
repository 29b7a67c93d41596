// Package app assembles the configured components into a working engine:
// catalog, chunker, embedder, index, ingestion manager and retriever.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vidya-labs/studyrag/internal/answer"
	"github.com/vidya-labs/studyrag/internal/catalog"
	"github.com/vidya-labs/studyrag/internal/chunker"
	"github.com/vidya-labs/studyrag/internal/config"
	"github.com/vidya-labs/studyrag/internal/corpus"
	"github.com/vidya-labs/studyrag/internal/embedding"
	"github.com/vidya-labs/studyrag/internal/index"
	"github.com/vidya-labs/studyrag/internal/retrieval"
)

// App is the wired engine.
type App struct {
	Config    *config.Config
	Catalog   *catalog.Catalog
	Embedder  embedding.Embedder
	Index     index.Index
	Manager   *corpus.Manager
	Retriever *retrieval.Retriever

	logger *slog.Logger
}

// Build constructs the engine from configuration. The generation backend
// is built separately via Composer, so deployments that only ingest and
// search never need generation credentials.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	chk, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("chunker: %w", err)
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	idx, err := buildIndex(ctx, cfg, embedder)
	if err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}

	manager := corpus.NewManager(cat, chk, embedder, idx, logger)
	manager.Workers = cfg.Workers

	return &App{
		Config:    cfg,
		Catalog:   cat,
		Embedder:  embedder,
		Index:     idx,
		Manager:   manager,
		Retriever: retrieval.NewRetriever(embedder, idx, cfg.TopK, logger),
		logger:    logger,
	}, nil
}

// Close releases the index.
func (a *App) Close() error {
	return a.Index.Close()
}

// Composer builds the configured generation backend.
func (a *App) Composer() (*answer.Composer, error) {
	generator, err := buildGenerator(a.Config)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}
	return answer.NewComposer(generator, a.logger), nil
}

func buildEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderOpenAI:
		return embedding.NewOpenAI(embedding.OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
	case config.ProviderOllama:
		return embedding.NewOllama(embedding.OllamaConfig{
			BaseURL:   cfg.OllamaBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		}), nil
	case config.ProviderHash:
		return embedding.NewHash(cfg.EmbeddingDimension), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

func buildIndex(ctx context.Context, cfg *config.Config, embedder embedding.Embedder) (index.Index, error) {
	switch cfg.IndexBackend {
	case config.BackendSQLite:
		return index.NewSQLite(cfg.IndexPath(), embedder.Model(), embedder.Dimension())
	case config.BackendQdrant:
		return index.NewQdrant(ctx, index.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantUseTLS,
			Collection: cfg.QdrantCollection,
			Model:      embedder.Model(),
			Dimension:  embedder.Dimension(),
		})
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}

func buildGenerator(cfg *config.Config) (answer.Generator, error) {
	switch cfg.AnswerProvider {
	case config.ProviderOpenAI:
		return answer.NewOpenAI(answer.OpenAIConfig{
			APIKey:  cfg.AnswerAPIKey,
			BaseURL: cfg.AnswerBaseURL,
			Model:   cfg.AnswerModel,
		})
	case config.ProviderOllama:
		return answer.NewOllama(answer.OllamaConfig{
			BaseURL: cfg.OllamaBaseURL,
			Model:   cfg.AnswerModel,
		}), nil
	default:
		return nil, fmt.Errorf("unknown answer provider %q", cfg.AnswerProvider)
	}
}
