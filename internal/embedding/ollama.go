package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultOllamaBaseURL is the local Ollama endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultOllamaModel is the embedding model used unless configured otherwise.
	DefaultOllamaModel = "nomic-embed-text"

	// DefaultOllamaDimension is the vector size of nomic-embed-text.
	DefaultOllamaDimension = 768

	defaultOllamaTimeout = 30 * time.Second
)

// OllamaConfig configures the Ollama embedding provider.
type OllamaConfig struct {
	// BaseURL is the Ollama API address (default: http://localhost:11434).
	BaseURL string

	// Model is the embedding model (default: nomic-embed-text).
	Model string

	// Dimension is the vector size the model produces. Must match the model;
	// defaults to 768 for nomic-embed-text.
	Dimension int

	// Timeout bounds each request (default: 30s).
	Timeout time.Duration
}

// Ollama generates embeddings through a local Ollama server. Ollama has no
// batch endpoint, so EmbedBatch issues one request per text.
type Ollama struct {
	client    *http.Client
	baseURL   string
	model     string
	dimension int
}

var _ Embedder = (*Ollama)(nil)

// ollamaRequest is the /api/embeddings request body.
type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaResponse is the /api/embeddings response body.
type ollamaResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewOllama creates an Ollama embedding provider.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultOllamaDimension
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOllamaTimeout
	}

	return &Ollama{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}
}

// Embed returns the embedding for a single text.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := validateTexts([]string{text}); err != nil {
		return nil, err
	}

	body, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: ollama status %d: %s", ErrUnavailable, resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("ollama status %d: %s", resp.StatusCode, msg)
	}

	var out ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Embedding) != o.dimension {
		return nil, fmt.Errorf("ollama model %s returned %d dimensions, expected %d", o.model, len(out.Embedding), o.dimension)
	}

	return toFloat32(out.Embedding), nil
}

// EmbedBatch embeds each text with a separate request, in input order.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vector, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("text %d: %w", i, err)
		}
		vectors[i] = vector
	}
	return vectors, nil
}

// Dimension returns the configured vector size.
func (o *Ollama) Dimension() int { return o.dimension }

// Model returns the configured model identifier.
func (o *Ollama) Model() string { return o.model }
