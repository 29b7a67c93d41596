package answer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOllamaBaseURL is the local Ollama endpoint.
	DefaultOllamaBaseURL = "http://localhost:11434"

	// DefaultOllamaModel is the chat model used unless configured otherwise.
	DefaultOllamaModel = "llama3.2"

	// Generation is much slower than embedding.
	defaultOllamaTimeout = 300 * time.Second
)

// OllamaConfig configures the Ollama generation backend.
type OllamaConfig struct {
	// BaseURL is the Ollama API address (default: http://localhost:11434).
	BaseURL string

	// Model is the chat model (default: llama3.2).
	Model string

	// Timeout bounds each request (default: 300s).
	Timeout time.Duration
}

// Ollama generates answers through a local Ollama server's chat API.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
}

var _ Generator = (*Ollama)(nil)

// ollamaChatRequest is the /api/chat request body.
type ollamaChatRequest struct {
	Model    string      `json:"model"`
	Messages []ollamaMsg `json:"messages"`
	Stream   bool        `json:"stream"`
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaChatResponse is the /api/chat response body.
type ollamaChatResponse struct {
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
}

// NewOllama creates an Ollama generation backend.
func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOllamaTimeout
	}

	return &Ollama{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
	}
}

// Generate runs one non-streaming chat turn over the prompt.
func (g *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(ollamaChatRequest{
		Model:    g.model,
		Messages: []ollamaMsg{{Role: "user", Content: prompt}},
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", fmt.Errorf("%w: ollama status %d: %s", ErrBackend, resp.StatusCode, msg)
		}
		return "", fmt.Errorf("ollama status %d: %s", resp.StatusCode, msg)
	}

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return strings.TrimSpace(out.Message.Content), nil
}

// Model returns the configured model identifier.
func (g *Ollama) Model() string { return g.model }
