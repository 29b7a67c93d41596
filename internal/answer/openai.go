package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultOpenAIModel is the chat model used unless configured otherwise.
	DefaultOpenAIModel = "gpt-4o"

	defaultOpenAITimeout = 120 * time.Second
)

// OpenAIConfig configures the OpenAI generation backend.
type OpenAIConfig struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL overrides the API endpoint, for OpenAI-compatible services
	// such as OpenRouter. Empty means the official OpenAI endpoint.
	BaseURL string

	// Model is the chat model (default: gpt-4o).
	Model string
}

// OpenAI generates answers through the OpenAI chat completions API, or any
// compatible endpoint via BaseURL.
type OpenAI struct {
	client openai.Client
	model  string
}

var _ Generator = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI generation backend.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai generator: API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(defaultOpenAITimeout),
		// Callers own retry policy; disable the SDK's built-in retries.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
	}, nil
}

// Generate runs one chat completion over the prompt.
func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: openai.ChatModel(g.model),
	})
	if err != nil {
		return "", classifyGenerateErr(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrBackend)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Model returns the configured model identifier.
func (g *OpenAI) Model() string { return g.model }

// classifyGenerateErr maps rate limits, server errors and network failures
// to ErrBackend. Anything else, such as a rejected request, is permanent.
func classifyGenerateErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrBackend, err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// No API response at all: connection refused, DNS failure, timeout.
	return fmt.Errorf("%w: %v", ErrBackend, err)
}
