package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	// DefaultOpenAIModel is the embedding model used unless configured otherwise.
	DefaultOpenAIModel = "text-embedding-3-small"

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate
	// limits. OpenAI supports up to 2048 texts per batch, but smaller batches
	// reduce TPM pressure.
	DefaultBatchSize = 500

	defaultOpenAITimeout = 60 * time.Second
)

// openAIDimensions maps known OpenAI embedding models to their vector size.
var openAIDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures the OpenAI embedding provider.
type OpenAIConfig struct {
	// APIKey authenticates requests. Required.
	APIKey string

	// BaseURL overrides the API endpoint, for OpenAI-compatible services.
	// Empty means the official OpenAI endpoint.
	BaseURL string

	// Model is the embedding model (default: text-embedding-3-small).
	Model string

	// Dimension overrides the vector size. Required for models not in the
	// known-model table.
	Dimension int

	// BatchSize caps texts per API request (default: 500).
	BatchSize int
}

// OpenAI generates embeddings through the OpenAI embeddings API, or any
// compatible endpoint via BaseURL. Requests are split into batches; failures
// are classified but never retried here.
type OpenAI struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
}

var _ Embedder = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI embedding provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedding: API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Dimension == 0 {
		dim, ok := openAIDimensions[cfg.Model]
		if !ok {
			return nil, fmt.Errorf("openai embedding: unknown model %q, set dimension explicitly", cfg.Model)
		}
		cfg.Dimension = dim
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
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
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

// Embed returns the embedding for a single text.
func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in API-sized batches and returns vectors in input
// order.
func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += o.batchSize {
		end := min(i+o.batchSize, len(texts))

		batch, err := o.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", i, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (o *OpenAI) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
		Model: openai.EmbeddingModel(o.model),
	})
	if err != nil {
		return nil, classifyOpenAIErr(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings API returned %d vectors for %d texts", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		vectors[i] = toFloat32(data.Embedding)
	}
	return vectors, nil
}

// Dimension returns the vector size for the configured model.
func (o *OpenAI) Dimension() int { return o.dimension }

// Model returns the configured model identifier.
func (o *OpenAI) Model() string { return o.model }

// classifyOpenAIErr maps rate limits, server errors and network failures to
// ErrUnavailable. Anything else, such as a rejected request, is permanent.
func classifyOpenAIErr(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// No API response at all: connection refused, DNS failure, timeout.
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
