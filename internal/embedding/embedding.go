// Package embedding turns text into dense vectors for semantic search.
//
// Providers implement the Embedder interface and report which model they
// wrap and its vector dimension so the index can verify compatibility.
// Providers do not retry: transient failures are reported as ErrUnavailable
// and retry policy belongs to the caller.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidInput reports text that cannot be embedded, such as empty or
	// whitespace-only input.
	ErrInvalidInput = errors.New("text cannot be embedded")

	// ErrUnavailable reports a transient backend failure: the service is
	// unreachable, overloaded, or rate limiting. Safe to retry.
	ErrUnavailable = errors.New("embedding backend unavailable")
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector size this embedder produces.
	Dimension() int

	// Model returns the identifier of the underlying embedding model.
	Model() string
}

// validateTexts rejects empty input sets and empty or whitespace-only texts.
func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts given", ErrInvalidInput)
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: text %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}

// toFloat32 converts []float64 to []float32. Embedding APIs return float64,
// but vectors are stored as float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
