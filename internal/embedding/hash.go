package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

const (
	// HashModel identifies the local feature-hashing embedder.
	HashModel = "hash-v1"

	// DefaultHashDimension is the vector size of the hash embedder.
	DefaultHashDimension = 256
)

// Hash is a deterministic, offline embedder. It folds lowercased tokens into
// a fixed-size vector by feature hashing and L2-normalises the result, so
// texts sharing vocabulary score high on cosine similarity. Useful for
// development and tests; not a substitute for a learned model.
type Hash struct {
	dimension int
}

var _ Embedder = (*Hash)(nil)

// NewHash creates a hash embedder. A non-positive dimension selects the
// default.
func NewHash(dimension int) *Hash {
	if dimension <= 0 {
		dimension = DefaultHashDimension
	}
	return &Hash{dimension: dimension}
}

// Embed returns the feature-hash vector for a single text.
func (h *Hash) Embed(_ context.Context, text string) ([]float32, error) {
	if err := validateTexts([]string{text}); err != nil {
		return nil, err
	}
	return h.vector(text), nil
}

// EmbedBatch embeds each text independently, in input order.
func (h *Hash) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = h.vector(text)
	}
	return vectors, nil
}

// Dimension returns the configured vector size.
func (h *Hash) Dimension() int { return h.dimension }

// Model returns the hash embedder identifier.
func (h *Hash) Model() string { return HashModel }

func (h *Hash) vector(text string) []float32 {
	v := make([]float32, h.dimension)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New64a()
		f.Write([]byte(token))
		sum := f.Sum64()

		// Low bits pick the bucket, one high bit picks the sign.
		bucket := int(sum % uint64(h.dimension))
		if sum&(1<<63) != 0 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range v {
			v[i] *= scale
		}
	}
	return v
}
