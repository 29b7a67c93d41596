// Package retrieval turns a question into the chunks most likely to
// answer it: embed the question, search the index, keep the top k.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vidya-labs/studyrag/internal/catalog"
	"github.com/vidya-labs/studyrag/internal/embedding"
	"github.com/vidya-labs/studyrag/internal/index"
)

// DefaultK is the fallback result count when none is configured.
const DefaultK = 5

// Result is one retrieved chunk with its similarity score.
type Result struct {
	index.Hit
}

// Retriever answers similarity queries against the index.
type Retriever struct {
	embedder embedding.Embedder
	index    index.Index
	defaultK int
	logger   *slog.Logger
}

// NewRetriever creates a retriever. defaultK is used for queries that do
// not specify a result count; zero or negative falls back to DefaultK.
func NewRetriever(embedder embedding.Embedder, idx index.Index, defaultK int, logger *slog.Logger) *Retriever {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		index:    idx,
		defaultK: defaultK,
		logger:   logger,
	}
}

// Retrieve returns up to k chunks relevant to the question, highest
// similarity first. An empty subject searches every subject; a subject
// with nothing indexed yields an empty result, not an error. Embedding
// failures surface as-is so callers can tell "no notes" from "embedder
// down".
func (r *Retriever) Retrieve(ctx context.Context, question, subject string, k int) ([]Result, error) {
	if k <= 0 {
		k = r.defaultK
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := r.index.Search(ctx, vector, k, index.Filter{Subject: catalog.Canonical(subject)})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	results := make([]Result, len(hits))
	for i, hit := range hits {
		results[i] = Result{Hit: hit}
	}
	if len(results) > 0 {
		r.logger.Debug("retrieved chunks",
			"subject", subject,
			"count", len(results),
			"top_score", results[0].Score,
		)
	}
	return results, nil
}
