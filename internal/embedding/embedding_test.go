package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TestHash_Deterministic verifies the hash embedder returns identical vectors
// for identical text.
func TestHash_Deterministic(t *testing.T) {
	h := NewHash(128)

	a, err := h.Embed(context.Background(), "mitosis splits one cell into two")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := h.Embed(context.Background(), "mitosis splits one cell into two")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(a) != 128 {
		t.Fatalf("Expected 128 dimensions, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}

	// Vectors are unit length.
	var norm float64
	for _, x := range a {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("Expected unit norm, got %f", norm)
	}
}

// TestHash_SharedVocabularyScoresHigher verifies texts with common words are
// closer than unrelated texts.
func TestHash_SharedVocabularyScoresHigher(t *testing.T) {
	h := NewHash(0)
	ctx := context.Background()

	vectors, err := h.EmbedBatch(ctx, []string{
		"the cell divides by mitosis",
		"mitosis divides the cell by",
		"supply curves meet demand curves",
	})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}

	same := cosine(vectors[0], vectors[1])
	other := cosine(vectors[0], vectors[2])

	// Same word multiset means identical vectors.
	if same < 0.999 {
		t.Errorf("Reordered text: expected cosine ~1, got %f", same)
	}
	if same <= other {
		t.Errorf("Expected shared vocabulary to score higher: same=%f other=%f", same, other)
	}
}

// TestHash_RejectsEmptyText verifies empty input is reported as invalid.
func TestHash_RejectsEmptyText(t *testing.T) {
	h := NewHash(64)
	ctx := context.Background()

	if _, err := h.Embed(ctx, "   "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Embed(whitespace): expected ErrInvalidInput, got %v", err)
	}
	if _, err := h.EmbedBatch(ctx, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("EmbedBatch(nil): expected ErrInvalidInput, got %v", err)
	}
	if _, err := h.EmbedBatch(ctx, []string{"ok", ""}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("EmbedBatch with empty element: expected ErrInvalidInput, got %v", err)
	}
}

// TestOllama_Embed verifies request shape and response conversion against a
// stub server.
func TestOllama_Embed(t *testing.T) {
	var gotModel, gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Decode request: %v", err)
		}
		gotModel, gotPrompt = req.Model, req.Prompt
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "test-model", Dimension: 3})

	vector, err := o.Embed(context.Background(), "what is mitosis")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if gotModel != "test-model" {
		t.Errorf("Expected model test-model, got %q", gotModel)
	}
	if gotPrompt != "what is mitosis" {
		t.Errorf("Expected prompt to pass through, got %q", gotPrompt)
	}
	if len(vector) != 3 || vector[1] != float32(0.2) {
		t.Errorf("Unexpected vector: %v", vector)
	}
}

// TestOllama_DimensionMismatch verifies a wrong-sized server vector is an error.
func TestOllama_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	o := NewOllama(OllamaConfig{BaseURL: srv.URL, Dimension: 768})

	if _, err := o.Embed(context.Background(), "text"); err == nil {
		t.Fatal("Expected dimension mismatch error")
	}
}

// TestOllama_Unavailable verifies server errors and dead endpoints are
// classified as ErrUnavailable.
func TestOllama_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	o := NewOllama(OllamaConfig{BaseURL: srv.URL, Dimension: 3})

	if _, err := o.Embed(context.Background(), "text"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Status 503: expected ErrUnavailable, got %v", err)
	}

	srv.Close()
	if _, err := o.Embed(context.Background(), "text"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Dead endpoint: expected ErrUnavailable, got %v", err)
	}
}

// TestOpenAI_Config verifies constructor validation and dimension lookup.
func TestOpenAI_Config(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Error("Expected error for missing API key")
	}

	if _, err := NewOpenAI(OpenAIConfig{APIKey: "k", Model: "mystery-model"}); err == nil {
		t.Error("Expected error for unknown model without dimension")
	}

	o, err := NewOpenAI(OpenAIConfig{APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	if o.Dimension() != 1536 {
		t.Errorf("Expected 1536 dimensions for default model, got %d", o.Dimension())
	}
	if o.Model() != "text-embedding-3-small" {
		t.Errorf("Unexpected model %q", o.Model())
	}

	o, err = NewOpenAI(OpenAIConfig{APIKey: "k", Model: "mystery-model", Dimension: 42})
	if err != nil {
		t.Fatalf("NewOpenAI with explicit dimension failed: %v", err)
	}
	if o.Dimension() != 42 {
		t.Errorf("Expected explicit dimension 42, got %d", o.Dimension())
	}
}

// TestOpenAI_EmbedBatch verifies vectors come back in input order from a stub
// OpenAI-compatible endpoint.
func TestOpenAI_EmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("Decode request: %v", err)
		}

		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), 1},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  "text-embedding-3-small",
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Dimension: 2})
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}

	vectors, err := o.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("Expected 3 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if v[0] != float32(i) {
			t.Errorf("Vector %d out of order: %v", i, v)
		}
	}
}

// TestOpenAI_RateLimited verifies HTTP 429 maps to ErrUnavailable.
func TestOpenAI_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited","type":"rate_limit_error"}}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI(OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Dimension: 2})
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}

	if _, err := o.EmbedBatch(context.Background(), []string{"a"}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}
