//go:build integration

package index

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupQdrant connects to a local Qdrant with a per-test collection.
// Skips the test if Qdrant is not running.
func setupQdrant(t *testing.T) *Qdrant {
	t.Helper()
	cfg := QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: fmt.Sprintf("studyrag_test_%d", time.Now().UnixNano()),
		Model:      testModel,
		Dimension:  testDimension,
	}
	idx, err := NewQdrant(context.Background(), cfg)
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	return idx
}

func qdrantDoc(subject, source, hash string) Document {
	return Document{
		ID:          uuid.New().String(),
		Subject:     subject,
		Source:      source,
		Title:       source,
		ContentHash: hash,
		IngestedAt:  time.Now().UTC().Truncate(time.Second),
	}
}

func TestQdrantUpsertSearchRoundTrip(t *testing.T) {
	idx := setupQdrant(t)
	defer idx.Close()
	ctx := context.Background()

	doc := qdrantDoc("bio101", "mitosis.pdf", "hash-1")
	chunkID := uuid.New().String()
	n, err := idx.Upsert(ctx, doc, []Entry{
		{ID: chunkID, Ordinal: 0, Text: "mitosis has four phases", Overlap: 0, Vector: []float32{1, 0, 0, 0}},
		{ID: uuid.New().String(), Ordinal: 1, Text: "meiosis halves the chromosomes", Overlap: 5, Vector: []float32{0, 1, 0, 0}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 5, Filter{Subject: "bio101"})
	require.NoError(t, err)
	require.NotEmpty(t, hits)

	top := hits[0]
	assert.Equal(t, chunkID, top.ChunkID)
	assert.Equal(t, doc.ID, top.DocumentID)
	assert.Equal(t, "bio101", top.Subject)
	assert.Equal(t, "mitosis.pdf", top.Source)
	assert.Equal(t, 0, top.Ordinal)
	assert.Equal(t, "mitosis has four phases", top.Text)
	assert.InDelta(t, 1.0, top.Score, 1e-5)

	// Dedup lookup goes through the marker written after the chunks.
	found, err := idx.FindDocument(ctx, "bio101", "hash-1")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, found.ID)
	assert.Equal(t, 2, found.Chunks)
	assert.WithinDuration(t, doc.IngestedAt, found.IngestedAt, time.Second)

	entries, err := idx.Chunks(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 0, entries[0].Ordinal)
	assert.Equal(t, 1, entries[1].Ordinal)
	assert.Equal(t, []float32{0, 1, 0, 0}, entries[1].Vector)
	assert.Equal(t, 5, entries[1].Overlap)
}

func TestQdrantSubjectIsolationAndDelete(t *testing.T) {
	idx := setupQdrant(t)
	defer idx.Close()
	ctx := context.Background()

	bio := qdrantDoc("bio101", "a.txt", "h1")
	eco := qdrantDoc("eco201", "b.txt", "h2")
	_, err := idx.Upsert(ctx, bio, []Entry{
		{ID: uuid.New().String(), Ordinal: 0, Text: "biology", Vector: []float32{1, 0, 0, 0}},
	})
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, eco, []Entry{
		{ID: uuid.New().String(), Ordinal: 0, Text: "economics", Vector: []float32{1, 0, 0, 0}},
	})
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 10, Filter{Subject: "bio101"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "bio101", hits[0].Subject)

	removed, err := idx.DeleteSubject(ctx, "bio101")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = idx.FindDocument(ctx, "bio101", "h1")
	require.ErrorIs(t, err, ErrNotFound)

	// The other subject is untouched.
	found, err := idx.FindDocument(ctx, "eco201", "h2")
	require.NoError(t, err)
	assert.Equal(t, eco.ID, found.ID)

	chunks, err := idx.DeleteDocument(ctx, eco.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)
	_, err = idx.DeleteDocument(ctx, eco.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQdrantSearchTieBreak(t *testing.T) {
	idx := setupQdrant(t)
	defer idx.Close()
	ctx := context.Background()

	ids := []string{uuid.New().String(), uuid.New().String(), uuid.New().String()}
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{ID: id, Ordinal: i, Text: "same", Vector: []float32{0, 0, 1, 0}}
	}
	_, err := idx.Upsert(ctx, qdrantDoc("bio101", "a.txt", "h1"), entries)
	require.NoError(t, err)

	hits, err := idx.Search(ctx, []float32{0, 0, 1, 0}, 3, Filter{})
	require.NoError(t, err)
	require.Len(t, hits, 3)

	sort.Strings(ids)
	for i, id := range ids {
		assert.Equal(t, id, hits[i].ChunkID, "equal scores must rank by chunk ID")
	}
}

func TestQdrantModelMismatch(t *testing.T) {
	idx := setupQdrant(t)
	collection := idx.collection
	require.NoError(t, idx.Close())

	_, err := NewQdrant(context.Background(), QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: collection,
		Model:      "some-other-model",
		Dimension:  testDimension,
	})
	require.ErrorIs(t, err, ErrModelMismatch)

	// The original pair still opens.
	reopened, err := NewQdrant(context.Background(), QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: collection,
		Model:      testModel,
		Dimension:  testDimension,
	})
	require.NoError(t, err)
	reopened.Close()
}

func TestQdrantDimensionMismatch(t *testing.T) {
	idx := setupQdrant(t)
	defer idx.Close()
	ctx := context.Background()

	_, err := idx.Upsert(ctx, qdrantDoc("bio101", "a.txt", "h1"), []Entry{
		{ID: uuid.New().String(), Ordinal: 0, Text: "short", Vector: []float32{1, 0}},
	})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = idx.Search(ctx, []float32{1, 0}, 5, Filter{})
	require.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestQdrantStats(t *testing.T) {
	idx := setupQdrant(t)
	defer idx.Close()
	ctx := context.Background()

	_, err := idx.Upsert(ctx, qdrantDoc("bio101", "a.txt", "h1"), []Entry{
		{ID: uuid.New().String(), Ordinal: 0, Text: "x", Vector: []float32{1, 0, 0, 0}},
		{ID: uuid.New().String(), Ordinal: 1, Text: "y", Vector: []float32{0, 1, 0, 0}},
	})
	require.NoError(t, err)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, testModel, stats.Model)
	assert.Equal(t, testDimension, stats.Dimension)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 2, stats.Chunks)
	require.Len(t, stats.Subjects, 1)
	assert.Equal(t, SubjectStats{Subject: "bio101", Documents: 1, Chunks: 2}, stats.Subjects[0])
}
