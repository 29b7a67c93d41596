// Package index stores chunk vectors and answers similarity queries.
//
// An index unit is self-describing: it records the embedding model and
// vector dimension it was created with and refuses to operate under a
// different pair. Two backends implement the contract: a local SQLite file
// and a remote Qdrant collection.
package index

import "context"

// Index is the vector store behind retrieval. Implementations must make
// Upsert atomic at document granularity: a reader never observes a document
// without its chunks.
type Index interface {
	// Upsert stores a document and all of its chunks, replacing any previous
	// version, and returns the number of chunks written. Every vector must
	// match the index dimension or the call fails with ErrDimensionMismatch
	// and the index is unchanged.
	Upsert(ctx context.Context, doc Document, entries []Entry) (int, error)

	// Search returns up to k chunks most similar to the query vector,
	// ordered by cosine similarity descending. Ties are broken by the
	// lexicographically lower chunk ID. The filter scopes candidates.
	Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)

	// FindDocument looks up a document by subject and content hash, the
	// dedup key. Returns ErrNotFound when absent.
	FindDocument(ctx context.Context, subject, contentHash string) (*Document, error)

	// Documents lists documents, newest first within a subject. An empty
	// subject lists every document.
	Documents(ctx context.Context, subject string) ([]Document, error)

	// Chunks returns a document's stored chunks in ordinal order, vectors
	// included. Returns ErrNotFound for an unknown document.
	Chunks(ctx context.Context, documentID string) ([]Entry, error)

	// DeleteDocument removes a document and every chunk it owns, returning
	// the number of chunks removed. Returns ErrNotFound when absent.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// DeleteSubject removes everything a subject owns and returns the number
	// of documents removed. Removing an absent subject is a no-op.
	DeleteSubject(ctx context.Context, subject string) (int, error)

	// Stats reports model, dimension and per-subject counts.
	Stats(ctx context.Context) (*Stats, error)

	// Model returns the embedding model identifier recorded at creation.
	Model() string

	// Dimension returns the vector size recorded at creation.
	Dimension() int

	// Close releases backend resources.
	Close() error
}
