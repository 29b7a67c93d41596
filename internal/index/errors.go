package index

import "errors"

var (
	// ErrUnreachable reports that the index backend could not be contacted.
	ErrUnreachable = errors.New("index backend unreachable")

	// ErrNotFound reports a lookup for a document the index does not hold.
	ErrNotFound = errors.New("document not found")

	// ErrDimensionMismatch reports a vector whose length differs from the
	// dimension the index was created with. The index is left unchanged.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrModelMismatch reports an index created under a different embedding
	// model or dimension. Switching models requires re-ingesting, never a
	// silent mix of vector spaces.
	ErrModelMismatch = errors.New("index built with a different embedding model")

	// ErrCorrupt reports unreadable or partially written index storage.
	// Fail fast; do not serve from a corrupt unit.
	ErrCorrupt = errors.New("index storage corrupt")
)
