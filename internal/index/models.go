package index

import (
	"fmt"
	"time"
)

// Document is the indexed record of one ingested file. Documents are
// immutable and content-addressed: the ID derives from subject and content
// hash, so re-ingesting identical content maps to the same document.
type Document struct {
	ID          string    // deterministic UUID (subject + content hash)
	Subject     string    // owning subject code, e.g. "bio101"
	Source      string    // origin path or URL of the file
	Title       string    // display name, usually the file name
	ContentHash string    // SHA-256 hex of the extracted text
	Chunks      int       // number of chunks stored for this document
	IngestedAt  time.Time // when this document was indexed
}

// Entry is one stored chunk with its embedding vector. Subject and Source
// repeat the parent document's values so searches can filter without a join.
type Entry struct {
	ID         string    // deterministic UUID (document ID + ordinal)
	DocumentID string    // owning Document.ID
	Subject    string    // same as parent (for filtering)
	Source     string    // same as parent (for provenance)
	Ordinal    int       // position in document (0, 1, 2...)
	Text       string    // chunk text
	Overlap    int       // tokens shared with the previous chunk
	Vector     []float32 // embedding, length = index dimension
}

// Hit is one search result: a chunk with its similarity score and enough
// provenance to cite it.
type Hit struct {
	ChunkID    string
	DocumentID string
	Subject    string
	Source     string
	Title      string
	Ordinal    int
	Text       string
	Score      float64 // cosine similarity, higher is closer
}

// Filter narrows a search. The zero value matches everything.
type Filter struct {
	Subject string // restrict to one subject code; empty means all
}

// SubjectStats counts one subject's holdings.
type SubjectStats struct {
	Subject   string
	Documents int
	Chunks    int
}

// Stats describes the whole index unit.
type Stats struct {
	Model     string // embedding model the unit was created with
	Dimension int    // vector size the unit was created with
	Documents int
	Chunks    int
	Subjects  []SubjectStats // sorted by subject code
}

// validateVectors rejects entries whose vector length differs from the index
// dimension, before anything is written.
func validateVectors(entries []Entry, dimension int) error {
	for i, e := range entries {
		if len(e.Vector) != dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(e.Vector), dimension)
		}
	}
	return nil
}
