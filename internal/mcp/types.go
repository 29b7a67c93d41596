// Package mcp exposes the retrieval engine to chat front-ends over the
// Model Context Protocol.
package mcp

import "time"

// AskInput defines the input parameters for the ask_question tool.
type AskInput struct {
	// Question is the student's question.
	Question string `json:"question" jsonschema:"required,description=The question to answer from the indexed study material"`
	// Subject restricts grounding to one subject code.
	Subject string `json:"subject,omitempty" jsonschema:"description=Optional subject code to restrict the answer to (e.g. BIO101)"`
	// MaxChunks is how many retrieved chunks to ground the answer on.
	MaxChunks int `json:"max_chunks,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of note chunks used to ground the answer"`
}

// AskOutput contains the generated answer and its provenance.
type AskOutput struct {
	// Answer is the generated answer text. Empty when NoMaterial is true.
	Answer string `json:"answer,omitempty"`
	// Model is the generation model that produced the answer.
	Model string `json:"model,omitempty"`
	// Sources lists the chunks the answer was grounded on, in the order
	// they were presented to the model.
	Sources []SourceRef `json:"sources,omitempty"`
	// NoMaterial is true when nothing relevant was indexed for the
	// question; distinguishes "no notes" from a transient failure.
	NoMaterial bool `json:"no_material,omitempty"`
	// Message carries informational context such as the no-material notice.
	Message string `json:"message,omitempty"`
}

// SourceRef cites one chunk an answer drew on.
type SourceRef struct {
	// Source is the origin path or URL of the document.
	Source string `json:"source"`
	// Subject is the owning subject code.
	Subject string `json:"subject"`
	// Chunk is the chunk's ordinal position within the document.
	Chunk int `json:"chunk"`
	// Score is the similarity between the question and the chunk (0-1).
	Score float64 `json:"score"`
}

// SearchInput defines the input parameters for the search_notes tool.
type SearchInput struct {
	// Query is the semantic search query.
	Query string `json:"query" jsonschema:"required,description=The semantic search query for finding relevant note chunks"`
	// Subject restricts the search to one subject code.
	Subject string `json:"subject,omitempty" jsonschema:"description=Optional subject code to search within (e.g. BIO101)"`
	// MaxResults is the maximum number of chunks to return.
	MaxResults int `json:"max_results,omitempty" jsonschema:"minimum=1,maximum=20,default=5,description=Maximum number of chunks to return"`
	// MinScore is the minimum similarity threshold (0-1).
	MinScore float64 `json:"min_score,omitempty" jsonschema:"minimum=0,maximum=1,default=0.3,description=Minimum similarity score threshold (0-1)"`
}

// SearchOutput contains the matching chunks.
type SearchOutput struct {
	// Results is the list of matching chunks, highest similarity first.
	Results []NoteResult `json:"results"`
	// Message provides informational context (e.g. "no matching notes").
	Message string `json:"message,omitempty"`
}

// NoteResult is a single chunk match from semantic search.
type NoteResult struct {
	// Source is the origin path or URL of the owning document.
	Source string `json:"source"`
	// Title is the document's display name.
	Title string `json:"title"`
	// Subject is the owning subject code.
	Subject string `json:"subject"`
	// Chunk is the chunk's ordinal position within the document.
	Chunk int `json:"chunk"`
	// Score is the similarity score (0-1).
	Score float64 `json:"score"`
	// Text is the chunk text.
	Text string `json:"text"`
}

// SubjectsInput defines the input for the list_subjects tool.
// The tool takes no parameters.
type SubjectsInput struct{}

// SubjectsOutput lists the subjects available for querying.
type SubjectsOutput struct {
	Subjects []SubjectInfo `json:"subjects"`
	Count    int           `json:"count"`
}

// SubjectInfo describes one subject and how much material it holds.
type SubjectInfo struct {
	// Code is the subject code used as the filter value in other tools.
	Code string `json:"code"`
	// Name is the human-readable subject name from the catalog, when
	// registered there.
	Name string `json:"name,omitempty"`
	// Documents and Chunks count the subject's indexed holdings.
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
}

// StatusInput defines the input for the index_status tool.
// The tool takes no parameters.
type StatusInput struct{}

// StatusOutput describes the index unit serving queries.
type StatusOutput struct {
	// EmbeddingModel and Dimension identify the vector space the unit was
	// created with.
	EmbeddingModel string `json:"embedding_model"`
	Dimension      int    `json:"dimension"`
	// TotalDocuments and TotalChunks count everything indexed.
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
	// Subjects breaks the counts down per subject code.
	Subjects []SubjectInfo `json:"subjects"`
	// LastIngested is when the newest document was indexed, if any.
	LastIngested *time.Time `json:"last_ingested,omitempty"`
}
