package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vidya-labs/studyrag/internal/answer"
	"github.com/vidya-labs/studyrag/internal/catalog"
	"github.com/vidya-labs/studyrag/internal/index"
	"github.com/vidya-labs/studyrag/internal/retrieval"
)

// noMaterialMessage is what a student sees when nothing indexed matches
// their question. Distinct from a failure: the engine worked, the notes
// just do not cover it.
const noMaterialMessage = "No matching material found in the indexed notes. " +
	"Check that the subject's notes are ingested, or try rephrasing the question."

// makeAskHandler creates the ask_question tool handler.
// Flow: retrieve the top chunks for the question (subject-scoped when a
// subject is given), then compose a grounded answer. An empty retrieval
// is reported as a no-material outcome, never as an error and never by
// calling the generation backend without context.
func makeAskHandler(retriever *retrieval.Retriever, composer *answer.Composer) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		results, err := retriever.Retrieve(ctx, input.Question, input.Subject, input.MaxChunks)
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("retrieval failed: %w", err)
		}

		composed, err := composer.Answer(ctx, input.Question, results)
		if errors.Is(err, answer.ErrNoGrounding) {
			return nil, AskOutput{
				NoMaterial: true,
				Message:    noMaterialMessage,
			}, nil
		}
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("answer generation failed: %w", err)
		}

		sources := make([]SourceRef, len(composed.Provenance))
		for i, p := range composed.Provenance {
			sources[i] = SourceRef{
				Source:  p.Source,
				Subject: p.Subject,
				Chunk:   p.Ordinal,
				Score:   p.Score,
			}
		}
		return nil, AskOutput{
			Answer:  composed.Text,
			Model:   composed.Model,
			Sources: sources,
		}, nil
	}
}

// makeSearchHandler creates the search_notes tool handler. Returns chunk
// matches directly, without generation, so clients can do their own
// reading.
func makeSearchHandler(retriever *retrieval.Retriever) func(
	context.Context, *mcp.CallToolRequest, SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (
		*mcp.CallToolResult, SearchOutput, error,
	) {
		minScore := input.MinScore
		if minScore <= 0 {
			minScore = 0.3
		}

		results, err := retriever.Retrieve(ctx, input.Query, input.Subject, input.MaxResults)
		if err != nil {
			return nil, SearchOutput{}, fmt.Errorf("search failed: %w", err)
		}

		notes := make([]NoteResult, 0, len(results))
		for _, r := range results {
			if r.Score < minScore {
				continue
			}
			notes = append(notes, NoteResult{
				Source:  r.Source,
				Title:   r.Title,
				Subject: r.Subject,
				Chunk:   r.Ordinal,
				Score:   r.Score,
				Text:    r.Text,
			})
		}

		if len(notes) == 0 {
			return nil, SearchOutput{
				Results: []NoteResult{},
				Message: "No matching notes found. Try broader search terms or a lower min_score.",
			}, nil
		}
		return nil, SearchOutput{Results: notes}, nil
	}
}

// makeSubjectsHandler creates the list_subjects tool handler. Merges the
// catalog (registered subjects, possibly not yet ingested) with the index
// stats (ingested subjects, possibly unregistered).
func makeSubjectsHandler(cat *catalog.Catalog, idx index.Index) func(
	context.Context, *mcp.CallToolRequest, SubjectsInput,
) (*mcp.CallToolResult, SubjectsOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SubjectsInput) (
		*mcp.CallToolResult, SubjectsOutput, error,
	) {
		stats, err := idx.Stats(ctx)
		if err != nil {
			return nil, SubjectsOutput{}, fmt.Errorf("failed to read index stats: %w", err)
		}

		byCode := make(map[string]SubjectInfo)
		var order []string
		for _, s := range stats.Subjects {
			byCode[s.Subject] = SubjectInfo{
				Code:      s.Subject,
				Documents: s.Documents,
				Chunks:    s.Chunks,
			}
			order = append(order, s.Subject)
		}
		if cat != nil {
			for _, subject := range cat.Subjects() {
				info, seen := byCode[subject.Code]
				if !seen {
					order = append(order, subject.Code)
					info = SubjectInfo{Code: subject.Code}
				}
				info.Name = subject.Name
				byCode[subject.Code] = info
			}
		}

		subjects := make([]SubjectInfo, 0, len(order))
		for _, code := range order {
			subjects = append(subjects, byCode[code])
		}
		return nil, SubjectsOutput{Subjects: subjects, Count: len(subjects)}, nil
	}
}

// makeStatusHandler creates the index_status tool handler.
func makeStatusHandler(idx index.Index) func(
	context.Context, *mcp.CallToolRequest, StatusInput,
) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input StatusInput) (
		*mcp.CallToolResult, StatusOutput, error,
	) {
		stats, err := idx.Stats(ctx)
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to read index stats: %w", err)
		}

		out := StatusOutput{
			EmbeddingModel: stats.Model,
			Dimension:      stats.Dimension,
			TotalDocuments: stats.Documents,
			TotalChunks:    stats.Chunks,
			Subjects:       make([]SubjectInfo, 0, len(stats.Subjects)),
		}
		for _, s := range stats.Subjects {
			out.Subjects = append(out.Subjects, SubjectInfo{
				Code:      s.Subject,
				Documents: s.Documents,
				Chunks:    s.Chunks,
			})
		}

		docs, err := idx.Documents(ctx, "")
		if err != nil {
			return nil, StatusOutput{}, fmt.Errorf("failed to list documents: %w", err)
		}
		for _, doc := range docs {
			if out.LastIngested == nil || doc.IngestedAt.After(*out.LastIngested) {
				t := doc.IngestedAt
				out.LastIngested = &t
			}
		}
		return nil, out, nil
	}
}
