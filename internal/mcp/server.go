package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vidya-labs/studyrag/internal/answer"
	"github.com/vidya-labs/studyrag/internal/catalog"
	"github.com/vidya-labs/studyrag/internal/index"
	"github.com/vidya-labs/studyrag/internal/retrieval"
)

// Server wraps the MCP server with the engine components behind the tools.
type Server struct {
	server    *mcp.Server
	retriever *retrieval.Retriever
	composer  *answer.Composer
	catalog   *catalog.Catalog
	index     index.Index
}

// Config holds server dependencies. Composer may be nil when no generation
// backend is configured; the server then serves search and status tools
// without ask_question.
type Config struct {
	Retriever *retrieval.Retriever
	Composer  *answer.Composer
	Catalog   *catalog.Catalog
	Index     index.Index
}

// NewServer creates a configured MCP server with tools registered.
func NewServer(cfg *Config) *Server {
	impl := &mcp.Implementation{
		Name:    "studyrag",
		Version: "v0.1.0",
	}

	server := mcp.NewServer(impl, nil)

	if cfg.Composer != nil {
		mcp.AddTool(server, &mcp.Tool{
			Name: "ask_question",
			Description: "Answer a question from the indexed study notes. Returns a grounded " +
				"answer with the source chunks it drew on. Reports 'no matching material' " +
				"when the notes do not cover the question.",
		}, makeAskHandler(cfg.Retriever, cfg.Composer))
	}

	mcp.AddTool(server, &mcp.Tool{
		Name: "search_notes",
		Description: "Search the indexed study notes semantically. Returns matching chunks " +
			"with their source documents and similarity scores, without generating an answer.",
	}, makeSearchHandler(cfg.Retriever))

	mcp.AddTool(server, &mcp.Tool{
		Name: "list_subjects",
		Description: "List the subjects available for querying, with how many documents " +
			"and chunks each holds.",
	}, makeSubjectsHandler(cfg.Catalog, cfg.Index))

	mcp.AddTool(server, &mcp.Tool{
		Name: "index_status",
		Description: "Report the index status: embedding model, vector dimension, " +
			"per-subject document and chunk counts, and when material was last ingested.",
	}, makeStatusHandler(cfg.Index))

	return &Server{
		server:    server,
		retriever: cfg.Retriever,
		composer:  cfg.Composer,
		catalog:   cfg.Catalog,
		index:     cfg.Index,
	}
}

// Run starts the server on stdio transport (blocks until the client
// disconnects).
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server instance.
// Used by transport handlers that need to wrap the server.
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}
