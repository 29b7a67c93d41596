// Package main runs the MCP server that lets chat front-ends query the
// indexed study notes.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vidya-labs/studyrag/internal/answer"
	"github.com/vidya-labs/studyrag/internal/app"
	"github.com/vidya-labs/studyrag/internal/config"
	mcpserver "github.com/vidya-labs/studyrag/internal/mcp"
)

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	// Logs go to stderr: in stdio mode stdout carries the MCP protocol.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	engine, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	// Serve without ask_question when no generation backend is configured;
	// search and status tools work regardless.
	var composer *answer.Composer
	if composer, err = engine.Composer(); err != nil {
		logger.Warn("generation backend not configured, ask_question disabled", "error", err)
		composer = nil
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Retriever: engine.Retriever,
		Composer:  composer,
		Catalog:   engine.Catalog,
		Index:     engine.Index,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/", mcpserver.NewLandingHandler())
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(engine.Index))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))

	if cfg.ServeHTTP {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
		return
	}

	// Stdio mode still serves /health in the background for local checks.
	// A bind failure (another instance on the same port) is not fatal, but
	// it should be visible.
	go func() {
		if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
			logger.Warn("health endpoint unavailable", "addr", cfg.HTTPAddr, "error", err)
		}
	}()

	logger.Info("starting MCP server (stdio)",
		"index", cfg.IndexBackend,
		"embedding", engine.Embedder.Model(),
	)
	if err := server.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
