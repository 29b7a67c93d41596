// Package main provides the studyrag CLI: ingest study material, ask
// questions against it, and manage the index.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vidya-labs/studyrag/internal/answer"
	"github.com/vidya-labs/studyrag/internal/app"
	"github.com/vidya-labs/studyrag/internal/config"
)

var (
	flagSubject string
	flagK       int
)

var rootCmd = &cobra.Command{
	Use:   "studyrag",
	Short: "Index study notes and answer questions from them",
	Long: `studyrag ingests study documents (txt, md, html, pdf, docx) into a
per-subject vector index and answers questions grounded in that material.

Configuration comes from the environment (and a .env file if present):
  STUDYRAG_EMBEDDING_PROVIDER  openai, ollama or hash (default: hash)
  STUDYRAG_ANSWER_PROVIDER     openai or ollama (default: openai)
  STUDYRAG_INDEX_BACKEND       sqlite or qdrant (default: sqlite)
  STUDYRAG_DATA_DIR            index and catalog location (default: ~/.studyrag)
  OPENAI_API_KEY               required for the openai providers`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir> | ingest --subject <code> <file>...",
	Short: "Ingest study documents into the index",
	Long: `Without --subject, the argument is a corpus root laid out as
<dir>/<subject>/<files>: each immediate subdirectory is a subject code and
every supported file under it is ingested. With --subject, the arguments
are individual files ingested under that subject.

Content already indexed under a subject is skipped (dedup by content, not
by path), so re-running ingest is cheap.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from the indexed notes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Find the note chunks most similar to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List registered subjects and their indexed holdings",
	Args:  cobra.NoArgs,
	RunE:  runSubjects,
}

var removeCmd = &cobra.Command{
	Use:   "remove <subject>",
	Short: "Remove everything indexed under a subject",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	ingestCmd.Flags().StringVarP(&flagSubject, "subject", "s", "", "subject code for the given files")
	askCmd.Flags().StringVarP(&flagSubject, "subject", "s", "", "restrict grounding to one subject")
	askCmd.Flags().IntVarP(&flagK, "chunks", "k", 0, "number of chunks to ground on (default: configured top-k)")
	searchCmd.Flags().StringVarP(&flagSubject, "subject", "s", "", "restrict the search to one subject")
	searchCmd.Flags().IntVarP(&flagK, "results", "k", 0, "number of results (default: configured top-k)")

	rootCmd.AddCommand(ingestCmd, askCmd, searchCmd, subjectsCmd, removeCmd, statusCmd)
}

func main() {
	// Load .env if present (local development), ignore if missing.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// buildApp wires the engine for one command run. The caller closes it.
func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)
	return app.Build(ctx, cfg, logger)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	if flagSubject != "" {
		for _, path := range args {
			doc, err := engine.Manager.IngestFile(ctx, flagSubject, path)
			if err != nil {
				return fmt.Errorf("ingest %s: %w", path, err)
			}
			fmt.Printf("Ingested %s (%d chunks) under %s\n", path, doc.Chunks, doc.Subject)
		}
		return nil
	}

	if len(args) != 1 {
		return errors.New("without --subject, ingest takes exactly one corpus root directory")
	}

	start := time.Now()
	fmt.Printf("Ingesting corpus from %s...\n", args[0])
	result, err := engine.Manager.IngestDir(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("Ingestion complete")
	fmt.Printf("  Files:    %d found, %d ingested, %d skipped\n",
		result.TotalFiles, result.Ingested, result.Skipped)
	fmt.Printf("  Chunks:   %d\n", result.TotalChunks)
	fmt.Printf("  Duration: %s\n", time.Since(start).Round(time.Second))

	if len(result.Failed) > 0 {
		fmt.Println()
		fmt.Println("Failed files:")
		for _, failed := range result.Failed {
			fmt.Printf("  - %s: %s\n", failed.Path, failed.Reason)
		}
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	engine, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	composer, err := engine.Composer()
	if err != nil {
		return err
	}

	results, err := engine.Retriever.Retrieve(ctx, question, flagSubject, flagK)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}

	composed, err := composer.Answer(ctx, question, results)
	if errors.Is(err, answer.ErrNoGrounding) {
		fmt.Println("No matching material found in the indexed notes.")
		if flagSubject != "" {
			fmt.Printf("Nothing is indexed for %q that covers this question.\n", flagSubject)
		}
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(composed.Text)
	fmt.Println()
	fmt.Println("Sources:")
	for _, p := range composed.Provenance {
		fmt.Printf("  - %s (%s) chunk %d, score %.3f\n", p.Source, p.Subject, p.Ordinal, p.Score)
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	query := strings.Join(args, " ")

	engine, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	results, err := engine.Retriever.Retrieve(ctx, query, flagSubject, flagK)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matching notes found.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. %s (%s) chunk %d, score %.3f\n", i+1, r.Title, r.Subject, r.Ordinal, r.Score)
		fmt.Printf("   %s\n", preview(r.Text, 200))
	}
	return nil
}

func runSubjects(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.Index.Stats(ctx)
	if err != nil {
		return err
	}

	counts := make(map[string][2]int, len(stats.Subjects))
	for _, s := range stats.Subjects {
		counts[s.Subject] = [2]int{s.Documents, s.Chunks}
	}

	printed := make(map[string]bool)
	for _, subject := range engine.Catalog.Subjects() {
		c := counts[subject.Code]
		fmt.Printf("%-12s %-30s %d documents, %d chunks\n", subject.Code, subject.Name, c[0], c[1])
		printed[subject.Code] = true
	}
	for _, s := range stats.Subjects {
		if !printed[s.Subject] {
			fmt.Printf("%-12s %-30s %d documents, %d chunks\n", s.Subject, "(unregistered)", s.Documents, s.Chunks)
		}
	}
	if len(stats.Subjects) == 0 && engine.Catalog.Len() == 0 {
		fmt.Println("No subjects registered or indexed yet.")
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	removed, err := engine.Manager.RemoveSubject(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d documents under %s\n", removed, args[0])
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	engine, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.Index.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Backend:   %s\n", engine.Config.IndexBackend)
	fmt.Printf("Model:     %s (%d dimensions)\n", stats.Model, stats.Dimension)
	fmt.Printf("Documents: %d\n", stats.Documents)
	fmt.Printf("Chunks:    %d\n", stats.Chunks)
	if len(stats.Subjects) > 0 {
		fmt.Println("Subjects:")
		for _, s := range stats.Subjects {
			fmt.Printf("  %-12s %d documents, %d chunks\n", s.Subject, s.Documents, s.Chunks)
		}
	}
	return nil
}

// preview trims chunk text to a single displayable line.
func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
