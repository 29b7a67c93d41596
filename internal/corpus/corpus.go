// Package corpus orchestrates ingestion: extract, chunk, embed and index
// study material, with content-hash dedup so re-ingesting the same notes
// is free.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vidya-labs/studyrag/internal/catalog"
	"github.com/vidya-labs/studyrag/internal/chunker"
	"github.com/vidya-labs/studyrag/internal/embedding"
	"github.com/vidya-labs/studyrag/internal/extract"
	"github.com/vidya-labs/studyrag/internal/index"
)

var (
	// ErrUnknownSubject reports a subject code the catalog does not list.
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrNoContent reports a document with nothing to index.
	ErrNoContent = errors.New("no extractable content")
)

// DefaultWorkers bounds how many files IngestDir processes at once.
const DefaultWorkers = 4

// Manager wires the catalog, chunker, embedder and index into the
// ingestion flow.
type Manager struct {
	catalog  *catalog.Catalog
	chunker  *chunker.Chunker
	embedder embedding.Embedder
	index    index.Index
	logger   *slog.Logger

	// Workers is the IngestDir parallelism. Set before first use.
	Workers int

	group      singleflight.Group
	newBackOff func() backoff.BackOff
}

// NewManager creates an ingestion manager with the given components.
// An empty catalog disables subject validation.
func NewManager(
	cat *catalog.Catalog,
	chk *chunker.Chunker,
	embedder embedding.Embedder,
	idx index.Index,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		catalog:    cat,
		chunker:    chk,
		embedder:   embedder,
		index:      idx,
		logger:     logger,
		Workers:    DefaultWorkers,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	return bo
}

// Ingest indexes one document's text under a subject. Content already
// present under the subject short-circuits to the existing document, and
// concurrent ingests of identical content collapse into a single indexing
// pass.
func (m *Manager) Ingest(ctx context.Context, subject, source, text string) (*index.Document, error) {
	subject = catalog.Canonical(subject)
	if err := m.validateSubject(subject); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, source)
	}

	hash := contentHash(text)
	v, err, shared := m.group.Do(subject+"\x00"+hash, func() (any, error) {
		return m.indexDocument(ctx, subject, source, text, hash)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		m.logger.Debug("collapsed duplicate ingest", "subject", subject, "source", source)
	}
	return v.(*index.Document), nil
}

// IngestFile extracts a file's text and ingests it under the subject.
func (m *Manager) IngestFile(ctx context.Context, subject, path string) (*index.Document, error) {
	subject = catalog.Canonical(subject)
	if err := m.validateSubject(subject); err != nil {
		return nil, err
	}

	text, err := extract.File(path)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, path)
	}
	return m.Ingest(ctx, subject, path, text)
}

// Result summarises one IngestDir run.
type Result struct {
	TotalFiles  int
	Ingested    int
	Skipped     int
	TotalChunks int
	Failed      []FailedFile
	Duration    time.Duration
}

// FailedFile records a file that could not be ingested.
type FailedFile struct {
	Path   string
	Reason string
}

// IngestDir walks root/<subject>/<file> and ingests every supported file,
// collecting per-file failures without aborting the walk. Files with
// unsupported extensions are counted as skipped.
func (m *Manager) IngestDir(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	result := &Result{}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read corpus root: %w", err)
	}

	type task struct{ subject, path string }
	var tasks []task
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		subject := catalog.Canonical(entry.Name())
		subjectDir := filepath.Join(root, entry.Name())
		if err := m.validateSubject(subject); err != nil {
			m.logger.Warn("skipping unregistered subject directory", "dir", entry.Name())
			result.Failed = append(result.Failed, FailedFile{Path: subjectDir, Reason: err.Error()})
			continue
		}
		walkErr := filepath.WalkDir(subjectDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if !extract.Supported(path) {
				result.Skipped++
				return nil
			}
			tasks = append(tasks, task{subject: subject, path: path})
			return nil
		})
		if walkErr != nil {
			return nil, fmt.Errorf("walk %s: %w", subjectDir, walkErr)
		}
	}
	result.TotalFiles = len(tasks)
	m.logger.Info("found corpus files", "root", root, "count", len(tasks))

	workers := m.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	type outcome struct {
		path   string
		chunks int
		err    error
	}
	outcomes := make(chan outcome, len(tasks))
	sem := make(chan struct{}, workers)
	for _, t := range tasks {
		sem <- struct{}{}
		go func(t task) {
			defer func() { <-sem }()
			doc, err := m.IngestFile(ctx, t.subject, t.path)
			if err != nil {
				outcomes <- outcome{path: t.path, err: err}
				return
			}
			outcomes <- outcome{path: t.path, chunks: doc.Chunks}
		}(t)
	}

	for range tasks {
		o := <-outcomes
		if o.err != nil {
			m.logger.Warn("failed to ingest file", "path", o.path, "error", o.err)
			result.Failed = append(result.Failed, FailedFile{Path: o.path, Reason: o.err.Error()})
			continue
		}
		result.Ingested++
		result.TotalChunks += o.chunks
	}

	result.Duration = time.Since(start)
	m.logger.Info("corpus ingestion complete",
		"files", result.TotalFiles,
		"ingested", result.Ingested,
		"skipped", result.Skipped,
		"failed", len(result.Failed),
		"chunks", result.TotalChunks,
		"duration", result.Duration,
	)
	return result, nil
}

// RemoveSubject deletes everything indexed under a subject. Returns the
// number of documents removed.
func (m *Manager) RemoveSubject(ctx context.Context, subject string) (int, error) {
	subject = catalog.Canonical(subject)
	if subject == "" {
		return 0, fmt.Errorf("%w: empty subject code", ErrUnknownSubject)
	}
	removed, err := m.index.DeleteSubject(ctx, subject)
	if err != nil {
		return 0, fmt.Errorf("remove subject %s: %w", subject, err)
	}
	m.logger.Info("removed subject", "subject", subject, "documents", removed)
	return removed, nil
}

// indexDocument handles the full pipeline for a single document: dedup
// lookup, chunk, embed, then one atomic upsert. A failure before the
// upsert leaves no trace in the index.
func (m *Manager) indexDocument(ctx context.Context, subject, source, text, hash string) (*index.Document, error) {
	existing, err := m.index.FindDocument(ctx, subject, hash)
	if err == nil {
		m.logger.Debug("content already indexed", "subject", subject, "source", source, "document", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, index.ErrNotFound) {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}

	pieces := m.chunker.Split(text)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoContent, source)
	}
	m.logger.Debug("chunked document", "source", source, "chunks", len(pieces))

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Text
	}
	vectors, err := m.embedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", source, err)
	}

	doc := index.Document{
		ID:          documentID(subject, hash),
		Subject:     subject,
		Source:      source,
		Title:       titleFor(source, subject),
		ContentHash: hash,
		Chunks:      len(pieces),
		IngestedAt:  time.Now().UTC(),
	}
	docEntries := make([]index.Entry, len(pieces))
	for i, piece := range pieces {
		docEntries[i] = index.Entry{
			ID:         chunkID(doc.ID, piece.Ordinal),
			DocumentID: doc.ID,
			Subject:    subject,
			Source:     source,
			Ordinal:    piece.Ordinal,
			Text:       piece.Text,
			Overlap:    piece.Overlap,
			Vector:     vectors[i],
		}
	}

	stored, err := m.index.Upsert(ctx, doc, docEntries)
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", source, err)
	}
	m.logger.Info("indexed document", "subject", subject, "source", source, "chunks", stored)
	return &doc, nil
}

// embedBatch retries transient embedding failures with bounded backoff;
// anything else fails immediately.
func (m *Manager) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	operation := func() error {
		var err error
		vectors, err = m.embedder.EmbedBatch(ctx, texts)
		if err == nil {
			return nil
		}
		if errors.Is(err, embedding.ErrUnavailable) {
			m.logger.Warn("embedding unavailable, retrying", "error", err)
			return err
		}
		return backoff.Permanent(err)
	}
	if err := backoff.Retry(operation, backoff.WithContext(m.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (m *Manager) validateSubject(subject string) error {
	if subject == "" {
		return fmt.Errorf("%w: empty subject code", ErrUnknownSubject)
	}
	if m.catalog != nil && m.catalog.Len() > 0 && !m.catalog.Has(subject) {
		return fmt.Errorf("%w: %s", ErrUnknownSubject, subject)
	}
	return nil
}

// contentHash fingerprints the exact text that will be indexed.
func contentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// documentID and chunkID are deterministic, so re-ingesting identical
// content always lands on the same points.
func documentID(subject, hash string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("studyrag://"+subject+"/"+hash)).String()
}

func chunkID(documentID string, ordinal int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(documentID+"#"+strconv.Itoa(ordinal))).String()
}

// titleFor derives a display title from the source name, falling back to
// the subject for unnamed sources.
func titleFor(source, subject string) string {
	base := filepath.Base(source)
	if base == "." || base == string(filepath.Separator) || base == "" {
		return subject
	}
	if extract.Supported(base) {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return base
}
