package index

import (
	"context"
	"database/sql"
	"embed"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/vidya-labs/studyrag/internal/index/migrations"
)

const (
	metaKeyModel     = "embedding_model"
	metaKeyDimension = "embedding_dimension"
)

// SQLite is a single-file index unit. Vectors live as little-endian float32
// BLOBs; similarity search is a linear scan with cosine scoring in process,
// which is plenty for per-subject study corpora.
type SQLite struct {
	db        *sql.DB
	path      string
	model     string
	dimension int
}

var _ Index = (*SQLite)(nil)

// NewSQLite opens or creates the index file at path for the given embedding
// model. A fresh file is initialised and stamped with (model, dimension).
// An existing file must pass an integrity check (ErrCorrupt otherwise) and
// carry the same stamp (ErrModelMismatch otherwise).
func NewSQLite(path, model string, dimension int) (*SQLite, error) {
	if model == "" || dimension <= 0 {
		return nil, fmt.Errorf("sqlite index: model %q and dimension %d must be set", model, dimension)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	fresh := true
	if fi, err := os.Stat(path); err == nil && fi.Size() > 0 {
		fresh = false
	}

	// WAL mode for concurrent readers during writes. Pragmas go in the DSN
	// so they apply to every pooled connection: SQLite foreign keys are
	// per-connection and off by default, and the chunk cascade depends on
	// them no matter which connection serves a delete.
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLite{db: db, path: path, model: model, dimension: dimension}

	if !fresh {
		if err := s.verifyIntact(); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if fresh {
		if err := s.writeMeta(); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := s.verifyMeta(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// verifyIntact fails fast on files SQLite cannot read or that are not index
// units of ours.
func (s *SQLite) verifyIntact() error {
	var result string
	if err := s.db.QueryRow("PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: quick_check: %s", ErrCorrupt, result)
	}

	var name string
	err := s.db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'meta'`).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s is not an index file", ErrCorrupt, s.path)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

// migrate runs all pending migrations.
func (s *SQLite) migrate(fsys embed.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}

	return nil
}

func (s *SQLite) writeMeta() error {
	// OR IGNORE keeps a concurrent first open of the same file harmless;
	// verifyMeta runs afterwards either way.
	_, err := s.db.Exec(`INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?), (?, ?)`,
		metaKeyModel, s.model, metaKeyDimension, fmt.Sprint(s.dimension))
	if err != nil {
		return fmt.Errorf("writing index metadata: %w", err)
	}
	return nil
}

func (s *SQLite) verifyMeta() error {
	var storedModel, storedDim string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaKeyModel).Scan(&storedModel)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: embedding model not recorded", ErrCorrupt)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	err = s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaKeyDimension).Scan(&storedDim)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: embedding dimension not recorded", ErrCorrupt)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	if storedModel != s.model || storedDim != fmt.Sprint(s.dimension) {
		return fmt.Errorf("%w: index has %s/%s, configured %s/%d",
			ErrModelMismatch, storedModel, storedDim, s.model, s.dimension)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Model returns the embedding model the unit was created with.
func (s *SQLite) Model() string { return s.model }

// Dimension returns the vector size the unit was created with.
func (s *SQLite) Dimension() int { return s.dimension }

// Close closes the database connection.
func (s *SQLite) Close() error { return s.db.Close() }

// Upsert stores the document and its chunks in a single transaction, so the
// document becomes visible with all chunks or not at all. Previous chunks of
// the same document are replaced.
func (s *SQLite) Upsert(ctx context.Context, doc Document, entries []Entry) (int, error) {
	if err := validateVectors(entries, s.dimension); err != nil {
		return 0, err
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (id, subject, source, title, content_hash, chunk_count, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			subject = excluded.subject,
			source = excluded.source,
			title = excluded.title,
			content_hash = excluded.content_hash,
			chunk_count = excluded.chunk_count,
			ingested_at = excluded.ingested_at
	`, doc.ID, doc.Subject, doc.Source, doc.Title, doc.ContentHash, len(entries), doc.IngestedAt)
	if err != nil {
		return 0, fmt.Errorf("saving document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return 0, fmt.Errorf("clearing previous chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_id, subject, source, ordinal, content, overlap, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.ExecContext(ctx, e.ID, doc.ID, doc.Subject, doc.Source,
			e.Ordinal, e.Text, e.Overlap, float32SliceToBytes(e.Vector))
		if err != nil {
			return 0, fmt.Errorf("saving chunk %d: %w", e.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return len(entries), nil
}

// Search scans candidate chunks and scores them by cosine similarity.
func (s *SQLite) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), s.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	query := `
		SELECT c.id, c.document_id, c.subject, c.source, d.title, c.ordinal, c.content, c.embedding
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
	`
	var args []any
	if filter.Subject != "" {
		query += ` WHERE c.subject = ?`
		args = append(args, filter.Subject)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var blob []byte
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.Subject, &h.Source,
			&h.Title, &h.Ordinal, &h.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		h.Score = cosineSimilarity(vector, bytesToFloat32Slice(blob))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sortHits(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// FindDocument looks up the dedup key (subject, content hash).
func (s *SQLite) FindDocument(ctx context.Context, subject, contentHash string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, source, title, content_hash, chunk_count, ingested_at
		FROM documents WHERE subject = ? AND content_hash = ?
	`, subject, contentHash)
	return scanDocument(row)
}

// Documents lists documents, newest first, optionally scoped to a subject.
func (s *SQLite) Documents(ctx context.Context, subject string) ([]Document, error) {
	query := `
		SELECT id, subject, source, title, content_hash, chunk_count, ingested_at
		FROM documents
	`
	var args []any
	if subject != "" {
		query += ` WHERE subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY subject, ingested_at DESC, source`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var ingestedAt sql.NullTime
		if err := rows.Scan(&d.ID, &d.Subject, &d.Source, &d.Title,
			&d.ContentHash, &d.Chunks, &ingestedAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if ingestedAt.Valid {
			d.IngestedAt = ingestedAt.Time
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return docs, nil
}

// Chunks returns a document's chunks in ordinal order, vectors included.
func (s *SQLite) Chunks(ctx context.Context, documentID string) ([]Entry, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM documents WHERE id = ?`, documentID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking document: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, subject, source, ordinal, content, overlap, embedding
		FROM chunks WHERE document_id = ?
		ORDER BY ordinal
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var blob []byte
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.Subject, &e.Source,
			&e.Ordinal, &e.Text, &e.Overlap, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		e.Vector = bytesToFloat32Slice(blob)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return entries, nil
}

// DeleteDocument removes one document and its chunks.
func (s *SQLite) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var chunks int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID).Scan(&chunks)
	if err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return 0, ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return chunks, nil
}

// DeleteSubject removes every document of a subject and returns how many.
func (s *SQLite) DeleteSubject(ctx context.Context, subject string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE subject = ?`, subject)
	if err != nil {
		return 0, fmt.Errorf("deleting subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking delete result: %w", err)
	}
	return int(affected), nil
}

// Stats reports per-subject document and chunk counts.
func (s *SQLite) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Model: s.model, Dimension: s.dimension}
	bySubject := make(map[string]*SubjectStats)

	rows, err := s.db.QueryContext(ctx, `SELECT subject, COUNT(*) FROM documents GROUP BY subject`)
	if err != nil {
		return nil, fmt.Errorf("counting documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var subject string
		var n int
		if err := rows.Scan(&subject, &n); err != nil {
			return nil, fmt.Errorf("scanning document count: %w", err)
		}
		bySubject[subject] = &SubjectStats{Subject: subject, Documents: n}
		stats.Documents += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document counts: %w", err)
	}

	chunkRows, err := s.db.QueryContext(ctx, `SELECT subject, COUNT(*) FROM chunks GROUP BY subject`)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	defer chunkRows.Close()
	for chunkRows.Next() {
		var subject string
		var n int
		if err := chunkRows.Scan(&subject, &n); err != nil {
			return nil, fmt.Errorf("scanning chunk count: %w", err)
		}
		ss, ok := bySubject[subject]
		if !ok {
			ss = &SubjectStats{Subject: subject}
			bySubject[subject] = ss
		}
		ss.Chunks = n
		stats.Chunks += n
	}
	if err := chunkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunk counts: %w", err)
	}

	for _, ss := range bySubject {
		stats.Subjects = append(stats.Subjects, *ss)
	}
	sort.Slice(stats.Subjects, func(i, j int) bool {
		return stats.Subjects[i].Subject < stats.Subjects[j].Subject
	})
	return stats, nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var d Document
	var ingestedAt sql.NullTime
	err := row.Scan(&d.ID, &d.Subject, &d.Source, &d.Title, &d.ContentHash, &d.Chunks, &ingestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if ingestedAt.Valid {
		d.IngestedAt = ingestedAt.Time
	}
	return &d, nil
}

// sortHits orders by score descending, then by chunk ID ascending so equal
// scores rank deterministically.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
}

// cosineSimilarity returns the cosine of the angle between two vectors, 0
// when either has zero magnitude.
func cosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
