package index

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	// DefaultCollection is the Qdrant collection name unless configured.
	DefaultCollection = "studyrag"

	// qdrantVectorName is the named vector carrying chunk embeddings.
	// Document markers and the meta point are payload-only.
	qdrantVectorName = "content"

	// qdrantBatchSize caps points per upsert request.
	qdrantBatchSize = 100
)

// metaPointID marks the collection's self-description point.
var metaPointID = uuid.Nil.String()

// QdrantConfig configures the remote index backend.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Model      string
	Dimension  int
}

// Qdrant is a remote index unit backed by one Qdrant collection. Chunks are
// vector points; each document adds a payload-only marker point, written
// after its chunks so lookups only ever see complete documents. The meta
// point records (model, dimension) and is verified on open.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	model      string
	dimension  int
}

var _ Index = (*Qdrant)(nil)

// NewQdrant connects to Qdrant, verifies it is reachable and ensures the
// collection exists with the configured model stamp. Fails fast with
// ErrUnreachable if the server does not come up within the retry budget.
func NewQdrant(ctx context.Context, cfg QdrantConfig) (*Qdrant, error) {
	if cfg.Model == "" || cfg.Dimension <= 0 {
		return nil, fmt.Errorf("qdrant index: model %q and dimension %d must be set", cfg.Model, cfg.Dimension)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	q := &Qdrant{
		client:     client,
		collection: cfg.Collection,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
	}

	if err := q.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if err := q.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

// healthCheckWithRetry probes Qdrant with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (q *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	exponentialBackoff := backoff.NewExponentialBackOff()
	exponentialBackoff.InitialInterval = 500 * time.Millisecond
	exponentialBackoff.MaxInterval = 10 * time.Second
	exponentialBackoff.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return q.Health(ctx)
	}, backoff.WithContext(exponentialBackoff, ctx))
}

// Health performs a single health check against Qdrant.
func (q *Qdrant) Health(ctx context.Context) error {
	result, err := q.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// ensureCollection creates the collection with cosine vectors and payload
// indexes on first use, or verifies the model stamp of an existing one.
func (q *Qdrant) ensureCollection(ctx context.Context) error {
	collections, err := q.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	for _, name := range collections {
		if name == q.collection {
			return q.verifyMeta(ctx)
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			qdrantVectorName: {
				Size:     uint64(q.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := q.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}

	// Stamp the collection with its embedding model.
	meta := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(metaPointID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":      "meta",
			"model":     q.model,
			"dimension": q.dimension,
		}),
	}
	if err := q.upsertPoints(ctx, []*qdrant.PointStruct{meta}); err != nil {
		return fmt.Errorf("failed to write meta point: %w", err)
	}
	return nil
}

// createPayloadIndexes indexes every filterable field. Without these,
// filtered queries fall back to full scans.
func (q *Qdrant) createPayloadIndexes(ctx context.Context) error {
	fields := []string{
		"type",         // distinguish "chunk" vs "document" vs "meta"
		"subject",      // scope searches and deletes to a subject
		"document_id",  // lookup and delete chunks by owner
		"content_hash", // dedup lookups
	}

	for _, field := range fields {
		_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// verifyMeta checks an existing collection against the configured model.
func (q *Qdrant) verifyMeta(ctx context.Context) error {
	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(metaPointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return fmt.Errorf("failed to read meta point: %w", err)
	}
	if len(points) == 0 {
		return fmt.Errorf("%w: collection %s has no metadata point", ErrCorrupt, q.collection)
	}

	payload := points[0].Payload
	storedModel := payload["model"].GetStringValue()
	storedDim := int(payload["dimension"].GetIntegerValue())
	if storedModel == "" || storedDim == 0 {
		return fmt.Errorf("%w: collection %s metadata point is incomplete", ErrCorrupt, q.collection)
	}
	if storedModel != q.model || storedDim != q.dimension {
		return fmt.Errorf("%w: collection has %s/%d, configured %s/%d",
			ErrModelMismatch, storedModel, storedDim, q.model, q.dimension)
	}
	return nil
}

// Model returns the embedding model the collection was created with.
func (q *Qdrant) Model() string { return q.model }

// Dimension returns the vector size the collection was created with.
func (q *Qdrant) Dimension() int { return q.dimension }

// Close closes the Qdrant client connection.
func (q *Qdrant) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

func (q *Qdrant) upsertPoints(ctx context.Context, points []*qdrant.PointStruct) error {
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	return err
}

func (q *Qdrant) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	return err
}

// Upsert writes a document's chunks in batches, then the marker point last.
// Qdrant has no transactions; if a batch fails mid-document, the partial
// chunks are deleted again so no half document lingers. Dedup lookups go
// through the marker, which only exists once every chunk is stored.
func (q *Qdrant) Upsert(ctx context.Context, doc Document, entries []Entry) (int, error) {
	if err := validateVectors(entries, q.dimension); err != nil {
		return 0, err
	}
	if doc.IngestedAt.IsZero() {
		doc.IngestedAt = time.Now().UTC()
	}

	// Replace any previous version of this document.
	if err := q.deleteByFilter(ctx, docFilter(doc.ID)); err != nil {
		return 0, fmt.Errorf("failed to clear previous chunks: %w", err)
	}

	for i := 0; i < len(entries); i += qdrantBatchSize {
		end := min(i+qdrantBatchSize, len(entries))

		batch := entries[i:end]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, e := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(e.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					qdrantVectorName: qdrant.NewVector(e.Vector...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"type":        "chunk",
					"document_id": doc.ID,
					"subject":     doc.Subject,
					"source":      doc.Source,
					"title":       doc.Title,
					"ordinal":     e.Ordinal,
					"content":     e.Text,
					"overlap":     e.Overlap,
				}),
			}
		}

		if err := q.upsertPoints(ctx, points); err != nil {
			// Roll back the chunks written so far.
			if delErr := q.deleteByFilter(ctx, docFilter(doc.ID)); delErr != nil {
				return 0, fmt.Errorf("failed to upsert batch %d-%d: %v (cleanup also failed: %w)", i, end, err, delErr)
			}
			return 0, fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	// Marker last: its document_id points at itself so one filter delete
	// removes the whole document.
	marker := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(doc.ID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":         "document",
			"document_id":  doc.ID,
			"subject":      doc.Subject,
			"source":       doc.Source,
			"title":        doc.Title,
			"content_hash": doc.ContentHash,
			"chunk_count":  len(entries),
			"ingested_at":  doc.IngestedAt.Format(time.RFC3339),
		}),
	}
	if err := q.upsertPoints(ctx, []*qdrant.PointStruct{marker}); err != nil {
		if delErr := q.deleteByFilter(ctx, docFilter(doc.ID)); delErr != nil {
			return 0, fmt.Errorf("failed to upsert document marker: %v (cleanup also failed: %w)", err, delErr)
		}
		return 0, fmt.Errorf("failed to upsert document marker: %w", err)
	}

	return len(entries), nil
}

// Search queries the chunk vectors and re-sorts client-side so equal scores
// break ties deterministically.
func (q *Qdrant) Search(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error) {
	if len(vector) != q.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(vector), q.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	must := []*qdrant.Condition{
		qdrant.NewMatch("type", "chunk"),
	}
	if filter.Subject != "" {
		must = append(must, qdrant.NewMatch("subject", filter.Subject))
	}

	vectorName := qdrantVectorName
	results, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          &vectorName,
		Filter:         &qdrant.Filter{Must: must},
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		hits = append(hits, Hit{
			ChunkID:    result.Id.GetUuid(),
			DocumentID: payload["document_id"].GetStringValue(),
			Subject:    payload["subject"].GetStringValue(),
			Source:     payload["source"].GetStringValue(),
			Title:      payload["title"].GetStringValue(),
			Ordinal:    int(payload["ordinal"].GetIntegerValue()),
			Text:       payload["content"].GetStringValue(),
			Score:      float64(result.Score),
		})
	}

	sortHits(hits)
	return hits, nil
}

// FindDocument looks up the dedup key (subject, content hash).
func (q *Qdrant) FindDocument(ctx context.Context, subject, contentHash string) (*Document, error) {
	results, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("type", "document"),
				qdrant.NewMatch("subject", subject),
				qdrant.NewMatch("content_hash", contentHash),
			},
		},
		Limit:       qdrant.PtrOf(uint32(1)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNotFound
	}

	doc := docFromPoint(results[0])
	return &doc, nil
}

// Documents lists document markers, newest first within a subject.
func (q *Qdrant) Documents(ctx context.Context, subject string) ([]Document, error) {
	must := []*qdrant.Condition{
		qdrant.NewMatch("type", "document"),
	}
	if subject != "" {
		must = append(must, qdrant.NewMatch("subject", subject))
	}

	points, err := q.scrollAll(ctx, &qdrant.Filter{Must: must}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll documents: %w", err)
	}

	docs := make([]Document, 0, len(points))
	for _, point := range points {
		docs = append(docs, docFromPoint(point))
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Subject != docs[j].Subject {
			return docs[i].Subject < docs[j].Subject
		}
		if !docs[i].IngestedAt.Equal(docs[j].IngestedAt) {
			return docs[i].IngestedAt.After(docs[j].IngestedAt)
		}
		return docs[i].Source < docs[j].Source
	})
	return docs, nil
}

// Chunks returns a document's chunks in ordinal order, vectors included.
func (q *Qdrant) Chunks(ctx context.Context, documentID string) ([]Entry, error) {
	marker, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(documentID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if len(marker) == 0 || marker[0].Payload["type"].GetStringValue() != "document" {
		return nil, ErrNotFound
	}

	points, err := q.scrollAll(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("type", "chunk"),
			qdrant.NewMatch("document_id", documentID),
		},
	}, true)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll chunks: %w", err)
	}

	entries := make([]Entry, 0, len(points))
	for _, point := range points {
		entries = append(entries, entryFromPoint(point))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Ordinal < entries[j].Ordinal })
	return entries, nil
}

// DeleteDocument removes a document marker and every chunk it owns.
func (q *Qdrant) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	marker, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: q.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(documentID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get document: %w", err)
	}
	if len(marker) == 0 || marker[0].Payload["type"].GetStringValue() != "document" {
		return 0, ErrNotFound
	}
	chunks := int(marker[0].Payload["chunk_count"].GetIntegerValue())

	if err := q.deleteByFilter(ctx, docFilter(documentID)); err != nil {
		return 0, fmt.Errorf("failed to delete document: %w", err)
	}
	return chunks, nil
}

// DeleteSubject removes everything a subject owns and returns the number of
// documents removed.
func (q *Qdrant) DeleteSubject(ctx context.Context, subject string) (int, error) {
	markers, err := q.scrollAll(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("type", "document"),
			qdrant.NewMatch("subject", subject),
		},
	}, false)
	if err != nil {
		return 0, fmt.Errorf("failed to scroll documents: %w", err)
	}
	if len(markers) == 0 {
		return 0, nil
	}

	err = q.deleteByFilter(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("subject", subject),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete subject: %w", err)
	}
	return len(markers), nil
}

// Stats aggregates per-subject counts from the document markers.
func (q *Qdrant) Stats(ctx context.Context) (*Stats, error) {
	points, err := q.scrollAll(ctx, &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("type", "document"),
		},
	}, false)
	if err != nil {
		return nil, fmt.Errorf("failed to scroll documents: %w", err)
	}

	stats := &Stats{Model: q.model, Dimension: q.dimension}
	bySubject := make(map[string]*SubjectStats)
	for _, point := range points {
		subject := point.Payload["subject"].GetStringValue()
		chunks := int(point.Payload["chunk_count"].GetIntegerValue())

		ss, ok := bySubject[subject]
		if !ok {
			ss = &SubjectStats{Subject: subject}
			bySubject[subject] = ss
		}
		ss.Documents++
		ss.Chunks += chunks
		stats.Documents++
		stats.Chunks += chunks
	}

	for _, ss := range bySubject {
		stats.Subjects = append(stats.Subjects, *ss)
	}
	sort.Slice(stats.Subjects, func(i, j int) bool {
		return stats.Subjects[i].Subject < stats.Subjects[j].Subject
	})
	return stats, nil
}

// scrollAll pages through every point matching the filter.
func (q *Qdrant) scrollAll(ctx context.Context, filter *qdrant.Filter, withVectors bool) ([]*qdrant.RetrievedPoint, error) {
	var all []*qdrant.RetrievedPoint
	var offset *qdrant.PointId
	batchSize := uint32(qdrantBatchSize)

	for {
		results, err := q.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: q.collection,
			Filter:         filter,
			Limit:          qdrant.PtrOf(batchSize),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return nil, err
		}
		all = append(all, results...)

		if uint32(len(results)) < batchSize {
			break
		}
		offset = results[len(results)-1].Id
	}
	return all, nil
}

// docFilter matches every point of one document, marker included.
func docFilter(documentID string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch("document_id", documentID),
		},
	}
}

func docFromPoint(point *qdrant.RetrievedPoint) Document {
	payload := point.Payload

	ingestedAt, err := time.Parse(time.RFC3339, payload["ingested_at"].GetStringValue())
	if err != nil {
		ingestedAt = time.Time{}
	}

	return Document{
		ID:          point.Id.GetUuid(),
		Subject:     payload["subject"].GetStringValue(),
		Source:      payload["source"].GetStringValue(),
		Title:       payload["title"].GetStringValue(),
		ContentHash: payload["content_hash"].GetStringValue(),
		Chunks:      int(payload["chunk_count"].GetIntegerValue()),
		IngestedAt:  ingestedAt,
	}
}

func entryFromPoint(point *qdrant.RetrievedPoint) Entry {
	payload := point.Payload
	e := Entry{
		ID:         point.Id.GetUuid(),
		DocumentID: payload["document_id"].GetStringValue(),
		Subject:    payload["subject"].GetStringValue(),
		Source:     payload["source"].GetStringValue(),
		Ordinal:    int(payload["ordinal"].GetIntegerValue()),
		Text:       payload["content"].GetStringValue(),
		Overlap:    int(payload["overlap"].GetIntegerValue()),
	}

	if named := point.GetVectors().GetVectors(); named != nil {
		if v, ok := named.GetVectors()[qdrantVectorName]; ok {
			e.Vector = v.GetData()
		}
	}
	return e
}
