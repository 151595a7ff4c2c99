// Package knowledge stores knowledge documents as hashes under an FT vector index
// (Valkey or Redis) and answers KNN queries with optional text pre-filters.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/ragchat/internal/db"
	"github.com/kailas-cloud/ragchat/internal/db/ftstore"
	"github.com/kailas-cloud/ragchat/internal/domain"
	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
	"github.com/kailas-cloud/ragchat/internal/domain/search/filter"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

// Hash field names of a stored document.
const (
	fieldContent   = filter.ContentField
	fieldMetadata  = "metadata"
	fieldTimestamp = "timestamp"
	fieldVector    = "vector"
)

// fieldTerms carries lowercased content terms on servers without TEXT indexing.
var fieldTerms = db.TermsField(fieldContent)

var returnFields = []string{fieldContent, fieldMetadata, fieldTimestamp}

// store is the consumer interface for the knowledge repository (ISP).
//
//nolint:interfacebloat // repo needs hash + index + search operations
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchList(ctx context.Context, index, query string, offset, limit int, fields []string) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// IndexConfig selects the vector index algorithm. M and EFConstruct apply to
// HNSW only.
type IndexConfig struct {
	Algorithm   db.VectorAlgorithm
	M           int
	EFConstruct int
}

// Repo is bound to one collection; it implements the knowledge and search
// repository contracts of the usecase layer.
type Repo struct {
	store     store
	keyPrefix string
	spec      domknow.CollectionSpec
	index     IndexConfig
	now       func() time.Time
}

// New creates a knowledge repository for the given collection.
func New(s store, keyPrefix string, spec domknow.CollectionSpec) *Repo {
	return &Repo{
		store:     s,
		keyPrefix: keyPrefix,
		spec:      spec,
		index:     IndexConfig{Algorithm: db.VectorHNSW, M: 16, EFConstruct: 200},
		now:       time.Now,
	}
}

// WithIndex configures the vector index. Zero fields keep their defaults.
func (r *Repo) WithIndex(cfg IndexConfig) *Repo {
	if cfg.Algorithm != "" {
		r.index.Algorithm = cfg.Algorithm
	}
	if cfg.M > 0 {
		r.index.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.index.EFConstruct = cfg.EFConstruct
	}
	return r
}

// Collection returns the bound collection description.
func (r *Repo) Collection() domknow.CollectionSpec { return r.spec }

// EnsureCollection creates the collection if absent. An existing collection
// with a different dimension yields domain.ErrDimensionMismatch.
// Order: HSET metadata, then FT.CREATE; the HSET is rolled back if FT.CREATE fails.
func (r *Repo) EnsureCollection(ctx context.Context) error {
	metaKey := r.metaKey()

	meta, err := r.store.HGetAll(ctx, metaKey)
	if err != nil {
		return storeErr("read collection meta", err)
	}
	if len(meta) > 0 {
		return r.checkMeta(meta)
	}

	idxName := r.indexName()
	idxExists, err := r.store.IndexExists(ctx, idxName)
	if err != nil {
		return storeErr("check index", err)
	}

	hashData := map[string]string{
		"name":       r.spec.Name,
		"dimension":  strconv.Itoa(r.spec.Dimension),
		"metric":     r.spec.Metric,
		"created_at": r.now().UTC().Format(time.RFC3339Nano),
	}

	// An index without metadata was created out of band; adopt it.
	if idxExists {
		if err := r.store.HSet(ctx, metaKey, hashData); err != nil {
			return storeErr("hset collection meta", err)
		}
		return nil
	}

	def, err := r.buildIndex(ctx)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}

	if err := r.store.HSet(ctx, metaKey, hashData); err != nil {
		return storeErr("hset collection meta", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		cleanupErr := r.store.Del(ctx, metaKey)
		return errors.Join(storeErr("create index", err), cleanupErr)
	}

	return nil
}

func (r *Repo) checkMeta(meta map[string]string) error {
	dim, err := strconv.Atoi(meta["dimension"])
	if err != nil {
		return fmt.Errorf("parse collection dimension %q: %w", meta["dimension"], err)
	}
	if dim != r.spec.Dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, configured %d",
			domain.ErrDimensionMismatch, r.spec.Name, dim, r.spec.Dimension)
	}
	return nil
}

func (r *Repo) buildIndex(ctx context.Context) (*db.IndexDefinition, error) {
	metric, err := db.ParseDistanceMetric(r.spec.Metric)
	if err != nil {
		return nil, err
	}

	b := db.NewIndex(r.indexName()).Prefix(r.docPrefix())
	if r.store.SupportsTextSearch(ctx) {
		b = b.Text(fieldContent)
	} else {
		b = b.Tag(fieldTerms)
	}
	if r.index.Algorithm == db.VectorFlat {
		return b.VectorFlat(fieldVector, r.spec.Dimension, metric).Build()
	}
	return b.VectorHNSW(fieldVector, r.spec.Dimension, metric, r.index.M, r.index.EFConstruct).Build()
}

// Query runs a KNN search with an optional text pre-filter.
// Results are ordered by similarity, highest first.
func (r *Repo) Query(
	ctx context.Context, vector []float32, limit int, filters filter.Expression,
) ([]result.Result, error) {
	if err := r.spec.CheckVector(vector); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDimensionMismatch, err)
	}
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	}

	metric, err := db.ParseDistanceMetric(r.spec.Metric)
	if err != nil {
		return nil, err
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Filters:      filters,
		Vector:       vector,
		K:            limit,
		ReturnFields: returnFields,
		Metric:       metric,
	})
	if err != nil {
		return nil, storeErr("search knn "+r.spec.Name, err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	results := make([]result.Result, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		results = append(results, result.New(
			r.docID(entry.Key), entry.Score, entry.Fields[fieldContent], parseMeta(entry.Fields[fieldMetadata]),
		))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score() > results[j].Score()
	})

	return results, nil
}

// Upsert writes a document hash. The vector length must match the collection.
func (r *Repo) Upsert(ctx context.Context, doc domknow.Document) error {
	if err := r.spec.CheckVector(doc.Vector()); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDimensionMismatch, err)
	}

	metaJSON, err := metadata.Encode(doc.Metadata())
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	key := r.docKey(doc.ID())
	fields := map[string]string{
		fieldContent:   doc.Content(),
		fieldMetadata:  string(metaJSON),
		fieldTimestamp: doc.Timestamp().UTC().Format(time.RFC3339Nano),
		fieldVector:    ftstore.VectorToBytes(doc.Vector()),
	}
	if !r.store.SupportsTextSearch(ctx) {
		fields[fieldTerms] = strings.Join(filter.LowerTerms(doc.Content()), ",")
	}
	if err := r.store.HSet(ctx, key, fields); err != nil {
		return storeErr("hset "+key, err)
	}
	return nil
}

// Delete removes a document by id.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.docKey(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return storeErr("check exists "+key, err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return storeErr("del "+key, err)
	}
	return nil
}

// Scroll pages through stored documents by offset. Pages are not stable under
// concurrent writes.
func (r *Repo) Scroll(ctx context.Context, limit, offset int) ([]domknow.Document, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidInput)
	}

	sr, err := r.store.SearchList(ctx, r.indexName(), "*", offset, limit, returnFields)
	if err != nil {
		return nil, storeErr("scroll "+r.spec.Name, err)
	}
	if sr == nil || len(sr.Entries) == 0 {
		return []domknow.Document{}, nil
	}

	docs := make([]domknow.Document, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		docs = append(docs, domknow.Reconstruct(
			r.docID(entry.Key),
			entry.Fields[fieldContent],
			parseMeta(entry.Fields[fieldMetadata]),
			parseTimestamp(entry.Fields[fieldTimestamp]),
			nil,
		))
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.indexName(), "*")
	if err != nil {
		return 0, storeErr("count "+r.spec.Name, err)
	}
	return n, nil
}

// Key patterns: {prefix}meta:{name}, {prefix}{name}:idx, {prefix}{name}:{id}

func (r *Repo) metaKey() string { return r.keyPrefix + "meta:" + r.spec.Name }
func (r *Repo) indexName() string { return r.keyPrefix + r.spec.Name + ":idx" }
func (r *Repo) docPrefix() string { return r.keyPrefix + r.spec.Name + ":" }

func (r *Repo) docKey(id string) string { return r.docPrefix() + id }

func (r *Repo) docID(key string) string { return strings.TrimPrefix(key, r.docPrefix()) }

// storeErr classifies a driver error for the domain layer.
func storeErr(op string, err error) error {
	if errors.Is(err, db.ErrTextSearchUnsupported) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrTextSearchNotSupported, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// parseMeta never fails the read path: unparseable metadata becomes an empty map.
func parseMeta(raw string) metadata.Map {
	m, err := metadata.Parse([]byte(raw))
	if err != nil {
		return metadata.Map{}
	}
	return m
}

func parseTimestamp(raw string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}
