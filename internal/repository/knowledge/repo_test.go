package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/ragchat/internal/db"
	"github.com/kailas-cloud/ragchat/internal/db/ftstore"
	"github.com/kailas-cloud/ragchat/internal/domain"
	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
	"github.com/kailas-cloud/ragchat/internal/domain/search/filter"
)

// --- EnsureCollection ---

func TestEnsureCollection_Creates(t *testing.T) {
	repo, ms := newTestRepo(t)

	var hsetKey string
	var hsetFields map[string]string
	ms.hsetFn = func(_ context.Context, key string, fields map[string]string) error {
		hsetKey, hsetFields = key, fields
		return nil
	}
	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hsetKey != "ragchat:meta:kb" {
		t.Errorf("expected meta key ragchat:meta:kb, got %q", hsetKey)
	}
	if hsetFields["dimension"] != "4" || hsetFields["metric"] != "cosine" {
		t.Errorf("unexpected meta fields: %v", hsetFields)
	}
	if hsetFields["created_at"] != "2025-01-02T03:04:05Z" {
		t.Errorf("unexpected created_at %q", hsetFields["created_at"])
	}
	if created == nil {
		t.Fatal("expected CreateIndex to be called")
	}
	if created.Name != "ragchat:kb:idx" {
		t.Errorf("expected index ragchat:kb:idx, got %q", created.Name)
	}
	if len(created.Prefixes) != 1 || created.Prefixes[0] != "ragchat:kb:" {
		t.Errorf("unexpected prefixes %v", created.Prefixes)
	}
	if len(created.Fields) != 2 || created.Fields[0].Type != db.IndexFieldText {
		t.Fatalf("expected TEXT + VECTOR fields, got %+v", created.Fields)
	}
	vec := created.Fields[1]
	if vec.VectorDim != 4 || vec.VectorDistance != db.DistanceCosine || vec.VectorM != 16 {
		t.Errorf("unexpected vector field %+v", vec)
	}
}

func TestEnsureCollection_TermsTagWithoutTextSearch(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.textSearch = false

	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(created.Fields) != 2 {
		t.Fatalf("expected TAG + VECTOR fields, got %+v", created.Fields)
	}
	if created.Fields[0].Name != "content_terms" || created.Fields[0].Type != db.IndexFieldTag {
		t.Errorf("expected content_terms TAG, got %+v", created.Fields[0])
	}
	if created.Fields[1].Type != db.IndexFieldVector {
		t.Errorf("expected vector field, got %+v", created.Fields[1])
	}
}

func TestEnsureCollection_FlatIndex(t *testing.T) {
	repo, ms := newTestRepo(t)
	repo.WithIndex(IndexConfig{Algorithm: db.VectorFlat})

	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	if err := repo.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vec := created.Fields[len(created.Fields)-1]
	if vec.VectorAlgo != db.VectorFlat || vec.VectorM != 0 {
		t.Errorf("expected FLAT vector field, got %+v", vec)
	}
}

func TestEnsureCollection_ExistingSameDimension(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetallFn = func(_ context.Context, _ string) (map[string]string, error) {
		return map[string]string{"name": "kb", "dimension": "4", "metric": "cosine"}, nil
	}
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		t.Fatal("CreateIndex must not be called for an existing collection")
		return nil
	}

	if err := repo.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureCollection_DimensionMismatch(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetallFn = func(_ context.Context, _ string) (map[string]string, error) {
		return map[string]string{"dimension": "1024"}, nil
	}

	err := repo.EnsureCollection(context.Background())
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEnsureCollection_AdoptsExistingIndex(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.indexExistsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }

	var hset bool
	ms.hsetFn = func(_ context.Context, _ string, _ map[string]string) error {
		hset = true
		return nil
	}
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		t.Fatal("CreateIndex must not be called when the index exists")
		return nil
	}

	if err := repo.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hset {
		t.Error("expected metadata to be written for the adopted index")
	}
}

func TestEnsureCollection_RollbackOnCreateFailure(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return errors.New("boom")
	}
	var deleted string
	ms.delFn = func(_ context.Context, key string) error {
		deleted = key
		return nil
	}

	err := repo.EnsureCollection(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if deleted != "ragchat:meta:kb" {
		t.Errorf("expected meta rollback, got del %q", deleted)
	}
}

func TestEnsureCollection_ConcurrentCreate(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.createIndexFn = func(_ context.Context, _ *db.IndexDefinition) error {
		return db.ErrIndexExists
	}
	ms.delFn = func(_ context.Context, _ string) error {
		t.Fatal("meta must be kept when another process created the index")
		return nil
	}

	if err := repo.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEnsureCollection_StoreDown(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.hgetallFn = func(_ context.Context, _ string) (map[string]string, error) {
		return nil, &db.Error{Op: db.OpHGetAll, Err: errors.New("connection refused")}
	}

	err := repo.EnsureCollection(context.Background())
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

// --- Query ---

func TestQuery_ParsesAndSorts(t *testing.T) {
	repo, ms := newTestRepo(t)

	var got *db.KNNQuery
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		got = q
		return &db.SearchResult{Total: 2, Entries: []db.SearchEntry{
			{Key: "ragchat:kb:b", Score: 0.4, Fields: map[string]string{"content": "second"}},
			{Key: "ragchat:kb:a", Score: 0.9, Fields: map[string]string{
				"content":  "first",
				"metadata": `{"category":"faq","priority":2}`,
			}},
		}}, nil
	}

	results, err := repo.Query(context.Background(), testVector(), 5, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IndexName != "ragchat:kb:idx" || got.K != 5 || got.Metric != db.DistanceCosine {
		t.Errorf("unexpected query %+v", got)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID() != "a" || results[0].Content() != "first" {
		t.Errorf("expected a first, got %s", results[0].ID())
	}
	cat, ok := results[0].Metadata()["category"].AsString()
	if !ok || cat != "faq" {
		t.Errorf("expected category faq, got %v", results[0].Metadata())
	}
	if len(results[1].Metadata()) != 0 {
		t.Errorf("expected empty metadata, got %v", results[1].Metadata())
	}
}

func TestQuery_PassesFilter(t *testing.T) {
	repo, ms := newTestRepo(t)

	var got filter.Expression
	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		got = q.Filters
		return &db.SearchResult{}, nil
	}

	results, err := repo.Query(context.Background(), testVector(), 3, filter.ContentMatches("refund policy"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
	if got.IsEmpty() || got.Must()[0].Text() != "refund policy" {
		t.Errorf("expected content filter to reach the store, got %+v", got)
	}
}

func TestQuery_DimensionMismatch(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
		t.Fatal("store must not be queried")
		return nil, nil
	}

	_, err := repo.Query(context.Background(), []float32{1, 2}, 5, filter.Expression{})
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestQuery_TextUnsupported(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
		return nil, db.ErrTextSearchUnsupported
	}

	_, err := repo.Query(context.Background(), testVector(), 5, filter.ContentMatches("x"))
	if !errors.Is(err, domain.ErrTextSearchNotSupported) {
		t.Fatalf("expected ErrTextSearchNotSupported, got %v", err)
	}
}

func TestQuery_StoreError(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
		return nil, &db.Error{Op: db.OpSearch, Err: errors.New("timeout")}
	}

	_, err := repo.Query(context.Background(), testVector(), 5, filter.Expression{})
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

// --- Upsert / Delete ---

func TestUpsert_WritesHash(t *testing.T) {
	repo, ms := newTestRepo(t)

	doc := domknow.Reconstruct("id-1", "hello", metadata.Map{"tags": metadata.List(metadata.String("a"))},
		time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC), testVector())

	var key string
	var fields map[string]string
	ms.hsetFn = func(_ context.Context, k string, f map[string]string) error {
		key, fields = k, f
		return nil
	}

	if err := repo.Upsert(context.Background(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "ragchat:kb:id-1" {
		t.Errorf("unexpected key %q", key)
	}
	if fields["content"] != "hello" {
		t.Errorf("unexpected content %q", fields["content"])
	}
	if fields["metadata"] != `{"tags":["a"]}` {
		t.Errorf("unexpected metadata %q", fields["metadata"])
	}
	if fields["timestamp"] != "2025-05-06T07:08:09Z" {
		t.Errorf("unexpected timestamp %q", fields["timestamp"])
	}
	if fields["vector"] != ftstore.VectorToBytes(testVector()) {
		t.Error("unexpected vector encoding")
	}
	if _, ok := fields["content_terms"]; ok {
		t.Error("content_terms must not be written when TEXT is indexed")
	}
}

func TestUpsert_WritesTermsWithoutTextSearch(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.textSearch = false

	var fields map[string]string
	ms.hsetFn = func(_ context.Context, _ string, f map[string]string) error {
		fields = f
		return nil
	}

	doc := domknow.Reconstruct("id-2", "Reset your e-mail password? The password link expires.",
		metadata.Map{}, time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC), testVector())
	if err := repo.Upsert(context.Background(), doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "reset,your,e,mail,password,link,expires"
	if fields["content_terms"] != want {
		t.Errorf("content_terms = %q, want %q", fields["content_terms"], want)
	}
}

func TestUpsert_DimensionMismatch(t *testing.T) {
	repo, _ := newTestRepo(t)
	doc := domknow.Reconstruct("id-1", "hello", nil, time.Now(), []float32{1})

	if err := repo.Upsert(context.Background(), doc); !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, _ := newTestRepo(t)

	if err := repo.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.existsFn = func(_ context.Context, _ string) (bool, error) { return true, nil }
	var deleted string
	ms.delFn = func(_ context.Context, key string) error {
		deleted = key
		return nil
	}

	if err := repo.Delete(context.Background(), "id-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "ragchat:kb:id-1" {
		t.Errorf("unexpected deleted key %q", deleted)
	}
}

// --- Scroll / Count ---

func TestScroll(t *testing.T) {
	repo, ms := newTestRepo(t)

	var gotOffset, gotLimit int
	ms.searchListFn = func(
		_ context.Context, index, query string, offset, limit int, _ []string,
	) (*db.SearchResult, error) {
		if index != "ragchat:kb:idx" || query != "*" {
			t.Errorf("unexpected list call %s %s", index, query)
		}
		gotOffset, gotLimit = offset, limit
		return &db.SearchResult{Total: 3, Entries: []db.SearchEntry{
			{Key: "ragchat:kb:x", Fields: map[string]string{
				"content":   "doc",
				"timestamp": "2025-01-02T03:04:05Z",
				"metadata":  `{"visible":true}`,
			}},
		}}, nil
	}

	docs, err := repo.Scroll(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotOffset != 20 || gotLimit != 10 {
		t.Errorf("expected offset=20 limit=10, got %d %d", gotOffset, gotLimit)
	}
	if len(docs) != 1 || docs[0].ID() != "x" || docs[0].Content() != "doc" {
		t.Fatalf("unexpected docs %+v", docs)
	}
	if !docs[0].Timestamp().Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("unexpected timestamp %v", docs[0].Timestamp())
	}
	if v, ok := docs[0].Metadata()["visible"].AsBool(); !ok || !v {
		t.Errorf("unexpected metadata %v", docs[0].Metadata())
	}
}

func TestScroll_Empty(t *testing.T) {
	repo, _ := newTestRepo(t)

	docs, err := repo.Scroll(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs == nil || len(docs) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", docs)
	}
}

func TestScroll_InvalidArgs(t *testing.T) {
	repo, _ := newTestRepo(t)

	if _, err := repo.Scroll(context.Background(), 0, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for zero limit, got %v", err)
	}
	if _, err := repo.Scroll(context.Background(), 10, -1); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for negative offset, got %v", err)
	}
}

func TestCount(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchCountFn = func(_ context.Context, _, _ string) (int, error) { return 7, nil }

	n, err := repo.Count(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7, got %d", n)
	}
}
