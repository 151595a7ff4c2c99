package ragchat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kailas-cloud/ragchat/internal/backend"
	"github.com/kailas-cloud/ragchat/internal/db"
	"github.com/kailas-cloud/ragchat/internal/domain"
	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
	"github.com/kailas-cloud/ragchat/internal/domain/search/filter"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

type mockEmbedder struct {
	fn func(ctx context.Context, text string) (EmbeddingResult, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) (EmbeddingResult, error) {
	return m.fn(ctx, text)
}

func fixedEmbedder(dim int) *mockEmbedder {
	return &mockEmbedder{fn: func(context.Context, string) (EmbeddingResult, error) {
		return EmbeddingResult{Embedding: make([]float32, dim), TotalTokens: 1}, nil
	}}
}

// memRepo keeps documents in insertion order.
type memRepo struct {
	docs       []domknow.Document
	vectorHits []result.Result
	textHits   []result.Result
	textErr    error
	pingErr    error
	failAfter  int
}

func (m *memRepo) Query(_ context.Context, _ []float32, _ int, f filter.Expression) ([]result.Result, error) {
	if f.IsEmpty() {
		return m.vectorHits, nil
	}
	return m.textHits, m.textErr
}
func (m *memRepo) Upsert(_ context.Context, doc domknow.Document) error {
	if m.failAfter > 0 && len(m.docs) >= m.failAfter {
		return domain.ErrStoreUnavailable
	}
	m.docs = append(m.docs, doc)
	return nil
}
func (m *memRepo) Delete(_ context.Context, id string) error {
	for i := range m.docs {
		if m.docs[i].ID() == id {
			m.docs = append(m.docs[:i], m.docs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}
func (m *memRepo) Scroll(_ context.Context, limit, offset int) ([]domknow.Document, error) {
	if offset >= len(m.docs) {
		return nil, nil
	}
	end := min(offset+limit, len(m.docs))
	return m.docs[offset:end], nil
}
func (m *memRepo) Count(context.Context) (int, error) { return len(m.docs), nil }
func (m *memRepo) EnsureCollection(context.Context) error { return nil }
func (m *memRepo) Ping(context.Context) error { return m.pingErr }

func newTestClient(repo *memRepo, opts ...Option) *Client {
	cfg := defaultConfig()
	cfg.dimensions = 3
	for _, o := range opts {
		o(cfg)
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		panic(err)
	}
	return wireClient(&backend.Backend{Repo: repo, Pinger: repo}, cfg, obs)
}

func TestNew_NoAddress(t *testing.T) {
	_, err := New(context.Background())
	if err == nil {
		t.Fatal("expected error when no address provided")
	}
}

func TestNoopEmbedder(t *testing.T) {
	_, err := noopEmbedder{}.Embed(context.Background(), "test")
	if !errors.Is(err, ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestEmbedderAdapter(t *testing.T) {
	called := false
	mock := &mockEmbedder{
		fn: func(_ context.Context, text string) (EmbeddingResult, error) {
			called = true
			return EmbeddingResult{
				Embedding:    []float32{1, 2, 3},
				PromptTokens: 5,
				TotalTokens:  10,
			}, nil
		},
	}

	adapter := &embedderAdapter{inner: mock}
	res, err := adapter.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("inner embedder was not called")
	}
	if len(res.Embedding) != 3 {
		t.Errorf("embedding len = %d, want 3", len(res.Embedding))
	}
	if res.TotalTokens != 10 {
		t.Errorf("total tokens = %d, want 10", res.TotalTokens)
	}
}

func TestEmbedderAdapter_Error(t *testing.T) {
	mock := &mockEmbedder{
		fn: func(_ context.Context, _ string) (EmbeddingResult, error) {
			return EmbeddingResult{}, errors.New("provider down")
		},
	}

	adapter := &embedderAdapter{inner: mock}
	_, err := adapter.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := defaultConfig()

	WithValkey("localhost:6379", "secret")(cfg)
	if cfg.driver != backend.DriverValkey {
		t.Errorf("driver = %q, want valkey", cfg.driver)
	}
	if cfg.password != "secret" {
		t.Errorf("password = %q, want secret", cfg.password)
	}

	WithMilvus("localhost:19530", "root", "pw")(cfg)
	if cfg.driver != backend.DriverMilvus || cfg.username != "root" {
		t.Errorf("unexpected milvus options: driver=%q user=%q", cfg.driver, cfg.username)
	}

	WithCollection("docs", 768)(cfg)
	if cfg.collection != "docs" || cfg.dimensions != 768 {
		t.Errorf("collection = %q/%d, want docs/768", cfg.collection, cfg.dimensions)
	}

	WithSearchLimits(5, 50)(cfg)
	WithTextDiscount(0.5)(cfg)
	if cfg.defaultLimit != 5 || cfg.maxLimit != 50 || cfg.discount != 0.5 {
		t.Errorf("unexpected search options: %+v", cfg)
	}
}

func TestBackendConfig_Index(t *testing.T) {
	cfg := defaultConfig()
	WithHNSW(32, 400)(cfg)

	bc := backendConfig(cfg)
	if bc.Index.Algorithm != "" || bc.Index.M != 32 || bc.Index.EFConstruct != 400 {
		t.Errorf("unexpected hnsw index %+v", bc.Index)
	}

	WithFlatIndex()(cfg)
	if bc := backendConfig(cfg); bc.Index.Algorithm != db.VectorFlat {
		t.Errorf("algorithm = %q, want FLAT", bc.Index.Algorithm)
	}
}

func TestHybridSearch_FusesChannels(t *testing.T) {
	repo := &memRepo{
		vectorHits: []result.Result{
			result.New("a", 0.9, "alpha", metadata.Map{"source": metadata.String("faq")}),
			result.New("b", 0.5, "beta", nil),
		},
		textHits: []result.Result{
			result.New("a", 1.0, "alpha", nil),
			result.New("c", 1.0, "gamma", nil),
		},
	}
	c := newTestClient(repo, WithEmbedder(fixedEmbedder(3)))

	got, err := c.HybridSearch(context.Background(), "alpha", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Score != 0.9 {
		t.Errorf("expected vector score to win for a, got %+v", got[0])
	}
	if got[0].Metadata["source"] != "faq" {
		t.Errorf("expected metadata to be converted, got %v", got[0].Metadata)
	}
	if got[1].ID != "c" || got[1].Score != 0.8 {
		t.Errorf("expected discounted text hit c at 0.8, got %+v", got[1])
	}
	if got[2].ID != "b" {
		t.Errorf("expected b last, got %+v", got[2])
	}
}

func TestHybridSearch_TextFailureDegrades(t *testing.T) {
	repo := &memRepo{
		vectorHits: []result.Result{result.New("a", 0.7, "alpha", nil)},
		textErr:    domain.ErrTextSearchNotSupported,
	}
	c := newTestClient(repo, WithEmbedder(fixedEmbedder(3)))

	got, err := c.HybridSearch(context.Background(), "alpha", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("expected vector-only results, got %+v", got)
	}
}

func TestHybridSearch_NoEmbedder(t *testing.T) {
	c := newTestClient(&memRepo{})

	_, err := c.HybridSearch(context.Background(), "alpha", 10)
	if !errors.Is(err, ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]SearchResult{{Content: "one"}, {Content: "two"}})
	if got != "one\n\ntwo" {
		t.Errorf("FormatContext = %q", got)
	}
	if FormatContext(nil) != "" {
		t.Error("expected empty context for no results")
	}
}

func TestKnowledgeLifecycle(t *testing.T) {
	repo := &memRepo{}
	c := newTestClient(repo, WithEmbedder(fixedEmbedder(3)))
	ctx := context.Background()

	id, err := c.AddKnowledge(ctx, "hello world", map[string]any{"tags": []any{"x"}, "rank": 2})
	if err != nil {
		t.Fatalf("AddKnowledge: %v", err)
	}

	docs, err := c.ListKnowledge(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ListKnowledge: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != id {
		t.Fatalf("expected the added document, got %+v", docs)
	}
	if docs[0].Metadata["rank"] != float64(2) {
		t.Errorf("expected rank=2, got %v", docs[0].Metadata["rank"])
	}
	if time.Since(docs[0].Timestamp) > time.Minute {
		t.Errorf("unexpected timestamp %v", docs[0].Timestamp)
	}

	n, err := c.CountKnowledge(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountKnowledge = %d, %v", n, err)
	}

	if err := c.DeleteKnowledge(ctx, id); err != nil {
		t.Fatalf("DeleteKnowledge: %v", err)
	}
	if err := c.DeleteKnowledge(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestAddKnowledge_DimensionMismatch(t *testing.T) {
	c := newTestClient(&memRepo{}, WithEmbedder(fixedEmbedder(4)))

	_, err := c.AddKnowledge(context.Background(), "hello", nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestAddKnowledgeBatch_PartialFailure(t *testing.T) {
	repo := &memRepo{failAfter: 1}
	c := newTestClient(repo, WithEmbedder(fixedEmbedder(3)))

	ids, err := c.AddKnowledgeBatch(context.Background(), []KnowledgeItem{
		{Content: "one"}, {Content: "two"}, {Content: "three"},
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(ids) != 1 || len(repo.docs) != 1 {
		t.Errorf("expected one stored document before the failure, ids=%v stored=%d", ids, len(repo.docs))
	}
}

func TestAddKnowledgeBatch_EmbeddingFailure(t *testing.T) {
	emb := &mockEmbedder{fn: func(context.Context, string) (EmbeddingResult, error) {
		return EmbeddingResult{}, fmt.Errorf("rate limited")
	}}
	repo := &memRepo{}
	c := newTestClient(repo, WithEmbedder(emb))

	ids, err := c.AddKnowledgeBatch(context.Background(), []KnowledgeItem{{Content: "one"}, {Content: "two"}})
	if !errors.Is(err, ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
	if len(ids) != 0 || len(repo.docs) != 0 {
		t.Errorf("expected nothing stored, ids=%v stored=%d", ids, len(repo.docs))
	}
}

func TestPing(t *testing.T) {
	repo := &memRepo{pingErr: errors.New("conn refused")}
	c := newTestClient(repo)

	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error")
	}
	repo.pingErr = nil
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestWithPrometheus_CountsOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := newTestClient(&memRepo{}, WithEmbedder(fixedEmbedder(3)), WithPrometheus(reg))
	ctx := context.Background()

	if _, err := c.AddKnowledge(ctx, "hello", nil); err != nil {
		t.Fatalf("AddKnowledge: %v", err)
	}
	_ = c.DeleteKnowledge(ctx, "missing")

	ops := c.obs.metrics.operations
	if got := testutil.ToFloat64(ops.WithLabelValues("add_knowledge", "ok")); got != 1 {
		t.Errorf("add_knowledge ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ops.WithLabelValues("delete_knowledge", "error")); got != 1 {
		t.Errorf("delete_knowledge error = %v, want 1", got)
	}

	// a second client on the same registry reuses the collectors
	other := newTestClient(&memRepo{}, WithPrometheus(reg))
	if other.obs.metrics.operations != ops {
		t.Error("expected the registered collector to be reused")
	}
}
