// Package ragchat is the embeddable knowledge-base client: hybrid search and
// document management over Valkey, Redis or Milvus without the HTTP server.
package ragchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/backend"
	"github.com/kailas-cloud/ragchat/internal/domain"
	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
	"github.com/kailas-cloud/ragchat/internal/repository/embcache"
	knowrepo "github.com/kailas-cloud/ragchat/internal/repository/knowledge"
	openaiTransport "github.com/kailas-cloud/ragchat/internal/transport/openai"
	embeddinguc "github.com/kailas-cloud/ragchat/internal/usecase/embedding"
	knowledgeuc "github.com/kailas-cloud/ragchat/internal/usecase/knowledge"
	searchuc "github.com/kailas-cloud/ragchat/internal/usecase/search"
)

// Client is the ragchat SDK entry point.
type Client struct {
	backend   *backend.Backend
	search    *searchuc.Service
	knowledge *knowledgeuc.Service
	obs       *observer
}

// New connects to the store, ensures the knowledge collection and wires the
// services in-process.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(cfg)
	}
	if cfg.driver == "" || len(cfg.addrs) == 0 {
		return nil, errors.New("ragchat: database address required (use WithValkey, WithRedis or WithMilvus)")
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	be, err := backend.Open(ctx, backendConfig(cfg), cfg.logger)
	if err != nil {
		return nil, fmt.Errorf("ragchat: %w", err)
	}

	return wireClient(be, cfg, obs), nil
}

func backendConfig(cfg *clientConfig) backend.Config {
	return backend.Config{
		Driver:     cfg.driver,
		Addrs:      cfg.addrs,
		Username:   cfg.username,
		Password:   cfg.password,
		KeyPrefix:  cfg.keyPrefix,
		Collection: domknow.CollectionSpec{Name: cfg.collection, Dimension: cfg.dimensions, Metric: cfg.metric},
		Index:      knowrepo.IndexConfig{Algorithm: cfg.algorithm, M: cfg.hnswM, EFConstruct: cfg.hnswEF},
	}
}

func wireClient(be *backend.Backend, cfg *clientConfig, obs *observer) *Client {
	emb := buildEmbedder(cfg, be)

	var searchOpts []searchuc.Option
	if cfg.defaultLimit > 0 || cfg.maxLimit > 0 {
		searchOpts = append(searchOpts, searchuc.WithLimits(cfg.defaultLimit, cfg.maxLimit))
	}
	if cfg.discount > 0 {
		searchOpts = append(searchOpts, searchuc.WithTextDiscount(cfg.discount))
	}
	if cfg.logger != nil {
		searchOpts = append(searchOpts, searchuc.WithObserver(searchuc.NewLogObserver(cfg.logger)))
	}

	knowledgeSvc := knowledgeuc.New(be.Repo, emb, cfg.dimensions)
	if cfg.maxBatchSize > 0 {
		knowledgeSvc = knowledgeSvc.WithMaxBatchSize(cfg.maxBatchSize)
	}

	return &Client{
		backend:   be,
		search:    searchuc.New(be.Repo, emb, searchOpts...),
		knowledge: knowledgeSvc,
		obs:       obs,
	}
}

func buildEmbedder(cfg *clientConfig, be *backend.Backend) domain.Embedder {
	var emb domain.Embedder = noopEmbedder{}
	switch {
	case cfg.embedder != nil:
		emb = &embedderAdapter{inner: cfg.embedder}
	case cfg.openai != nil:
		emb = openaiTransport.NewEmbedder(&openaiTransport.Config{
			APIKey:   cfg.openai.apiKey,
			BaseURL:  cfg.openai.baseURL,
			Model:    cfg.openai.model,
			Provider: "openai",
			Logger:   cfg.logger,
		})
	}
	provider, model := "custom", "custom"
	if cfg.embedder == nil && cfg.openai != nil {
		provider, model = "openai", cfg.openai.model
	}
	if cfg.embedder != nil || cfg.openai != nil {
		emb = embeddinguc.NewInstrumentedEmbedder(emb, provider, model, cfg.logger)
	}
	if cfg.cache && be.KV != nil {
		ns := fmt.Sprintf("%semb_cache:%s:", cfg.keyPrefix, model)
		emb = embcache.New(emb, be.KV, ns, nil, cfg.logger)
	}
	return emb
}

// Close releases all resources.
func (c *Client) Close() {
	c.backend.Close()
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.backend.Pinger.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// HybridSearch runs the vector and text channels and returns the fused
// ranking. limit=0 selects the default.
func (c *Client) HybridSearch(ctx context.Context, query string, limit int) (_ []SearchResult, err error) {
	defer func(start time.Time) { c.obs.observe("hybrid_search", start, err) }(time.Now())

	results, err := c.search.HybridSearch(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(results))
	for i := range results {
		out = append(out, toSearchResult(&results[i]))
	}
	return out, nil
}

// FormatContext joins result contents in ranked order, the way chat builds
// its prompt context.
func FormatContext(results []SearchResult) string {
	internal := make([]result.Result, len(results))
	for i, r := range results {
		internal[i] = result.New(r.ID, r.Score, r.Content, nil)
	}
	return searchuc.FormatContext(internal)
}

// AddKnowledge embeds and stores one document and returns its id.
func (c *Client) AddKnowledge(ctx context.Context, content string, meta map[string]any) (_ string, err error) {
	defer func(start time.Time) { c.obs.observe("add_knowledge", start, err) }(time.Now())

	m, err := toMetadata(meta)
	if err != nil {
		return "", err
	}
	return c.knowledge.Add(ctx, content, m)
}

// AddKnowledgeBatch stores items in order. On failure it returns the ids
// written before the failing item together with the error.
func (c *Client) AddKnowledgeBatch(ctx context.Context, items []KnowledgeItem) (_ []string, err error) {
	defer func(start time.Time) { c.obs.observe("add_knowledge_batch", start, err) }(time.Now())

	batch := make([]knowledgeuc.Item, len(items))
	for i, it := range items {
		m, err := toMetadata(it.Metadata)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		batch[i] = knowledgeuc.Item{Content: it.Content, Metadata: m}
	}
	return c.knowledge.AddBatch(ctx, batch)
}

// DeleteKnowledge removes a document. A missing id yields ErrNotFound.
func (c *Client) DeleteKnowledge(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { c.obs.observe("delete_knowledge", start, err) }(time.Now())

	return c.knowledge.Delete(ctx, id)
}

// ListKnowledge returns a page of stored documents.
func (c *Client) ListKnowledge(ctx context.Context, limit, offset int) (_ []Document, err error) {
	defer func(start time.Time) { c.obs.observe("list_knowledge", start, err) }(time.Now())

	docs, err := c.knowledge.List(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(docs))
	for i := range docs {
		d := &docs[i]
		out = append(out, Document{
			ID:        d.ID(),
			Content:   d.Content(),
			Metadata:  fromMetadata(d.Metadata()),
			Timestamp: d.Timestamp(),
		})
	}
	return out, nil
}

// CountKnowledge returns the number of stored documents.
func (c *Client) CountKnowledge(ctx context.Context) (int, error) {
	return c.knowledge.Count(ctx)
}

func toSearchResult(r *result.Result) SearchResult {
	return SearchResult{
		ID:       r.ID(),
		Score:    r.Score(),
		Content:  r.Content(),
		Metadata: fromMetadata(r.Metadata()),
	}
}

func toMetadata(meta map[string]any) (metadata.Map, error) {
	if len(meta) == 0 {
		return metadata.Map{}, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", domain.ErrInvalidInput, err)
	}
	m, err := metadata.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", domain.ErrInvalidInput, err)
	}
	return m, nil
}

func fromMetadata(m metadata.Map) map[string]any {
	out := map[string]any{}
	if len(m) == 0 {
		return out
	}
	raw, err := metadata.Encode(m)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}

// embedderAdapter wraps public Embedder to satisfy internal domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w: %w", domain.ErrEmbeddingFailed, err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}

// noopEmbedder fails every call (used when no embedder is configured).
type noopEmbedder struct{}

func (noopEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{}, fmt.Errorf(
		"%w: embedder not configured (use WithOpenAI or WithEmbedder)", domain.ErrEmbeddingFailed,
	)
}
