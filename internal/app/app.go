// Package app is the composition root shared by the ragchat binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/backend"
	"github.com/kailas-cloud/ragchat/internal/config"
	"github.com/kailas-cloud/ragchat/internal/db"
	"github.com/kailas-cloud/ragchat/internal/domain"
	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/metrics"
	"github.com/kailas-cloud/ragchat/internal/repository/embcache"
	knowrepo "github.com/kailas-cloud/ragchat/internal/repository/knowledge"
	openaiTransport "github.com/kailas-cloud/ragchat/internal/transport/openai"
	chatuc "github.com/kailas-cloud/ragchat/internal/usecase/chat"
	embeddinguc "github.com/kailas-cloud/ragchat/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/ragchat/internal/usecase/health"
	knowledgeuc "github.com/kailas-cloud/ragchat/internal/usecase/knowledge"
	searchuc "github.com/kailas-cloud/ragchat/internal/usecase/search"
)

// App holds the wired use cases.
type App struct {
	Search    *searchuc.Service
	Knowledge *knowledgeuc.Service
	Chat      *chatuc.Service
	Health    *healthuc.Service

	backend *backend.Backend
}

// Close releases the store.
func (a *App) Close() {
	a.backend.Close()
}

// Build opens the store and wires every use case from cfg.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()
	metrics.RegisterLLMMetrics()

	be, err := backend.Open(ctx, BackendConfig(cfg), logger)
	if err != nil {
		return nil, err
	}

	provider := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
		Model:    cfg.Embedding.Model,
		Provider: "openai",
		Logger:   logger,
	})
	instrumented := embeddinguc.NewInstrumentedEmbedder(provider, "openai", cfg.Embedding.Model, logger)
	embedder := WithCache(instrumented, be.KV, cfg, logger)

	observer := searchuc.MultiObserver{
		searchuc.NewLogObserver(logger),
		searchuc.NewMetricsObserver(SearchMetrics()),
	}
	searchSvc := searchuc.New(be.Repo, embedder,
		searchuc.WithObserver(observer),
		searchuc.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
		searchuc.WithTextDiscount(cfg.Search.TextDiscount),
	)

	knowledgeSvc := knowledgeuc.New(be.Repo, embedder, cfg.Collection.Dimensions).
		WithListLimits(cfg.Knowledge.DefaultListLimit, cfg.Knowledge.MaxListLimit).
		WithMaxBatchSize(cfg.Knowledge.MaxBatchSize)

	llm := openaiTransport.NewChat(&openaiTransport.ChatConfig{
		Config: openaiTransport.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Logger:  logger,
		},
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	healthSvc := healthuc.New(be.Pinger, provider)

	logger.Info("Services wired",
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("llm_model", cfg.LLM.Model),
		zap.Bool("embedding_cache", be.KV != nil && cfg.Embedding.Cache),
	)

	return &App{
		Search:    searchSvc,
		Knowledge: knowledgeSvc,
		Chat:      chatuc.New(searchSvc, llm),
		Health:    healthSvc,
		backend:   be,
	}, nil
}

// BackendConfig maps the file configuration onto the store settings.
func BackendConfig(cfg config.Config) backend.Config {
	// config.Validate has already rejected unknown algorithms.
	algo, _ := db.ParseVectorAlgorithm(cfg.Collection.Algorithm)
	return backend.Config{
		Driver:    cfg.Database.Driver,
		Addrs:     cfg.Database.Addrs,
		Username:  cfg.Database.Username,
		Password:  cfg.Database.Password,
		KeyPrefix: cfg.Database.KeyPrefix,
		Collection: domknow.CollectionSpec{
			Name:      cfg.Collection.Name,
			Dimension: cfg.Collection.Dimensions,
			Metric:    cfg.Collection.Metric,
		},
		Index: knowrepo.IndexConfig{
			Algorithm:   algo,
			M:           cfg.Collection.HNSWM,
			EFConstruct: cfg.Collection.HNSWEFConstruct,
		},
		ReadinessTimeout: time.Duration(cfg.Database.ReadinessTimeout) * time.Second,
	}
}

// WithCache wraps e with the embedding cache when it is enabled and the
// store has a key-value side. The namespace folds in the model so a model
// switch never serves stale vectors.
func WithCache(e domain.Embedder, kv db.KVStore, cfg config.Config, logger *zap.Logger) domain.Embedder {
	if !cfg.Embedding.Cache || kv == nil {
		return e
	}
	ns := fmt.Sprintf("%semb_cache:%s:", cfg.Database.KeyPrefix, cfg.Embedding.Model)
	return embcache.New(e, kv, ns, metrics.EmbeddingCacheTotal, logger)
}

// SearchMetrics binds the engine observer to the registered collectors.
func SearchMetrics() searchuc.Metrics {
	return searchuc.Metrics{
		Searches:        metrics.SearchQueriesTotal,
		ChannelHits:     metrics.SearchChannelHits,
		ChannelDuration: metrics.SearchChannelDuration,
		TextDegraded:    metrics.SearchTextDegradedTotal,
		Returned:        metrics.SearchResultsReturned,
	}
}
