// Package backend opens the configured vector store and binds it to the
// knowledge collection. It is shared by the server binaries and the
// embeddable client.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragchat/internal/db"
	dbRedis "github.com/kailas-cloud/ragchat/internal/db/redis"
	dbValkey "github.com/kailas-cloud/ragchat/internal/db/valkey"
	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	knowrepo "github.com/kailas-cloud/ragchat/internal/repository/knowledge"
	milvusrepo "github.com/kailas-cloud/ragchat/internal/repository/milvus"
	knowledgeuc "github.com/kailas-cloud/ragchat/internal/usecase/knowledge"
	searchuc "github.com/kailas-cloud/ragchat/internal/usecase/search"
)

// Supported drivers.
const (
	DriverValkey = "valkey"
	DriverRedis  = "redis"
	DriverMilvus = "milvus"
)

const defaultReadinessTimeout = 10 * time.Second

// Config selects and addresses the store.
type Config struct {
	Driver           string
	Addrs            []string
	Username         string
	Password         string
	KeyPrefix        string // valkey/redis only
	Collection       domknow.CollectionSpec
	Index            knowrepo.IndexConfig // valkey/redis only
	ReadinessTimeout time.Duration
}

// Repository is everything the use cases need from one bound collection.
type Repository interface {
	searchuc.Repository
	knowledgeuc.Repository
	EnsureCollection(ctx context.Context) error
}

// Backend is an open store bound to the knowledge collection.
type Backend struct {
	Repo   Repository
	Pinger db.Pinger
	// KV backs the embedding cache. Nil when the driver has no key-value side.
	KV      db.KVStore
	closeFn func()
}

// Close releases the store connection.
func (b *Backend) Close() {
	if b != nil && b.closeFn != nil {
		b.closeFn()
	}
}

// Open dials the store, waits for it and makes sure the collection exists
// with the configured dimension. Any failure closes what was opened.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.Addrs) == 0 {
		return nil, errors.New("database address is required")
	}
	spec, err := domknow.NewCollectionSpec(cfg.Collection.Name, cfg.Collection.Dimension, cfg.Collection.Metric)
	if err != nil {
		return nil, fmt.Errorf("collection: %w", err)
	}
	cfg.Collection = spec

	switch cfg.Driver {
	case DriverValkey:
		s, err := dbValkey.NewStore(dbValkey.Config{Addrs: cfg.Addrs, Username: cfg.Username, Password: cfg.Password})
		if err != nil {
			return nil, fmt.Errorf("create valkey store: %w", err)
		}
		return openFT(ctx, s, cfg, logger)
	case DriverRedis:
		s, err := dbRedis.NewStore(dbRedis.Config{Addrs: cfg.Addrs, Username: cfg.Username, Password: cfg.Password})
		if err != nil {
			return nil, fmt.Errorf("create redis store: %w", err)
		}
		return openFT(ctx, s, cfg, logger)
	case DriverMilvus:
		cli, err := milvusrepo.NewClient(ctx, milvusrepo.Config{
			Address:  cfg.Addrs[0],
			Username: cfg.Username,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, err
		}
		repo, err := milvusrepo.New(cli, cfg.Collection)
		if err != nil {
			_ = cli.Close()
			return nil, fmt.Errorf("milvus repository: %w", err)
		}
		return openMilvus(ctx, repo, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openFT(ctx context.Context, s db.Store, cfg Config, logger *zap.Logger) (*Backend, error) {
	timeout := cfg.ReadinessTimeout
	if timeout <= 0 {
		timeout = defaultReadinessTimeout
	}
	if err := s.WaitForReady(ctx, timeout); err != nil {
		s.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}

	repo := knowrepo.New(s, cfg.KeyPrefix, cfg.Collection).WithIndex(cfg.Index)
	if err := repo.EnsureCollection(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("ensure collection %q: %w", cfg.Collection.Name, err)
	}

	logger.Info("Knowledge collection ready",
		zap.String("driver", cfg.Driver),
		zap.String("collection", cfg.Collection.Name),
		zap.Int("dimension", cfg.Collection.Dimension),
		zap.Bool("text_search", s.SupportsTextSearch(ctx)),
	)
	return &Backend{Repo: repo, Pinger: s, KV: s, closeFn: s.Close}, nil
}

type milvusRepo interface {
	Repository
	db.Pinger
	Close()
}

func openMilvus(ctx context.Context, repo milvusRepo, logger *zap.Logger) (*Backend, error) {
	if err := repo.EnsureCollection(ctx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	logger.Info("Knowledge collection ready", zap.String("driver", DriverMilvus))
	return &Backend{Repo: repo, Pinger: repo, closeFn: repo.Close}, nil
}
