package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/domain/search/filter"
	"github.com/kailas-cloud/ragchat/internal/domain/search/request"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

// Service runs hybrid retrieval: one embedding, a vector query and a
// text-filtered query with the same vector, fused by document id.
// It keeps no state between calls.
type Service struct {
	repo         Repository
	embed        Embedder
	observer     Observer
	defaultLimit int
	maxLimit     int
	discount     float64
}

// Option configures a Service.
type Option func(*Service)

// WithObserver sets the event observer.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithLimits sets the default and maximum result limits.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

// WithTextDiscount sets the score multiplier for text-only hits.
func WithTextDiscount(d float64) Option {
	return func(s *Service) {
		if d > 0 && d <= 1 {
			s.discount = d
		}
	}
}

// New creates a search service.
func New(repo Repository, embed Embedder, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		embed:        embed,
		observer:     nopObserver{},
		defaultLimit: request.DefaultLimit,
		maxLimit:     request.MaxLimit,
		discount:     DefaultTextDiscount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultLimit returns the limit applied when callers pass 0.
func (s *Service) DefaultLimit() int { return s.defaultLimit }

// HybridSearch embeds query once, runs the vector and text channels in
// parallel and fuses them. limit=0 selects the default limit.
//
// An embedding failure returns domain.ErrEmbeddingFailed before any store
// query. A vector channel failure is fatal. A text channel failure degrades
// the call to vector-only results.
func (s *Service) HybridSearch(ctx context.Context, query string, limit int) ([]result.Result, error) {
	req, err := request.NewWithBounds(query, limit, s.defaultLimit, s.maxLimit)
	if err != nil {
		return nil, err
	}

	s.observer.Observe(ctx, Event{Kind: EventQueryIssued, Query: req.Query(), Limit: req.Limit()})

	emb, err := s.embed.Embed(ctx, req.Query())
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingFailed) {
			return nil, fmt.Errorf("vectorize query: %w", err)
		}
		return nil, fmt.Errorf("vectorize query: %w: %w", domain.ErrEmbeddingFailed, err)
	}

	var (
		vectorHits, textHits []result.Result
		textErr              error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.runChannel(gctx, ChannelVector, emb.Embedding, req.Limit(), filter.Expression{})
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		// never fails the group: a text error must not cancel the vector channel
		textHits, textErr = s.runChannel(gctx, ChannelText, emb.Embedding, req.Limit(),
			filter.ContentMatches(req.Query()))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	if textErr != nil {
		s.observer.Observe(ctx, Event{Kind: EventTextDegraded, Channel: ChannelText, Err: textErr})
		textHits = nil
	}

	fused, stats := Fuse(vectorHits, textHits, req.Limit(), s.discount)
	s.observer.Observe(ctx, Event{Kind: EventFused, Limit: req.Limit(), Fusion: stats})

	return fused, nil
}

func (s *Service) runChannel(
	ctx context.Context, ch Channel, vector []float32, limit int, filters filter.Expression,
) ([]result.Result, error) {
	start := time.Now()
	hits, err := s.repo.Query(ctx, vector, limit, filters)
	if err != nil {
		return nil, err
	}
	s.observer.Observe(ctx, Event{Kind: EventChannelDone, Channel: ch, Hits: len(hits), Duration: time.Since(start)})
	return hits, nil
}
