package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kailas-cloud/ragchat/internal/domain"
	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
)

// Defaults for listing and batching.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
	MaxBatchSize     = 100
)

// Item is one document to ingest.
type Item struct {
	Content  string
	Metadata metadata.Map
}

// Service ingests, removes and lists knowledge documents.
type Service struct {
	repo         Repository
	embed        Embedder
	dimension    int
	defaultLimit int
	maxLimit     int
	maxBatchSize int
	now          func() time.Time
}

// New creates a knowledge service. dimension is the collection vector size;
// zero disables the local check and leaves it to the repository.
func New(repo Repository, embed Embedder, dimension int) *Service {
	return &Service{
		repo:         repo,
		embed:        embed,
		dimension:    dimension,
		defaultLimit: DefaultListLimit,
		maxLimit:     MaxListLimit,
		maxBatchSize: MaxBatchSize,
		now:          time.Now,
	}
}

// WithListLimits configures listing page sizes.
func (s *Service) WithListLimits(defaultLimit, maxLimit int) *Service {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	return s
}

// WithMaxBatchSize configures the maximum batch size.
func (s *Service) WithMaxBatchSize(size int) *Service {
	if size > 0 {
		s.maxBatchSize = size
	}
	return s
}

// Add embeds content and stores it as a new document. Every call assigns a
// fresh id, so adding the same content twice creates two documents.
func (s *Service) Add(ctx context.Context, content string, meta metadata.Map) (string, error) {
	doc, err := domknow.New(content, meta, s.now())
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidInput, err)
	}

	res, err := s.embed.Embed(ctx, doc.Content())
	if err != nil {
		return "", embedErr("vectorize document", err)
	}

	if err := s.checkDimension(res.Embedding); err != nil {
		return "", err
	}

	if err := s.repo.Upsert(ctx, doc.WithVector(res.Embedding)); err != nil {
		return "", fmt.Errorf("upsert document: %w", err)
	}
	return doc.ID(), nil
}

// AddBatch embeds all items in one batch call and stores them in input order.
// Validation happens up front: one invalid item rejects the whole batch.
// A storage failure stops the batch; documents written before it stay.
func (s *Service) AddBatch(ctx context.Context, items []Item) ([]string, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: batch is empty", domain.ErrInvalidInput)
	}
	if len(items) > s.maxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds %d", domain.ErrInvalidInput, len(items), s.maxBatchSize)
	}

	now := s.now()
	docs := make([]domknow.Document, len(items))
	texts := make([]string, len(items))
	for i, it := range items {
		doc, err := domknow.New(it.Content, it.Metadata, now)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d: %w", domain.ErrInvalidInput, i, err)
		}
		docs[i] = doc
		texts[i] = doc.Content()
	}

	res, err := domain.EmbedBatch(ctx, s.embed, texts)
	if err != nil {
		return nil, embedErr("vectorize batch", err)
	}
	if len(res.Embeddings) != len(docs) {
		return nil, fmt.Errorf("%w: got %d vectors for %d items",
			domain.ErrEmbeddingFailed, len(res.Embeddings), len(docs))
	}

	ids := make([]string, 0, len(docs))
	for i := range docs {
		if err := s.checkDimension(res.Embeddings[i]); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	for i := range docs {
		if err := s.repo.Upsert(ctx, docs[i].WithVector(res.Embeddings[i])); err != nil {
			return ids, fmt.Errorf("upsert item %d: %w", i, err)
		}
		ids = append(ids, docs[i].ID())
	}
	return ids, nil
}

// Delete removes a document by id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", domain.ErrInvalidInput)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// List returns a page of documents. limit=0 selects the default page size;
// larger limits are clamped.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domknow.Document, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", domain.ErrInvalidInput)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", domain.ErrInvalidInput)
	}
	if limit == 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	docs, err := s.repo.Scroll(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Count returns the number of stored documents.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (s *Service) checkDimension(v []float32) error {
	if s.dimension > 0 && len(v) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(v), s.dimension)
	}
	return nil
}

func embedErr(op string, err error) error {
	if errors.Is(err, domain.ErrEmbeddingFailed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrEmbeddingFailed, err)
}
