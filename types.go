package ragchat

import (
	"context"
	"time"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult is one embedding with its token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// SearchResult is one ranked hit of HybridSearch.
type SearchResult struct {
	ID       string
	Score    float64
	Content  string
	Metadata map[string]any
}

// Document is a stored knowledge item.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Timestamp time.Time
}

// KnowledgeItem is one entry of AddKnowledgeBatch.
type KnowledgeItem struct {
	Content  string
	Metadata map[string]any
}

// Errors returned by the client; match them with errors.Is.
var (
	ErrNotFound          = domain.ErrNotFound
	ErrInvalidInput      = domain.ErrInvalidInput
	ErrEmbeddingFailed   = domain.ErrEmbeddingFailed
	ErrStoreUnavailable  = domain.ErrStoreUnavailable
	ErrDimensionMismatch = domain.ErrDimensionMismatch
)
