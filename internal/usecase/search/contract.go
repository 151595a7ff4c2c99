package search

import (
	"context"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/domain/search/filter"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

// Repository runs similarity queries against the knowledge collection.
// Results come back ordered by similarity, highest first.
type Repository interface {
	Query(ctx context.Context, vector []float32, limit int, filters filter.Expression) ([]result.Result, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
