package knowledge

import (
	"context"

	"github.com/kailas-cloud/ragchat/internal/domain"
	domknow "github.com/kailas-cloud/ragchat/internal/domain/knowledge"
)

// Repository persists knowledge documents.
type Repository interface {
	Upsert(ctx context.Context, doc domknow.Document) error
	Delete(ctx context.Context, id string) error
	Scroll(ctx context.Context, limit, offset int) ([]domknow.Document, error)
	Count(ctx context.Context) (int, error)
}

// Embedder vectorizes document content. Implementations that also satisfy
// domain.BatchEmbedder get one provider call per batch.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
