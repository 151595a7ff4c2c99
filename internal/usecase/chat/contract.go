package chat

import (
	"context"

	"github.com/kailas-cloud/ragchat/internal/domain"
	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

// Searcher retrieves ranked knowledge for a query.
type Searcher interface {
	HybridSearch(ctx context.Context, query string, limit int) ([]result.Result, error)
}

// LLM produces chat completions.
type LLM interface {
	// Stream calls onDelta for every non-empty content delta, in order.
	// An error from onDelta stops the stream and is returned.
	Stream(ctx context.Context, msgs []domain.ChatMessage, onDelta func(delta string) error) error
	Complete(ctx context.Context, msgs []domain.ChatMessage) (string, error)
}

// Sink receives the parts of a streamed answer.
type Sink interface {
	Results(results []result.Result) error
	Delta(content string) error
}
