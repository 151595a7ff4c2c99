package request

import (
	"fmt"

	"github.com/kailas-cloud/ragchat/internal/domain"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength = 4096
	DefaultLimit   = 10
	MaxLimit       = 100
)

// Request is a validated hybrid search query.
type Request struct {
	query string
	limit int
}

// New validates and normalizes search parameters.
// limit=0 selects DefaultLimit, negative limits are rejected and limits above MaxLimit are clamped.
// An empty query is accepted and embedded like any other text.
func New(query string, limit int) (Request, error) {
	return NewWithBounds(query, limit, DefaultLimit, MaxLimit)
}

// NewWithBounds is New with configurable default and maximum limits.
// A limit above maxLimit is capped to maxLimit, not rejected.
func NewWithBounds(query string, limit, defaultLimit, maxLimit int) (Request, error) {
	if len(query) > MaxQueryLength {
		return Request{}, fmt.Errorf("%w: query too long (max %d chars)", domain.ErrInvalidInput, MaxQueryLength)
	}
	if limit < 0 {
		return Request{}, fmt.Errorf("%w: limit must be positive, got %d", domain.ErrInvalidInput, limit)
	}
	if limit == 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Request{query: query, limit: limit}, nil
}

// Query returns the raw query text.
func (r *Request) Query() string { return r.query }

// Limit returns the result cap.
func (r *Request) Limit() int { return r.limit }
