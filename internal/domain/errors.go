package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput signals a request the core refuses to process.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmbeddingFailed signals a failed or malformed embedding provider call.
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrStoreUnavailable signals that the vector store could not be reached or rejected the call.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrDimensionMismatch signals a vector whose length differs from the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrTextSearchNotSupported signals that the backend cannot evaluate a text-match predicate.
	ErrTextSearchNotSupported = errors.New("text search not supported by backend")
	// ErrLLMFailed signals a failed chat completion stream.
	ErrLLMFailed = errors.New("llm completion failed")
)
