package result

import "github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"

// Result is a single ranked hit of a hybrid search call. Never persisted.
type Result struct {
	id       string
	score    float64
	content  string
	metadata metadata.Map
}

// New creates a search result.
func New(id string, score float64, content string, meta metadata.Map) Result {
	return Result{id: id, score: score, content: content, metadata: meta}
}

// ID returns the document identifier.
func (r *Result) ID() string { return r.id }

// Score returns the relevance score; higher is better.
func (r *Result) Score() float64 { return r.score }

// Content returns the document content.
func (r *Result) Content() string { return r.content }

// Metadata returns the document metadata.
func (r *Result) Metadata() metadata.Map { return r.metadata }

// WithScore returns a copy carrying a different score.
func (r *Result) WithScore(score float64) Result {
	return Result{id: r.id, score: score, content: r.content, metadata: r.metadata}
}
