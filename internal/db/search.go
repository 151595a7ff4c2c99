package db

import "github.com/kailas-cloud/ragchat/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Filters      filter.Expression // pre-filter; empty means every point
	Vector       []float32
	K            int
	ReturnFields []string
	Metric       DistanceMetric // converts __vector_score to a similarity; default COSINE
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64 // similarity, higher is better
	Fields map[string]string
}
