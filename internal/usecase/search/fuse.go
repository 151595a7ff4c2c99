package search

import (
	"sort"

	"github.com/kailas-cloud/ragchat/internal/domain/search/result"
)

// DefaultTextDiscount scales the score of hits found only by the text channel.
const DefaultTextDiscount = 0.8

// FuseStats describes one fusion run.
type FuseStats struct {
	VectorHits int
	TextHits   int
	TextOnly   int
	Returned   int
}

// Fuse merges the two channels by document id, vector channel first.
// Vector hits keep their score and the first occurrence of an id wins.
// A text hit is added only when its id is new, with its score multiplied by discount.
// The union is sorted by score descending, ties keeping insertion order,
// and cut to limit.
func Fuse(vector, text []result.Result, limit int, discount float64) ([]result.Result, FuseStats) {
	stats := FuseStats{VectorHits: len(vector), TextHits: len(text)}

	seen := make(map[string]struct{}, len(vector)+len(text))
	merged := make([]result.Result, 0, len(vector)+len(text))

	for _, r := range vector {
		if _, ok := seen[r.ID()]; ok {
			continue
		}
		seen[r.ID()] = struct{}{}
		merged = append(merged, r)
	}

	for _, r := range text {
		if _, ok := seen[r.ID()]; ok {
			continue
		}
		seen[r.ID()] = struct{}{}
		merged = append(merged, r.WithScore(r.Score()*discount))
		stats.TextOnly++
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score() > merged[j].Score()
	})

	if limit >= 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	stats.Returned = len(merged)

	return merged, stats
}
