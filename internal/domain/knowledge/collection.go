package knowledge

import (
	"fmt"
	"strings"
)

// Similarity metrics accepted by CollectionSpec.
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
	MetricIP     = "ip"
)

// CollectionSpec describes the single knowledge collection.
// It is created once if absent and never altered afterwards.
type CollectionSpec struct {
	Name      string
	Dimension int
	Metric    string
}

// NewCollectionSpec validates and normalizes a collection description.
// An empty metric selects cosine.
func NewCollectionSpec(name string, dimension int, metric string) (CollectionSpec, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return CollectionSpec{}, fmt.Errorf("collection name is required")
	}
	if dimension <= 0 {
		return CollectionSpec{}, fmt.Errorf("collection dimension must be positive, got %d", dimension)
	}
	metric = strings.ToLower(strings.TrimSpace(metric))
	switch metric {
	case "":
		metric = MetricCosine
	case MetricCosine, MetricL2, MetricIP:
	default:
		return CollectionSpec{}, fmt.Errorf("unsupported metric %q", metric)
	}
	return CollectionSpec{Name: name, Dimension: dimension, Metric: metric}, nil
}

// CheckVector reports a length mismatch against the collection dimension.
func (s CollectionSpec) CheckVector(v []float32) error {
	if len(v) != s.Dimension {
		return fmt.Errorf("expected %d, got %d", s.Dimension, len(v))
	}
	return nil
}
