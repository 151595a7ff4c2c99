// Package knowledge holds the persisted knowledge-base document.
package knowledge

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kailas-cloud/ragchat/internal/domain/knowledge/metadata"
)

// MaxContentSize is the maximum document content size in bytes.
const MaxContentSize = 163840 // 160KB

// Document is a stored knowledge item (immutable value object).
// The id and timestamp are assigned once at ingestion and never change.
type Document struct {
	id        string
	content   string
	metadata  metadata.Map
	timestamp time.Time
	vector    []float32
}

// New validates content and creates a Document with a fresh UUID and creation time.
// Re-adding identical content yields a different id.
func New(content string, meta metadata.Map, now time.Time) (Document, error) {
	if strings.TrimSpace(content) == "" {
		return Document{}, fmt.Errorf("content is required")
	}
	if len(content) > MaxContentSize {
		return Document{}, fmt.Errorf("content too large (max %d bytes)", MaxContentSize)
	}
	if meta == nil {
		meta = metadata.Map{}
	}
	return Document{
		id:        uuid.NewString(),
		content:   content,
		metadata:  meta.Clone(),
		timestamp: now.UTC(),
	}, nil
}

// Reconstruct creates a Document without validation (storage hydration).
func Reconstruct(id, content string, meta metadata.Map, timestamp time.Time, vector []float32) Document {
	return Document{id: id, content: content, metadata: meta, timestamp: timestamp, vector: vector}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Content returns the document text.
func (d *Document) Content() string { return d.content }

// Metadata returns the free-form metadata.
func (d *Document) Metadata() metadata.Map { return d.metadata }

// Timestamp returns the creation time.
func (d *Document) Timestamp() time.Time { return d.timestamp }

// Vector returns the embedding vector.
func (d *Document) Vector() []float32 { return d.vector }

// WithVector returns a copy with the given vector set.
func (d *Document) WithVector(v []float32) Document {
	return Document{id: d.id, content: d.content, metadata: d.metadata, timestamp: d.timestamp, vector: v}
}
