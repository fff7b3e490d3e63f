// Package vector provides vector storage and similarity search over chunk
// embeddings, backed by Qdrant or an in-memory index.
package vector

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Payload is the metadata stored alongside each vector.
type Payload struct {
	DocumentID string               `json:"document_id"`
	Content    string               `json:"content"`
	Source     string               `json:"source"`
	Position   int                  `json:"position"`
	Metadata   models.ChunkMetadata `json:"metadata"`
}

// FilterValue returns the payload field addressed by a filter key,
// or "" when the key is unknown.
func (p *Payload) FilterValue(key string) string {
	switch key {
	case "source":
		return p.Source
	case "document_id":
		return p.DocumentID
	case "chapter_id":
		return p.Metadata.ChapterID
	case "content_type":
		return p.Metadata.ContentType
	case "difficulty":
		return p.Metadata.Difficulty
	}
	return ""
}

// Point is one vector with its ID and payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// SearchParams bound a similarity search.
type SearchParams struct {
	K              int
	ScoreThreshold float64
	// Filter matches payload fields exactly; all entries must match.
	Filter map[string]string
}

// Index is a vector store for chunk embeddings. Implementations must be safe
// for concurrent use. Scores are cosine similarity in [0, 1]; callers are
// expected to store and query L2-normalized vectors.
type Index interface {
	// EnsureCollection creates the collection if missing and verifies that an
	// existing collection has the given dimensions (ErrConfigMismatch if not).
	EnsureCollection(ctx context.Context, dimensions int) error
	Upsert(ctx context.Context, points []Point) error
	// Search returns up to K results at or above ScoreThreshold, ordered by
	// descending score. An empty result is not an error.
	Search(ctx context.Context, query []float32, params SearchParams) ([]models.SearchResult, error)
	Delete(ctx context.Context, ids []string) error
	DeleteBySource(ctx context.Context, source string) error
	Count(ctx context.Context) (int, error)
	Close() error
}
