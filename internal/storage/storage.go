// Package storage defines the persistence interface for the document registry.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage persists documents and their chunks. The vector index holds the
// embeddings; storage is the registry used for listings, incremental
// re-ingestion, and rebuilds.
type Storage interface {
	// ReplaceDocument upserts the document and replaces all of its chunks in
	// one transaction.
	ReplaceDocument(ctx context.Context, doc *models.Document, chunks []models.Chunk) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	// DeleteDocument removes the document and its chunks. Deleting a missing
	// document is not an error.
	DeleteDocument(ctx context.Context, id string) error

	GetChunksByDocumentID(ctx context.Context, docID string) ([]models.Chunk, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	Close() error
}
