// Package models defines core data structures for documents, chunks, queries,
// and retrieval results.
package models

import "time"

// ChunkMetadata is the structured metadata attached to every indexed chunk.
// It is serialized the same way on write and read; filters match its fields
// exactly.
type ChunkMetadata struct {
	ChapterID   string   `json:"chapter_id,omitempty" yaml:"chapter_id"`
	Section     string   `json:"section,omitempty" yaml:"section"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
	ContentType string   `json:"content_type,omitempty" yaml:"content_type"`
	Difficulty  string   `json:"difficulty,omitempty" yaml:"difficulty"`
}

// Document represents one source document of the corpus (a chapter file,
// an uploaded section, etc.) as recorded in the registry.
type Document struct {
	ID          string        `json:"id" db:"id"`
	Title       string        `json:"title" db:"title"`
	Content     string        `json:"content" db:"content"`
	Metadata    ChunkMetadata `json:"metadata" db:"metadata"`
	SourcePath  string        `json:"source_path,omitempty" db:"source_path"`
	SourceMtime int64         `json:"-" db:"source_mtime"`
	SourceSize  int64         `json:"-" db:"source_size"`
	ChunkCount  int           `json:"chunk_count" db:"chunk_count"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// Chunk is a bounded span of a source document stored as one retrievable
// unit with its own embedding. Start and End are rune offsets into the
// preprocessed document content.
type Chunk struct {
	ID         string        `json:"id" db:"id"`
	DocumentID string        `json:"document_id" db:"document_id"`
	Content    string        `json:"content" db:"content"`
	Position   int           `json:"position" db:"position"`
	Start      int           `json:"start" db:"start_offset"`
	End        int           `json:"end" db:"end_offset"`
	Embedding  []float32     `json:"-" db:"-"`
	Metadata   ChunkMetadata `json:"metadata" db:"-"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for ingesting or re-ingesting a document.
type DocumentInput struct {
	ID       string        `json:"id,omitempty"`
	Title    string        `json:"title,omitempty"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}
