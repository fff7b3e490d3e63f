// Package ingest turns source documents into embedded, indexed chunks.
package ingest

import (
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
)

// Chunker splits text into overlapping character windows. Offsets are in
// runes so multi-byte text never splits mid-character.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given window size and overlap, in
// characters. Overlap must be smaller than size; the step is clamped to at
// least one character.
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Chunk splits text into overlapping chunks for docID. Chunk IDs are derived
// from the document ID and position, so re-chunking identical content yields
// identical IDs.
func (c *Chunker) Chunk(docID, text string) []models.Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	var chunks []models.Chunk
	for i := 0; i < len(runes); i += step {
		end := i + c.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		position := len(chunks)
		chunks = append(chunks, models.Chunk{
			ID:         fileid.ChunkID(docID, position),
			DocumentID: docID,
			Content:    string(runes[i:end]),
			Position:   position,
			Start:      i,
			End:        end,
		})
		if end >= len(runes) {
			break
		}
	}
	return chunks
}
