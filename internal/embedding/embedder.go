// Package embedding provides text embedding via OpenAI or a local ONNX model,
// with caching and a deterministic mock for tests.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Embedder produces fixed-dimension vector embeddings for text.
// Implementations must be safe for concurrent use and must return
// L2-normalized vectors so that inner product equals cosine similarity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch preserves order and length: result[i] is the embedding of
	// texts[i]. A failing item aborts the whole batch; the error names the
	// index of the item that failed.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// validateText rejects empty or whitespace-only input before any external call.
func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("cannot embed empty text: %w", models.ErrInvalidInput)
	}
	return nil
}

// wrapBatchErr annotates a batch failure with the index of the failing item.
func wrapBatchErr(index int, err error) error {
	return fmt.Errorf("embed batch item %d: %w", index, err)
}
