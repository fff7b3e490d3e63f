// Package retrieval embeds queries, searches the vector index, and assembles
// bounded context for generation.
package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Retriever turns a query into scored passages from the vector index.
type Retriever struct {
	embedder embedding.Embedder
	index    vector.Index
	cfg      *config.RetrievalConfig
	logger   *zap.Logger
}

// NewRetriever creates a retriever with the given dependencies.
func NewRetriever(embedder embedding.Embedder, index vector.Index, cfg *config.RetrievalConfig, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    index,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve embeds the query and searches the index. K and threshold fall back
// to configured defaults when zero. An empty result set is not an error; it
// yields the floor confidence.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, threshold float64, filter map[string]string) (*models.RetrievalContext, error) {
	if k <= 0 {
		k = r.cfg.TopK
	}
	if threshold <= 0 {
		threshold = r.cfg.ScoreThreshold
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.index.Search(ctx, vec, vector.SearchParams{
		K:              k,
		ScoreThreshold: threshold,
		Filter:         filter,
	})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	rc := &models.RetrievalContext{
		Results:    results,
		Confidence: r.Confidence(results),
	}
	if r.logger != nil {
		r.logger.Debug("retrieved passages",
			zap.Int("count", len(results)),
			zap.Float64("confidence", rc.Confidence))
	}
	return rc, nil
}

// Confidence scores a result set: the mean similarity scaled up, capped at
// 0.95 so an answer is never presented as certain. No results means the
// floor confidence.
func (r *Retriever) Confidence(results []models.SearchResult) float64 {
	if len(results) == 0 {
		return r.cfg.ConfidenceFloor
	}
	var sum float64
	for _, res := range results {
		sum += res.Score
	}
	c := (sum / float64(len(results))) * r.cfg.ScaleFactor
	if c > 0.95 {
		c = 0.95
	}
	return c
}
