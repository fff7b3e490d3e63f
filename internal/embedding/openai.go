package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OpenAIEmbedder produces embeddings through the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client      *openai.Client
	model       string
	dimensions  int
	batchSize   int
	concurrency int
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	APIKey      string
	Model       string // e.g. text-embedding-3-small
	Dimensions  int    // 0 = derive from model
	BatchSize   int    // texts per API request
	Concurrency int    // concurrent API requests during EmbedBatch
}

// NewOpenAIEmbedder creates an embedder backed by the OpenAI API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is not set")
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	dims := cfg.Dimensions
	if dims == 0 {
		switch model {
		case string(openai.LargeEmbedding3):
			dims = 3072
		default:
			dims = 1536
		}
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &OpenAIEmbedder{
		client:      openai.NewClient(cfg.APIKey),
		model:       model,
		dimensions:  dims,
		batchSize:   batchSize,
		concurrency: concurrency,
	}, nil
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	vecs, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in API requests of at most batchSize inputs,
// fanned out under the configured concurrency limit. Any failure aborts
// the whole batch with the index of the first item of the failing request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for i, text := range texts {
		if err := validateText(text); err != nil {
			return nil, wrapBatchErr(i, err)
		}
	}
	embeddings := make([][]float32, len(texts))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, e.concurrency)
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}
			vecs, err := e.request(ctx, texts[start:end])
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = wrapBatchErr(start, err)
				}
				mu.Unlock()
				cancel()
				return
			}
			copy(embeddings[start:end], vecs)
		}(start, end)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// request issues one embeddings API call for texts and returns normalized vectors.
func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, classifyEmbedErr(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d: %w", len(texts), len(resp.Data), models.ErrEmbedding)
	}
	vecs := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		utils.NormalizeL2(v)
		vecs[i] = v
	}
	return vecs, nil
}

// classifyEmbedErr maps provider errors onto the error taxonomy: rate limits
// and server errors are transient (retryable), everything else from the API
// is a permanent embedding failure, and transport errors are transient.
func classifyEmbedErr(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return fmt.Errorf("openai embeddings: %v: %w", err, models.ErrUnavailable)
		}
		return fmt.Errorf("openai embeddings: %v: %w", err, models.ErrEmbedding)
	}
	return fmt.Errorf("openai embeddings: %v: %w", err, models.ErrUnavailable)
}

// Dimensions returns the embedding dimension of the configured model.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for OpenAIEmbedder.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
