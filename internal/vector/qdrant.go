package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// QdrantIndex is a REST client to a Qdrant collection.
type QdrantIndex struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// QdrantConfig configures a QdrantIndex.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewQdrantIndex creates a Qdrant-backed index. It does not touch the server;
// call EnsureCollection before writing.
func NewQdrantIndex(cfg QdrantConfig) *QdrantIndex {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantIndex{
		baseURL:    cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureCollection creates the collection with cosine distance if missing and
// verifies the dimensions of an existing one.
func (q *QdrantIndex) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive: %w", models.ErrInvalidInput)
	}

	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := q.do(ctx, http.MethodGet, q.collectionURL(""), nil, &info)
	if err != nil {
		return err
	}
	switch {
	case status == http.StatusOK:
		if got := info.Result.Config.Params.Vectors.Size; got != dimensions {
			return fmt.Errorf("collection %q has %d dimensions, config expects %d: %w",
				q.collection, got, dimensions, models.ErrConfigMismatch)
		}
		return nil
	case status == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimensions,
				"distance": "Cosine",
			},
		}
		status, err = q.do(ctx, http.MethodPut, q.collectionURL(""), body, nil)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return fmt.Errorf("create collection %q: status %d: %w", q.collection, status, models.ErrUnavailable)
		}
		return nil
	default:
		return statusErr("get collection", status)
	}
}

// Upsert writes points and waits for them to be persisted.
func (q *QdrantIndex) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := map[string]any{"points": make([]map[string]any, 0, len(points))}
	pts := body["points"].([]map[string]any)
	for _, p := range points {
		pts = append(pts, map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		})
	}
	body["points"] = pts
	status, err := q.do(ctx, http.MethodPut, q.collectionURL("/points?wait=true"), body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusErr("upsert points", status)
	}
	return nil
}

// Search runs a filtered similarity search and maps payloads to results.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, params SearchParams) ([]models.SearchResult, error) {
	if params.K <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":       query,
		"limit":        params.K,
		"with_payload": true,
	}
	if params.ScoreThreshold > 0 {
		body["score_threshold"] = params.ScoreThreshold
	}
	if f := filterClause(params.Filter); f != nil {
		body["filter"] = f
	}

	var resp struct {
		Result []struct {
			ID      any     `json:"id"`
			Score   float64 `json:"score"`
			Payload Payload `json:"payload"`
		} `json:"result"`
	}
	status, err := q.do(ctx, http.MethodPost, q.collectionURL("/points/search"), body, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("collection %q does not exist: %w", q.collection, models.ErrCollectionMissing)
	}
	if status != http.StatusOK {
		return nil, statusErr("search points", status)
	}

	results := make([]models.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, models.SearchResult{
			ID:       fmt.Sprintf("%v", r.ID),
			Score:    r.Score,
			Content:  r.Payload.Content,
			Source:   r.Payload.Source,
			Position: r.Payload.Position,
			Metadata: r.Payload.Metadata,
		})
	}
	return results, nil
}

// Delete removes points by ID.
func (q *QdrantIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	body := map[string]any{"points": ids}
	status, err := q.do(ctx, http.MethodPost, q.collectionURL("/points/delete?wait=true"), body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return statusErr("delete points", status)
	}
	return nil
}

// DeleteBySource removes all points whose payload source matches.
func (q *QdrantIndex) DeleteBySource(ctx context.Context, source string) error {
	body := map[string]any{
		"filter": filterClause(map[string]string{"source": source}),
	}
	status, err := q.do(ctx, http.MethodPost, q.collectionURL("/points/delete?wait=true"), body, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return statusErr("delete points by source", status)
	}
	return nil
}

// Count returns the number of points in the collection.
func (q *QdrantIndex) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	status, err := q.do(ctx, http.MethodPost, q.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, nil
	}
	if status != http.StatusOK {
		return 0, statusErr("count points", status)
	}
	return resp.Result.Count, nil
}

// Close is a no-op for QdrantIndex.
func (q *QdrantIndex) Close() error {
	return nil
}

func (q *QdrantIndex) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", q.baseURL, q.collection, suffix)
}

// do issues a JSON request and decodes the response when out is non-nil.
// Transport failures map to ErrUnavailable; HTTP status handling is left
// to the caller since 404 means different things per endpoint.
func (q *QdrantIndex) do(ctx context.Context, method, url string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("qdrant %s %s: %v: %w", method, url, err, models.ErrUnavailable)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// statusErr maps an unexpected HTTP status to the error taxonomy.
func statusErr(op string, status int) error {
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("qdrant %s: status %d: %w", op, status, models.ErrUnavailable)
	}
	return fmt.Errorf("qdrant %s: unexpected status %d", op, status)
}

// filterClause builds a Qdrant must-match filter from exact-match pairs.
func filterClause(filter map[string]string) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filter))
	for key, value := range filter {
		field := key
		switch key {
		case "chapter_id", "content_type", "difficulty":
			field = "metadata." + key
		}
		must = append(must, map[string]any{
			"key":   field,
			"match": map[string]any{"value": value},
		})
	}
	return map[string]any{"must": must}
}
