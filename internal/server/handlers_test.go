package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

func newTestServer(t *testing.T) (*Server, *embedding.MockEmbedder, *vector.MemoryIndex) {
	t.Helper()
	ctx := context.Background()

	var cfg config.Config
	config.ApplyDefaults(&cfg)
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "documents.db")
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimensions = 64
	cfg.Ingest.ChunkSize = 100
	overlap := 20
	cfg.Ingest.ChunkOverlap = &overlap

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	index := vector.NewMemoryIndex()
	if err := index.EnsureCollection(ctx, cfg.Embedding.Dimensions); err != nil {
		t.Fatal(err)
	}

	engine := rag.NewEngine(
		retrieval.NewRetriever(embedder, index, &cfg.Retrieval, nil),
		retrieval.NewAssembler(&cfg.Retrieval),
		answer.NewMockGenerator(),
		&cfg.Generation,
		nil,
	)
	ingester := ingest.NewIngester(store, embedder, index, &cfg.Ingest, nil)
	srv := NewServer(engine, ingester, store, index, &cfg, zap.NewNop())
	return srv, embedder, index
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
}

// seedPassage indexes payload under the embedding of query so that searching
// for query is an exact match.
func seedPassage(t *testing.T, embedder *embedding.MockEmbedder, index *vector.MemoryIndex, query string, payload vector.Payload) {
	t.Helper()
	ctx := context.Background()
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		t.Fatal(err)
	}
	if err := index.Upsert(ctx, []vector.Point{{ID: payload.Content, Vector: vec, Payload: payload}}); err != nil {
		t.Fatal(err)
	}
}

func TestHandleQuery(t *testing.T) {
	srv, embedder, index := newTestServer(t)
	seedPassage(t, embedder, index, "what is gravity", vector.Payload{
		DocumentID: "d1",
		Content:    "Gravity is the attraction between masses.",
		Source:     "physics.md",
	})

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/query",
		models.QueryRequest{Query: "what is gravity"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.QueryResponse
	decodeInto(t, rec, &resp)
	if resp.Answer == "" || resp.Answer == rag.NoContextAnswer {
		t.Errorf("answer = %q", resp.Answer)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].Source != "physics.md" {
		t.Errorf("sources = %+v", resp.Sources)
	}
}

func TestHandleQuery_EmptyQuery(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/query",
		models.QueryRequest{Query: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleQuery_InvalidBody(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleQuery_NoResultsIsStillOK(t *testing.T) {
	srv, embedder, index := newTestServer(t)
	seedPassage(t, embedder, index, "unrelated topic", vector.Payload{
		Content: "noise", Source: "other.md",
	})

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/query",
		models.QueryRequest{Query: "what is gravity"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.QueryResponse
	decodeInto(t, rec, &resp)
	if resp.Answer != rag.NoContextAnswer {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.Confidence != 0.3 {
		t.Errorf("confidence = %v, want floor 0.3", resp.Confidence)
	}
}

func TestHandleSearch(t *testing.T) {
	srv, embedder, index := newTestServer(t)
	seedPassage(t, embedder, index, "what is gravity", vector.Payload{
		Content: "Gravity pulls.", Source: "physics.md",
	})

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/search",
		models.SearchRequest{Query: "what is gravity"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp models.SearchResponse
	decodeInto(t, rec, &resp)
	if resp.Total != 1 || len(resp.Results) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Results[0].Source != "physics.md" {
		t.Errorf("result = %+v", resp.Results[0])
	}
}

func TestHandleIngest_DocumentLifecycle(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Routes()

	rec := doRequest(t, router, http.MethodPost, "/api/v1/ingest", ingestRequest{
		Documents: []models.DocumentInput{{
			ID:      "doc1",
			Title:   "Forces",
			Content: "Gravity pulls objects toward each other. Every mass attracts every other mass.",
		}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var ingested models.IngestResponse
	decodeInto(t, rec, &ingested)
	if ingested.IndexedCount == 0 || len(ingested.DocumentIDs) != 1 {
		t.Errorf("resp = %+v", ingested)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/documents/doc1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var doc models.Document
	decodeInto(t, rec, &doc)
	if doc.Title != "Forces" || doc.ChunkCount == 0 {
		t.Errorf("doc = %+v", doc)
	}

	rec = doRequest(t, router, http.MethodDelete, "/api/v1/documents/doc1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/documents/doc1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}

func TestHandleIngest_RequiresInput(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/v1/ingest", ingestRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDeleteDocument_Missing(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Routes(), http.MethodDelete, "/api/v1/documents/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleListDocuments(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Routes()

	doRequest(t, router, http.MethodPost, "/api/v1/ingest", ingestRequest{
		Documents: []models.DocumentInput{
			{ID: "a", Content: "content for document a"},
			{ID: "b", Content: "content for document b"},
		},
	})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/documents?limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Documents []models.Document `json:"documents"`
	}
	decodeInto(t, rec, &resp)
	if len(resp.Documents) != 2 {
		t.Errorf("documents = %+v", resp.Documents)
	}
}

func TestHandleStatus(t *testing.T) {
	srv, _, _ := newTestServer(t)
	router := srv.Routes()

	rec := doRequest(t, router, http.MethodPost, "/api/v1/ingest", ingestRequest{
		Documents: []models.DocumentInput{{ID: "doc1", Content: "short status content"}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("ingest status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, router, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	decodeInto(t, rec, &resp)
	if resp["documents"].(float64) != 1 {
		t.Errorf("documents = %v", resp["documents"])
	}
	if resp["vectors"].(float64) != 1 {
		t.Errorf("vectors = %v", resp["vectors"])
	}
	cfgInfo, ok := resp["config"].(map[string]any)
	if !ok || cfgInfo["collection"] != "book_content" {
		t.Errorf("config = %v", resp["config"])
	}
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(t, srv.Routes(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
