package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Int("k", req.K))
	resp, err := s.engine.Query(r.Context(), &req)
	if err != nil {
		s.respondErr(w, "query failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("k", req.K))
	resp, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		s.respondErr(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type ingestRequest struct {
	Documents []models.DocumentInput `json:"documents,omitempty"`
	// Path is a file or directory on the server's filesystem.
	Path string `json:"path,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 && req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "documents or path is required")
		return
	}
	start := time.Now()
	resp := models.IngestResponse{DocumentIDs: []string{}}

	for i := range req.Documents {
		doc, err := s.ingester.IngestDocument(r.Context(), &req.Documents[i])
		if err != nil {
			s.respondErr(w, "ingest failed", err)
			return
		}
		resp.DocumentIDs = append(resp.DocumentIDs, doc.ID)
		resp.IndexedCount += doc.ChunkCount
	}
	if req.Path != "" {
		info, err := os.Stat(req.Path)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("stat path: %v", err))
			return
		}
		if info.IsDir() {
			n, err := s.ingester.IngestDirectory(r.Context(), req.Path,
				s.cfg.Ingest.Extensions, s.cfg.Ingest.RecursiveOrDefault())
			if err != nil {
				s.respondErr(w, "ingest directory failed", err)
				return
			}
			resp.IndexedCount += n
		} else {
			if err := s.ingester.IngestFile(r.Context(), req.Path, nil); err != nil {
				s.respondErr(w, "ingest file failed", err)
				return
			}
			resp.IndexedCount++
		}
	}
	resp.ProcessingTime = time.Since(start).Seconds()
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 50)
	docs, err := s.storage.ListDocuments(r.Context(), offset, limit)
	if err != nil {
		s.respondErr(w, "list documents failed", err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		s.respondErr(w, "get document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete document request", zap.String("id", id))
	if err := s.ingester.DeleteDocument(r.Context(), id); err != nil {
		s.respondErr(w, "delete document failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.respondErr(w, "status: count documents failed", err)
		return
	}
	chunkCount, err := s.storage.CountChunks(ctx)
	if err != nil {
		s.respondErr(w, "status: count chunks failed", err)
		return
	}
	vectorCount, err := s.index.Count(ctx)
	if err != nil {
		// The index may be down while the registry is fine; report what we have.
		s.logger.Warn("status: count vectors failed", zap.Error(err))
		vectorCount = -1
	}

	resp := map[string]any{
		"documents": docCount,
		"chunks":    chunkCount,
		"vectors":   vectorCount,
		"config": map[string]any{
			"vector_backend":       s.cfg.Vector.Backend,
			"collection":           s.cfg.Vector.Collection,
			"embedding_provider":   s.cfg.Embedding.Provider,
			"embedding_dimensions": s.cfg.Embedding.Dimensions,
			"chunk_size":           s.cfg.Ingest.ChunkSize,
			"chunk_overlap":        s.cfg.Ingest.OverlapOrDefault(),
			"top_k":                s.cfg.Retrieval.TopK,
			"score_threshold":      s.cfg.Retrieval.ScoreThreshold,
		},
	}
	if diskBytes, err := storage.DiskUsageBytes(
		s.cfg.Storage.DatabasePath,
		s.cfg.Storage.VectorSnapshotPath,
	); err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// respondErr maps pipeline errors to HTTP status codes: invalid input is the
// client's fault, transient backend failures are 503, unknown documents 404,
// everything else 500.
func (s *Server) respondErr(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrUnavailable), errors.Is(err, models.ErrCollectionMissing):
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
