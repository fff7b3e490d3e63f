package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

// Ingester chunks, embeds, and indexes documents. Re-ingesting a document is
// all-or-nothing: every chunk is embedded before any index or registry write,
// so a failed embedding leaves the previous version intact.
type Ingester struct {
	store     storage.Storage
	embedder  embedding.Embedder
	index     vector.Index
	chunker   *Chunker
	extractor *extract.Extractor
	logger    *zap.Logger // optional; when set, logs debug events

	// sourceLocks serializes writes per source so concurrent re-ingestion of
	// the same document cannot interleave delete and upsert.
	sourceLocks sync.Map
}

// IngesterOption configures an Ingester.
type IngesterOption func(*Ingester)

// WithLogger sets a logger for debug output (file ingested, document deleted, etc.).
func WithLogger(l *zap.Logger) IngesterOption {
	return func(ing *Ingester) { ing.logger = l }
}

// NewIngester creates an ingester with the given dependencies.
// extractor may be nil; when nil, IngestFile treats all files as plain text.
func NewIngester(
	store storage.Storage,
	embedder embedding.Embedder,
	index vector.Index,
	cfg *config.IngestConfig,
	extractor *extract.Extractor,
	opts ...IngesterOption,
) *Ingester {
	ing := &Ingester{
		store:     store,
		embedder:  embedder,
		index:     index,
		chunker:   NewChunker(cfg.ChunkSize, cfg.OverlapOrDefault()),
		extractor: extractor,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// IngestDocument chunks and embeds the document, then atomically replaces any
// previous version in the vector index and the registry.
func (ing *Ingester) IngestDocument(ctx context.Context, input *models.DocumentInput) (*models.Document, error) {
	content := Preprocess(input.Content)
	if content == "" {
		return nil, fmt.Errorf("document content is empty: %w", models.ErrInvalidInput)
	}
	if input.ID == "" {
		input.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	doc := &models.Document{
		ID:        input.ID,
		Title:     input.Title,
		Content:   content,
		Metadata:  input.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return ing.ingest(ctx, doc)
}

func (ing *Ingester) ingest(ctx context.Context, doc *models.Document) (*models.Document, error) {
	chunks := ing.chunker.Chunk(doc.ID, doc.Content)
	texts := make([]string, len(chunks))
	for i := range chunks {
		chunks[i].Metadata = doc.Metadata
		chunks[i].CreatedAt = doc.UpdatedAt
		texts[i] = chunks[i].Content
	}

	// Embed everything before the first write.
	embeddings, err := ing.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	source := sourceOf(doc)
	points := make([]vector.Point, len(chunks))
	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
		points[i] = vector.Point{
			ID:     chunks[i].ID,
			Vector: embeddings[i],
			Payload: vector.Payload{
				DocumentID: doc.ID,
				Content:    chunks[i].Content,
				Source:     source,
				Position:   chunks[i].Position,
				Metadata:   chunks[i].Metadata,
			},
		}
	}
	doc.ChunkCount = len(chunks)

	unlock := ing.lockSource(source)
	defer unlock()

	if err := ing.index.DeleteBySource(ctx, source); err != nil {
		return nil, fmt.Errorf("remove stale vectors: %w", err)
	}
	if err := ing.index.Upsert(ctx, points); err != nil {
		return nil, fmt.Errorf("index vectors: %w", err)
	}
	if err := ing.store.ReplaceDocument(ctx, doc, chunks); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	if ing.logger != nil {
		ing.logger.Debug("document ingested",
			zap.String("doc_id", doc.ID),
			zap.Int("chunks", len(chunks)))
	}
	return doc, nil
}

// IngestFile reads and ingests the file at path. The document ID is derived
// from the absolute path so re-ingesting updates the same document. Files
// already ingested with the same mtime and size are skipped. If allowedExts
// is non-empty, the file's extension must be in the list.
func (ing *Ingester) IngestFile(ctx context.Context, path string, allowedExts []string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return fmt.Errorf("extension %q not in allowed list: %w", ext, models.ErrInvalidInput)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", absPath)
	}
	docID := fileid.FileDocID(absPath)
	if ing.unchanged(ctx, docID, absPath, info) {
		if ing.logger != nil {
			ing.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		}
		return nil
	}

	text, err := ing.extractContent(absPath)
	if err != nil {
		return fmt.Errorf("extract content: %w", err)
	}
	content := Preprocess(text)
	if content == "" {
		return fmt.Errorf("file %s has no text content: %w", absPath, models.ErrInvalidInput)
	}
	now := time.Now().UTC()
	doc := &models.Document{
		ID:          docID,
		Title:       filepath.Base(absPath),
		Content:     content,
		SourcePath:  absPath,
		SourceMtime: info.ModTime().UnixNano(),
		SourceSize:  info.Size(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := ing.ingest(ctx, doc); err != nil {
		return err
	}
	if ing.logger != nil {
		ing.logger.Debug("file ingested", zap.String("path", absPath), zap.String("doc_id", docID))
	}
	return nil
}

// unchanged reports whether the file at absPath is already ingested with the
// same mtime and size.
func (ing *Ingester) unchanged(ctx context.Context, docID, absPath string, info os.FileInfo) bool {
	doc, err := ing.store.GetDocument(ctx, docID)
	if err != nil {
		return false
	}
	return doc.SourcePath == absPath &&
		doc.SourceMtime == info.ModTime().UnixNano() &&
		doc.SourceSize == info.Size()
}

// IngestDirectory walks dir and ingests each regular file whose extension is
// in allowedExts (all files when empty). When recursive is false only the
// top level is scanned. Returns the number of files ingested and the first
// error encountered.
func (ing *Ingester) IngestDirectory(ctx context.Context, dir string, allowedExts []string, recursive bool) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if !recursive && path != absDir {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil {
			return nil
		}
		if !finfo.Mode().IsRegular() {
			return nil
		}
		if ingestErr := ing.IngestFile(ctx, path, allowedExts); ingestErr != nil {
			return ingestErr
		}
		n++
		return nil
	})
	return n, err
}

// DeleteDocument removes a document from the vector index and the registry.
func (ing *Ingester) DeleteDocument(ctx context.Context, id string) error {
	doc, err := ing.store.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	source := sourceOf(doc)

	unlock := ing.lockSource(source)
	defer unlock()

	if err := ing.index.DeleteBySource(ctx, source); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := ing.store.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if ing.logger != nil {
		ing.logger.Debug("document deleted", zap.String("id", id))
	}
	return nil
}

// DeleteFile removes the document derived from path, if present.
func (ing *Ingester) DeleteFile(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return ing.DeleteDocument(ctx, fileid.FileDocID(absPath))
}

func (ing *Ingester) lockSource(source string) func() {
	v, _ := ing.sourceLocks.LoadOrStore(source, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (ing *Ingester) extractContent(path string) (string, error) {
	if ing.extractor != nil {
		return ing.extractor.Extract(path)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// sourceOf returns the vector payload source for a document: the file path
// for file-backed documents, the document ID otherwise.
func sourceOf(doc *models.Document) string {
	if doc.SourcePath != "" {
		return doc.SourcePath
	}
	return doc.ID
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
