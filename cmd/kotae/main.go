// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory wins (for development), so "kotae server" from the
// project dir picks up the project's config. Returns the config and the path
// actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys live in .env during development; absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch os.Args[1] {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file events, retrieval scores, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var watchSvc *watcher.Watcher
	if cfg.Ingest.Watch && len(cfg.Ingest.CorpusDirs) > 0 {
		watchOpts := []watcher.Option{watcher.WithLogger(logger)}
		watchSvc = watcher.NewWatcher(&cfg.Ingest, components.Ingester, watchOpts...)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		watchSvc.SyncExisting(watchCtx)
	}

	srv := server.NewServer(
		components.Engine,
		components.Ingester,
		components.Storage,
		components.Index,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if watchSvc != nil {
		watchSvc.Stop()
	}
	components.SaveSnapshot(logger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags (and their values) that appear after the query to
// the front of the slice so flag.Parse() sees them. The flag package stops at
// the first non-flag argument.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	args := reorderArgs(os.Args[2:])
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run the pipeline in-process)")
	k := fs.Int("k", 0, "number of passages to retrieve (0 = config default)")
	threshold := fs.Float64("threshold", 0, "minimum similarity score (0 = config default)")
	chapter := fs.String("chapter", "", "restrict retrieval to a chapter id")
	contentType := fs.String("content-type", "", "restrict retrieval to a content type")
	difficulty := fs.String("difficulty", "", "restrict retrieval to a difficulty level")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
		fmt.Fprintf(fs.Output(), "The question is all remaining arguments joined by spaces.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	question := buildQuery(fs.Args())
	if question == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	req := &models.QueryRequest{
		Query:          question,
		K:              *k,
		ScoreThreshold: *threshold,
		ChapterID:      *chapter,
		ContentType:    *contentType,
		Difficulty:     *difficulty,
	}

	var resp *models.QueryResponse
	if *serverURL != "" {
		resp, err = postJSON[models.QueryResponse](*serverURL+"/api/v1/query", req)
	} else {
		resp, err = askDirect(*configPath, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askDirect(configPath string, req *models.QueryRequest) (*models.QueryResponse, error) {
	components, err := initializeFromPath(configPath)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Query(context.Background(), req)
}

func runSearch() {
	args := reorderArgs(os.Args[2:])
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = run the pipeline in-process)")
	k := fs.Int("k", 0, "number of passages to retrieve (0 = config default)")
	threshold := fs.Float64("threshold", 0, "minimum similarity score (0 = config default)")
	chapter := fs.String("chapter", "", "restrict retrieval to a chapter id")
	source := fs.String("source", "", "restrict retrieval to one source document")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae search [flags] <query>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	query := buildQuery(fs.Args())
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	req := &models.SearchRequest{
		Query:          query,
		K:              *k,
		ScoreThreshold: *threshold,
		ChapterID:      *chapter,
		Source:         *source,
	}

	var resp *models.SearchResponse
	if *serverURL != "" {
		resp, err = postJSON[models.SearchResponse](*serverURL+"/api/v1/search", req)
	} else {
		resp, err = searchDirect(*configPath, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchDirect(configPath string, req *models.SearchRequest) (*models.SearchResponse, error) {
	components, err := initializeFromPath(configPath)
	if err != nil {
		return nil, err
	}
	defer components.Close()
	return components.Engine.Search(context.Background(), req)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	components, err := initializeFromPath(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Ingester.IngestDirectory(ctx, path,
			components.Config.Ingest.Extensions, components.Config.Ingest.RecursiveOrDefault())
		if err != nil {
			fmt.Printf("Ingesting directory failed: %v\n", err)
			os.Exit(1)
		}
		components.SaveSnapshot(nil)
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	// Single file: no extension filter.
	if err := components.Ingester.IngestFile(ctx, path, nil); err != nil {
		fmt.Printf("Ingesting failed: %v\n", err)
		os.Exit(1)
	}
	components.SaveSnapshot(nil)
	fmt.Printf("Document ingested: %s\n", path)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	components, err := initializeFromPath(*configPath)
	if err != nil {
		fmt.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	if err := components.Ingester.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Printf("Deletion failed: %v\n", err)
		os.Exit(1)
	}
	components.SaveSnapshot(nil)
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = read local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status map[string]any
	if *serverURL != "" {
		res, err := getJSON[map[string]any](*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		components, err := initializeFromPath(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		ctx := context.Background()
		docCount, err := components.Storage.CountDocuments(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count documents failed: %v\n", err)
			os.Exit(1)
		}
		chunkCount, err := components.Storage.CountChunks(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Count chunks failed: %v\n", err)
			os.Exit(1)
		}
		vecCount, err := components.Index.Count(ctx)
		if err != nil {
			vecCount = -1
		}
		status = map[string]any{
			"documents": docCount,
			"chunks":    chunkCount,
			"vectors":   vecCount,
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:  %v   # source documents in the registry\n", status["documents"])
		fmt.Printf("chunks:     %v   # retrievable passages\n", status["chunks"])
		fmt.Printf("vectors:    %v   # embeddings in the index\n", status["vectors"])
		if v, ok := status["disk_usage_bytes"]; ok {
			fmt.Printf("disk_usage: %v bytes\n", v)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func postJSON[T any](url string, body any) (*T, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse[T](resp)
}

func getJSON[T any](url string) (*T, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse[T](resp)
}

func decodeResponse[T any](resp *http.Response) (*T, error) {
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Components holds initialized services.
type Components struct {
	Config    *config.Config
	Storage   storage.Storage
	Embedder  embedding.Embedder
	Index     vector.Index
	Engine    *rag.Engine
	Ingester  *ingest.Ingester
	memory    *vector.MemoryIndex // non-nil when the memory backend is active
}

func (c *Components) Close() {
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Index != nil {
		_ = c.Index.Close()
	}
}

// SaveSnapshot persists the in-memory index when a snapshot path is
// configured. A no-op for the Qdrant backend, which is durable on its own.
func (c *Components) SaveSnapshot(logger *zap.Logger) {
	path := c.Config.Storage.VectorSnapshotPath
	if c.memory == nil || path == "" {
		return
	}
	if err := c.memory.Save(path); err != nil {
		if logger != nil {
			logger.Warn("vector snapshot save failed", zap.String("path", path), zap.Error(err))
		} else {
			fmt.Fprintf(os.Stderr, "vector snapshot save failed: %v\n", err)
		}
	}
}

func initializeFromPath(configPath string) (*Components, error) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}
	return initializeComponents(cfg, logger, cfg.Debug)
}

func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	embedder, err := newEmbedder(cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var index vector.Index
	var memoryIndex *vector.MemoryIndex
	switch cfg.Vector.Backend {
	case "qdrant":
		index = vector.NewQdrantIndex(vector.QdrantConfig{
			URL:        cfg.Vector.URL,
			APIKey:     cfg.Vector.APIKey,
			Collection: cfg.Vector.Collection,
			Timeout:    time.Duration(cfg.Vector.TimeoutSeconds) * time.Second,
		})
	default:
		memoryIndex = vector.NewMemoryIndex()
		if cfg.Storage.VectorSnapshotPath != "" {
			if loadErr := memoryIndex.Load(cfg.Storage.VectorSnapshotPath); loadErr != nil {
				logger.Warn("vector snapshot load skipped (re-ingest to rebuild)",
					zap.String("path", cfg.Storage.VectorSnapshotPath), zap.Error(loadErr))
			}
		}
		index = memoryIndex
	}

	// The collection must exist with the right dimensionality before any
	// read or write. Qdrant may still be starting up, so retry briefly.
	ensureCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = utils.Retry(ensureCtx, 3, 500*time.Millisecond,
		func(err error) bool { return errors.Is(err, models.ErrUnavailable) },
		func() error { return index.EnsureCollection(ensureCtx, embedder.Dimensions()) })
	if err != nil {
		_ = store.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("failed to prepare vector collection: %w", err)
	}
	logger.Info("vector index ready",
		zap.String("backend", cfg.Vector.Backend),
		zap.String("collection", cfg.Vector.Collection),
		zap.Int("dimensions", embedder.Dimensions()))

	generator := newGenerator(cfg, logger)

	var retrieverLogger, engineLogger *zap.Logger
	if debug {
		retrieverLogger = logger
		engineLogger = logger
	}
	retriever := retrieval.NewRetriever(embedder, index, &cfg.Retrieval, retrieverLogger)
	assembler := retrieval.NewAssembler(&cfg.Retrieval)
	engine := rag.NewEngine(retriever, assembler, generator, &cfg.Generation, engineLogger)

	ingOpts := []ingest.IngesterOption{}
	if debug {
		ingOpts = append(ingOpts, ingest.WithLogger(logger))
	}
	ingester := ingest.NewIngester(store, embedder, index, &cfg.Ingest, extract.NewExtractor(), ingOpts...)

	return &Components{
		Config:    cfg,
		Storage:   store,
		Embedder:  embedder,
		Index:     index,
		Engine:    engine,
		Ingester:  ingester,
		memory:    memoryIndex,
	}, nil
}

func newEmbedder(cfg *config.Config, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		embedder, err := embedding.NewOpenAIEmbedder(embedding.OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       cfg.Embedding.Model,
			Dimensions:  cfg.Embedding.Dimensions,
			BatchSize:   cfg.Embedding.BatchSize,
			Concurrency: cfg.Embedding.Concurrency,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize OpenAI embedder: %w", err)
		}
		return embedder, nil
	case "onnx":
		embedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			// A missing runtime or model should not block development use.
			logger.Warn("ONNX embedder unavailable, using mock embeddings", zap.Error(err))
			return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
		}
		return embedder, nil
	default:
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions), nil
	}
}

func newGenerator(cfg *config.Config, logger *zap.Logger) answer.Generator {
	generator, err := answer.NewOpenAIGenerator(answer.OpenAIConfig{
		APIKey:      os.Getenv("OPENAI_API_KEY"),
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
	})
	if err != nil {
		logger.Warn("answer generation unavailable, echoing retrieved context", zap.Error(err))
		return answer.NewMockGenerator()
	}
	return generator
}

func printUsage() {
	fmt.Println(`kotae - Question answering over your book corpus

Usage:
  kotae server [flags]            Start the HTTP server
  kotae ask [flags] <question>    Ask a question about the corpus
  kotae search [flags] <query>    Retrieve passages without generating an answer
  kotae ingest [flags] <path>     Ingest a file or directory
  kotae delete [flags] <id>       Delete a document
  kotae status [flags]            Show corpus and index status
  kotae version                   Show version
  kotae help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging (file events, retrieval scores, etc.)

Ask / Search Flags:
  --config string        Config file path (for in-process mode)
  --server string        Server URL (default: http://localhost:8080). Use --server "" to run in-process.
  --k int                Number of passages to retrieve (default from config)
  --threshold float      Minimum similarity score (default from config)
  --chapter string       Restrict retrieval to a chapter id
  --output string        Output format: text, compact, or json (default: text)

Examples:
  kotae server
  kotae ask "what is gravity"
  kotae ask --chapter ch3 how do forces combine
  kotae search --output json "newton's laws"
  kotae ingest ./corpus/book
  kotae delete doc-123
  kotae status --output json`)
}
