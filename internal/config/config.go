// Package config provides configuration loading and structs for the Kotae server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Vector     VectorConfig     `yaml:"vector"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Ingest     IngestConfig     `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the document registry and index snapshots.
type StorageConfig struct {
	DatabasePath       string `yaml:"database_path"`
	VectorSnapshotPath string `yaml:"vector_snapshot_path"`
}

// VectorConfig holds vector index settings. Backend is "qdrant" or "memory".
type VectorConfig struct {
	Backend        string `yaml:"backend"`
	URL            string `yaml:"url"`
	APIKey         string `yaml:"api_key"`
	Collection     string `yaml:"collection"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// EmbeddingConfig holds embedder settings. Provider is "openai", "onnx", or
// "mock". Dimensions must match the collection: 1536 for OpenAI
// text-embedding-3-small, 384 for the local MiniLM ONNX model. One pairing
// per deployment; the dimension is validated against the collection at startup.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	ModelPath   string `yaml:"model_path"` // ONNX model file (onnx provider only)
	MaxTokens   int    `yaml:"max_tokens"` // tokenizer window (onnx provider only)
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	CacheSize   int    `yaml:"cache_size"`
}

// GenerationConfig holds answer generation settings.
type GenerationConfig struct {
	Model         string  `yaml:"model"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	HistoryWindow int     `yaml:"history_window"`
}

// RetrievalConfig holds retrieval and context assembly settings.
type RetrievalConfig struct {
	TopK            int     `yaml:"top_k"`
	ScoreThreshold  float64 `yaml:"score_threshold"`
	MaxContextChars int     `yaml:"max_context_chars"`
	ScaleFactor     float64 `yaml:"scale_factor"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
	MaxFollowups    int     `yaml:"max_followups"`
}

// IngestConfig holds chunking and corpus settings. ChunkOverlap is a pointer
// so an explicit 0 (no overlap) is distinguishable from unset.
type IngestConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap *int     `yaml:"chunk_overlap"`
	CorpusDirs   []string `yaml:"corpus_dirs"`
	Extensions   []string `yaml:"extensions"`
	Recursive    *bool    `yaml:"recursive"`
	Watch        bool     `yaml:"watch"`
}

// OverlapOrDefault returns the chunk overlap in runes; defaults to 200 when unset.
func (c *IngestConfig) OverlapOrDefault() int {
	if c.ChunkOverlap != nil {
		return *c.ChunkOverlap
	}
	return 200
}

// RecursiveOrDefault returns whether to walk corpus directories recursively;
// defaults to true when unset.
func (c *IngestConfig) RecursiveOrDefault() bool {
	if c.Recursive != nil {
		return *c.Recursive
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorSnapshotPath = expandPath(cfg.Storage.VectorSnapshotPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Ingest.CorpusDirs {
		cfg.Ingest.CorpusDirs[i] = expandPath(cfg.Ingest.CorpusDirs[i], configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks invariants that cannot be repaired by defaults.
func Validate(cfg *Config) error {
	if overlap := cfg.Ingest.OverlapOrDefault(); overlap < 0 || overlap >= cfg.Ingest.ChunkSize {
		return fmt.Errorf("chunk_overlap must satisfy 0 <= overlap < chunk_size (got %d/%d)",
			overlap, cfg.Ingest.ChunkSize)
	}
	switch cfg.Vector.Backend {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("unknown vector backend: %s (supported: memory, qdrant)", cfg.Vector.Backend)
	}
	switch cfg.Embedding.Provider {
	case "openai", "onnx", "mock":
	default:
		return fmt.Errorf("unknown embedding provider: %s (supported: openai, onnx, mock)", cfg.Embedding.Provider)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
