package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
embedding:
  provider: mock
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("host default not applied: %q", cfg.Server.Host)
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("mock provider should default to 384 dimensions, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Retrieval.TopK != 5 || cfg.Retrieval.ScoreThreshold != 0.7 {
		t.Errorf("retrieval defaults: k=%d threshold=%v", cfg.Retrieval.TopK, cfg.Retrieval.ScoreThreshold)
	}
	if cfg.Ingest.ChunkSize != 1000 || cfg.Ingest.OverlapOrDefault() != 200 {
		t.Errorf("chunking defaults: %d/%d", cfg.Ingest.ChunkSize, cfg.Ingest.OverlapOrDefault())
	}
	if cfg.Vector.Collection != "book_content" {
		t.Errorf("collection default: %q", cfg.Vector.Collection)
	}
}

func TestLoad_OpenAIDimensionDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("embedding:\n  provider: openai\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("openai provider should default to 1536 dimensions, got %d", cfg.Embedding.Dimensions)
	}
}

func TestLoad_RejectsBadOverlap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
ingest:
  chunk_size: 100
  chunk_overlap: 100
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for overlap >= chunk_size")
	}
}

func TestLoad_ExplicitZeroOverlap(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
ingest:
  chunk_size: 100
  chunk_overlap: 0
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := cfg.Ingest.OverlapOrDefault(); got != 0 {
		t.Errorf("explicit zero overlap overwritten to %d", got)
	}
}

func TestLoad_RejectsUnknownBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("vector:\n  backend: faiss\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandPath(t *testing.T) {
	got := expandPath("./data/db.sqlite", "/etc/kotae")
	if got != "/etc/kotae/data/db.sqlite" {
		t.Errorf("expandPath relative-to-config: %q", got)
	}
	if expandPath("/abs/path", "/etc/kotae") != "/abs/path" {
		t.Error("absolute path should be unchanged")
	}
	if expandPath("", "/etc/kotae") != "" {
		t.Error("empty path should be unchanged")
	}
}

func TestIngestConfig_RecursiveOrDefault(t *testing.T) {
	c := &IngestConfig{}
	if !c.RecursiveOrDefault() {
		t.Error("recursive should default to true")
	}
	f := false
	c.Recursive = &f
	if c.RecursiveOrDefault() {
		t.Error("explicit false should be honored")
	}
}
