package retrieval

import (
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func result(id, source, content string, score float64, tags ...string) models.SearchResult {
	return models.SearchResult{
		ID:       id,
		Score:    score,
		Content:  content,
		Source:   source,
		Metadata: models.ChunkMetadata{Tags: tags},
	}
}

func TestAssembler_IncludesAllWithinBudget(t *testing.T) {
	a := NewAssembler(testRetrievalConfig())
	results := []models.SearchResult{
		result("c1", "a.md", "first passage", 0.9),
		result("c2", "b.md", "second passage", 0.8),
	}

	asm := a.Assemble(results)
	if asm.Included != 2 || asm.Truncated {
		t.Fatalf("included=%d truncated=%v", asm.Included, asm.Truncated)
	}
	if !strings.Contains(asm.Context, "first passage") || !strings.Contains(asm.Context, "second passage") {
		t.Errorf("context = %q", asm.Context)
	}
	if !strings.Contains(asm.Context, "[a.md]") {
		t.Errorf("missing attribution: %q", asm.Context)
	}
}

func TestAssembler_DropsWholeLowestPassages(t *testing.T) {
	cfg := testRetrievalConfig()
	cfg.MaxContextChars = 60
	a := NewAssembler(cfg)

	results := []models.SearchResult{
		result("c1", "a.md", strings.Repeat("x", 40), 0.9),
		result("c2", "b.md", strings.Repeat("y", 40), 0.8),
	}
	asm := a.Assemble(results)
	if asm.Included != 1 || !asm.Truncated {
		t.Fatalf("included=%d truncated=%v", asm.Included, asm.Truncated)
	}
	if strings.Contains(asm.Context, "y") {
		t.Error("low-scored passage should be dropped whole, not split")
	}
	if len(asm.Context) > 60 {
		t.Errorf("context length %d exceeds budget", len(asm.Context))
	}
	if len(asm.Sources) != 1 || asm.Sources[0].Source != "a.md" {
		t.Errorf("sources = %+v", asm.Sources)
	}
}

func TestAssembler_KeepsTopPassageOverBudget(t *testing.T) {
	cfg := testRetrievalConfig()
	cfg.MaxContextChars = 30
	a := NewAssembler(cfg)

	results := []models.SearchResult{
		result("c1", "a.md", strings.Repeat("x", 100), 0.9),
		result("c2", "b.md", strings.Repeat("y", 100), 0.8),
	}
	asm := a.Assemble(results)
	if asm.Included != 1 || !asm.Truncated {
		t.Fatalf("included=%d truncated=%v", asm.Included, asm.Truncated)
	}
	if asm.Context == "" || !strings.Contains(asm.Context, "x") {
		t.Errorf("best passage must survive the budget, got %q", asm.Context)
	}

	asm = a.Assemble(results[:1])
	if asm.Included != 1 || asm.Truncated {
		t.Fatalf("single passage: included=%d truncated=%v", asm.Included, asm.Truncated)
	}
}

func TestAssembler_DeduplicatesSourcesByDocument(t *testing.T) {
	a := NewAssembler(testRetrievalConfig())
	results := []models.SearchResult{
		result("c1", "a.md", "one", 0.9),
		result("c2", "a.md", "two", 0.85),
		result("c3", "b.md", "three", 0.8),
	}

	asm := a.Assemble(results)
	if len(asm.Sources) != 2 {
		t.Fatalf("sources = %+v", asm.Sources)
	}
	if asm.Sources[0].Source != "a.md" || asm.Sources[0].Score != 0.9 {
		t.Errorf("first source should be the best hit of a.md: %+v", asm.Sources[0])
	}
	if asm.Sources[1].Source != "b.md" {
		t.Errorf("sources = %+v", asm.Sources)
	}
}

func TestAssembler_FollowupsFromTagsCapped(t *testing.T) {
	a := NewAssembler(testRetrievalConfig())
	results := []models.SearchResult{
		result("c1", "a.md", "one", 0.9, "gravity", "mass"),
		result("c2", "b.md", "two", 0.8, "gravity", "orbits", "tides", "energy"),
	}

	asm := a.Assemble(results)
	if len(asm.Followups) != 3 {
		t.Fatalf("followups = %v", asm.Followups)
	}
	want := []string{
		"Tell me more about gravity",
		"Tell me more about mass",
		"Tell me more about orbits",
	}
	for i, w := range want {
		if asm.Followups[i] != w {
			t.Errorf("followups[%d] = %q, want %q", i, asm.Followups[i], w)
		}
	}
}

func TestAssembler_EmptyResults(t *testing.T) {
	a := NewAssembler(testRetrievalConfig())
	asm := a.Assemble(nil)
	if asm.Context != "" || asm.Included != 0 || asm.Truncated {
		t.Errorf("assembly = %+v", asm)
	}
	if len(asm.Sources) != 0 || len(asm.Followups) != 0 {
		t.Errorf("assembly = %+v", asm)
	}
}
