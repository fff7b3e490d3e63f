package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestParseFormat(t *testing.T) {
	for _, valid := range []string{"text", "json", "compact"} {
		if _, err := ParseFormat(valid); err != nil {
			t.Errorf("ParseFormat(%q) = %v", valid, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("ParseFormat(\"yaml\") should fail")
	}
}

func TestWriteAnswer_Text(t *testing.T) {
	var buf bytes.Buffer
	err := WriteAnswer(&buf, &models.QueryResponse{
		Answer:     "Gravity is the attraction between masses.",
		Confidence: 0.88,
		Sources: []models.SourceRef{
			{Source: "physics.md", ChapterID: "ch3", Score: 0.85},
		},
		SuggestedFollowups: []string{"Tell me more about forces"},
	}, OutputText)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Gravity is the attraction", "confidence: 0.88", "physics.md, ch3", "Tell me more about forces"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteAnswer_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteAnswer(&buf, &models.QueryResponse{Answer: "a"}, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var resp models.QueryResponse
	if err := json.Unmarshal(buf.Bytes(), &resp); err != nil {
		t.Fatalf("not valid JSON: %v", err)
	}
	if resp.Answer != "a" {
		t.Errorf("answer = %q", resp.Answer)
	}
}

func TestWriteSearchResults_Compact(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSearchResults(&buf, &models.SearchResponse{
		Results: []models.SearchResult{
			{Score: 0.91, Source: "a.md", Content: "first\nline"},
			{Score: 0.82, Source: "b.md", Content: "second"},
		},
		Total: 2,
	}, OutputCompact)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %v", lines)
	}
	if !strings.HasPrefix(lines[0], "0.9100\ta.md\t") || strings.Contains(lines[0], "\n") {
		t.Errorf("line = %q", lines[0])
	}
}

func TestWriteSearchResults_Text(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSearchResults(&buf, &models.SearchResponse{
		Results: []models.SearchResult{{
			Score:    0.9,
			Source:   "physics.md",
			Content:  "Gravity pulls.",
			Metadata: models.ChunkMetadata{ChapterID: "ch3"},
		}},
		Total: 1,
	}, OutputText)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 1 passage(s)", "Rank: 1", "physics.md", "Chapter: ch3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
