package models

import (
	"errors"
	"testing"
)

func TestQueryRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   *QueryRequest
		wantErr bool
	}{
		{"empty query", &QueryRequest{Query: ""}, true},
		{"whitespace-only query", &QueryRequest{Query: "   \t\n"}, true},
		{"valid query", &QueryRequest{Query: "what is a servo motor?"}, false},
		{"negative k", &QueryRequest{Query: "x", K: -1}, true},
		{"caps k at 20", &QueryRequest{Query: "x", K: 50}, false},
		{"threshold above one", &QueryRequest{Query: "x", ScoreThreshold: 1.5}, true},
		{"threshold below zero", &QueryRequest{Query: "x", ScoreThreshold: -0.1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.query.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if tt.name == "caps k at 20" && tt.query.K != 20 {
				t.Errorf("expected k capped at 20, got %d", tt.query.K)
			}
		})
	}
}

func TestQueryRequest_ValidateTrims(t *testing.T) {
	q := &QueryRequest{Query: "  what is torque?  "}
	if err := q.Validate(); err != nil {
		t.Fatal(err)
	}
	if q.Query != "what is torque?" {
		t.Errorf("query not trimmed: %q", q.Query)
	}
}

func TestQueryRequest_Filter(t *testing.T) {
	q := &QueryRequest{Query: "x", ChapterID: "chapter-3", Difficulty: "beginner"}
	f := q.Filter()
	if len(f) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(f))
	}
	if f["chapter_id"] != "chapter-3" || f["difficulty"] != "beginner" {
		t.Errorf("unexpected filter: %v", f)
	}

	unfiltered := &QueryRequest{Query: "x"}
	if unfiltered.Filter() != nil {
		t.Error("expected nil filter for unfiltered request")
	}
}

func TestRetrievalContext_Empty(t *testing.T) {
	var nilCtx *RetrievalContext
	if !nilCtx.Empty() {
		t.Error("nil context should be empty")
	}
	if !(&RetrievalContext{}).Empty() {
		t.Error("zero context should be empty")
	}
	rc := &RetrievalContext{Results: []SearchResult{{ID: "a"}}}
	if rc.Empty() {
		t.Error("context with results should not be empty")
	}
}
