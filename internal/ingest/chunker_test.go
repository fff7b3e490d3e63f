package ingest

import (
	"strings"
	"testing"
)

func TestChunker_OverlappingWindows(t *testing.T) {
	c := NewChunker(1000, 200)
	text := strings.Repeat("a", 2400)

	chunks := c.Chunk("doc1", text)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	wantSpans := [][2]int{{0, 1000}, {800, 1800}, {1600, 2400}}
	for i, want := range wantSpans {
		if chunks[i].Start != want[0] || chunks[i].End != want[1] {
			t.Errorf("chunk %d span = [%d, %d), want [%d, %d)",
				i, chunks[i].Start, chunks[i].End, want[0], want[1])
		}
		if chunks[i].Position != i {
			t.Errorf("chunk %d position = %d", i, chunks[i].Position)
		}
		if len([]rune(chunks[i].Content)) != want[1]-want[0] {
			t.Errorf("chunk %d length = %d", i, len(chunks[i].Content))
		}
	}
}

func TestChunker_ConsecutiveChunksOverlap(t *testing.T) {
	c := NewChunker(100, 30)
	text := strings.Repeat("x", 500)

	chunks := c.Chunk("doc1", text)
	for i := 1; i < len(chunks); i++ {
		overlap := chunks[i-1].End - chunks[i].Start
		if overlap != 30 {
			t.Errorf("overlap between chunk %d and %d = %d, want 30", i-1, i, overlap)
		}
	}
	if last := chunks[len(chunks)-1]; last.End != 500 {
		t.Errorf("last chunk ends at %d, want 500", last.End)
	}
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(1000, 200)
	chunks := c.Chunk("doc1", "short text")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Content != "short text" || chunks[0].Position != 0 {
		t.Errorf("chunk = %+v", chunks[0])
	}
}

func TestChunker_EmptyText(t *testing.T) {
	c := NewChunker(1000, 200)
	if chunks := c.Chunk("doc1", ""); chunks != nil {
		t.Errorf("expected nil for empty text, got %d chunks", len(chunks))
	}
}

func TestChunker_DeterministicIDs(t *testing.T) {
	c := NewChunker(100, 20)
	text := strings.Repeat("b", 300)

	first := c.Chunk("doc1", text)
	second := c.Chunk("doc1", text)
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("chunk %d ID differs between runs", i)
		}
	}
	other := c.Chunk("doc2", text)
	if first[0].ID == other[0].ID {
		t.Error("different documents should produce different chunk IDs")
	}
}

func TestChunker_MultibyteRuneOffsets(t *testing.T) {
	c := NewChunker(4, 1)
	chunks := c.Chunk("doc1", "日本語のテキスト")
	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	if chunks[0].End != 4 || len([]rune(chunks[0].Content)) != 4 {
		t.Errorf("first chunk = %+v", chunks[0])
	}
	for _, ch := range chunks {
		if !strings.Contains("日本語のテキスト", ch.Content) {
			t.Errorf("chunk %q split mid-rune", ch.Content)
		}
	}
}

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims", "  hello  ", "hello"},
		{"collapses spaces", "a   b\t\tc", "a b c"},
		{"keeps paragraph break", "para one\n\n\npara two", "para one\npara two"},
		{"empty", "   \n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preprocess(tt.in); got != tt.want {
				t.Errorf("Preprocess(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
