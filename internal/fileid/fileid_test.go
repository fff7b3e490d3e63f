package fileid

import "testing"

func TestFileDocID_Deterministic(t *testing.T) {
	a := FileDocID("/corpus/chapter1.md")
	b := FileDocID("/corpus/chapter1.md")
	if a != b {
		t.Errorf("same path should yield same ID: %s != %s", a, b)
	}
	if a == FileDocID("/corpus/chapter2.md") {
		t.Error("different paths should yield different IDs")
	}
}

func TestFileDocID_CleansPath(t *testing.T) {
	if FileDocID("/corpus/./chapter1.md") != FileDocID("/corpus/chapter1.md") {
		t.Error("equivalent paths should yield the same ID")
	}
}

func TestChunkID_Deterministic(t *testing.T) {
	a := ChunkID("doc-1", 0)
	if a != ChunkID("doc-1", 0) {
		t.Error("same (document, position) should yield same ID")
	}
	if a == ChunkID("doc-1", 1) {
		t.Error("different positions should yield different IDs")
	}
	if a == ChunkID("doc-2", 0) {
		t.Error("different documents should yield different IDs")
	}
}
