package embedding

import "testing"

func TestSimpleTokenizer_Shape(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, mask, types := tok.Tokenize("gravity pulls objects", 16)
	if len(ids) != 16 || len(mask) != 16 || len(types) != 16 {
		t.Fatalf("lengths = %d/%d/%d, want 16", len(ids), len(mask), len(types))
	}
	if ids[0] != 101 {
		t.Errorf("ids[0] = %d, want [CLS] 101", ids[0])
	}
	// 3 words after [CLS], then [SEP].
	if ids[4] != 102 {
		t.Errorf("ids[4] = %d, want [SEP] 102", ids[4])
	}
	for i := 0; i <= 4; i++ {
		if mask[i] != 1 {
			t.Errorf("mask[%d] = %d, want 1", i, mask[i])
		}
	}
	if mask[5] != 0 {
		t.Errorf("mask[5] = %d, want 0 (padding)", mask[5])
	}
}

func TestSimpleTokenizer_Deterministic(t *testing.T) {
	tok := &SimpleTokenizer{}
	a, _, _ := tok.Tokenize("the same text", 8)
	b, _, _ := tok.Tokenize("the same text", 8)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("ids differ at %d: %d vs %d", i, a[i], b[i])
		}
	}
}

func TestSimpleTokenizer_TruncatesLongInput(t *testing.T) {
	tok := &SimpleTokenizer{}
	ids, mask, _ := tok.Tokenize("a b c d e f g h i j", 4)
	if len(ids) != 4 {
		t.Fatalf("len = %d, want 4", len(ids))
	}
	// Window holds [CLS], two words, then [SEP]; the rest is dropped.
	if ids[3] != 102 {
		t.Errorf("ids[3] = %d, want [SEP] 102", ids[3])
	}
	for i, m := range mask {
		if m != 1 {
			t.Errorf("mask[%d] = %d, want 1", i, m)
		}
	}
}

func TestHashString_NonNegative(t *testing.T) {
	for _, s := range []string{"", "a", "gravity", "日本語", "a very long string that overflows the accumulator eventually"} {
		if h := HashString(s); h < 0 {
			t.Errorf("HashString(%q) = %d, want non-negative", s, h)
		}
	}
}
