package ingest

import (
	"strings"
	"unicode"
)

// Preprocess normalizes text before chunking: trims, collapses runs of
// spaces and tabs, and collapses blank-line runs to a single newline so
// paragraph boundaries survive.
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	pendingNewline := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if r == '\n' {
				pendingNewline = true
			} else {
				pendingSpace = true
			}
			continue
		}
		if pendingNewline {
			b.WriteByte('\n')
		} else if pendingSpace {
			b.WriteByte(' ')
		}
		pendingSpace = false
		pendingNewline = false
		b.WriteRune(r)
	}
	return b.String()
}
