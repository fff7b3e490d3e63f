package extract

import (
	"strings"
	"unicode/utf8"
)

// extractPlain treats content as UTF-8 text. Byte sequences that are not
// valid UTF-8 are replaced rather than rejected, so a mostly-text file with
// a stray byte still ingests.
func extractPlain(content []byte) (string, error) {
	if utf8.Valid(content) {
		return string(content), nil
	}
	return strings.ToValidUTF8(string(content), "�"), nil
}
