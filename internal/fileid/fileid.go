// Package fileid provides deterministic document and chunk IDs.
// Re-ingesting the same source always yields the same IDs, so an ingest run
// replaces entries instead of duplicating them.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

const filePrefix = "file:"

// FileDocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID. Used for ingest/update/delete by path.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return filePrefix + hex.EncodeToString(hash[:])
}

// ChunkID returns a stable chunk ID derived from the source document ID and
// the chunk's ordinal position within it.
func ChunkID(documentID string, position int) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s#%d", documentID, position)))
	return hex.EncodeToString(hash[:16])
}
