package models

// SearchResult is one retrieved chunk with its similarity score
// (cosine similarity, higher is closer).
type SearchResult struct {
	ID       string        `json:"id"`
	Score    float64       `json:"score"`
	Content  string        `json:"content"`
	Source   string        `json:"source"`
	Position int           `json:"position"`
	Metadata ChunkMetadata `json:"metadata"`
}

// RetrievalContext is the bounded, ordered set of results selected to ground
// one answer. Results are in descending score order. It is constructed per
// query and discarded after the answer is produced.
type RetrievalContext struct {
	Results    []SearchResult `json:"results"`
	Confidence float64        `json:"confidence"`
}

// Empty reports whether no grounding was found.
func (rc *RetrievalContext) Empty() bool {
	return rc == nil || len(rc.Results) == 0
}

// SourceRef identifies one grounding source with enough metadata to be
// independently verifiable.
type SourceRef struct {
	ID             string  `json:"id"`
	Score          float64 `json:"score"`
	Source         string  `json:"source"`
	ChapterID      string  `json:"chapter_id,omitempty"`
	Section        string  `json:"section,omitempty"`
	ContentPreview string  `json:"content_preview,omitempty"`
}

// QueryResponse is the answer to a question with its grounding trace.
type QueryResponse struct {
	Answer             string      `json:"answer"`
	Confidence         float64     `json:"confidence"`
	Sources            []SourceRef `json:"sources"`
	SuggestedFollowups []string    `json:"suggested_followups,omitempty"`
	ProcessingTime     float64     `json:"processing_time"` // seconds
}

// SearchResponse is the response for a retrieval-only search.
type SearchResponse struct {
	Results        []SearchResult `json:"results"`
	Query          string         `json:"query"`
	Total          int            `json:"total_results"`
	ProcessingTime float64        `json:"processing_time"` // seconds
}

// IngestResponse reports the outcome of an ingestion run.
type IngestResponse struct {
	IndexedCount   int      `json:"indexed_count"` // chunks for inline documents, files for path ingests
	DocumentIDs    []string `json:"document_ids"`
	ProcessingTime float64  `json:"processing_time"` // seconds
}
