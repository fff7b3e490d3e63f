package models

import (
	"fmt"
	"strings"
)

// ConversationTurn is one prior message of the conversation. The history
// window is consumed as an immutable input and never modified.
type ConversationTurn struct {
	Role    string `json:"role"` // user, assistant, or system
	Content string `json:"content"`
}

// QueryRequest is a question about the book, optionally narrowed by metadata
// filters or anchored to a user-selected passage.
type QueryRequest struct {
	Query          string             `json:"query"`
	K              int                `json:"k,omitempty"`
	ScoreThreshold float64            `json:"score_threshold,omitempty"`
	ChapterID      string             `json:"chapter_id,omitempty"`
	ContentType    string             `json:"content_type,omitempty"`
	Difficulty     string             `json:"difficulty,omitempty"`
	History        []ConversationTurn `json:"conversation_history,omitempty"`
	// Selection is text the reader highlighted. When set, retrieval is
	// bypassed and the selection itself becomes the grounding context.
	Selection string `json:"selection,omitempty"`
}

// Validate checks the query and normalizes limits. An empty query (after
// trimming) fails with ErrInvalidInput before anything is embedded.
func (q *QueryRequest) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty: %w", ErrInvalidInput)
	}
	if q.K < 0 {
		return fmt.Errorf("k must be non-negative: %w", ErrInvalidInput)
	}
	if q.K > 20 {
		q.K = 20
	}
	if q.ScoreThreshold < 0 || q.ScoreThreshold > 1 {
		return fmt.Errorf("score_threshold must be in [0,1]: %w", ErrInvalidInput)
	}
	return nil
}

// Filter returns the exact-match metadata conditions of the request.
// All conditions must hold (AND semantics). Nil when unfiltered.
func (q *QueryRequest) Filter() map[string]string {
	f := make(map[string]string)
	if q.ChapterID != "" {
		f["chapter_id"] = q.ChapterID
	}
	if q.ContentType != "" {
		f["content_type"] = q.ContentType
	}
	if q.Difficulty != "" {
		f["difficulty"] = q.Difficulty
	}
	if len(f) == 0 {
		return nil
	}
	return f
}

// SearchRequest is retrieval without generation: the raw similarity search
// surface exposed for debugging and for clients that do their own prompting.
type SearchRequest struct {
	Query          string  `json:"query"`
	K              int     `json:"k,omitempty"`
	ScoreThreshold float64 `json:"score_threshold,omitempty"`
	ChapterID      string  `json:"chapter_id,omitempty"`
	ContentType    string  `json:"content_type,omitempty"`
	Difficulty     string  `json:"difficulty,omitempty"`
	Source         string  `json:"source,omitempty"`
}

// Validate checks the search request the same way QueryRequest does.
func (s *SearchRequest) Validate() error {
	q := QueryRequest{Query: s.Query, K: s.K, ScoreThreshold: s.ScoreThreshold}
	if err := q.Validate(); err != nil {
		return err
	}
	s.Query = q.Query
	s.K = q.K
	return nil
}

// Filter returns the exact-match conditions of the search request.
func (s *SearchRequest) Filter() map[string]string {
	f := make(map[string]string)
	if s.ChapterID != "" {
		f["chapter_id"] = s.ChapterID
	}
	if s.ContentType != "" {
		f["content_type"] = s.ContentType
	}
	if s.Difficulty != "" {
		f["difficulty"] = s.Difficulty
	}
	if s.Source != "" {
		f["source"] = s.Source
	}
	if len(f) == 0 {
		return nil
	}
	return f
}
