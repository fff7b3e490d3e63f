// Package cli formats answers and search results for terminal output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat selects how responses are rendered.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputCompact is one line per result, for piping into other tools.
	OutputCompact OutputFormat = "compact"
)

// ParseFormat validates a format string from a flag.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputText, OutputJSON, OutputCompact:
		return OutputFormat(s), nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", s)
	}
}

// WriteAnswer writes a question/answer response to w in the given format.
func WriteAnswer(w io.Writer, resp *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case OutputCompact:
		fmt.Fprintf(w, "%.2f\t%s\n", resp.Confidence, strings.ReplaceAll(resp.Answer, "\n", " "))
		return nil
	default:
		writeAnswerText(w, resp)
		return nil
	}
}

func writeAnswerText(w io.Writer, resp *models.QueryResponse) {
	fmt.Fprintf(w, "\n%s\n", resp.Answer)
	fmt.Fprintf(w, "\nconfidence: %.2f  (%.0fms)\n", resp.Confidence, resp.ProcessingTime*1000)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, src := range resp.Sources {
			line := src.Source
			if src.ChapterID != "" {
				line += ", " + src.ChapterID
			}
			if src.Section != "" {
				line += ", " + src.Section
			}
			if src.Score > 0 {
				fmt.Fprintf(w, "  - %s (score %.2f)\n", line, src.Score)
			} else {
				fmt.Fprintf(w, "  - %s\n", line)
			}
		}
	}
	if len(resp.SuggestedFollowups) > 0 {
		fmt.Fprintln(w, "\nYou could also ask:")
		for _, q := range resp.SuggestedFollowups {
			fmt.Fprintf(w, "  - %s\n", q)
		}
	}
}

// WriteSearchResults writes retrieval results to w in the given format.
func WriteSearchResults(w io.Writer, resp *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case OutputCompact:
		for _, r := range resp.Results {
			fmt.Fprintf(w, "%.4f\t%s\t%s\n", r.Score, r.Source,
				strings.ReplaceAll(utils.Truncate(r.Content, 120), "\n", " "))
		}
		return nil
	default:
		writeSearchResultsText(w, resp)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, resp *models.SearchResponse) {
	fmt.Fprintf(w, "\nFound %d passage(s) in %.0fms\n\n", resp.Total, resp.ProcessingTime*1000)
	for i, r := range resp.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, r.Score)
		fmt.Fprintf(w, "Source: %s", r.Source)
		if r.Metadata.ChapterID != "" {
			fmt.Fprintf(w, " | Chapter: %s", r.Metadata.ChapterID)
		}
		if r.Metadata.Section != "" {
			fmt.Fprintf(w, " | Section: %s", r.Metadata.Section)
		}
		fmt.Fprintf(w, "\n\n%s\n\n", utils.Truncate(r.Content, 300))
	}
}
