package retrieval

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Assembly is the generation-ready packaging of a retrieval result: the
// bounded context text, source attributions, and suggested follow-ups.
type Assembly struct {
	Context   string
	Sources   []models.SourceRef
	Followups []string
	Included  int
	Truncated bool
}

// Assembler formats retrieved passages into a bounded context block.
type Assembler struct {
	cfg *config.RetrievalConfig
}

// NewAssembler creates an assembler using the configured context budget.
func NewAssembler(cfg *config.RetrievalConfig) *Assembler {
	return &Assembler{cfg: cfg}
}

// Assemble builds the context block from results, which must already be
// ordered by descending score. When the formatted passages exceed the
// character budget, whole passages are dropped from the low-scored end;
// passages are never split. The top passage is always included, even when
// it alone exceeds the budget, so a non-empty retrieval never yields an
// empty context.
func (a *Assembler) Assemble(results []models.SearchResult) *Assembly {
	asm := &Assembly{}
	if len(results) == 0 {
		return asm
	}

	budget := a.cfg.MaxContextChars
	var blocks []string
	used := 0
	for _, res := range results {
		block := formatPassage(&res)
		cost := len(block)
		if len(blocks) > 0 {
			cost += 2 // separator
			if budget > 0 && used+cost > budget {
				asm.Truncated = true
				break
			}
		}
		blocks = append(blocks, block)
		used += cost
	}
	asm.Context = strings.Join(blocks, "\n\n")
	asm.Included = len(blocks)
	asm.Sources = a.sources(results[:len(blocks)])
	asm.Followups = a.followups(results[:len(blocks)])
	return asm
}

// formatPassage renders one retrieved chunk with its attribution line.
func formatPassage(res *models.SearchResult) string {
	label := res.Source
	if res.Metadata.Section != "" {
		label = fmt.Sprintf("%s, %s", label, res.Metadata.Section)
	}
	return fmt.Sprintf("[%s]\n%s", label, res.Content)
}

// sources deduplicates attributions by source document, keeping the
// highest-scored hit per source.
func (a *Assembler) sources(results []models.SearchResult) []models.SourceRef {
	seen := make(map[string]bool, len(results))
	var refs []models.SourceRef
	for _, res := range results {
		if seen[res.Source] {
			continue
		}
		seen[res.Source] = true
		refs = append(refs, models.SourceRef{
			ID:             res.ID,
			Score:          res.Score,
			Source:         res.Source,
			ChapterID:      res.Metadata.ChapterID,
			Section:        res.Metadata.Section,
			ContentPreview: utils.Truncate(res.Content, 160),
		})
	}
	return refs
}

// followups suggests follow-up topics from passage tags, first occurrence
// order, capped by configuration.
func (a *Assembler) followups(results []models.SearchResult) []string {
	max := a.cfg.MaxFollowups
	if max <= 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, res := range results {
		for _, tag := range res.Metadata.Tags {
			tag = strings.TrimSpace(tag)
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, fmt.Sprintf("Tell me more about %s", tag))
			if len(out) >= max {
				return out
			}
		}
	}
	return out
}
