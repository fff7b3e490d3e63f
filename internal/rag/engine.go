// Package rag orchestrates retrieval and generation into grounded answers.
package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/pkg/utils"
)

// NoContextAnswer is returned without calling the generator when retrieval
// finds nothing above the threshold.
const NoContextAnswer = "I could not find relevant passages in the book for this question. Try rephrasing it, or ask about a specific chapter."

// selectionSource is the source attribution for answers grounded in
// reader-selected text instead of retrieval.
const selectionSource = "user-selection"

// selectionConfidence applies when the reader pins the grounding text
// themselves; retrieval scores do not exist for that path.
const selectionConfidence = 0.9

const (
	retryAttempts = 3
	retryBase     = 200 * time.Millisecond
)

// Engine answers questions about the corpus. It embeds the query, retrieves
// grounding passages, and calls the generator with the assembled context.
type Engine struct {
	retriever *retrieval.Retriever
	assembler *retrieval.Assembler
	generator answer.Generator
	genCfg    *config.GenerationConfig
	logger    *zap.Logger
}

// NewEngine creates an engine with the given dependencies.
func NewEngine(
	retriever *retrieval.Retriever,
	assembler *retrieval.Assembler,
	generator answer.Generator,
	genCfg *config.GenerationConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		retriever: retriever,
		assembler: assembler,
		generator: generator,
		genCfg:    genCfg,
		logger:    logger,
	}
}

// Query answers a question. Reader-selected text bypasses retrieval; an
// empty retrieval yields a canned answer without a generation call.
func (e *Engine) Query(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	if req.Selection != "" {
		return e.answerSelection(ctx, req, start)
	}

	rc, err := e.retrieve(ctx, req.Query, req.K, req.ScoreThreshold, req.Filter())
	if err != nil {
		return nil, err
	}
	if rc.Empty() {
		if e.logger != nil {
			e.logger.Info("no passages above threshold", zap.String("query", req.Query))
		}
		return &models.QueryResponse{
			Answer:         NoContextAnswer,
			Confidence:     rc.Confidence,
			Sources:        []models.SourceRef{},
			ProcessingTime: time.Since(start).Seconds(),
		}, nil
	}

	asm := e.assembler.Assemble(rc.Results)
	resp, err := e.generator.Generate(ctx, &answer.Request{
		Context: asm.Context,
		Query:   req.Query,
		History: e.windowHistory(req.History),
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &models.QueryResponse{
		Answer:             resp.Text,
		Confidence:         rc.Confidence,
		Sources:            asm.Sources,
		SuggestedFollowups: asm.Followups,
		ProcessingTime:     time.Since(start).Seconds(),
	}, nil
}

// answerSelection grounds the answer in the reader's selection only.
func (e *Engine) answerSelection(ctx context.Context, req *models.QueryRequest, start time.Time) (*models.QueryResponse, error) {
	resp, err := e.generator.Generate(ctx, &answer.Request{
		Context: req.Selection,
		Query:   req.Query,
		History: e.windowHistory(req.History),
	})
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}
	return &models.QueryResponse{
		Answer:     resp.Text,
		Confidence: selectionConfidence,
		Sources: []models.SourceRef{{
			Source:         selectionSource,
			ContentPreview: utils.Truncate(req.Selection, 160),
		}},
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// retrieve runs retrieval with bounded retries on transient index failures.
func (e *Engine) retrieve(ctx context.Context, query string, k int, threshold float64, filter map[string]string) (*models.RetrievalContext, error) {
	var rc *models.RetrievalContext
	err := utils.Retry(ctx, retryAttempts, retryBase,
		func(err error) bool { return errors.Is(err, models.ErrUnavailable) },
		func() error {
			var err error
			rc, err = e.retriever.Retrieve(ctx, query, k, threshold, filter)
			return err
		})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return rc, nil
}

// Search is retrieval without generation.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	rc, err := e.retrieve(ctx, req.Query, req.K, req.ScoreThreshold, req.Filter())
	if err != nil {
		return nil, err
	}
	results := rc.Results
	if results == nil {
		results = []models.SearchResult{}
	}
	return &models.SearchResponse{
		Results:        results,
		Query:          req.Query,
		Total:          len(results),
		ProcessingTime: time.Since(start).Seconds(),
	}, nil
}

// windowHistory keeps only the trailing turns within the configured window.
func (e *Engine) windowHistory(history []models.ConversationTurn) []models.ConversationTurn {
	window := e.genCfg.HistoryWindow
	if window <= 0 || len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}
