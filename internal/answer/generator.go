// Package answer generates grounded answers from assembled context.
package answer

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Request carries everything the generator needs for one answer: the system
// instruction, the retrieved context block, the user's question, and the
// trailing conversation history.
type Request struct {
	System  string
	Context string
	Query   string
	History []models.ConversationTurn
}

// Response is the generated answer with token accounting.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Generator produces an answer grounded in the request context.
// Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Close() error
}

// DefaultSystemPrompt instructs the model to answer only from the provided
// passages and admit when they do not cover the question.
const DefaultSystemPrompt = `You are a helpful teaching assistant for a book. Answer the question using only the provided context passages. If the context does not contain the answer, say you don't know rather than guessing. Keep answers concise and cite the source passages when relevant.`
