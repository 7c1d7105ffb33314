package interfaces

import (
	"context"

	"github.com/avencast/tutorbridge/internal/models"
)

// Citation points a generated answer back at the retrieved passage it drew from
type Citation struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Rank       int    `json:"rank"`
	Score      int    `json:"score"`
	Snippet    string `json:"snippet"`
}

// ChatRequest is the gateway's inbound request shape. Provider and Model are
// optional overrides; when empty the gateway selects a provider from the
// prompt and response language.
type ChatRequest struct {
	Messages         []Message `json:"messages"`
	Provider         string    `json:"provider,omitempty"`
	Model            string    `json:"model,omitempty"`
	ResponseLanguage string    `json:"response_language,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	TopK             int       `json:"top_k,omitempty"`
}

// ChatResult is the unary chat response
type ChatResult struct {
	Answer    string     `json:"answer"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
	Citations []Citation `json:"citations"`
}

// ChatStream carries a running token stream plus the routing decision and
// retrieval citations resolved before streaming began. Events is closed after
// the terminal event.
type ChatStream struct {
	Events    <-chan TokenEvent
	Provider  string
	Model     string
	Citations []Citation
}

// ChatService defines the gateway orchestrator operations
type ChatService interface {
	// Chat runs a single non-streaming completion
	Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// StreamChat starts a streaming completion. Stream failures after the
	// first token finalize whatever arrived; a stream that produced no
	// tokens is retried once through the unary path.
	StreamChat(ctx context.Context, req *ChatRequest) (*ChatStream, error)

	// History returns the most recent turns, oldest first
	History(ctx context.Context, limit int) ([]*models.ChatTurn, error)
}
