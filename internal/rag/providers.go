package rag

import (
	"context"
	"errors"
)

// Provider failures after retry exhaustion surface as these sentinels so
// callers can degrade gracefully instead of crashing.
var (
	ErrEmbedding  = errors.New("embedding provider failed")
	ErrGeneration = errors.New("generation provider failed")
)

// Turn is one conversational exchange passed to the generation provider.
type Turn struct {
	Role    string
	Content string
}

// EmbeddingProvider converts text into a fixed-length vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Metadata carries provider usage and outcome information for one generation.
type Metadata struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int64  `json:"prompt_tokens,omitempty"`
	CompletionTokens int64  `json:"completion_tokens,omitempty"`
	TotalTokens      int64  `json:"total_tokens,omitempty"`
	FinishReason     string `json:"finish_reason,omitempty"`
	NoMatch          bool   `json:"no_match,omitempty"`
	Error            string `json:"error,omitempty"`
}

// GenerationProvider produces an answer conditioned on a system instruction
// and the conversation so far.
type GenerationProvider interface {
	Complete(ctx context.Context, systemPrompt string, turns []Turn) (string, Metadata, error)
}
