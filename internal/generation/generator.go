// Package generation provides the OpenAI chat-completion provider used to
// produce grounded answers.
package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/timeless-residents/handson-line-works/internal/embedding"
	"github.com/timeless-residents/handson-line-works/internal/rag"
	"github.com/timeless-residents/handson-line-works/internal/retry"
)

// DefaultModel is the chat model used unless configured otherwise.
const DefaultModel = "gpt-4o"

// Generator implements rag.GenerationProvider on top of the OpenAI chat
// completions API, with bounded retries on transient failures.
type Generator struct {
	client      *embedding.Client
	model       string
	maxTokens   int64
	temperature float64
	policy      retry.Policy
}

var _ rag.GenerationProvider = (*Generator)(nil)

// NewGenerator creates a generator sharing the embedding package's OpenAI
// client. An empty model selects DefaultModel.
func NewGenerator(client *embedding.Client, model string, maxTokens int64, temperature float64) *Generator {
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Generator{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		policy:      retry.DefaultPolicy(),
	}
}

// Complete generates an answer conditioned on the system instruction and the
// conversation turns, returning the text along with usage metadata.
func (g *Generator) Complete(ctx context.Context, systemPrompt string, turns []rag.Turn) (string, rag.Metadata, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(turns)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, turn := range turns {
		switch turn.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(turn.Content))
		default:
			messages = append(messages, openai.UserMessage(turn.Content))
		}
	}

	var resp *openai.ChatCompletion
	operation := func() error {
		var err error
		resp, err = g.client.Client().Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages:    messages,
			Model:       g.model,
			MaxTokens:   openai.Int(g.maxTokens),
			Temperature: openai.Float(g.temperature),
		})
		if err != nil {
			if isRetryable(err) {
				return err
			}
			return retry.Permanent(err)
		}
		if len(resp.Choices) == 0 {
			return retry.Permanent(fmt.Errorf("completion returned no choices"))
		}
		return nil
	}

	if err := g.policy.Do(ctx, operation); err != nil {
		return "", rag.Metadata{Error: err.Error()}, fmt.Errorf("%w: %v", rag.ErrGeneration, err)
	}

	choice := resp.Choices[0]
	meta := rag.Metadata{
		Model:            g.model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		FinishReason:     string(choice.FinishReason),
	}
	return choice.Message.Content, meta, nil
}

func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return true
}
