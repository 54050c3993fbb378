package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/timeless-residents/handson-line-works/internal/conversation"
	"github.com/timeless-residents/handson-line-works/internal/rag"
)

const degradedReply = "I'm sorry, the knowledge base is temporarily unavailable. " +
	"Please try again in a little while."

// Citation identifies a source document surfaced alongside an answer.
type Citation struct {
	FileName  string    `json:"file_name"`
	Source    string    `json:"source"`
	Score     float64   `json:"score"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reply is the bot's response to one user message.
type Reply struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations,omitempty"`
	NewSession bool       `json:"new_session"`
	NoMatch    bool       `json:"no_match,omitempty"`
}

// Service ties the answer engine to per-user conversation state. It is the
// surface a messaging front end calls into: one method per inbound message.
// Provider outages degrade the reply text instead of returning an error; a
// bot that crashes on an upstream outage is worse than one that apologizes.
type Service struct {
	engine   *rag.Engine
	sessions *conversation.Store
	logger   *slog.Logger
}

// NewService creates a bot service.
func NewService(engine *rag.Engine, sessions *conversation.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:   engine,
		sessions: sessions,
		logger:   logger,
	}
}

// Answer handles one user message end to end: it records the message in the
// user's session, generates a grounded answer from the prior conversation
// history, records the answer and returns it with citations.
func (s *Service) Answer(ctx context.Context, userID, text string) (*Reply, error) {
	session := s.sessions.GetOrCreate(userID)
	isNew := session.Metadata.IsNew

	// History before the current message; the engine appends the question
	// itself as the final turn.
	turns := make([]rag.Turn, len(session.Messages))
	for i, m := range session.Messages {
		turns[i] = rag.Turn{Role: m.Role, Content: m.Content}
	}

	if err := s.sessions.AddMessage(userID, conversation.RoleUser, text); err != nil {
		return nil, err
	}

	answer, used, meta, err := s.engine.GenerateAnswer(ctx, text, turns)
	if err != nil {
		s.logger.Error("answer generation failed", "user_id", userID, "error", err)
		if addErr := s.sessions.AddMessage(userID, conversation.RoleAssistant, degradedReply); addErr != nil {
			s.logger.Warn("failed to record degraded reply", "user_id", userID, "error", addErr)
		}
		return &Reply{Text: degradedReply, NewSession: isNew}, nil
	}

	if len(used) > 0 {
		refs := make([]conversation.DocumentRef, len(used))
		for i, d := range used {
			refs[i] = conversation.DocumentRef{
				Source:    d.Source,
				FileName:  d.FileName,
				Score:     d.Score,
				Preview:   d.Preview,
				UpdatedAt: d.UpdatedAt,
			}
		}
		s.sessions.SetLastDocuments(userID, refs)
	}

	if err := s.sessions.AddMessage(userID, conversation.RoleAssistant, answer); err != nil {
		s.logger.Warn("failed to record assistant reply", "user_id", userID, "error", err)
	}

	s.logger.Info("answered question",
		"user_id", userID,
		"documents", len(used),
		"no_match", meta.NoMatch,
		"total_tokens", meta.TotalTokens,
	)

	// A degraded answer is an apology, not content drawn from the
	// documents, so it carries no citation lines.
	text = answer
	if meta.Error == "" {
		text = rag.FormatAnswerWithCitations(answer, used)
	}
	reply := &Reply{
		Text:       text,
		NewSession: isNew,
		NoMatch:    meta.NoMatch,
	}
	for _, d := range used {
		reply.Citations = append(reply.Citations, Citation{
			FileName:  d.FileName,
			Source:    d.Source,
			Score:     d.Score,
			Preview:   d.Preview,
			UpdatedAt: d.UpdatedAt,
		})
	}
	return reply, nil
}

// Search runs retrieval only, without generation or session state. It backs
// the search command for inspecting what the index surfaces for a query.
func (s *Service) Search(ctx context.Context, query string, k int) ([]Citation, error) {
	results, err := s.engine.SearchRelevant(ctx, query, k)
	if err != nil {
		return nil, err
	}
	citations := make([]Citation, len(results))
	for i, r := range results {
		citations[i] = Citation{
			FileName:  r.Chunk.FileName,
			Source:    r.Chunk.Source,
			Score:     r.Score,
			Preview:   r.Chunk.Preview(100),
			UpdatedAt: r.Chunk.UpdatedAt,
		}
	}
	return citations, nil
}

// ResetSession clears a user's conversation history.
func (s *Service) ResetSession(userID string) {
	s.sessions.Reset(userID)
}
