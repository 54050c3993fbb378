package conversation

import "time"

// Role values accepted for conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// schemaVersion guards the persisted session layout. Files written by an
// incompatible version are rejected at load time, not silently reinterpreted.
const schemaVersion = 1

// Message is one turn in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentRef records a chunk used to answer the previous question, so a
// follow-up can refer back to the same sources.
type DocumentRef struct {
	Source    string    `json:"source"`
	FileName  string    `json:"file_name"`
	Score     float64   `json:"score"`
	Preview   string    `json:"preview"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata holds the mutable per-session state outside the turn history.
type Metadata struct {
	IsNew         bool          `json:"is_new"`
	Topic         string        `json:"topic,omitempty"`
	LastDocuments []DocumentRef `json:"last_documents,omitempty"`
}

// Session is the persisted per-user conversation record.
type Session struct {
	Version         int       `json:"version"`
	UserID          string    `json:"user_id"`
	CreatedAt       time.Time `json:"created_at"`
	LastInteraction time.Time `json:"last_interaction"`
	Messages        []Message `json:"messages"`
	Metadata        Metadata  `json:"metadata"`
}

// History returns the turn history as role/content pairs in order, the shape
// generation providers consume.
func (s *Session) History() []Message {
	history := make([]Message, 0, len(s.Messages))
	for _, m := range s.Messages {
		if m.Role == RoleUser || m.Role == RoleAssistant {
			history = append(history, Message{Role: m.Role, Content: m.Content})
		}
	}
	return history
}
