package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrInvalidRole is returned when a message role is neither user nor assistant.
var ErrInvalidRole = errors.New("invalid message role")

// Store manages per-user conversation sessions with bounded history,
// inactivity expiry and best-effort disk persistence. Reads across different
// users run concurrently; mutations to one user's session are serialized by
// a per-session lock.
type Store struct {
	maxTurns int
	timeout  time.Duration
	dir      string
	logger   *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	// now is swappable in tests to drive expiry.
	now func() time.Time
}

type sessionEntry struct {
	mu      sync.Mutex
	session *Session
}

// NewStore creates a conversation store persisting one JSON file per user
// under dir. Existing session files are loaded eagerly; unreadable files are
// skipped with a warning.
func NewStore(maxTurns int, timeout time.Duration, dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxTurns <= 0 {
		maxTurns = 10
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}

	s := &Store{
		maxTurns: maxTurns,
		timeout:  timeout,
		dir:      dir,
		logger:   logger,
		sessions: make(map[string]*sessionEntry),
		now:      time.Now,
	}
	s.loadExisting()
	return s, nil
}

func (s *Store) loadExisting() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("failed to scan conversation dir", "dir", s.dir, "error", err)
		return
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		session, err := readSessionFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("skipping unreadable session file", "file", entry.Name(), "error", err)
			continue
		}
		s.sessions[session.UserID] = &sessionEntry{session: session}
		loaded++
	}
	if loaded > 0 {
		s.logger.Info("loaded persisted conversations", "count", loaded)
	}
}

func readSessionFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	if session.Version != schemaVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", session.Version)
	}
	if session.UserID == "" {
		return nil, fmt.Errorf("session file missing user_id")
	}
	return &session, nil
}

func (s *Store) entry(userID string) *sessionEntry {
	s.mu.RLock()
	e, ok := s.sessions[userID]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[userID]; ok {
		return e
	}
	e = &sessionEntry{}
	s.sessions[userID] = e
	return e
}

// GetOrCreate returns the user's session, creating it on first access. A
// session idle longer than the configured timeout has its history cleared
// and its topic and last-document metadata reset, and is marked new again.
// last_interaction is always refreshed before returning.
func (s *Store) GetOrCreate(userID string) Session {
	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	if e.session == nil {
		e.session = &Session{
			Version:         schemaVersion,
			UserID:          userID,
			CreatedAt:       now,
			LastInteraction: now,
			Metadata:        Metadata{IsNew: true},
		}
		return *e.session
	}

	if s.timeout > 0 && now.Sub(e.session.LastInteraction) > s.timeout {
		s.logger.Info("conversation expired, starting fresh", "user", userID)
		e.session.Messages = nil
		e.session.Metadata = Metadata{IsNew: true}
	} else {
		e.session.Metadata.IsNew = false
	}
	e.session.LastInteraction = now
	return *e.session
}

// AddMessage appends a timestamped turn, truncates history beyond twice the
// configured max turns (oldest first) and persists the session. Persistence
// failures are logged, not returned: durability is best-effort per turn.
func (s *Store) AddMessage(userID, role, content string) error {
	if role != RoleUser && role != RoleAssistant {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	s.GetOrCreate(userID)

	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.Messages = append(e.session.Messages, Message{
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	})
	if limit := s.maxTurns * 2; len(e.session.Messages) > limit {
		e.session.Messages = e.session.Messages[len(e.session.Messages)-limit:]
	}
	// A session with history is no longer new.
	e.session.Metadata.IsNew = false

	s.persist(e.session)
	return nil
}

// Reset clears the user's history and metadata, marks the session new and
// persists the empty state.
func (s *Store) Reset(userID string) {
	s.GetOrCreate(userID)

	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.session.Messages = nil
	e.session.Metadata = Metadata{IsNew: true}
	e.session.LastInteraction = s.now()
	s.persist(e.session)
}

// History returns the user's turn history in provider shape.
func (s *Store) History(userID string) []Message {
	session := s.GetOrCreate(userID)
	return session.History()
}

// SetTopic records the current conversation topic.
func (s *Store) SetTopic(userID, topic string) {
	s.updateMetadata(userID, func(m *Metadata) { m.Topic = topic })
}

// Topic returns the current conversation topic, if any.
func (s *Store) Topic(userID string) string {
	return s.GetOrCreate(userID).Metadata.Topic
}

// SetLastDocuments records the chunks used for the latest answer.
func (s *Store) SetLastDocuments(userID string, docs []DocumentRef) {
	s.updateMetadata(userID, func(m *Metadata) { m.LastDocuments = docs })
}

// LastDocuments returns the chunks used for the latest answer.
func (s *Store) LastDocuments(userID string) []DocumentRef {
	return s.GetOrCreate(userID).Metadata.LastDocuments
}

func (s *Store) updateMetadata(userID string, update func(*Metadata)) {
	s.GetOrCreate(userID)

	e := s.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	update(&e.session.Metadata)
	s.persist(e.session)
}

// Cleanup deletes sessions whose last interaction predates the retention
// window, from both memory and disk, and returns the number deleted.
func (s *Store) Cleanup(retention time.Duration) int {
	cutoff := s.now().Add(-retention)
	deleted := 0

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("cleanup: failed to scan conversation dir", "dir", s.dir, "error", err)
		return 0
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		session, err := readSessionFile(path)
		if err != nil {
			s.logger.Warn("cleanup: skipping unreadable session file", "file", entry.Name(), "error", err)
			continue
		}
		if !session.LastInteraction.Before(cutoff) {
			continue
		}

		if err := os.Remove(path); err != nil {
			s.logger.Warn("cleanup: failed to delete session file", "file", entry.Name(), "error", err)
			continue
		}
		s.mu.Lock()
		delete(s.sessions, session.UserID)
		s.mu.Unlock()
		deleted++
	}

	if deleted > 0 {
		s.logger.Info("cleaned up expired conversations", "deleted", deleted)
	}
	return deleted
}

// persist writes the session atomically. Callers hold the session lock.
func (s *Store) persist(session *Session) {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		s.logger.Warn("failed to encode session", "user", session.UserID, "error", err)
		return
	}

	path := filepath.Join(s.dir, session.UserID+".json")
	tmp, err := os.CreateTemp(s.dir, session.UserID+".tmp-*")
	if err != nil {
		s.logger.Warn("failed to persist session", "user", session.UserID, "error", err)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.logger.Warn("failed to persist session", "user", session.UserID, "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		s.logger.Warn("failed to persist session", "user", session.UserID, "error", err)
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		s.logger.Warn("failed to persist session", "user", session.UserID, "error", err)
	}
}
