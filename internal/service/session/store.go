package session

import (
	"context"
	"errors"
	"sync"

	"github.com/zhouzirui/voice-relay/internal/model/chat"
)

var ErrSessionIDRequired = errors.New("session id is required")

// Store holds per-session conversation history. Individual operations are
// atomic, but two concurrent requests appending to the same session id may
// interleave; callers must not rely on cross-request ordering.
type Store interface {
	Append(ctx context.Context, sessionID string, message chat.Message) error
	History(ctx context.Context, sessionID string) []chat.Message
	Clear(ctx context.Context, sessionID string)
}

// MemoryStore keeps history in process memory only. Sessions are created
// implicitly on first append and live for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]chat.Message),
	}
}

// Append adds a message to the session, creating the session if needed.
func (s *MemoryStore) Append(_ context.Context, sessionID string, message chat.Message) error {
	if sessionID == "" {
		return ErrSessionIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages[sessionID] = append(s.messages[sessionID], message)
	return nil
}

// History returns the session's messages in insertion order. Unknown session
// ids yield an empty slice.
func (s *MemoryStore) History(_ context.Context, sessionID string) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[sessionID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied
}

// Clear drops the session's history. Clearing an unknown session is a no-op.
func (s *MemoryStore) Clear(_ context.Context, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.messages, sessionID)
}
