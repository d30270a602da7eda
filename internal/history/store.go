// Package history persists finalized messages and settled command blocks
// per session and serves them back for browsing and export.
package history

import (
	"context"
	"sync"

	"github.com/qbit-ai/qbit-console/internal/events"
)

// Store is the durable record of a session: finalized messages and settled
// terminal command blocks, in append order.
type Store interface {
	AppendMessage(ctx context.Context, msg events.Message) error
	AppendCommand(ctx context.Context, rec events.CommandBlockRecord) error
	Messages(ctx context.Context, sessionID string) ([]events.Message, error)
	Commands(ctx context.Context, sessionID string) ([]events.CommandBlockRecord, error)
}

// MemoryStore keeps history in process memory. It backs tests and offline
// runs where no redis is configured.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[string][]events.Message
	commands map[string][]events.CommandBlockRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string][]events.Message),
		commands: make(map[string][]events.CommandBlockRecord),
	}
}

func (s *MemoryStore) AppendMessage(_ context.Context, msg events.Message) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	return nil
}

func (s *MemoryStore) AppendCommand(_ context.Context, rec events.CommandBlockRecord) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[rec.SessionID] = append(s.commands[rec.SessionID], rec)
	return nil
}

func (s *MemoryStore) Messages(_ context.Context, sessionID string) ([]events.Message, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Message(nil), s.messages[sessionID]...), nil
}

func (s *MemoryStore) Commands(_ context.Context, sessionID string) ([]events.CommandBlockRecord, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.CommandBlockRecord(nil), s.commands[sessionID]...), nil
}
