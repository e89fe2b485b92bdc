// Package memory is the durable, keyed store of conversation turns. A
// conversation is an append-only log: turns are never mutated once written,
// and callers receive snapshot copies they are free to compress or trim
// without affecting the stored history.
package memory

import (
	"context"
	"sync"
	"time"
)

// Role identifies the author of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one ordered record in a conversation.
type Turn struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Store abstracts conversation persistence. Load returns a snapshot in
// append order; Append adds a single turn. Appends for the same
// conversation ID are serialized by the implementation.
type Store interface {
	Load(ctx context.Context, conversationID string) ([]Turn, error)
	Append(ctx context.Context, conversationID string, turn Turn) error
	Close() error
}

// NullStore discards everything. Used when no conversation ID is supplied.
type NullStore struct{}

func (NullStore) Load(context.Context, string) ([]Turn, error) { return nil, nil }
func (NullStore) Append(context.Context, string, Turn) error   { return nil }
func (NullStore) Close() error                                 { return nil }

// InMemoryStore keeps conversations in process memory. Suitable for tests
// and single-shot runs without persistence.
type InMemoryStore struct {
	mu    sync.Mutex
	turns map[string][]Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[string][]Turn)}
}

func (s *InMemoryStore) Load(_ context.Context, conversationID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.turns[conversationID]
	// Snapshot copy: callers must not observe later appends.
	out := make([]Turn, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *InMemoryStore) Append(_ context.Context, conversationID string, turn Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	s.turns[conversationID] = append(s.turns[conversationID], turn)
	return nil
}

func (s *InMemoryStore) Close() error { return nil }

// FormatHistory renders turns into the flat "User: ... / Assistant: ..."
// transcript form the providers consume.
func FormatHistory(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b []byte
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			b = append(b, "User: "...)
		case RoleAssistant:
			b = append(b, "Assistant: "...)
		default:
			continue
		}
		b = append(b, t.Content...)
		b = append(b, '\n')
	}
	return string(b)
}
