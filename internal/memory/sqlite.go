package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const createTurnsTableSQL = `
CREATE TABLE IF NOT EXISTS turns (
    id              TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL,
    seq             INTEGER NOT NULL,
    role            TEXT NOT NULL,
    content         TEXT NOT NULL,
    created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, seq);
`

// SQLiteStore implements Store backed by SQLite. Appends to the same
// conversation are serialized through a per-key mutex so sequence numbers
// never collide even with concurrent callers.
type SQLiteStore struct {
	db *sql.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// DefaultDBPath returns ~/.local/share/parley/conversations.db.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "parley", "conversations.db"), nil
}

// OpenSQLiteStore opens (creating if needed) the conversation database at
// path and ensures the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open conversation db: %w", err)
	}
	if _, err := db.Exec(createTurnsTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create turns table: %w", err)
	}
	return &SQLiteStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// NewSQLiteStore wraps an existing DB connection (used by tests with
// in-memory databases).
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(createTurnsTableSQL); err != nil {
		return nil, fmt.Errorf("create turns table: %w", err)
	}
	return &SQLiteStore{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (s *SQLiteStore) convLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[conversationID] = l
	}
	return l
}

func (s *SQLiteStore) Load(ctx context.Context, conversationID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, created_at FROM turns WHERE conversation_id = ? ORDER BY seq ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var role, content, createdAt string
		if err := rows.Scan(&role, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		ts, _ := time.Parse(time.RFC3339Nano, createdAt)
		turns = append(turns, Turn{
			Role:      Role(role),
			Content:   content,
			Timestamp: ts,
		})
	}
	return turns, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, conversationID string, turn Turn) error {
	l := s.convLock(conversationID)
	l.Lock()
	defer l.Unlock()

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	var next int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE conversation_id = ?`,
		conversationID).Scan(&next)
	if err != nil {
		return fmt.Errorf("next seq for %s: %w", conversationID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO turns (id, conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), conversationID, next, string(turn.Role), turn.Content,
		turn.Timestamp.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append turn to %s: %w", conversationID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
