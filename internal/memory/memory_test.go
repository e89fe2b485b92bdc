package memory

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestInMemoryAppendLoad(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.Append(ctx, "c1", Turn{Role: RoleUser, Content: "My name is Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, "c1", Turn{Role: RoleAssistant, Content: "Hello Alice"}); err != nil {
		t.Fatal(err)
	}

	turns, err := s.Load(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != RoleUser || turns[0].Content != "My name is Alice" {
		t.Errorf("turn 0 = %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant {
		t.Errorf("turn 1 role = %q", turns[1].Role)
	}
	if turns[0].Timestamp.IsZero() {
		t.Error("append should stamp zero timestamps")
	}
}

func TestInMemorySnapshotIsolation(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	s.Append(ctx, "c1", Turn{Role: RoleUser, Content: "first"})
	snap, _ := s.Load(ctx, "c1")
	s.Append(ctx, "c1", Turn{Role: RoleAssistant, Content: "second"})

	if len(snap) != 1 {
		t.Errorf("snapshot should not see later appends, len=%d", len(snap))
	}
}

func TestInMemorySeparateConversations(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	s.Append(ctx, "a", Turn{Role: RoleUser, Content: "a1"})
	s.Append(ctx, "b", Turn{Role: RoleUser, Content: "b1"})

	a, _ := s.Load(ctx, "a")
	b, _ := s.Load(ctx, "b")
	if len(a) != 1 || len(b) != 1 || a[0].Content != "a1" || b[0].Content != "b1" {
		t.Errorf("conversations leaked: a=%v b=%v", a, b)
	}
}

func TestNullStore(t *testing.T) {
	s := NullStore{}
	ctx := context.Background()
	if err := s.Append(ctx, "x", Turn{Role: RoleUser, Content: "dropped"}); err != nil {
		t.Fatal(err)
	}
	turns, err := s.Load(ctx, "x")
	if err != nil || len(turns) != 0 {
		t.Errorf("null store should stay empty, got %v, %v", turns, err)
	}
}

func TestFormatHistory(t *testing.T) {
	turns := []Turn{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}
	got := FormatHistory(turns)
	want := "User: hi\nAssistant: hello\n"
	if got != want {
		t.Errorf("FormatHistory = %q, want %q", got, want)
	}
	if FormatHistory(nil) != "" {
		t.Error("empty history should format to empty string")
	}
}

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewSQLiteStore(db)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteAppendLoadOrdered(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		turn := Turn{Role: RoleUser, Content: fmt.Sprintf("turn %d", i), Timestamp: time.Now()}
		if err := s.Append(ctx, "conv", turn); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := s.Load(ctx, "conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(turns))
	}
	for i, turn := range turns {
		if turn.Content != fmt.Sprintf("turn %d", i) {
			t.Errorf("turn %d out of order: %q", i, turn.Content)
		}
	}
}

func TestSQLiteLoadMissingConversation(t *testing.T) {
	s := newTestSQLiteStore(t)
	turns, err := s.Load(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 0 {
		t.Errorf("missing conversation should be empty, got %d turns", len(turns))
	}
}

func TestSQLiteConcurrentAppends(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = s.Append(ctx, "conv", Turn{Role: RoleUser, Content: fmt.Sprintf("m%d", n)})
		}(i)
	}
	wg.Wait()

	turns, err := s.Load(ctx, "conv")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 10 {
		t.Errorf("expected 10 turns after concurrent appends, got %d", len(turns))
	}
}
