// Package eventlog writes structured JSONL event streams, one file per
// discussion, for post-hoc inspection of what each backend was asked and how
// it answered.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// EventType classifies an event in the event stream.
type EventType string

const (
	EventDiscussionStart EventType = "discussion_start"
	EventDispatch        EventType = "dispatch"
	EventModelAnswer     EventType = "model_answer"
	EventModelFailure    EventType = "model_failure"
	EventCompression     EventType = "compression"
	EventSynthesis       EventType = "synthesis"
	EventConsensus       EventType = "consensus"
	EventDiscussionEnd   EventType = "discussion_end"
	EventError           EventType = "error"
)

// Event is a single structured event in the event stream.
type Event struct {
	Type         EventType `json:"type"`
	Timestamp    time.Time `json:"ts"`
	DiscussionID string    `json:"discussion_id"`
	Data         any       `json:"data,omitempty"`
}

// Logger writes structured JSONL events to a file.
type Logger struct {
	mu           sync.Mutex
	file         *os.File
	enc          *json.Encoder
	discussionID string
	logPath      string
}

// New creates an event logger for the given discussion. Events are written
// to ~/.local/share/parley/events/{discussion_id}.jsonl.
func New(discussionID string) (*Logger, error) {
	var lastErr error
	for _, dir := range logDirs() {
		if err := os.MkdirAll(dir, 0755); err != nil {
			lastErr = fmt.Errorf("create events directory %s: %w", dir, err)
			continue
		}

		logPath := filepath.Join(dir, discussionID+".jsonl")
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			lastErr = fmt.Errorf("open event log %s: %w", logPath, err)
			continue
		}

		return &Logger{
			file:         f,
			enc:          json.NewEncoder(f),
			discussionID: discussionID,
			logPath:      logPath,
		}, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no writable events directory found")
	}
	return nil, lastErr
}

// logDirs returns candidate directories in priority order.
// 1) PARLEY_EVENTS_DIR (explicit override)
// 2) ~/.local/share/parley/events (default)
// 3) $TMPDIR/parley/events (fallback for restricted environments)
func logDirs() []string {
	seen := make(map[string]bool)
	var dirs []string

	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	add(os.Getenv("PARLEY_EVENTS_DIR"))

	if home, err := os.UserHomeDir(); err == nil {
		add(filepath.Join(home, ".local", "share", "parley", "events"))
	}

	add(filepath.Join(os.TempDir(), "parley", "events"))
	return dirs
}

// Log writes an event to the JSONL file.
func (l *Logger) Log(evtType EventType, data any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	evt := Event{
		Type:         evtType,
		Timestamp:    time.Now(),
		DiscussionID: l.discussionID,
		Data:         data,
	}
	_ = l.enc.Encode(evt)
}

// Close flushes and closes the event log file.
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// Path returns the file the logger writes to.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logPath
}

// ReadRecent reads the last n events from the log file.
func (l *Logger) ReadRecent(n int) ([]Event, error) {
	l.mu.Lock()
	path := l.logPath
	l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		var evt Event
		if json.Unmarshal(scanner.Bytes(), &evt) == nil {
			events = append(events, evt)
		}
	}

	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}
