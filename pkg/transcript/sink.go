// Package transcript persists the human-readable session log. The sink is an
// interface so the driver can be tested against an in-memory double; it
// observes turns but never owns the conversation state.
package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// SessionEndMarker is the final line every sink records on close.
const SessionEndMarker = "--- session end ---"

// ErrSinkClosed reports a write after the session ended.
var ErrSinkClosed = errors.New("transcript: sink is closed")

// Sink receives (speaker, content) pairs for every user and assistant turn.
// Append-only; Close records the session-end marker exactly once.
type Sink interface {
	Record(speaker, content string) error
	Close() error
}

// FileSink appends to one plain-text file per session, keyed by the session
// start timestamp.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

// NewFileSink creates the session file under dir, creating dir when needed.
func NewFileSink(dir string, start time.Time) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript: create dir: %w", err)
	}
	name := fmt.Sprintf("session-%s.log", start.Format("20060102-150405"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("transcript: open session file: %w", err)
	}
	return &FileSink{file: file}, nil
}

// Record appends one line to the session file.
func (s *FileSink) Record(speaker, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	_, err := fmt.Fprintf(s.file, "%s: %s\n", speaker, content)
	return err
}

// Close writes the session-end marker and releases the file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_, writeErr := fmt.Fprintln(s.file, SessionEndMarker)
	closeErr := s.file.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

// Entry is one recorded line, kept by the in-memory sink for assertions.
type Entry struct {
	Speaker string
	Content string
}

// MemorySink retains entries in-process. Test double for FileSink.
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

// NewMemorySink constructs an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record appends the pair to the in-memory log.
func (s *MemorySink) Record(speaker, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.entries = append(s.entries, Entry{Speaker: speaker, Content: content})
	return nil
}

// Close appends the session-end marker and seals the sink.
func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.entries = append(s.entries, Entry{Speaker: "session", Content: SessionEndMarker})
	return nil
}

// Entries returns a copy of everything recorded so far.
func (s *MemorySink) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Closed reports whether the session-end marker has been written.
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
