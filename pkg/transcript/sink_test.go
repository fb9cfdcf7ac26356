package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestFileSinkRecordsAndSealsSession(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 3, 9, 14, 5, 0, 0, time.UTC)

	sink, err := NewFileSink(dir, start)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	if err := sink.Record("You", "hello"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Record("Gemini", "こんにちは"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := sink.Record("You", "late"); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("record after close = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "session-20250309-140500.log"))
	if err != nil {
		t.Fatalf("read session file: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	want := []string{"You: hello", "Gemini: こんにちは", SessionEndMarker}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q", lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line[%d] = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestMemorySinkTracksEntriesAndClose(t *testing.T) {
	sink := NewMemorySink()
	if err := sink.Record("You", "hi"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if sink.Closed() {
		t.Fatal("sink should not report closed yet")
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	entries := sink.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	if entries[1].Content != SessionEndMarker {
		t.Fatalf("final entry = %+v", entries[1])
	}
	if err := sink.Record("You", "late"); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("record after close = %v", err)
	}
}
