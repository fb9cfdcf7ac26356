package conversation

import (
	"errors"
	"testing"
	"time"
)

func TestStateAppend(t *testing.T) {
	fixed := time.Unix(1_700_000_000, 0).UTC()
	req := &ToolCallRequest{ID: "call-1", Name: "search", Arguments: map[string]any{"q": "weather"}}

	tests := []struct {
		name    string
		prepare func(t *testing.T, s *State)
		turn    Turn
		wantErr error
		assert  func(t *testing.T, s *State)
	}{
		{
			name: "user turn stamps timestamp",
			turn: NewUserTurn("hello"),
			assert: func(t *testing.T, s *State) {
				t.Helper()
				turns := s.Snapshot()
				if len(turns) != 1 {
					t.Fatalf("turns len = %d", len(turns))
				}
				if !turns[0].Timestamp.Equal(fixed) {
					t.Fatalf("timestamp = %s", turns[0].Timestamp)
				}
			},
		},
		{
			name:    "unknown role rejected",
			turn:    Turn{Role: Role("assistant"), Text: "hi"},
			wantErr: ErrInvalidTurn,
		},
		{
			name:    "tool result on empty log rejected",
			turn:    NewToolResultTurn("search", ToolCallResult{Status: StatusOK, Payload: "sunny"}),
			wantErr: ErrOrphanToolResult,
		},
		{
			name: "tool result after plain model turn rejected",
			prepare: func(t *testing.T, s *State) {
				t.Helper()
				mustAppend(t, s, NewUserTurn("hello"))
				mustAppend(t, s, NewModelTurn("hi", nil))
			},
			turn:    NewToolResultTurn("search", ToolCallResult{Status: StatusOK, Payload: "sunny"}),
			wantErr: ErrOrphanToolResult,
		},
		{
			name: "tool result after pending request accepted",
			prepare: func(t *testing.T, s *State) {
				t.Helper()
				mustAppend(t, s, NewUserTurn("hello"))
				mustAppend(t, s, NewModelTurn("", req))
			},
			turn: NewToolResultTurn("search", ToolCallResult{Status: StatusOK, Payload: "sunny"}),
			assert: func(t *testing.T, s *State) {
				t.Helper()
				if s.Len() != 3 {
					t.Fatalf("len = %d", s.Len())
				}
			},
		},
		{
			name: "closed state prevents append",
			prepare: func(t *testing.T, s *State) {
				t.Helper()
				_ = s.Close()
			},
			turn:    NewUserTurn("after"),
			wantErr: ErrStateClosed,
		},
		{
			name:    "tool result without payload rejected",
			turn:    Turn{Role: RoleToolResult, ToolName: "search"},
			wantErr: ErrInvalidTurn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState()
			s.now = func() time.Time { return fixed }
			if tt.prepare != nil {
				tt.prepare(t, s)
			}
			err := s.Append(tt.turn)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("append failed: %v", err)
			}
			if tt.assert != nil {
				tt.assert(t, s)
			}
		})
	}
}

func TestStateSnapshotIsACopy(t *testing.T) {
	s := NewState()
	req := &ToolCallRequest{ID: "call-1", Name: "search", Arguments: map[string]any{"q": "weather"}}
	mustAppend(t, s, NewUserTurn("hello"))
	mustAppend(t, s, NewModelTurn("", req))

	snap := s.Snapshot()
	snap[0].Text = "mutated"
	snap[1].ToolCall.Arguments["q"] = "mutated"

	fresh := s.Snapshot()
	if fresh[0].Text != "hello" {
		t.Fatalf("text leaked mutation: %q", fresh[0].Text)
	}
	if fresh[1].ToolCall.Arguments["q"] != "weather" {
		t.Fatalf("arguments leaked mutation: %v", fresh[1].ToolCall.Arguments)
	}
}

func TestStateCloseDiscardsTurns(t *testing.T) {
	s := NewState()
	mustAppend(t, s, NewUserTurn("hello"))
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if got := s.Snapshot(); got != nil {
		t.Fatalf("snapshot after close = %+v", got)
	}
}

func mustAppend(t *testing.T, s *State, turn Turn) {
	t.Helper()
	if err := s.Append(turn); err != nil {
		t.Fatalf("append %q turn: %v", turn.Role, err)
	}
}
