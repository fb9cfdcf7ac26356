package conversation

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrStateClosed reports operations on a state after session end.
	ErrStateClosed = errors.New("conversation: state is closed")
	// ErrInvalidTurn reports a turn with a missing or unknown role.
	ErrInvalidTurn = errors.New("conversation: invalid turn")
	// ErrOrphanToolResult reports a tool-result turn that does not directly
	// follow a model turn carrying a tool-call request.
	ErrOrphanToolResult = errors.New("conversation: tool result without preceding tool call")
)

// State is the ordered, append-only transcript of turns for one session.
// It is the authoritative context sent on every backend request. There is no
// deletion or reordering operation: every request is reproducible from a
// prefix of the log.
type State struct {
	mu     sync.RWMutex
	turns  []Turn
	closed bool
	now    func() time.Time
}

// NewState constructs an empty transcript.
func NewState() *State {
	return &State{
		turns: make([]Turn, 0, 16),
		now:   time.Now,
	}
}

// Append adds the turn at the end of the log, stamping it with the current
// time when unset. A tool-result turn is only accepted immediately after a
// model turn holding a tool-call request.
func (s *State) Append(t Turn) error {
	switch t.Role {
	case RoleUser, RoleModel, RoleToolResult:
	default:
		return fmt.Errorf("%w: role %q", ErrInvalidTurn, t.Role)
	}
	if t.Role == RoleToolResult && t.ToolResult == nil {
		return fmt.Errorf("%w: missing result payload", ErrInvalidTurn)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStateClosed
	}
	if t.Role == RoleToolResult {
		if len(s.turns) == 0 {
			return ErrOrphanToolResult
		}
		prev := s.turns[len(s.turns)-1]
		if prev.Role != RoleModel || prev.ToolCall == nil {
			return ErrOrphanToolResult
		}
	}
	if t.Timestamp.IsZero() {
		t.Timestamp = s.now().UTC()
	} else {
		t.Timestamp = t.Timestamp.UTC()
	}
	s.turns = append(s.turns, cloneTurn(t))
	return nil
}

// Snapshot returns a read-only copy of the full transcript, suitable for use
// as backend request context.
func (s *State) Snapshot() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return nil
	}
	dst := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		dst[i] = cloneTurn(t)
	}
	return dst
}

// Len reports the number of appended turns.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Close discards the transcript. Subsequent appends fail; persistence is the
// transcript sink's job, not ours.
func (s *State) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.turns = nil
	return nil
}
