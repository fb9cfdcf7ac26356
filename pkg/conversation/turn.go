package conversation

import "time"

// Role identifies the author of a Turn.
type Role string

const (
	// RoleUser marks raw text supplied by the human side of the session.
	RoleUser Role = "user"
	// RoleModel marks a backend response, final text or a tool-call request.
	RoleModel Role = "model"
	// RoleToolResult marks the outcome of a resolved tool-call request.
	RoleToolResult Role = "tool-result"
)

// ToolCallStatus reports whether a tool resolution succeeded.
type ToolCallStatus string

const (
	StatusOK    ToolCallStatus = "ok"
	StatusError ToolCallStatus = "error"
)

// ToolCallRequest is emitted by the backend inside a model turn when it wants
// an external tool executed. ID is assigned at decode time when the backend
// did not supply one, so every request is individually trackable.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolCallResult carries the text outcome fed back to the backend.
type ToolCallResult struct {
	Status  ToolCallStatus `json:"status"`
	Payload string         `json:"payload"`
}

// Failed reports whether the resolution ended in an error outcome.
func (r ToolCallResult) Failed() bool {
	return r.Status == StatusError
}

// Turn is one unit of conversational exchange.
type Turn struct {
	Role       Role
	Text       string
	ToolCall   *ToolCallRequest
	ToolResult *ToolCallResult
	// ToolName names the request a tool-result turn answers.
	ToolName  string
	Timestamp time.Time
}

// NewUserTurn wraps raw user text.
func NewUserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// NewModelTurn wraps a backend response. req is nil for final responses.
func NewModelTurn(text string, req *ToolCallRequest) Turn {
	return Turn{Role: RoleModel, Text: text, ToolCall: req}
}

// NewToolResultTurn wraps the outcome of one resolved request.
func NewToolResultTurn(name string, result ToolCallResult) Turn {
	return Turn{Role: RoleToolResult, ToolName: name, ToolResult: &result}
}

func cloneTurn(t Turn) Turn {
	cloned := t
	if t.ToolCall != nil {
		req := *t.ToolCall
		req.Arguments = cloneMap(t.ToolCall.Arguments)
		cloned.ToolCall = &req
	}
	if t.ToolResult != nil {
		res := *t.ToolResult
		cloned.ToolResult = &res
	}
	return cloned
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
