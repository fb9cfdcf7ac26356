// Package bridge owns the MCP tool-execution session and adapts backend
// tool-call requests onto it. The session is a single shared channel with at
// most one outstanding call at a time; the sequential turn loop enforces
// that without locking.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"

	"github.com/kballard/go-shellquote"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/nauzawa/voiceloop/pkg/backend"
	"github.com/nauzawa/voiceloop/pkg/conversation"
)

// toolErrorPayload is what the model is told when the session reports an
// error outcome. Internal detail stays out of the conversation transcript.
const toolErrorPayload = "Error executing tool."

// toolSession is the narrow slice of the MCP client session the bridge
// consumes. Tests substitute a fake.
type toolSession interface {
	ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// Bridge resolves tool-call requests against one MCP session. After a
// transport-level failure it flips to degraded and the driver must stop
// dispatching through it for the rest of the conversation.
type Bridge struct {
	session  toolSession
	degraded atomic.Bool
	log      logrus.FieldLogger
}

// Connect launches the configured MCP server subprocess and initializes a
// session over its stdio.
func Connect(ctx context.Context, command string, args []string, log logrus.FieldLogger) (*Bridge, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("bridge: server command is empty")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	// #nosec G204 -- the command line comes from the operator's own configuration
	cmd := exec.CommandContext(ctx, command, args...)
	client := mcp.NewClient(&mcp.Implementation{Name: "voiceloop", Version: "dev"}, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		return nil, fmt.Errorf("bridge: connect %s: %w", command, err)
	}
	log.WithField("command", command).Info("tool session established")
	return &Bridge{session: session, log: log}, nil
}

// SplitCommand tokenizes a server argument string the way a shell would.
func SplitCommand(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	return shellquote.Split(raw)
}

// Manifest fetches the advertised tool list, called once at session start so
// the backend can declare the tools to the model.
func (b *Bridge) Manifest(ctx context.Context) ([]backend.ToolDescriptor, error) {
	result, err := b.session.ListTools(ctx, nil)
	if err != nil {
		b.degraded.Store(true)
		return nil, fmt.Errorf("bridge: list tools: %w", err)
	}
	descriptors := make([]backend.ToolDescriptor, 0, len(result.Tools))
	for _, tool := range result.Tools {
		if tool == nil {
			continue
		}
		descriptors = append(descriptors, backend.ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			Schema:      schemaMap(tool.InputSchema),
		})
	}
	return descriptors, nil
}

// Resolve forwards one request to the session and normalizes the outcome.
// A session-reported error masks detail; a transport failure stringifies it
// and marks the bridge degraded.
func (b *Bridge) Resolve(ctx context.Context, req *conversation.ToolCallRequest) conversation.ToolCallResult {
	result, err := b.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      req.Name,
		Arguments: req.Arguments,
	})
	if err != nil {
		b.degraded.Store(true)
		b.log.WithError(err).WithField("tool", req.Name).Error("tool session transport failure")
		return conversation.ToolCallResult{Status: conversation.StatusError, Payload: err.Error()}
	}
	if result.IsError {
		b.log.WithField("tool", req.Name).Warn("tool reported an error outcome")
		return conversation.ToolCallResult{Status: conversation.StatusError, Payload: toolErrorPayload}
	}
	return conversation.ToolCallResult{Status: conversation.StatusOK, Payload: textPayload(result.Content)}
}

// Degraded reports whether the session suffered a transport failure and must
// not be dispatched to again.
func (b *Bridge) Degraded() bool {
	return b.degraded.Load()
}

// Close shuts down the session and its subprocess.
func (b *Bridge) Close() error {
	if b == nil || b.session == nil {
		return nil
	}
	return b.session.Close()
}

// textPayload concatenates, in order, every text-typed content fragment.
// Non-text fragments are ignored.
func textPayload(content []mcp.Content) string {
	var sb strings.Builder
	for _, fragment := range content {
		if text, ok := fragment.(*mcp.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

// schemaMap normalizes whatever schema representation the session delivered
// into a plain JSON object.
func schemaMap(v any) map[string]any {
	switch schema := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return schema
	default:
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil
		}
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		return m
	}
}
