package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	legacy "github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/nauzawa/voiceloop/pkg/backend"
	"github.com/nauzawa/voiceloop/pkg/conversation"
)

// LegacyClient drives the deprecated generative-ai-go SDK generation. It is
// kept as the fallback so the orchestration loop works unmodified on
// installs that predate the current SDK.
type LegacyClient struct {
	client *legacy.Client
	name   string
	system string
}

var _ backend.Backend = (*LegacyClient)(nil)

// NewLegacy constructs the legacy-generation client.
func NewLegacy(ctx context.Context, opts backend.Options) (backend.Backend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	name := strings.TrimSpace(opts.Model)
	if name == "" {
		return nil, errors.New("gemini: model name is required")
	}
	client, err := legacy.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: build legacy client: %w", err)
	}
	return &LegacyClient{client: client, name: name, system: opts.SystemInstruction}, nil
}

// Capabilities reports the legacy feature set: structured tools but no
// native search attachment.
func (c *LegacyClient) Capabilities() backend.CapabilityDescriptor {
	return backend.CapabilityDescriptor{
		Generation:      "legacy",
		NativeSearch:    false,
		StructuredTools: true,
	}
}

// Generate replays the transcript as chat history and sends the final turn.
func (c *LegacyClient) Generate(ctx context.Context, turns []conversation.Turn, tools []backend.ToolDescriptor) (*backend.Reply, error) {
	if len(turns) == 0 {
		return nil, errors.New("gemini: empty transcript")
	}

	model := c.client.GenerativeModel(c.name)
	model.ResponseMIMEType = responseMIMEType
	if c.system != "" {
		model.SystemInstruction = &legacy.Content{Parts: []legacy.Part{legacy.Text(c.system)}}
	}
	if len(tools) > 0 {
		model.Tools = []*legacy.Tool{{FunctionDeclarations: toLegacyDeclarations(tools)}}
	}

	history, last, err := toLegacyContents(turns)
	if err != nil {
		return nil, err
	}
	chat := model.StartChat()
	chat.History = history

	resp, err := chat.SendMessage(ctx, last...)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}
	return decodeLegacyCandidates(resp)
}

// Close tears down the underlying API connection.
func (c *LegacyClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// toLegacyContents splits the transcript into replayed history plus the
// parts of the final turn, which the chat session sends as the new message.
func toLegacyContents(turns []conversation.Turn) ([]*legacy.Content, []legacy.Part, error) {
	contents := make([]*legacy.Content, 0, len(turns))
	for _, t := range turns {
		content, err := toLegacyContent(t)
		if err != nil {
			return nil, nil, err
		}
		contents = append(contents, content)
	}
	lastIdx := len(contents) - 1
	return contents[:lastIdx], contents[lastIdx].Parts, nil
}

func toLegacyContent(t conversation.Turn) (*legacy.Content, error) {
	switch t.Role {
	case conversation.RoleUser:
		return &legacy.Content{Role: "user", Parts: []legacy.Part{legacy.Text(t.Text)}}, nil
	case conversation.RoleModel:
		var parts []legacy.Part
		if t.Text != "" {
			parts = append(parts, legacy.Text(t.Text))
		}
		if t.ToolCall != nil {
			parts = append(parts, legacy.FunctionCall{Name: t.ToolCall.Name, Args: t.ToolCall.Arguments})
		}
		if len(parts) == 0 {
			parts = append(parts, legacy.Text(""))
		}
		return &legacy.Content{Role: "model", Parts: parts}, nil
	case conversation.RoleToolResult:
		return &legacy.Content{Role: "user", Parts: []legacy.Part{legacy.FunctionResponse{
			Name:     t.ToolName,
			Response: toolResponsePayload(t.ToolResult),
		}}}, nil
	default:
		return nil, fmt.Errorf("gemini: unsupported turn role %q", t.Role)
	}
}

func toLegacyDeclarations(tools []backend.ToolDescriptor) []*legacy.FunctionDeclaration {
	decls := make([]*legacy.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &legacy.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toLegacySchema(t.Schema),
		})
	}
	return decls
}

func toLegacySchema(m map[string]any) *legacy.Schema {
	if len(m) == 0 {
		return nil
	}
	s := &legacy.Schema{Type: legacySchemaType(stringField(m, "type"))}
	s.Description = stringField(m, "description")
	s.Required = stringSlice(m["required"])
	s.Enum = stringSlice(m["enum"])
	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*legacy.Schema, len(props))
		for name, raw := range props {
			if sub, ok := raw.(map[string]any); ok {
				s.Properties[name] = toLegacySchema(sub)
			}
		}
	}
	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toLegacySchema(items)
	}
	return s
}

func legacySchemaType(t string) legacy.Type {
	switch strings.ToLower(t) {
	case "string":
		return legacy.TypeString
	case "number":
		return legacy.TypeNumber
	case "integer":
		return legacy.TypeInteger
	case "boolean":
		return legacy.TypeBoolean
	case "array":
		return legacy.TypeArray
	case "object":
		return legacy.TypeObject
	default:
		return legacy.TypeUnspecified
	}
}

func decodeLegacyCandidates(resp *legacy.GenerateContentResponse) (*backend.Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: response has no candidates")
	}
	reply := &backend.Reply{}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case legacy.Text:
			text.WriteString(string(v))
		case legacy.FunctionCall:
			if reply.ToolCall == nil {
				reply.ToolCall = &conversation.ToolCallRequest{
					ID:        requestID(""),
					Name:      v.Name,
					Arguments: v.Args,
				}
			}
		}
	}
	reply.Text = text.String()
	return reply, nil
}
