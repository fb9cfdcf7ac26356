// Package gemini implements both Gemini client generations behind the
// backend.Backend surface: the current google.golang.org/genai SDK and the
// legacy generative-ai-go SDK. The driver never needs to know which one is
// active.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/nauzawa/voiceloop/pkg/backend"
	"github.com/nauzawa/voiceloop/pkg/conversation"
)

const responseMIMEType = "application/json"

// Client drives the current SDK generation.
type Client struct {
	client *genai.Client
	model  string
	system string
	search bool
}

var _ backend.Backend = (*Client)(nil)

// New constructs the current-generation client. No network calls happen here;
// a returned error means this generation is unavailable and the selector
// should fall back.
func New(ctx context.Context, opts backend.Options) (backend.Backend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, errors.New("gemini: model name is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: build client: %w", err)
	}
	return &Client{
		client: client,
		model:  model,
		system: opts.SystemInstruction,
		search: opts.NativeSearch,
	}, nil
}

// Capabilities reports the current generation's feature set.
func (c *Client) Capabilities() backend.CapabilityDescriptor {
	return backend.CapabilityDescriptor{
		Generation:      "genai",
		NativeSearch:    true,
		StructuredTools: true,
	}
}

// Generate sends the full transcript and returns the next model reply.
func (c *Client) Generate(ctx context.Context, turns []conversation.Turn, tools []backend.ToolDescriptor) (*backend.Reply, error) {
	contents, err := toContents(turns)
	if err != nil {
		return nil, err
	}

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: responseMIMEType}
	if c.system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(c.system, genai.RoleUser)
	}
	switch {
	case len(tools) > 0:
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toDeclarations(tools)}}
	case c.search:
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate: %w", err)
	}
	return decodeCandidates(resp)
}

// Close releases nothing: the current SDK client holds no connection state.
func (c *Client) Close() error { return nil }

func toContents(turns []conversation.Turn) ([]*genai.Content, error) {
	if len(turns) == 0 {
		return nil, errors.New("gemini: empty transcript")
	}
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case conversation.RoleUser:
			contents = append(contents, genai.NewContentFromText(t.Text, genai.RoleUser))
		case conversation.RoleModel:
			var parts []*genai.Part
			if t.Text != "" {
				parts = append(parts, genai.NewPartFromText(t.Text))
			}
			if t.ToolCall != nil {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   t.ToolCall.ID,
					Name: t.ToolCall.Name,
					Args: t.ToolCall.Arguments,
				}})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.NewPartFromText(""))
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
		case conversation.RoleToolResult:
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					Name:     t.ToolName,
					Response: toolResponsePayload(t.ToolResult),
				},
			}}, genai.RoleUser))
		default:
			return nil, fmt.Errorf("gemini: unsupported turn role %q", t.Role)
		}
	}
	return contents, nil
}

func toDeclarations(tools []backend.ToolDescriptor) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toSchema(t.Schema),
		})
	}
	return decls
}

func decodeCandidates(resp *genai.GenerateContentResponse) (*backend.Reply, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini: response has no candidates")
	}
	reply := &backend.Reply{}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil && reply.ToolCall == nil {
			reply.ToolCall = &conversation.ToolCallRequest{
				ID:        requestID(part.FunctionCall.ID),
				Name:      part.FunctionCall.Name,
				Arguments: part.FunctionCall.Args,
			}
			continue
		}
		text.WriteString(part.Text)
	}
	reply.Text = text.String()
	return reply, nil
}

// toolResponsePayload mirrors the wire contract the model is prompted with:
// a "result" key on success, an "error" key on failure.
func toolResponsePayload(res *conversation.ToolCallResult) map[string]any {
	if res == nil {
		return map[string]any{"error": "missing tool result"}
	}
	if res.Failed() {
		return map[string]any{"error": res.Payload}
	}
	return map[string]any{"result": res.Payload}
}

func requestID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}
