// Package backend abstracts the two Gemini client generations behind a
// single conversation-driving surface. Downstream code depends only on the
// Backend interface and the CapabilityDescriptor chosen at startup, never on
// which generation is active.
package backend

import (
	"context"

	"github.com/nauzawa/voiceloop/pkg/conversation"
)

// ToolDescriptor describes one callable tool advertised to the model.
// Schema is a JSON-schema object as delivered by the tool session.
type ToolDescriptor struct {
	Name        string
	Description string
	Schema      map[string]any
}

// CapabilityDescriptor reports which features the selected client generation
// supports. It is built once by the selector and treated as read-only.
type CapabilityDescriptor struct {
	// Generation names the active client generation, for diagnostics only.
	Generation string
	// NativeSearch is set when the generation can attach the provider's
	// built-in search tool.
	NativeSearch bool
	// StructuredTools is set when the generation accepts schema-described
	// function declarations.
	StructuredTools bool
}

// Reply is a single backend response: either final text or an embedded
// tool-call request that must be resolved before the turn can complete.
type Reply struct {
	Text     string
	ToolCall *conversation.ToolCallRequest
}

// Backend drives one client generation. Generate sends the full transcript
// snapshot plus the tool manifest and returns the next model reply.
type Backend interface {
	Capabilities() CapabilityDescriptor
	Generate(ctx context.Context, turns []conversation.Turn, tools []ToolDescriptor) (*Reply, error)
	Close() error
}

// Options carries the settings a generation constructor needs. Assembled once
// at startup from configuration; there is no ambient state to consult.
type Options struct {
	APIKey            string
	Model             string
	SystemInstruction string
	// NativeSearch requests the provider's built-in search tool when the
	// generation supports it and no external tools are attached.
	NativeSearch bool
}
