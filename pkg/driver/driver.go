// Package driver owns the per-turn control flow: it reads input, dispatches
// to the backend under the retry policy, drains the tool-call sub-loop, and
// fans the final structured response out to the display, the speaker and the
// transcript sink.
package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nauzawa/voiceloop/pkg/backend"
	"github.com/nauzawa/voiceloop/pkg/conversation"
	"github.com/nauzawa/voiceloop/pkg/retry"
	"github.com/nauzawa/voiceloop/pkg/transcript"
)

const defaultMaxToolDepth = 10

// ErrToolDepthExceeded reports a backend that kept requesting tools past the
// configured sub-loop bound.
var ErrToolDepthExceeded = errors.New("driver: tool-call depth exceeded")

// errDuplicateRequest guards the at-most-once resolution invariant.
var errDuplicateRequest = errors.New("driver: tool-call request already resolved")

// InputProvider supplies one line of user input per request. It may run its
// own capture sub-protocol (microphone, speech-to-text) opaque to the loop.
type InputProvider interface {
	Read(ctx context.Context) (string, error)
}

// Speaker receives the speech text of a model turn. Fire-and-forget: the
// driver never awaits it.
type Speaker interface {
	Speak(text string)
}

// ToolResolver resolves tool-call requests against the external session.
type ToolResolver interface {
	Resolve(ctx context.Context, req *conversation.ToolCallRequest) conversation.ToolCallResult
	Degraded() bool
}

// Config wires the driver's collaborators. Everything is assembled once at
// startup and passed in explicitly.
type Config struct {
	Backend  backend.Backend
	Retry    retry.Policy
	Input    InputProvider
	Speaker  Speaker
	Sink     transcript.Sink
	// Tools may be nil when no tool session is configured.
	Tools    ToolResolver
	Manifest []backend.ToolDescriptor
	// Out receives user-facing text; defaults to stdout.
	Out          io.Writer
	MaxToolDepth int
	Log          logrus.FieldLogger
}

// Driver runs the conversation loop. Single logical thread of control: at
// most one backend call or tool resolution is in flight at any moment.
type Driver struct {
	backend      backend.Backend
	retry        retry.Policy
	input        InputProvider
	speaker      Speaker
	sink         transcript.Sink
	tools        ToolResolver
	manifest     []backend.ToolDescriptor
	out          io.Writer
	maxToolDepth int
	log          logrus.FieldLogger
	state        *conversation.State
}

// New validates the wiring and constructs a driver with an empty transcript.
func New(cfg Config) (*Driver, error) {
	if cfg.Backend == nil {
		return nil, errors.New("driver: backend is required")
	}
	if cfg.Input == nil {
		return nil, errors.New("driver: input provider is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("driver: transcript sink is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	depth := cfg.MaxToolDepth
	if depth <= 0 {
		depth = defaultMaxToolDepth
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Driver{
		backend:      cfg.Backend,
		retry:        cfg.Retry,
		input:        cfg.Input,
		speaker:      cfg.Speaker,
		sink:         cfg.Sink,
		tools:        cfg.Tools,
		manifest:     cfg.Manifest,
		out:          out,
		maxToolDepth: depth,
		log:          log,
		state:        conversation.NewState(),
	}, nil
}

// Run loops until the exit keyword, end of input, or cancellation. Fatal
// errors inside a turn are reported and the loop continues; the conversation
// survives a single bad turn.
func (d *Driver) Run(ctx context.Context) error {
	defer func() {
		if err := d.sink.Close(); err != nil {
			d.log.WithError(err).Warn("closing transcript sink")
		}
		_ = d.state.Close()
	}()

	for {
		line, err := d.input.Read(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, context.Canceled):
			return nil
		case ctx.Err() != nil:
			return nil
		default:
			// Voice-input failure: report and loop without consuming a turn.
			fmt.Fprintf(d.out, "Input failed: %v\n", err)
			d.log.WithError(err).Warn("input provider failure")
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if isExitKeyword(input) {
			fmt.Fprintln(d.out, "Goodbye!")
			return nil
		}

		if err := d.runTurn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.log.WithError(err).Error("turn failed")
			fmt.Fprintf(d.out, "An error occurred: %v\n", err)
		}
	}
}

func isExitKeyword(input string) bool {
	switch strings.ToLower(input) {
	case "exit", "quit":
		return true
	}
	return false
}

// runTurn drives one user input to a final structured response.
func (d *Driver) runTurn(ctx context.Context, input string) error {
	if err := d.state.Append(conversation.NewUserTurn(input)); err != nil {
		return err
	}
	if err := d.sink.Record("You", input); err != nil {
		d.log.WithError(err).Warn("recording user turn")
	}

	reply, err := d.generate(ctx)
	if err != nil {
		return err
	}

	resolved := make(map[string]struct{})
	for depth := 0; reply.ToolCall != nil; {
		depth++
		if depth > d.maxToolDepth {
			return fmt.Errorf("%w: %d requests in one turn", ErrToolDepthExceeded, depth)
		}
		req := reply.ToolCall
		if _, done := resolved[req.ID]; done {
			return fmt.Errorf("%w: %s", errDuplicateRequest, req.ID)
		}
		resolved[req.ID] = struct{}{}

		if err := d.state.Append(conversation.NewModelTurn(reply.Text, req)); err != nil {
			return err
		}
		result := d.dispatchTool(ctx, req)
		if err := d.state.Append(conversation.NewToolResultTurn(req.Name, result)); err != nil {
			return err
		}

		reply, err = d.generate(ctx)
		if err != nil {
			return err
		}
	}

	structured := ParseStructuredResponse(reply.Text)
	if err := d.state.Append(conversation.NewModelTurn(reply.Text, nil)); err != nil {
		return err
	}
	if err := d.sink.Record("Gemini", structured.DisplayText); err != nil {
		d.log.WithError(err).Warn("recording model turn")
	}
	fmt.Fprintf(d.out, "Gemini: %s\n\n", structured.DisplayText)
	if d.speaker != nil {
		d.speaker.Speak(structured.SpeechText)
	}
	return nil
}

// generate invokes the backend once through the retry policy with the full
// transcript snapshot as context.
func (d *Driver) generate(ctx context.Context) (*backend.Reply, error) {
	snapshot := d.state.Snapshot()
	return retry.Do(ctx, d.retry, func(ctx context.Context) (*backend.Reply, error) {
		return d.backend.Generate(ctx, snapshot, d.manifest)
	})
}

// dispatchTool resolves one request, or synthesizes an error result when no
// usable tool session exists so the model learns about it in-band.
func (d *Driver) dispatchTool(ctx context.Context, req *conversation.ToolCallRequest) conversation.ToolCallResult {
	if d.tools == nil {
		d.log.WithField("tool", req.Name).Warn("tool requested but no session is configured")
		return conversation.ToolCallResult{
			Status:  conversation.StatusError,
			Payload: "No tool session is available.",
		}
	}
	if d.tools.Degraded() {
		d.log.WithField("tool", req.Name).Warn("tool requested but session is degraded")
		return conversation.ToolCallResult{
			Status:  conversation.StatusError,
			Payload: "The tool session is unavailable for the rest of this conversation.",
		}
	}
	fmt.Fprintf(d.out, "[model requests tool: %s]\n", req.Name)
	return d.tools.Resolve(ctx, req)
}
