// Package voice covers the audio edges of a session: reading user
// utterances from the console or a capture command, and handing speech
// text to a synthesis command.
package voice

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var promptColor = color.New(color.FgCyan, color.Bold)

type readResult struct {
	line string
	err  error
}

// ConsoleInput reads utterances line by line. When a capture command is
// configured, an empty line triggers it and its trimmed stdout becomes the
// utterance, so the user can switch between typing and speaking per turn.
type ConsoleInput struct {
	in      io.Reader
	out     io.Writer
	capture []string
	log     *logrus.Logger

	once  sync.Once
	lines chan readResult
}

// NewConsoleInput wires an input over the given reader and prompt writer.
// capture may be nil for keyboard-only sessions.
func NewConsoleInput(in io.Reader, out io.Writer, capture []string, log *logrus.Logger) *ConsoleInput {
	if log == nil {
		log = logrus.New()
	}
	return &ConsoleInput{
		in:      in,
		out:     out,
		capture: capture,
		log:     log,
		lines:   make(chan readResult),
	}
}

// Read blocks for the next utterance. It returns io.EOF when the underlying
// reader is drained and ctx.Err() when the context ends first. The reader
// goroutine stays blocked on the console in that case, which is fine for a
// process about to exit.
func (c *ConsoleInput) Read(ctx context.Context) (string, error) {
	c.once.Do(func() { go c.scan() })

	promptColor.Fprint(c.out, "You: ")

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-c.lines:
		if res.err != nil {
			return "", res.err
		}
		if res.line == "" && len(c.capture) > 0 {
			return c.record(ctx)
		}
		return res.line, nil
	}
}

func (c *ConsoleInput) scan() {
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		c.lines <- readResult{line: scanner.Text()}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	c.lines <- readResult{err: err}
}

// record runs the capture command and treats its stdout as the utterance.
func (c *ConsoleInput) record(ctx context.Context) (string, error) {
	c.log.WithField("command", c.capture[0]).Debug("recording utterance")
	fmt.Fprintln(c.out, "(listening...)")

	cmd := exec.CommandContext(ctx, c.capture[0], c.capture[1:]...) // #nosec G204 -- operator-configured command
	raw, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("voice: capture command: %w", err)
	}
	utterance := strings.TrimSpace(string(raw))
	if utterance != "" {
		fmt.Fprintf(c.out, "You (voice): %s\n", utterance)
	}
	return utterance, nil
}
