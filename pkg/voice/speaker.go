package voice

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"
)

// listVoicesFlag is understood by the synthesis command.
const listVoicesFlag = "--list-voices"

// CommandSpeaker speaks by launching a synthesis command with the text as
// its final argument. Speak never blocks the conversation on playback.
type CommandSpeaker struct {
	command []string
	log     *logrus.Logger
}

// NewCommandSpeaker returns a speaker for the given argv. An empty argv
// yields a speaker that silently drops everything.
func NewCommandSpeaker(command []string, log *logrus.Logger) *CommandSpeaker {
	if log == nil {
		log = logrus.New()
	}
	return &CommandSpeaker{command: command, log: log}
}

// Speak launches the synthesis command in the background. Failures are
// logged, never surfaced, so a broken speaker cannot break the session.
func (s *CommandSpeaker) Speak(text string) {
	if len(s.command) == 0 || strings.TrimSpace(text) == "" {
		return
	}
	cmd := exec.Command(s.command[0], speakArgs(s.command, text)...) // #nosec G204 -- operator-configured command
	if err := cmd.Start(); err != nil {
		s.log.WithError(err).WithField("command", s.command[0]).Warn("starting speech command")
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			s.log.WithError(err).Debug("speech command exited")
		}
	}()
}

func speakArgs(command []string, text string) []string {
	args := make([]string, 0, len(command))
	args = append(args, command[1:]...)
	return append(args, text)
}

// SpeakOnce runs the synthesis command to completion. The speak subcommand
// uses it so the process does not exit mid-playback.
func SpeakOnce(ctx context.Context, command []string, text string) error {
	if len(command) == 0 {
		return fmt.Errorf("voice: no speech command configured")
	}
	cmd := exec.CommandContext(ctx, command[0], speakArgs(command, text)...) // #nosec G204 -- operator-configured command
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("voice: speech command: %w", err)
	}
	return nil
}

// ListVoices asks the synthesis command for its voice inventory and copies
// the listing to out.
func ListVoices(ctx context.Context, command []string, out io.Writer) error {
	if len(command) == 0 {
		return fmt.Errorf("voice: no speech command configured")
	}
	args := append(append([]string{}, command[1:]...), listVoicesFlag)
	cmd := exec.CommandContext(ctx, command[0], args...) // #nosec G204 -- operator-configured command
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("voice: listing voices: %w", err)
	}
	return nil
}
