// Package config resolves the process configuration from the environment,
// with an optional .env file loaded first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
)

const (
	// DefaultModel is used when GEMINI_MODEL is unset.
	DefaultModel = "gemini-2.5-flash-lite"
	// DefaultTranscriptDir is where session logs land when TRANSCRIPT_DIR
	// is unset.
	DefaultTranscriptDir = "transcripts"
	// DefaultMaxToolDepth caps tool-call rounds per turn when
	// VOICELOOP_MAX_TOOL_DEPTH is unset.
	DefaultMaxToolDepth = 10
)

// ErrMissingAPIKey reports an empty GEMINI_API_KEY. The caller treats it as
// a startup failure distinct from any later backend error.
var ErrMissingAPIKey = errors.New("config: GEMINI_API_KEY is not set")

// Config holds everything the chat session needs from the environment.
type Config struct {
	APIKey       string
	Model        string
	ForceLegacy  bool
	NativeSearch bool

	// MCPServerCommand plus MCPServerArgs launch the stdio tool server.
	// Empty command means the session runs without tools.
	MCPServerCommand string
	MCPServerArgs    []string

	// VoiceInput is an optional capture command whose stdout becomes the
	// user utterance. Empty means keyboard only.
	VoiceInput []string
	// SpeakCommand is an optional synthesis command receiving the speech
	// text as its final argument. Empty disables speech output.
	SpeakCommand []string

	TranscriptDir string
	MaxToolDepth  int
}

// Load reads a .env file when present, then resolves the configuration from
// the process environment.
func Load() (*Config, error) {
	// Missing .env is the common case and not an error.
	_ = godotenv.Load()

	cfg := &Config{
		APIKey:           os.Getenv("GEMINI_API_KEY"),
		Model:            envOr("GEMINI_MODEL", DefaultModel),
		ForceLegacy:      strings.EqualFold(os.Getenv("GEMINI_BACKEND"), "legacy"),
		NativeSearch:     envBool("GEMINI_NATIVE_SEARCH"),
		MCPServerCommand: os.Getenv("MCP_SERVER_COMMAND"),
		TranscriptDir:    envOr("TRANSCRIPT_DIR", DefaultTranscriptDir),
		MaxToolDepth:     DefaultMaxToolDepth,
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var err error
	if cfg.MCPServerArgs, err = envCommand("MCP_SERVER_ARGS"); err != nil {
		return nil, err
	}
	if cfg.VoiceInput, err = envCommand("VOICE_INPUT"); err != nil {
		return nil, err
	}
	if cfg.SpeakCommand, err = envCommand("SPEAK_COMMAND"); err != nil {
		return nil, err
	}

	if raw := os.Getenv("VOICELOOP_MAX_TOOL_DEPTH"); raw != "" {
		depth, err := strconv.Atoi(raw)
		if err != nil || depth <= 0 {
			return nil, fmt.Errorf("config: VOICELOOP_MAX_TOOL_DEPTH %q is not a positive integer", raw)
		}
		cfg.MaxToolDepth = depth
	}

	return cfg, nil
}

// SpeakCommandFromEnv resolves only SPEAK_COMMAND, for invocations that
// synthesize speech without opening a chat session.
func SpeakCommandFromEnv() ([]string, error) {
	_ = godotenv.Load()
	return envCommand("SPEAK_COMMAND")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

// envCommand splits a shell-quoted environment value into argv form.
func envCommand(key string) ([]string, error) {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	words, err := shellquote.Split(raw)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", key, err)
	}
	return words, nil
}
