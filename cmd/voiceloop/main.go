// voiceloop is a voice-enabled Gemini chat for the terminal. It drives a
// conversation loop against the Gemini API, executes tool calls over an MCP
// stdio server, and speaks each reply through a configurable synthesis
// command.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nauzawa/voiceloop/pkg/backend"
	"github.com/nauzawa/voiceloop/pkg/backend/gemini"
	"github.com/nauzawa/voiceloop/pkg/config"
	"github.com/nauzawa/voiceloop/pkg/driver"
	"github.com/nauzawa/voiceloop/pkg/mcp/bridge"
	"github.com/nauzawa/voiceloop/pkg/retry"
	"github.com/nauzawa/voiceloop/pkg/transcript"
	"github.com/nauzawa/voiceloop/pkg/voice"
)

// systemInstruction asks for paired display and speech renderings, so the
// synthesis command receives kana-only text.
const systemInstruction = `あなたは音声対話アシスタントです。
ユーザーの入力に対して、以下のJSON形式で返答してください。
{
    "display_text": "画面に表示するテキスト（漢字を含んで自然な日本語）",
    "speech_text": "音声合成用のテキスト（すべてひらがな）"
}`

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "voiceloop",
		Short:         "Voice-enabled Gemini chat with MCP tools",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runChat,
	}
	root.AddCommand(newSpeakCommand())
	return root
}

func newLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if level, err := logrus.ParseLevel(os.Getenv("VOICELOOP_LOG_LEVEL")); err == nil {
		log.SetLevel(level)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	return log
}

func runChat(cmd *cobra.Command, _ []string) error {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrMissingAPIKey) {
			fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not found.")
			fmt.Fprintln(os.Stderr, "Create a .env file with: GEMINI_API_KEY='your_api_key_here'")
			return err
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessionID := uuid.NewString()
	log.WithFields(logrus.Fields{
		"session_id": sessionID,
		"model":      cfg.Model,
	}).Info("starting session")

	var (
		tools    driver.ToolResolver
		manifest []backend.ToolDescriptor
	)
	if cfg.MCPServerCommand != "" {
		fmt.Printf("Connecting to MCP Server: %s %s...\n", cfg.MCPServerCommand, strings.Join(cfg.MCPServerArgs, " "))
		br, err := bridge.Connect(ctx, cfg.MCPServerCommand, cfg.MCPServerArgs, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to connect to MCP server: %v\n", err)
			fmt.Println("Falling back to standard chat.")
			log.WithError(err).Warn("mcp connect failed")
		} else {
			defer func() {
				if err := br.Close(); err != nil {
					log.WithError(err).Warn("closing mcp session")
				}
			}()
			manifest, err = br.Manifest(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error loading tools from MCP server: %v\n", err)
			} else {
				fmt.Printf("Loaded %d tools from MCP server.\n", len(manifest))
				tools = br
			}
		}
	} else {
		fmt.Println("Note: MCP_SERVER_COMMAND not set. Running without MCP capabilities.")
	}

	selector := backend.NewSelector(
		func(ctx context.Context, opts backend.Options) (backend.Backend, error) {
			return gemini.New(ctx, opts)
		},
		func(ctx context.Context, opts backend.Options) (backend.Backend, error) {
			return gemini.NewLegacy(ctx, opts)
		},
		log,
	)
	be, err := selector.Select(ctx, backend.Options{
		APIKey:            cfg.APIKey,
		Model:             cfg.Model,
		SystemInstruction: systemInstruction,
		NativeSearch:      cfg.NativeSearch,
	}, cfg.ForceLegacy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	defer func() {
		if err := be.Close(); err != nil {
			log.WithError(err).Warn("closing backend")
		}
	}()

	sink, err := transcript.NewFileSink(cfg.TranscriptDir, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}

	fmt.Println("\nGemini Chat CLI. Type 'exit' or 'quit' to end.")
	fmt.Println(strings.Repeat("-", 50))

	d, err := driver.New(driver.Config{
		Backend:      be,
		Retry:        retry.Policy{Log: log},
		Input:        voice.NewConsoleInput(os.Stdin, os.Stdout, cfg.VoiceInput, log),
		Speaker:      voice.NewCommandSpeaker(cfg.SpeakCommand, log),
		Sink:         sink,
		Tools:        tools,
		Manifest:     manifest,
		Out:          os.Stdout,
		MaxToolDepth: cfg.MaxToolDepth,
		Log:          log,
	})
	if err != nil {
		return err
	}
	return d.Run(ctx)
}

func newSpeakCommand() *cobra.Command {
	var listVoices bool
	speakCmd := &cobra.Command{
		Use:   "speak [text]",
		Short: "Synthesize text with the configured SPEAK_COMMAND",
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := config.SpeakCommandFromEnv()
			if err != nil {
				return err
			}
			if listVoices {
				return voice.ListVoices(cmd.Context(), command, os.Stdout)
			}
			if len(args) == 0 {
				return fmt.Errorf("speak: text argument required")
			}
			return voice.SpeakOnce(cmd.Context(), command, strings.Join(args, " "))
		},
	}
	speakCmd.Flags().BoolVar(&listVoices, "list-voices", false, "List the voices the synthesis command offers")
	return speakCmd
}
