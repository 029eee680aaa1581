// Package main provides the CLI entry point for Quill, an interactive AI
// coding assistant core.
//
// Quill mediates between a developer at a terminal and LLM providers
// (Anthropic, OpenAI, Google): it parses slash commands with chain, pipe and
// redirect composition, manages the conversation's token budget with
// truncation and summarization, and streams results as NDJSON for scripting.
//
// # Basic Usage
//
// Run a single command:
//
//	quill exec "/help"
//	quill exec "/build && /test || /rollback"
//	quill exec "/list | /filter foo > out.txt" --json
//
// Run a script:
//
//	quill batch script.quill --continue-on-error
//
// Start an interactive session:
//
//	quill run
//
// # Environment Variables
//
//   - QUILL_CONFIG: Path to configuration file (default: quill.yaml)
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - GOOGLE_API_KEY: Google API key for Gemini models
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := buildRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		var exit *exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "quill",
		Short: "Interactive AI coding assistant core",
		Long: `Quill mediates between a terminal and LLM providers: slash commands
with chain/pipe composition, context-window management with truncation and
summarization, and NDJSON result streaming.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(debug)
		},
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		buildExecCmd(),
		buildBatchCmd(),
		buildRunCmd(),
		buildModelsCmd(),
		buildVersionCmd(),
	)
	return root
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
