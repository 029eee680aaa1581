// commands.go contains the cobra command definitions and their flag
// configuration. Each builder wires a command to its handler in handlers.go.
package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Exec Command
// =============================================================================

// buildExecCmd creates the "exec" command: run one input (single, chained or
// piped) and exit with a code mirroring the result.
func buildExecCmd() *cobra.Command {
	var (
		configPath string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "exec <input>",
		Short: "Execute a single command input",
		Long: `Execute one slash-command input, including chain (&&, ||, ;) and
pipe (|, >, >>) composition.

With --json, events are emitted as an NDJSON stream on stdout: start,
result, error (only when the command fails) and complete, one JSON object
per line.

Exit codes: 0 success, 1 error, 2 invalid usage.`,
		Example: `  quill exec "/help"
  quill exec "/build && /test || /rollback"
  quill exec "/list | /filter foo > out.txt" --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runExec(cmd.Context(), configPath, args[0], jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to configuration file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false,
		"Emit an NDJSON event stream on stdout")

	return cmd
}

// =============================================================================
// Batch Command
// =============================================================================

// buildBatchCmd creates the "batch" command for newline-delimited scripts.
func buildBatchCmd() *cobra.Command {
	var (
		configPath      string
		jsonOutput      bool
		continueOnError bool
		keepComments    bool
	)

	cmd := &cobra.Command{
		Use:   "batch <script-file>",
		Short: "Run a newline-delimited command script",
		Long: `Run each line of the script through the executor. Empty lines and
lines starting with # are skipped unless --keep-comments is set.`,
		Example: `  quill batch setup.quill
  quill batch deploy.quill --continue-on-error --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runBatch(cmd.Context(), configPath, args[0], batchFlags{
				jsonOutput:      jsonOutput,
				continueOnError: continueOnError,
				keepComments:    keepComments,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit an NDJSON event stream")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false,
		"Keep running after a failed line")
	cmd.Flags().BoolVar(&keepComments, "keep-comments", false,
		"Execute comment and empty lines instead of skipping them")

	return cmd
}

// =============================================================================
// Run Command
// =============================================================================

// buildRunCmd creates the "run" command: an interactive prompt loop.
func buildRunCmd() *cobra.Command {
	var (
		configPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive session",
		Long: `Read slash commands from stdin and execute them until EOF or /quit.
Interactive prompts (password input, confirmation) are collected from the
terminal. The config file is watched for changes; user-defined commands
reload live.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath = resolveConfigPath(configPath)
			return runRepl(cmd.Context(), configPath, metricsAddr)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"Serve prometheus metrics on this address (e.g. :9090)")
	return cmd
}

// =============================================================================
// Models Command
// =============================================================================

// buildModelsCmd creates the "models" command listing the catalog.
func buildModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known models and their context windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModels(cmd.OutOrStdout())
		},
	}
}

// =============================================================================
// Version Command
// =============================================================================

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("quill %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
