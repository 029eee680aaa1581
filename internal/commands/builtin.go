package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// RegisterBuiltins registers the built-in command set.
func RegisterBuiltins(r *Registry) {
	mustRegister := func(sig *Signature) {
		if err := r.Register(sig); err != nil {
			panic(fmt.Sprintf("failed to register builtin command %q: %v", sig.Name, err))
		}
	}

	// Help command
	mustRegister(&Signature{
		Name:        "help",
		Kind:        KindBuiltin,
		Aliases:     []string{"h", "?", "commands"},
		Description: "Show available commands",
		Usage:       "/help [command]",
		Category:    "system",
		Positional: []ArgSpec{
			{Name: "command", Type: ArgString, Description: "Command to show help for"},
		},
		Handler: helpHandler(r),
	})

	// Echo command; the smallest useful pipe stage.
	mustRegister(&Signature{
		Name:        "echo",
		Kind:        KindBuiltin,
		Description: "Echo arguments (or piped input) back",
		Usage:       "/echo [text...]",
		Category:    "system",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			parts := make([]string, 0, len(cmdCtx.Args.Positional))
			for _, p := range cmdCtx.Args.Positional {
				parts = append(parts, fmt.Sprintf("%v", p))
			}
			text := strings.Join(parts, " ")
			if text == "" {
				text = cmdCtx.Input
			}
			return Success(text), nil
		},
	})

	// Filter command: keeps input lines containing the pattern. Pairs with
	// /echo to exercise pipelines.
	mustRegister(&Signature{
		Name:        "filter",
		Kind:        KindBuiltin,
		Description: "Filter piped input lines by substring",
		Usage:       "/filter <pattern>",
		Category:    "tools",
		Positional: []ArgSpec{
			{Name: "pattern", Type: ArgString, Required: true, Description: "Substring to match"},
		},
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			pattern := cmdCtx.Args.String(0)
			var kept []string
			for _, line := range strings.Split(cmdCtx.Input, "\n") {
				if strings.Contains(line, pattern) {
					kept = append(kept, line)
				}
			}
			return Success(strings.Join(kept, "\n")), nil
		},
	})

	// Version command
	mustRegister(&Signature{
		Name:        "version",
		Kind:        KindBuiltin,
		Description: "Show version information",
		Category:    "system",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			return SuccessData("quill", map[string]any{"action": "version"}), nil
		},
	})

	// Clear command: a pure UI hint.
	mustRegister(&Signature{
		Name:        "clear",
		Kind:        KindBuiltin,
		Aliases:     []string{"cls"},
		Description: "Clear the screen",
		Category:    "navigation",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			return &Result{Kind: ResultSuccess, ClearScreen: true}, nil
		},
	})

	// Tools command: lists what the tool registry exposes.
	mustRegister(&Signature{
		Name:        "tools",
		Kind:        KindBuiltin,
		Description: "List available tools",
		Category:    "tools",
		Handler: func(ctx context.Context, cmdCtx *Context) (*Result, error) {
			if cmdCtx.Tools == nil {
				return Error(CodeResourceNotFound, "no tool registry available"), nil
			}
			names := cmdCtx.Tools.ToolNames()
			sort.Strings(names)
			return SuccessData(strings.Join(names, "\n"), map[string]any{"tools": names}), nil
		},
	})

	// Context command: token usage report.
	mustRegister(&Signature{
		Name:        "context",
		Kind:        KindBuiltin,
		Aliases:     []string{"usage"},
		Description: "Show context window usage",
		Category:    "session",
		Handler:     contextHandler,
	})

	// Compact command: manual compaction pass.
	mustRegister(&Signature{
		Name:        "compact",
		Kind:        KindBuiltin,
		Description: "Compact the conversation to reclaim tokens",
		Category:    "session",
		Handler:     compactHandler,
	})

	// Checkpoint command: snapshot the conversation.
	mustRegister(&Signature{
		Name:        "checkpoint",
		Kind:        KindBuiltin,
		Description: "Snapshot the conversation for later rollback",
		Usage:       "/checkpoint [label]",
		Category:    "session",
		Positional: []ArgSpec{
			{Name: "label", Type: ArgString, Description: "Optional checkpoint label"},
		},
		Handler: checkpointHandler,
	})

	// Rollback command: restore a snapshot, or list them without an id.
	mustRegister(&Signature{
		Name:        "rollback",
		Kind:        KindBuiltin,
		Description: "Restore a conversation checkpoint",
		Usage:       "/rollback [id]",
		Category:    "session",
		Positional: []ArgSpec{
			{Name: "id", Type: ArgString, Description: "Checkpoint id; omit to list"},
		},
		Handler: rollbackHandler,
	})

	// Login command: exercises the interactive continuation protocol.
	mustRegister(&Signature{
		Name:        "login",
		Kind:        KindBuiltin,
		Description: "Store a provider credential",
		Usage:       "/login <provider> [--store backend]",
		Category:    "auth",
		Positional: []ArgSpec{
			{Name: "provider", Type: ArgString, Required: true, Description: "Provider name"},
		},
		Named: []ArgSpec{
			{Name: "store", Type: ArgString, Description: "Credential store backend"},
		},
		Handler: loginHandler,
	})
}

func helpHandler(r *Registry) Handler {
	return func(ctx context.Context, cmdCtx *Context) (*Result, error) {
		if name := cmdCtx.Args.String(0); name != "" {
			sig, ok := r.Get(strings.TrimPrefix(name, "/"))
			if !ok {
				res := Errorf(CodeCommandNotFound, "unknown command /%s", name)
				if suggestions := Suggest(r, name); len(suggestions) > 0 {
					slashed := make([]string, len(suggestions))
					for i, s := range suggestions {
						slashed[i] = "/" + s
					}
					res.WithSuggestions(slashed)
				}
				return res, nil
			}
			return Success(formatCommandHelp(sig)), nil
		}

		var sb strings.Builder
		sb.WriteString("Available commands:\n")
		for _, sig := range r.ListVisible() {
			sb.WriteString(fmt.Sprintf("  /%-12s %s\n", sig.Name, sig.Description))
		}
		sb.WriteString("\nUse /help <command> for details.")
		return Success(sb.String()), nil
	}
}

func formatCommandHelp(sig *Signature) string {
	var sb strings.Builder
	sb.WriteString("/" + sig.Name)
	if sig.Description != "" {
		sb.WriteString(" - " + sig.Description)
	}
	if sig.Usage != "" {
		sb.WriteString("\nUsage: " + sig.Usage)
	}
	if len(sig.Aliases) > 0 {
		sb.WriteString("\nAliases: " + strings.Join(sig.Aliases, ", "))
	}
	for _, spec := range sig.Positional {
		sb.WriteString(fmt.Sprintf("\n  <%s> (%s)", spec.Name, argTypeOrString(spec.Type)))
		if spec.Required {
			sb.WriteString(" required")
		}
		if spec.Description != "" {
			sb.WriteString(" - " + spec.Description)
		}
	}
	for _, spec := range sig.Named {
		sb.WriteString(fmt.Sprintf("\n  --%s (%s)", spec.Name, argTypeOrString(spec.Type)))
		if spec.Description != "" {
			sb.WriteString(" - " + spec.Description)
		}
	}
	return sb.String()
}

func argTypeOrString(t ArgType) string {
	if t == "" {
		return string(ArgString)
	}
	return string(t)
}

func contextHandler(ctx context.Context, cmdCtx *Context) (*Result, error) {
	if cmdCtx.Manager == nil {
		return Error(CodeResourceNotFound, "no context manager available"), nil
	}
	usage := cmdCtx.Manager.Usage()
	text := fmt.Sprintf("%s: %d/%d tokens (%.1f%% of usable, %s) across %d messages",
		usage.Model, usage.Tokens, usage.Usable, usage.UsageRatio*100, usage.State, usage.Messages)
	return SuccessData(text, map[string]any{
		"model":          usage.Model,
		"tokens":         usage.Tokens,
		"usable":         usage.Usable,
		"context_window": usage.ContextWindow,
		"usage_ratio":    usage.UsageRatio,
		"state":          usage.State,
		"messages":       usage.Messages,
	}), nil
}

func compactHandler(ctx context.Context, cmdCtx *Context) (*Result, error) {
	if cmdCtx.Manager == nil {
		return Error(CodeResourceNotFound, "no context manager available"), nil
	}
	report, err := cmdCtx.Manager.Compact(ctx)
	if err != nil {
		return Errorf(CodeInternalError, "compaction failed: %v", err), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("context %s -> %s, %d -> %d tokens",
		report.StateBefore, report.StateAfter, report.TokensBefore, report.TokensAfter))
	for _, action := range report.Actions {
		sb.WriteString("\n  " + action)
	}
	cmdCtx.Events.Emit("context.compacted", map[string]any{
		"tokens_before": report.TokensBefore,
		"tokens_after":  report.TokensAfter,
	})
	return SuccessData(sb.String(), map[string]any{
		"state_before":  report.StateBefore,
		"state_after":   report.StateAfter,
		"tokens_before": report.TokensBefore,
		"tokens_after":  report.TokensAfter,
		"actions":       report.Actions,
		"checkpoint_id": report.CheckpointID,
	}), nil
}

func checkpointHandler(ctx context.Context, cmdCtx *Context) (*Result, error) {
	if cmdCtx.Manager == nil {
		return Error(CodeResourceNotFound, "no context manager available"), nil
	}
	info, err := cmdCtx.Manager.Checkpoint(cmdCtx.Args.String(0))
	if err != nil {
		return Errorf(CodeInternalError, "creating checkpoint: %v", err), nil
	}
	return SuccessData(
		fmt.Sprintf("checkpoint %s created (%d messages)", info.ID, info.Messages),
		map[string]any{"id": info.ID, "label": info.Label, "messages": info.Messages},
	), nil
}

func rollbackHandler(ctx context.Context, cmdCtx *Context) (*Result, error) {
	if cmdCtx.Manager == nil {
		return Error(CodeResourceNotFound, "no context manager available"), nil
	}

	id := cmdCtx.Args.String(0)
	if id == "" {
		checkpoints := cmdCtx.Manager.Checkpoints()
		if len(checkpoints) == 0 {
			return Success("no checkpoints stored"), nil
		}
		var sb strings.Builder
		sb.WriteString("available checkpoints:")
		for _, cp := range checkpoints {
			sb.WriteString(fmt.Sprintf("\n  %s  %s  %d messages", cp.ID, cp.Label, cp.Messages))
		}
		return Success(sb.String()), nil
	}

	if err := cmdCtx.Manager.Rollback(id); err != nil {
		return Errorf(CodeResourceNotFound, "checkpoint %s: %v", id, err), nil
	}
	return Successf("rolled back to checkpoint %s", id), nil
}

// loginHandler prompts for a credential and stores it through the credential
// manager capability. The password prompt resumes through the interactive
// continuation.
func loginHandler(ctx context.Context, cmdCtx *Context) (*Result, error) {
	provider := cmdCtx.Args.String(0)
	creds := cmdCtx.Credentials
	if creds == nil {
		return Error(CodeCredentialNotFound, "no credential manager available"), nil
	}

	return Interactive(&Prompt{
		InputType: InputPassword,
		Message:   fmt.Sprintf("API key for %s:", provider),
		Handler: func(input string) *Result {
			if strings.TrimSpace(input) == "" {
				return Error(CodeInvalidArgument, "empty credential")
			}
			if err := creds.Store(ctx, provider, input); err != nil {
				return Errorf(CodeAuthenticationFailed, "storing credential: %v", err)
			}
			cmdCtx.Events.Emit("credential.stored", map[string]any{"provider": provider})
			return Successf("Credential stored for %s", provider)
		},
		OnCancel: func() *Result {
			return Aborted()
		},
	}), nil
}
