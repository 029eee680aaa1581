// handlers.go contains the run* functions behind each cobra command, plus the
// application wiring: registry, executor, providers, and the context manager.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/haasonsaas/quill/internal/commands"
	"github.com/haasonsaas/quill/internal/config"
	contextmgr "github.com/haasonsaas/quill/internal/context"
	"github.com/haasonsaas/quill/internal/models"
	"github.com/haasonsaas/quill/internal/providers"
	"github.com/haasonsaas/quill/internal/stream"
	qmodels "github.com/haasonsaas/quill/pkg/models"
)

// exitCodeError carries a process exit code through cobra's error path.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// app bundles the wired subsystems for one session.
type app struct {
	cfg        *config.Config
	registry   *commands.Registry
	executor   *commands.Executor
	manager    *contextmgr.Manager
	sessionCtx *sessionContext
	metricsReg *prometheus.Registry
	session    commands.SessionInfo
	logger     *slog.Logger
}

func buildApp(cfg *config.Config) (*app, error) {
	logger := slog.Default()

	registry := commands.NewRegistry(logger)
	commands.RegisterBuiltins(registry)
	if err := registerUserCommands(registry, cfg.Commands); err != nil {
		return nil, err
	}

	// One registry per app: repeated construction (tests, subcommands) must
	// not trip duplicate prometheus registrations.
	metricsReg := prometheus.NewRegistry()

	creds := newEnvCredentials()
	factory := providers.NewFactory(models.DefaultCatalog, func(provider string) (string, error) {
		return creds.Get(context.Background(), provider)
	})
	summarizer := contextmgr.NewSummarizer(contextmgr.SummarizerOptions{
		Chain: cfg.Chain(),
		Factory: func(model string) (contextmgr.SummaryClient, error) {
			return factory.ClientFor(model)
		},
		MaxRatio: cfg.Context.MaxSummaryRatio,
		Limiter:  rate.NewLimiter(rate.Limit(cfg.Summarize.RequestsPerSecond), 1),
		Logger:   logger,
	})

	manager := contextmgr.NewManager(contextmgr.ManagerOptions{
		Model:            cfg.Model,
		Profile:          models.ProfileByName(cfg.Profile),
		Summarizer:       summarizer,
		RecentCount:      cfg.Context.RecentCount,
		MinSummaryWindow: cfg.Context.MinSummaryWindow,
		Checkpoints:      contextmgr.NewCheckpointStore(cfg.Context.CheckpointCapacity),
		Trim: contextmgr.TrimOptions{
			MaxOutputChars: cfg.Context.MaxOutputChars,
			ProtectedTools: cfg.Context.ProtectedTools,
		},
		Flags:   contextmgr.FeatureFlags{AggressiveTruncation: cfg.Context.AggressiveTruncation},
		Logger:  logger,
		Metrics: contextmgr.NewMetrics(metricsReg),
	})

	sessionCtx := &sessionContext{manager: manager, model: cfg.Model}

	caps := commands.Capabilities{
		Credentials: creds,
		FileSink:    osFileSink{},
		Events:      logEmitter{logger: logger},
		Manager:     sessionCtx,
	}
	executor := commands.NewExecutor(registry, commands.StaticProvider{Caps: caps}, logger)
	executor.SetMetrics(commands.NewMetrics(metricsReg))

	cwd, _ := os.Getwd()
	return &app{
		cfg:        cfg,
		registry:   registry,
		executor:   executor,
		manager:    manager,
		sessionCtx: sessionCtx,
		metricsReg: metricsReg,
		session:    commands.SessionInfo{ID: "cli", Provider: cfg.Model, Cwd: cwd},
		logger:     logger,
	}, nil
}

// applyConfig swaps in the reloadable parts of a changed configuration.
// User-defined commands reload live; model, profile and budget changes take
// effect on the next session.
func (a *app) applyConfig(next *config.Config) {
	for _, sig := range a.registry.List() {
		if sig.Kind == commands.KindUser {
			a.registry.Unregister(sig.Name)
		}
	}
	if err := registerUserCommands(a.registry, next.Commands); err != nil {
		a.logger.Warn("config reload rejected", "error", err)
		return
	}
	a.cfg.Commands = next.Commands
	a.logger.Info("user commands reloaded", "count", len(next.Commands))
}

// registerUserCommands converts config-declared commands into registry
// signatures whose handlers render the command template.
func registerUserCommands(registry *commands.Registry, defs []config.UserCommand) error {
	for _, def := range defs {
		def := def
		sig := &commands.Signature{
			Name:        def.Name,
			Kind:        commands.KindUser,
			Category:    def.Category,
			Description: def.Description,
			Aliases:     def.Aliases,
			Positional:  userArgs(def.Positional),
			Named:       userArgs(def.Named),
			Handler: func(ctx context.Context, cmdCtx *commands.Context) (*commands.Result, error) {
				prompt := renderTemplate(def.Template, &def, cmdCtx.Args)
				return commands.SuccessData(prompt, map[string]any{"action": "prompt", "prompt": prompt}), nil
			},
		}
		if err := registry.Register(sig); err != nil {
			return fmt.Errorf("registering user command %q: %w", def.Name, err)
		}
	}
	return nil
}

func userArgs(defs []config.UserArg) []commands.ArgSpec {
	specs := make([]commands.ArgSpec, 0, len(defs))
	for _, d := range defs {
		specs = append(specs, commands.ArgSpec{
			Name:        d.Name,
			Type:        commands.ArgType(d.Type),
			Required:    d.Required,
			Default:     d.Default,
			Description: d.Description,
		})
	}
	return specs
}

// renderTemplate substitutes {{name}} placeholders with argument values.
func renderTemplate(template string, def *config.UserCommand, args *commands.ParsedArgs) string {
	out := template
	for i, spec := range def.Positional {
		if i < len(args.Positional) {
			out = strings.ReplaceAll(out, "{{"+spec.Name+"}}", fmt.Sprintf("%v", args.Positional[i]))
		}
	}
	for name, value := range args.Named {
		out = strings.ReplaceAll(out, "{{"+name+"}}", fmt.Sprintf("%v", value))
	}
	return out
}

// =============================================================================
// Handlers
// =============================================================================

func runExec(ctx context.Context, configPath, input string, jsonOutput bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	var writer *stream.Writer
	if jsonOutput {
		writer = stream.NewWriter(os.Stdout, stream.WithDebug(cfg.Debug))
		writer.Start(input, nil)
	}

	result := a.executor.Execute(ctx, input, a.session)
	result = resolveResult(ctx, result, os.Stdin, os.Stdout)

	code := exitCodeFor(result)
	if jsonOutput {
		writer.Result(result)
		if result.Kind == commands.ResultError {
			writer.Error(result.Code, result.Message, string(debug.Stack()))
		}
		writer.Complete(code, time.Since(start))
	} else {
		printResult(os.Stdout, result)
	}

	if code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

type batchFlags struct {
	jsonOutput      bool
	continueOnError bool
	keepComments    bool
}

func runBatch(ctx context.Context, configPath, scriptPath string, flags batchFlags) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	script, err := os.ReadFile(scriptPath)
	if err != nil {
		return err
	}

	start := time.Now()
	opts := commands.DefaultBatchOptions()
	opts.ContinueOnError = flags.continueOnError
	opts.SkipComments = !flags.keepComments

	var writer *stream.Writer
	if flags.jsonOutput {
		writer = stream.NewWriter(os.Stdout, stream.WithDebug(cfg.Debug))
		writer.Start("batch", map[string]any{"script": scriptPath})
	}

	batch := a.executor.ExecuteBatch(ctx, string(script), a.session, opts)

	code := 0
	if batch.Failed > 0 || batch.Aborted {
		code = 1
	}
	if flags.jsonOutput {
		for i, line := range batch.Results {
			if line.Skipped {
				continue
			}
			writer.Progress(i+1, len(batch.Results), line.Command)
			writer.Result(line.Result)
		}
		writer.Metadata(map[string]any{
			"total": batch.Total, "succeeded": batch.Succeeded,
			"failed": batch.Failed, "skipped": batch.Skipped,
			"aborted": batch.Aborted,
		})
		writer.Complete(code, time.Since(start))
	} else {
		for _, line := range batch.Results {
			if line.Skipped {
				continue
			}
			fmt.Fprintf(os.Stdout, "%s\n", line.Command)
			printResult(os.Stdout, line.Result)
		}
		fmt.Fprintf(os.Stdout, "%d run, %d succeeded, %d failed, %d skipped\n",
			batch.Total, batch.Succeeded, batch.Failed, batch.Skipped)
	}

	if code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

func runRepl(ctx context.Context, configPath, metricsAddr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	a, err := buildApp(cfg)
	if err != nil {
		return err
	}

	// Hot-reload user commands while the session runs.
	if _, statErr := os.Stat(configPath); statErr == nil {
		watcher, watchErr := config.Watch(configPath, a.applyConfig, a.logger)
		if watchErr != nil {
			a.logger.Warn("config watch unavailable", "path", configPath, "error", watchErr)
		} else {
			defer watcher.Close()
		}
	}

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, a.metricsReg, a.logger)
	}

	fmt.Println("quill interactive session. /help for commands, /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		result := a.executor.Execute(ctx, line, a.session)
		result = resolveResult(ctx, result, os.Stdin, os.Stdout)
		printResult(os.Stdout, result)

		a.sessionCtx.AppendTurn(line, result.Message)
		report, err := a.sessionCtx.Compact(ctx)
		if err != nil {
			a.logger.Warn("context management failed", "error", err)
		}
		if report != nil && report.StateAfter != contextmgr.StateHealthy.String() {
			fmt.Fprintf(os.Stderr, "context %s: %d tokens in use\n",
				report.StateAfter, report.TokensAfter)
		}
	}
}

// serveMetrics exposes the app's prometheus registry over HTTP.
func serveMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	logger.Info("serving metrics", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", "error", err)
	}
}

func runModels(out io.Writer) error {
	for _, m := range models.List() {
		budget := contextmgr.BudgetForModel(m.ID)
		fmt.Fprintf(out, "%-28s %-10s window=%-8d usable=%-8d profile=%s\n",
			m.ID, m.Provider, m.ContextWindow, budget.Usable, models.ProfileFor(m.ID).Name)
	}
	return nil
}

// =============================================================================
// Result handling
// =============================================================================

// resolveResult drives the cooperative interaction loop: interactive results
// collect input and resume through the continuation; pending results park on
// the future until it completes or the context is cancelled.
func resolveResult(ctx context.Context, result *commands.Result, in *os.File, out io.Writer) *commands.Result {
	for {
		switch result.Kind {
		case commands.ResultInteractive:
			prompt := result.Prompt
			if prompt == nil {
				return commands.Error(commands.CodeInternalError, "interactive result without prompt")
			}
			input, err := readPromptInput(prompt, in, out)
			if err != nil {
				if prompt.OnCancel != nil {
					result = prompt.OnCancel()
					continue
				}
				return commands.Aborted()
			}
			result = prompt.Handler(input)

		case commands.ResultPending:
			op := result.Operation
			if op == nil {
				return commands.Error(commands.CodeInternalError, "pending result without operation")
			}
			if op.Message != "" {
				fmt.Fprintln(out, op.Message)
			}
			select {
			case next, ok := <-op.Future:
				if !ok || next == nil {
					return commands.Error(commands.CodeInternalError, "pending operation closed without result")
				}
				result = next
			case <-ctx.Done():
				if op.Cancel != nil {
					op.Cancel()
				}
				return commands.Aborted()
			}

		default:
			return result
		}
	}
}

// readPromptInput collects one prompt answer. Password prompts use the
// terminal's no-echo read when stdin is a terminal.
func readPromptInput(prompt *commands.Prompt, in *os.File, out io.Writer) (string, error) {
	fmt.Fprint(out, prompt.Message+" ")
	if len(prompt.Options) > 0 {
		fmt.Fprintf(out, "[%s] ", strings.Join(prompt.Options, "/"))
	}

	fd := int(in.Fd())
	if prompt.InputType == commands.InputPassword && term.IsTerminal(fd) {
		text, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(text), nil
	}

	reader := bufio.NewReader(in)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" && prompt.Default != "" {
		line = prompt.Default
	}
	return line, nil
}

func printResult(out io.Writer, result *commands.Result) {
	switch result.Kind {
	case commands.ResultSuccess:
		if result.Message != "" {
			fmt.Fprintln(out, result.Message)
		}
	case commands.ResultError:
		fmt.Fprintf(out, "[%s] %s\n", result.Code, result.Message)
		for _, suggestion := range result.Suggestions {
			fmt.Fprintf(out, "  - %s\n", suggestion)
		}
		if result.HelpCommand != "" {
			fmt.Fprintf(out, "see %s\n", result.HelpCommand)
		}
	}
}

// exitCodeFor maps a result to the process exit code: 0 success, 2 invalid
// usage, 1 everything else.
func exitCodeFor(result *commands.Result) int {
	if result.OK() {
		return 0
	}
	switch result.Code {
	case commands.CodeInvalidArgument, commands.CodeMissingArgument, commands.CodeArgumentTypeError:
		return 2
	default:
		return 1
	}
}

// =============================================================================
// Capabilities
// =============================================================================

// envCredentials resolves API keys from the environment with an in-memory
// overlay for keys stored during the session.
type envCredentials struct {
	overlay map[string]string
}

func newEnvCredentials() *envCredentials {
	return &envCredentials{overlay: make(map[string]string)}
}

var credentialEnvVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
}

func (c *envCredentials) Get(ctx context.Context, provider string) (string, error) {
	provider = strings.ToLower(provider)
	if key, ok := c.overlay[provider]; ok {
		return key, nil
	}
	envVar, ok := credentialEnvVars[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}
	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("no credential for provider %q (set %s)", provider, envVar)
	}
	return key, nil
}

func (c *envCredentials) Store(ctx context.Context, provider, credential string) error {
	c.overlay[strings.ToLower(provider)] = credential
	return nil
}

// osFileSink writes pipe redirects to the filesystem.
type osFileSink struct{}

func (osFileSink) Write(path, content string, mode commands.RedirectMode) error {
	flags := os.O_WRONLY | os.O_CREATE
	if mode == commands.RedirectAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(content)
	return err
}

// logEmitter forwards command events to the structured log.
type logEmitter struct {
	logger *slog.Logger
}

func (e logEmitter) Emit(name string, payload map[string]any) {
	e.logger.Debug("event", "name", name, "payload", payload)
}

// sessionContext adapts the context manager and the session transcript to
// the commands.ContextManager capability behind /context, /compact,
// /checkpoint and /rollback.
type sessionContext struct {
	manager *contextmgr.Manager
	model   string

	mu      sync.Mutex
	history []qmodels.ContextMessage
}

// AppendTurn records one executed command and its reply.
func (s *sessionContext) AppendTurn(input, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history,
		qmodels.ContextMessage{Role: qmodels.RoleUser, Content: input},
		qmodels.ContextMessage{Role: qmodels.RoleAssistant, Content: reply},
	)
}

func (s *sessionContext) snapshot() []qmodels.ContextMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]qmodels.ContextMessage(nil), s.history...)
}

func (s *sessionContext) replace(messages []qmodels.ContextMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = messages
}

// Usage implements commands.ContextManager.
func (s *sessionContext) Usage() commands.ContextUsage {
	history := s.snapshot()
	state := s.manager.State(history)
	budget := s.manager.Budget()
	return commands.ContextUsage{
		Model:         s.model,
		Tokens:        s.manager.CountTokens(history),
		Usable:        budget.Usable,
		ContextWindow: budget.ContextWindow,
		UsageRatio:    state.UsageRatio,
		State:         state.Level.String(),
		Messages:      len(history),
	}
}

// Compact implements commands.ContextManager by running one manager pass.
func (s *sessionContext) Compact(ctx context.Context) (*commands.CompactReport, error) {
	result, err := s.manager.Manage(ctx, s.snapshot())
	if result == nil {
		return nil, err
	}
	s.replace(result.Messages)
	return &commands.CompactReport{
		StateBefore:  result.StateBefore.String(),
		StateAfter:   result.StateAfter.String(),
		TokensBefore: result.TokensBefore,
		TokensAfter:  result.TokensAfter,
		Actions:      result.Actions,
		CheckpointID: result.CheckpointID,
	}, err
}

// Checkpoint implements commands.ContextManager.
func (s *sessionContext) Checkpoint(label string) (commands.CheckpointInfo, error) {
	history := s.snapshot()
	id := s.manager.Checkpoints().Create(history, label)
	return commands.CheckpointInfo{
		ID:       id,
		Label:    label,
		Messages: len(history),
	}, nil
}

// Rollback implements commands.ContextManager.
func (s *sessionContext) Rollback(id string) error {
	messages, err := s.manager.Checkpoints().Rollback(id)
	if err != nil {
		return err
	}
	s.replace(messages)
	return nil
}

// Checkpoints implements commands.ContextManager.
func (s *sessionContext) Checkpoints() []commands.CheckpointInfo {
	stored := s.manager.Checkpoints().List()
	out := make([]commands.CheckpointInfo, 0, len(stored))
	for _, cp := range stored {
		out = append(out, commands.CheckpointInfo{
			ID:        cp.ID,
			Label:     cp.Label,
			CreatedAt: cp.CreatedAt,
			Messages:  len(cp.Messages),
		})
	}
	return out
}
