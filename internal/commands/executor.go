package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Executor drives the parse -> resolve -> validate -> invoke pipeline and
// classifies the outcome into a Result. It also dispatches chained and piped
// composition.
type Executor struct {
	registry *Registry
	provider ContextProvider
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *Metrics
}

// NewExecutor creates a command executor.
func NewExecutor(registry *Registry, provider ContextProvider, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if provider == nil {
		provider = StaticProvider{Caps: Capabilities{Events: NopEmitter{}}}
	}
	return &Executor{
		registry: registry,
		provider: provider,
		logger:   logger.With("component", "executor"),
		tracer:   otel.Tracer("quill/commands"),
	}
}

// Registry exposes the backing registry.
func (e *Executor) Registry() *Registry { return e.registry }

// SetMetrics attaches command metrics. Call before serving.
func (e *Executor) SetMetrics(m *Metrics) { e.metrics = m }

// Execute runs a composite input: chained, piped, or single. Cancellation is
// observed through ctx and surfaced as COMMAND_ABORTED.
func (e *Executor) Execute(ctx context.Context, input string, session SessionInfo) *Result {
	chain := ParseChain(input)
	if chain.IsChained {
		res := e.ExecuteChain(ctx, chain, session)
		return res.Result
	}

	pipes := ParsePipes(input)
	if pipes.IsPiped() {
		return e.ExecutePipes(ctx, pipes, session)
	}

	return e.ExecuteSingle(ctx, input, session, "")
}

// ExecuteSingle runs one command through the full pipeline. pipedInput, when
// non-empty, is threaded into the handler context as stdin.
func (e *Executor) ExecuteSingle(ctx context.Context, input string, session SessionInfo, pipedInput string) *Result {
	start := time.Now()
	result := e.executeSingle(ctx, input, session, pipedInput)
	e.metrics.observe(commandOnly(input), result, time.Since(start))
	return result
}

func (e *Executor) executeSingle(ctx context.Context, input string, session SessionInfo, pipedInput string) *Result {
	if err := ctx.Err(); err != nil {
		return Aborted()
	}

	ctx, span := e.tracer.Start(ctx, "command.execute",
		trace.WithAttributes(attribute.String("session.id", session.ID)))
	defer span.End()

	parsed, err := Parse(input)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			return pe.Result()
		}
		return Error(CodeInvalidArgument, err.Error())
	}
	span.SetAttributes(attribute.String("command.name", parsed.Name))

	sig, ok := e.registry.Get(parsed.Name)
	if !ok {
		suggestions := Suggest(e.registry, parsed.Name)
		res := Errorf(CodeCommandNotFound, "unknown command /%s", parsed.Name)
		if len(suggestions) > 0 {
			slashed := make([]string, len(suggestions))
			for i, s := range suggestions {
				slashed[i] = "/" + s
			}
			res.WithSuggestions(slashed).WithHelp("/" + suggestions[0])
		} else {
			res.WithHelp("/help")
		}
		return res
	}

	args, err := Validate(sig, parsed)
	if err != nil {
		var res *Result
		if ve, ok := err.(*ValidationError); ok {
			res = ve.Result()
		} else {
			res = Error(CodeInvalidArgument, err.Error())
		}
		return res.WithHelp("/help " + sig.Name)
	}

	caps := e.provider.Capabilities(session)
	events := caps.Events
	if events == nil {
		events = NopEmitter{}
	}
	cmdCtx := &Context{
		Session:     session,
		Args:        args,
		Input:       pipedInput,
		Events:      events,
		Credentials: caps.Credentials,
		Tools:       caps.Tools,
		Skills:      caps.Skills,
		Manager:     caps.Manager,
	}

	return e.invoke(ctx, sig, cmdCtx)
}

// invoke runs the handler, trapping panics and wrapping handler errors as
// INTERNAL_ERROR.
func (e *Executor) invoke(ctx context.Context, sig *Signature, cmdCtx *Context) (result *Result) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("handler panic", "command", sig.Name, "panic", r)
			result = Errorf(CodeInternalError, "command /%s failed: %v", sig.Name, r)
		}
	}()

	res, err := sig.Handler(ctx, cmdCtx)
	if err != nil {
		if ctx.Err() != nil {
			return Aborted()
		}
		e.logger.Error("handler error", "command", sig.Name, "error", err)
		return Errorf(CodeInternalError, "command /%s failed: %v", sig.Name, err)
	}
	if res == nil {
		return Success("")
	}
	return res
}

// commandOnly extracts the name of a command input for reporting.
func commandOnly(input string) string {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
