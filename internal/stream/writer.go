// Package stream emits the NDJSON command-event protocol: one JSON object
// per line with monotonic sequencing and ISO-8601 UTC timestamps.
package stream

import (
	"encoding/json"
	"io"
	"time"

	"github.com/haasonsaas/quill/internal/commands"
)

// EventType discriminates stream events.
type EventType string

const (
	EventStart    EventType = "start"
	EventMetadata EventType = "metadata"
	EventProgress EventType = "progress"
	EventOutput   EventType = "output"
	EventResult   EventType = "result"
	EventError    EventType = "error"
	EventComplete EventType = "complete"
)

// OutputStream names the channel an output event belongs to.
type OutputStream string

const (
	StreamStdout OutputStream = "stdout"
	StreamStderr OutputStream = "stderr"
)

// Event is one NDJSON line. Only the fields for its Type are populated.
type Event struct {
	Type      EventType `json:"type"`
	Sequence  int       `json:"seq"`
	Timestamp string    `json:"ts"`

	// start
	Command string         `json:"command,omitempty"`
	Args    map[string]any `json:"args,omitempty"`

	// metadata
	Metadata map[string]any `json:"metadata,omitempty"`

	// progress
	Current    *int     `json:"current,omitempty"`
	Total      *int     `json:"total,omitempty"`
	Percentage *float64 `json:"percentage,omitempty"`
	Message    string   `json:"message,omitempty"`

	// output
	Content string       `json:"content,omitempty"`
	Stream  OutputStream `json:"stream,omitempty"`

	// result: projection of a command result by kind
	Result map[string]any `json:"result,omitempty"`

	// error
	Code  commands.ErrorCode `json:"code,omitempty"`
	Stack string             `json:"stack,omitempty"`

	// complete
	ExitCode   *int  `json:"exit_code,omitempty"`
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// Writer emits events as NDJSON. Not safe for concurrent use; callers
// serialize.
type Writer struct {
	out   io.Writer
	enc   *json.Encoder
	seq   int
	now   func() time.Time
	debug bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock injects a timestamp source for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithDebug enables stack traces on error events.
func WithDebug(debug bool) Option {
	return func(w *Writer) { w.debug = debug }
}

// NewWriter creates an NDJSON event writer. Sequence numbers start at 0.
func NewWriter(out io.Writer, opts ...Option) *Writer {
	w := &Writer{
		out: out,
		enc: json.NewEncoder(out),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) emit(event Event) error {
	event.Sequence = w.seq
	w.seq++
	event.Timestamp = w.now().UTC().Format(time.RFC3339Nano)
	return w.enc.Encode(event)
}

// Start announces command execution.
func (w *Writer) Start(command string, args map[string]any) error {
	return w.emit(Event{Type: EventStart, Command: command, Args: args})
}

// Metadata emits arbitrary key/value context.
func (w *Writer) Metadata(metadata map[string]any) error {
	return w.emit(Event{Type: EventMetadata, Metadata: metadata})
}

// Progress reports step current of total. Percentage is computed when total
// is known.
func (w *Writer) Progress(current int, total int, message string) error {
	event := Event{Type: EventProgress, Current: &current, Message: message}
	if total > 0 {
		event.Total = &total
		pct := float64(current) / float64(total) * 100
		event.Percentage = &pct
	}
	return w.emit(event)
}

// Output streams command output on stdout or stderr.
func (w *Writer) Output(content string, stream OutputStream) error {
	if stream == "" {
		stream = StreamStdout
	}
	return w.emit(Event{Type: EventOutput, Content: content, Stream: stream})
}

// Result projects a command result by kind.
func (w *Writer) Result(result *commands.Result) error {
	projection := map[string]any{"kind": string(result.Kind)}
	switch result.Kind {
	case commands.ResultSuccess:
		if result.Message != "" {
			projection["message"] = result.Message
		}
		if len(result.Data) > 0 {
			projection["data"] = result.Data
		}
		if result.ClearScreen {
			projection["clear_screen"] = true
		}
		if result.Refresh {
			projection["refresh"] = true
		}
	case commands.ResultError:
		projection["code"] = string(result.Code)
		projection["message"] = result.Message
		if len(result.Suggestions) > 0 {
			projection["suggestions"] = result.Suggestions
		}
		if result.HelpCommand != "" {
			projection["help_command"] = result.HelpCommand
		}
	case commands.ResultInteractive:
		if result.Prompt != nil {
			projection["input_type"] = string(result.Prompt.InputType)
			projection["message"] = result.Prompt.Message
			if len(result.Prompt.Options) > 0 {
				projection["options"] = result.Prompt.Options
			}
		}
	case commands.ResultPending:
		if result.Operation != nil {
			projection["message"] = result.Operation.Message
			projection["show_progress"] = result.Operation.ShowProgress
		}
	}
	return w.emit(Event{Type: EventResult, Result: projection})
}

// Error emits an error event. The stack is included only in debug mode.
func (w *Writer) Error(code commands.ErrorCode, message, stack string) error {
	event := Event{Type: EventError, Code: code, Message: message}
	if w.debug {
		event.Stack = stack
	}
	return w.emit(event)
}

// Complete ends the stream with the exit code and elapsed time.
func (w *Writer) Complete(exitCode int, duration time.Duration) error {
	return w.emit(Event{Type: EventComplete, ExitCode: &exitCode, DurationMs: duration.Milliseconds()})
}
