package commands

import (
	"context"
	"time"
)

// SessionInfo identifies the session a command runs in.
type SessionInfo struct {
	ID       string
	Provider string
	Cwd      string
}

// EventEmitter is a fire-and-forget event hook.
type EventEmitter interface {
	Emit(name string, payload map[string]any)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) Emit(string, map[string]any) {}

// CredentialManager resolves provider credentials. The core passes the handle
// through to handlers; it does not read credentials itself.
type CredentialManager interface {
	Get(ctx context.Context, provider string) (string, error)
	Store(ctx context.Context, provider, credential string) error
}

// ToolRegistry is the opaque handle to locally available tools.
type ToolRegistry interface {
	ToolNames() []string
}

// SkillManager is the opaque handle to skill scripts.
type SkillManager interface {
	SkillNames() []string
}

// FileSink writes pipe-redirect output. Mode selects overwrite or append.
type FileSink interface {
	Write(path, content string, mode RedirectMode) error
}

// ContextUsage is a point-in-time report of the session's token budget.
type ContextUsage struct {
	Model         string  `json:"model"`
	Tokens        int     `json:"tokens"`
	Usable        int     `json:"usable"`
	ContextWindow int     `json:"context_window"`
	UsageRatio    float64 `json:"usage_ratio"`
	State         string  `json:"state"`
	Messages      int     `json:"messages"`
}

// CompactReport summarizes one manual compaction pass.
type CompactReport struct {
	StateBefore  string   `json:"state_before"`
	StateAfter   string   `json:"state_after"`
	TokensBefore int      `json:"tokens_before"`
	TokensAfter  int      `json:"tokens_after"`
	Actions      []string `json:"actions,omitempty"`
	CheckpointID string   `json:"checkpoint_id,omitempty"`
}

// CheckpointInfo describes one stored context snapshot.
type CheckpointInfo struct {
	ID        string    `json:"id"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	Messages  int       `json:"messages"`
}

// ContextManager exposes the session's context-window manager to commands:
// usage reporting, manual compaction, and snapshot/rollback.
type ContextManager interface {
	Usage() ContextUsage
	Compact(ctx context.Context) (*CompactReport, error)
	Checkpoint(label string) (CheckpointInfo, error)
	Rollback(id string) error
	Checkpoints() []CheckpointInfo
}

// Capabilities bundles the handles a ContextProvider supplies to commands.
type Capabilities struct {
	Credentials CredentialManager
	Tools       ToolRegistry
	Skills      SkillManager
	FileSink    FileSink
	Events      EventEmitter
	Manager     ContextManager
}

// ContextProvider constructs the capability set for a session. Implemented by
// the application wiring layer.
type ContextProvider interface {
	Capabilities(session SessionInfo) Capabilities
}

// StaticProvider returns the same capability set for every session.
type StaticProvider struct {
	Caps Capabilities
}

func (p StaticProvider) Capabilities(SessionInfo) Capabilities { return p.Caps }

// Context is the read-only record handed to a command handler.
type Context struct {
	Session SessionInfo
	Args    *ParsedArgs

	// Input is the stdout of the previous pipe segment, when piped.
	Input string

	Events      EventEmitter
	Credentials CredentialManager
	Tools       ToolRegistry
	Skills      SkillManager
	Manager     ContextManager
}
