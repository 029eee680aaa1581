// Package commands implements the slash-command engine: tokenizing, parsing,
// chain/pipe composition, a priority-resolving registry, argument validation,
// and the single/chained/piped/batch executors.
package commands

import (
	"context"
)

// Kind identifies where a command came from. Registration conflicts resolve
// by kind priority: builtin < plugin < mcp < user, lower number winning.
type Kind string

const (
	KindBuiltin Kind = "builtin"
	KindPlugin  Kind = "plugin"
	KindMCP     Kind = "mcp"
	KindUser    Kind = "user"
)

// KindPriority returns the conflict-resolution rank for a kind. Unknown kinds
// rank after user commands.
func KindPriority(k Kind) int {
	switch k {
	case KindBuiltin:
		return 0
	case KindPlugin:
		return 1
	case KindMCP:
		return 2
	case KindUser:
		return 3
	default:
		return 4
	}
}

// ArgType is the declared type of a command argument.
type ArgType string

const (
	ArgString  ArgType = "string"
	ArgNumber  ArgType = "number"
	ArgBoolean ArgType = "boolean"
	ArgPath    ArgType = "path"
)

// ArgSpec declares one positional or named argument.
type ArgSpec struct {
	// Name is the argument name (long form for named args).
	Name string `json:"name" yaml:"name"`

	// Short is an optional shorthand key for named args (e.g. "v" for "verbose").
	Short string `json:"short,omitempty" yaml:"short,omitempty"`

	// Type is the declared argument type.
	Type ArgType `json:"type" yaml:"type"`

	// Required marks the argument as mandatory.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Default fills in when the argument is absent.
	Default any `json:"default,omitempty" yaml:"default,omitempty"`

	// Description documents the argument for help output.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Handler executes a command. Returning an error (or panicking) is wrapped by
// the executor as INTERNAL_ERROR; ordinary failures are error results.
type Handler func(ctx context.Context, cmdCtx *Context) (*Result, error)

// Signature describes a registered command.
type Signature struct {
	// Name is the command name without the leading slash.
	Name string `json:"name"`

	// Kind identifies the command source (builtin, plugin, mcp, user).
	Kind Kind `json:"kind"`

	// Category groups commands in help output (system, auth, session,
	// navigation, tools, config, debug, ...). Open enum.
	Category string `json:"category,omitempty"`

	// Description is a short description of what the command does.
	Description string `json:"description,omitempty"`

	// Usage shows how to use the command.
	Usage string `json:"usage,omitempty"`

	// Positional declares ordered positional arguments.
	Positional []ArgSpec `json:"positional,omitempty"`

	// Named declares named (flag) arguments.
	Named []ArgSpec `json:"named,omitempty"`

	// Aliases are alternative names for the command.
	Aliases []string `json:"aliases,omitempty"`

	// Subcommands holds nested command descriptors.
	Subcommands []*Signature `json:"subcommands,omitempty"`

	// Hidden hides the command from help listings.
	Hidden bool `json:"hidden,omitempty"`

	// Handler is the function that executes the command.
	Handler Handler `json:"-"`
}

// ParsedArgs is the post-validation view handed to handlers: positionals
// coerced to their declared types with defaults filled, named values as a
// name -> typed-value map, and the raw input.
type ParsedArgs struct {
	Positional []any
	Named      map[string]any
	Raw        string
}

// String returns the positional at index i as a string, or the empty string.
func (a *ParsedArgs) String(i int) string {
	if i < 0 || i >= len(a.Positional) {
		return ""
	}
	s, _ := a.Positional[i].(string)
	return s
}

// Number returns the positional at index i as a float64.
func (a *ParsedArgs) Number(i int) (float64, bool) {
	if i < 0 || i >= len(a.Positional) {
		return 0, false
	}
	n, ok := a.Positional[i].(float64)
	return n, ok
}

// Flag returns the named value as a string if present.
func (a *ParsedArgs) Flag(name string) (string, bool) {
	v, ok := a.Named[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the named value as a boolean; bare flags are true.
func (a *ParsedArgs) Bool(name string) bool {
	v, ok := a.Named[name]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
