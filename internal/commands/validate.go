package commands

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValidationError reports an argument validation failure, naming the argument.
type ValidationError struct {
	Code    ErrorCode
	Arg     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Result converts the validation error into an error result.
func (e *ValidationError) Result() *Result {
	return Error(e.Code, e.Message)
}

// Validate checks a parsed command against a signature and produces the typed
// ParsedArgs view. Positionals are coerced to their declared types with
// defaults filled; extra positionals beyond the signature pass through as
// strings; unknown named args pass through verbatim.
func Validate(sig *Signature, parsed *ParsedCommand) (*ParsedArgs, error) {
	args := &ParsedArgs{
		Named: make(map[string]any, len(parsed.Named)),
		Raw:   parsed.Raw,
	}

	for i, spec := range sig.Positional {
		if i >= len(parsed.Positional) {
			if spec.Default != nil {
				args.Positional = append(args.Positional, spec.Default)
				continue
			}
			if spec.Required {
				return nil, &ValidationError{
					Code:    CodeMissingArgument,
					Arg:     spec.Name,
					Message: fmt.Sprintf("missing required argument %q", spec.Name),
				}
			}
			args.Positional = append(args.Positional, nil)
			continue
		}
		value, err := coerce(spec, parsed.Positional[i])
		if err != nil {
			return nil, err
		}
		args.Positional = append(args.Positional, value)
	}

	// Extra positionals pass through as strings.
	for i := len(sig.Positional); i < len(parsed.Positional); i++ {
		args.Positional = append(args.Positional, parsed.Positional[i])
	}

	claimed := make(map[string]bool, len(sig.Named)*2)
	for _, spec := range sig.Named {
		raw, key := lookupNamed(parsed.Named, spec)
		claimed[spec.Name] = true
		if spec.Short != "" {
			claimed[spec.Short] = true
		}
		if key == "" {
			if spec.Default != nil {
				args.Named[spec.Name] = spec.Default
				continue
			}
			if spec.Required {
				return nil, &ValidationError{
					Code:    CodeMissingArgument,
					Arg:     spec.Name,
					Message: fmt.Sprintf("missing required argument %q", spec.Name),
				}
			}
			continue
		}
		value, err := coerceNamed(spec, raw)
		if err != nil {
			return nil, err
		}
		args.Named[spec.Name] = value
	}

	// Unknown named args pass through verbatim; plugin and MCP commands may
	// understand more than their declared signature.
	for key, value := range parsed.Named {
		if !claimed[key] {
			args.Named[key] = value
		}
	}

	return args, nil
}

func lookupNamed(named map[string]any, spec ArgSpec) (any, string) {
	if v, ok := named[spec.Name]; ok {
		return v, spec.Name
	}
	if spec.Short != "" {
		if v, ok := named[spec.Short]; ok {
			return v, spec.Short
		}
	}
	return nil, ""
}

func coerce(spec ArgSpec, raw string) (any, error) {
	switch spec.Type {
	case ArgString, "":
		return raw, nil
	case ArgNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, typeError(spec, raw, "number")
		}
		return n, nil
	case ArgBoolean:
		b, ok := parseBool(raw)
		if !ok {
			return nil, typeError(spec, raw, "boolean")
		}
		return b, nil
	case ArgPath:
		if raw == "" {
			return nil, typeError(spec, raw, "path")
		}
		return raw, nil
	default:
		return raw, nil
	}
}

func coerceNamed(spec ArgSpec, raw any) (any, error) {
	switch v := raw.(type) {
	case bool:
		// A bare flag is a literal boolean.
		if spec.Type == ArgBoolean || spec.Type == "" {
			return v, nil
		}
		return nil, typeError(spec, "true", string(spec.Type))
	case string:
		return coerce(spec, v)
	default:
		return nil, typeError(spec, fmt.Sprintf("%v", raw), string(spec.Type))
	}
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(raw) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

func typeError(spec ArgSpec, raw, want string) error {
	return &ValidationError{
		Code:    CodeArgumentTypeError,
		Arg:     spec.Name,
		Message: fmt.Sprintf("argument %q: %q is not a valid %s", spec.Name, raw, want),
	}
}
