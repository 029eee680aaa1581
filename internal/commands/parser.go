package commands

import (
	"fmt"
	"strings"
)

// ParsedCommand is the parse-time view of a slash command: name lowercased
// with the leading slash stripped, positional values in order, named values as
// flag-name -> string or boolean true, and the raw input preserved verbatim.
type ParsedCommand struct {
	Name       string
	Positional []string
	Named      map[string]any
	Raw        string
}

// ParseError reports a parse failure with the byte position that caused it.
// It is surfaced to callers as an INVALID_ARGUMENT result, never thrown.
type ParseError struct {
	Code    ErrorCode
	Message string
	Pos     int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at %d: %s", e.Code, e.Pos, e.Message)
}

// Result converts the parse error into an error result.
func (e *ParseError) Result() *Result {
	return Error(e.Code, e.Message)
}

// Parse parses a single slash-command input. The input must start with '/'
// after trimming; quotes must balance. Tokens are classified per the grammar:
// a flag followed by a value or string becomes a named argument, a flag
// followed by another flag (or end of input) becomes boolean true, and bare
// values and strings become positionals in order.
func Parse(input string) (*ParsedCommand, error) {
	raw := input
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, &ParseError{Code: CodeInvalidArgument, Message: "empty command input"}
	}
	if !strings.HasPrefix(trimmed, "/") {
		return nil, &ParseError{Code: CodeInvalidArgument, Message: "commands must start with /"}
	}
	if len(trimmed) == 1 {
		return nil, &ParseError{Code: CodeInvalidArgument, Message: "missing command name"}
	}

	if pos, ok := unbalancedQuote(trimmed); ok {
		return nil, &ParseError{
			Code:    CodeInvalidArgument,
			Message: fmt.Sprintf("unterminated quote at position %d", pos),
			Pos:     pos,
		}
	}

	tokens := Tokenize(trimmed)
	filtered := tokens[:0:0]
	for _, tok := range tokens {
		if tok.Type != TokenWhitespace {
			filtered = append(filtered, tok)
		}
	}
	if len(filtered) == 0 || filtered[0].Type != TokenCommand {
		return nil, &ParseError{Code: CodeInvalidArgument, Message: "missing command name"}
	}
	name := strings.ToLower(filtered[0].Value)
	if name == "" {
		return nil, &ParseError{Code: CodeInvalidArgument, Message: "missing command name"}
	}

	parsed := &ParsedCommand{
		Name:  name,
		Named: make(map[string]any),
		Raw:   raw,
	}

	for i := 1; i < len(filtered); i++ {
		tok := filtered[i]
		switch tok.Type {
		case TokenFlag:
			flag := strings.ToLower(tok.Value)
			if i+1 < len(filtered) && (filtered[i+1].Type == TokenValue || filtered[i+1].Type == TokenString) {
				parsed.Named[flag] = filtered[i+1].Value
				i++
			} else {
				parsed.Named[flag] = true
			}
		case TokenValue, TokenString:
			parsed.Positional = append(parsed.Positional, tok.Value)
		case TokenCommand:
			// A stray command token past position 0 is data.
			parsed.Positional = append(parsed.Positional, tok.Value)
		}
	}

	return parsed, nil
}

// unbalancedQuote pre-scans for quote balance, honoring backslash escapes
// inside double quotes only. Returns the byte position of the opening quote
// when the input ends inside a quoted region.
func unbalancedQuote(input string) (int, bool) {
	var (
		inDouble, inSingle bool
		openPos            int
	)
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case inDouble:
			if c == '\\' {
				i++
				continue
			}
			if c == '"' {
				inDouble = false
			}
		case inSingle:
			if c == '\'' {
				inSingle = false
			}
		case c == '"':
			inDouble = true
			openPos = i
		case c == '\'':
			inSingle = true
			openPos = i
		}
	}
	if inDouble || inSingle {
		return openPos, true
	}
	return 0, false
}
