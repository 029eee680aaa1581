package commands

import "testing"

func tokenTypes(tokens []Token) []TokenType {
	out := make([]TokenType, len(tokens))
	for i, t := range tokens {
		out[i] = t.Type
	}
	return out
}

func TestTokenize_Basic(t *testing.T) {
	tokens := Tokenize(`/login "my provider" --store keychain -v`)

	want := []struct {
		typ   TokenType
		value string
	}{
		{TokenCommand, "login"},
		{TokenWhitespace, " "},
		{TokenString, "my provider"},
		{TokenWhitespace, " "},
		{TokenFlag, "store"},
		{TokenWhitespace, " "},
		{TokenValue, "keychain"},
		{TokenWhitespace, " "},
		{TokenFlag, "v"},
	}

	if len(tokens) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(tokens), tokenTypes(tokens), len(want))
	}
	for i, w := range want {
		if tokens[i].Type != w.typ || tokens[i].Value != w.value {
			t.Errorf("token %d = {%s %q}, want {%s %q}", i, tokens[i].Type, tokens[i].Value, w.typ, w.value)
		}
	}
}

func TestTokenize_Coverage(t *testing.T) {
	// Token ranges are contiguous and cover the input exactly once.
	inputs := []string{
		`/cmd a b`,
		`/cmd --flag=value 'single' "double"`,
		`/cmd -x rest`,
		`  /cmd  `,
		`/cmd "unterminated`,
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			tokens := Tokenize(input)
			pos := 0
			for i, tok := range tokens {
				if tok.Start != pos {
					t.Fatalf("token %d starts at %d, want %d", i, tok.Start, pos)
				}
				if tok.End < tok.Start {
					t.Fatalf("token %d has inverted range", i)
				}
				pos = tok.End
			}
			if pos != len(input) {
				t.Errorf("tokens cover %d bytes, input has %d", pos, len(input))
			}
		})
	}
}

func TestTokenize_Escapes(t *testing.T) {
	t.Run("double quote escapes", func(t *testing.T) {
		tokens := Tokenize(`/e "a\nb\tc\\d\"e"`)
		if tokens[2].Value != "a\nb\tc\\d\"e" {
			t.Errorf("escapes = %q", tokens[2].Value)
		}
	})

	t.Run("unknown escape keeps backslash", func(t *testing.T) {
		tokens := Tokenize(`/e "a\qb"`)
		if tokens[2].Value != `a\qb` {
			t.Errorf("unknown escape = %q", tokens[2].Value)
		}
	})

	t.Run("single quote is literal", func(t *testing.T) {
		tokens := Tokenize(`/e 'a\nb'`)
		if tokens[2].Value != `a\nb` {
			t.Errorf("single quote = %q", tokens[2].Value)
		}
	})
}

func TestTokenize_Flags(t *testing.T) {
	t.Run("long flag with equals", func(t *testing.T) {
		tokens := Tokenize(`/c --name=value`)
		if tokens[2].Type != TokenFlag || tokens[2].Value != "name" {
			t.Fatalf("flag token = %+v", tokens[2])
		}
		if tokens[3].Type != TokenValue || tokens[3].Value != "value" {
			t.Fatalf("value token = %+v", tokens[3])
		}
	})

	t.Run("long flag with quoted equals value", func(t *testing.T) {
		tokens := Tokenize(`/c --name="a b"`)
		if tokens[3].Type != TokenString || tokens[3].Value != "a b" {
			t.Fatalf("value token = %+v", tokens[3])
		}
	})

	t.Run("short flag splits trailing run", func(t *testing.T) {
		tokens := Tokenize(`/c -abc`)
		if tokens[2].Type != TokenFlag || tokens[2].Value != "a" {
			t.Fatalf("flag token = %+v", tokens[2])
		}
		if tokens[3].Type != TokenValue || tokens[3].Value != "bc" {
			t.Fatalf("value token = %+v", tokens[3])
		}
	})

	t.Run("negative number is a value", func(t *testing.T) {
		tokens := Tokenize(`/c -5`)
		if tokens[2].Type != TokenValue || tokens[2].Value != "-5" {
			t.Fatalf("token = %+v", tokens[2])
		}
	})
}

func TestTokenize_CommandToken(t *testing.T) {
	tokens := Tokenize(`/login foo`)
	if tokens[0].Type != TokenCommand || tokens[0].Value != "login" || tokens[0].Start != 0 {
		t.Errorf("command token = %+v", tokens[0])
	}
}
