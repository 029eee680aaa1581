package config

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// userCommandSchema constrains user-defined command declarations.
const userCommandSchema = `{
	"type": "object",
	"required": ["name", "template"],
	"properties": {
		"name": {"type": "string", "pattern": "^[a-z][a-z0-9_-]*$"},
		"description": {"type": "string"},
		"category": {"type": "string"},
		"template": {"type": "string", "minLength": 1},
		"aliases": {"type": "array", "items": {"type": "string", "pattern": "^[a-z][a-z0-9_-]*$"}},
		"positional": {"$ref": "#/$defs/args"},
		"named": {"$ref": "#/$defs/args"}
	},
	"$defs": {
		"args": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"type": {"enum": ["", "string", "number", "boolean", "path"]},
					"required": {"type": "boolean"},
					"default": {},
					"description": {"type": "string"}
				}
			}
		}
	}
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func userSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiledSchema, compileErr = jsonschema.CompileString("user_command.schema.json", userCommandSchema)
	})
	return compiledSchema, compileErr
}

// ValidateUserCommand checks one user command declaration against the schema.
func ValidateUserCommand(cmd *UserCommand) error {
	schema, err := userSchema()
	if err != nil {
		return fmt.Errorf("compile user command schema: %w", err)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode command %q: %w", cmd.Name, err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode command %q: %w", cmd.Name, err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("command %q invalid: %w", cmd.Name, err)
	}
	return nil
}
