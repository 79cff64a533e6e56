package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// validateInput checks params against the tool's declared JSON schema.
// Tools with no schema (or an uncompilable one) accept any input; a
// broken schema should not brick an otherwise working tool.
func validateInput(tool Tool, params json.RawMessage) error {
	schema := tool.Schema()
	if len(schema) == 0 {
		return nil
	}

	compiler := jsonschema.NewCompiler()
	url := "inline://" + tool.Name() + ".json"
	if err := compiler.AddResource(url, bytes.NewReader(schema)); err != nil {
		return nil
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return nil
	}

	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	var doc any
	if err := json.Unmarshal(params, &doc); err != nil {
		return fmt.Errorf("input is not valid JSON: %w", err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("input violates schema: %w", err)
	}
	return nil
}
