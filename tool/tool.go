// Package tool defines the tool contract: a named, schema-validated callable
// exposed to the external protocol host, and the registry that holds the
// tools an app serves. Schema validation is delegated to
// github.com/santhosh-tekuri/jsonschema; this package only decides when the
// contracts are enforced.
package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
)

// Handler executes the tool. input is already validated against the tool's
// input schema; ictx carries the invocation metadata and the mutable state
// scratchpad shared with middleware and plugins.
type Handler func(ctx context.Context, ictx *invoke.Context, input map[string]any) (map[string]any, error)

// Tool describes one callable. InputSchema and OutputSchema are JSON Schema
// documents; either may be empty, in which case the corresponding contract
// accepts any object.
type Tool struct {
	Name         string
	Description  string
	InputSchema  json.RawMessage
	OutputSchema json.RawMessage
	Handler      Handler
}

// ValidateInput checks raw against the tool's input schema and returns the
// validated input. Failures are classified as KindInputValidation.
func (t Tool) ValidateInput(raw map[string]any) (map[string]any, error) {
	if raw == nil {
		raw = map[string]any{}
	}
	if err := validate(t.InputSchema, raw); err != nil {
		return nil, invoke.NewError(invoke.KindInputValidation,
			fmt.Sprintf("tool %q input rejected", t.Name), err)
	}
	return raw, nil
}

// ValidateOutput checks out against the tool's output schema and returns it.
// Failures are classified as KindOutputValidation.
func (t Tool) ValidateOutput(out map[string]any) (map[string]any, error) {
	if out == nil {
		out = map[string]any{}
	}
	if err := validate(t.OutputSchema, out); err != nil {
		return nil, invoke.NewError(invoke.KindOutputValidation,
			fmt.Sprintf("tool %q output rejected", t.Name), err)
	}
	return out, nil
}

// validate round-trips value through JSON so the validator sees canonical
// decoded values, then applies the compiled schema. An empty schema accepts
// everything.
func validate(schema json.RawMessage, value map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return compiled.Validate(decoded)
}
