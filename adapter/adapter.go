// Package adapter shapes invocation results and errors into the wire form a
// protocol host expects. Adapters are pure data mapping: no control flow, no
// I/O. The variant set is closed — MCP-shaped and OpenAI-shaped — and
// selection is a pure function of configuration, resolved once at app
// construction.
package adapter

import (
	"fmt"

	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
)

// Kind selects a wire shape.
type Kind string

const (
	// KindMCP shapes responses as MCP tool-call results (content blocks plus
	// structured content).
	KindMCP Kind = "mcp"

	// KindOpenAI shapes responses as OpenAI tool-role messages.
	KindOpenAI Kind = "openai"
)

// Adapter maps a final invocation value or error to the wire response.
// The adapter decides the exact shape sent to the caller; the pipeline only
// guarantees that every error reaching ShapeError carries a stable kind and
// a human-readable message.
type Adapter interface {
	// ShapeSuccess maps a validated tool output to the wire response.
	ShapeSuccess(ictx *invoke.Context, output map[string]any) map[string]any

	// ShapeError maps a classified invocation error to the wire response.
	ShapeError(ictx *invoke.Context, err error) map[string]any
}

// New resolves kind to its adapter. Unknown kinds are a configuration error.
func New(kind Kind) (Adapter, error) {
	switch kind {
	case KindMCP, "":
		return mcpAdapter{}, nil
	case KindOpenAI:
		return openaiAdapter{}, nil
	default:
		return nil, fmt.Errorf("adapter: unknown kind %q (want %q or %q)", kind, KindMCP, KindOpenAI)
	}
}
