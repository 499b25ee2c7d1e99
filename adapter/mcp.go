package adapter

import (
	"encoding/json"

	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
)

// mcpAdapter produces MCP CallToolResult-shaped maps: a content array of text
// blocks, the output duplicated as structuredContent, and isError signalling
// failure. The error kind travels in _meta so hosts that surface only the
// text block lose nothing a human needs.
type mcpAdapter struct{}

func (mcpAdapter) ShapeSuccess(ictx *invoke.Context, output map[string]any) map[string]any {
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": compactJSON(output)},
		},
		"structuredContent": output,
		"isError":           false,
	}
}

func (mcpAdapter) ShapeError(ictx *invoke.Context, err error) map[string]any {
	return map[string]any{
		"content": []map[string]any{
			{"type": "text", "text": err.Error()},
		},
		"isError": true,
		"_meta": map[string]any{
			"appskit/errorKind": string(invoke.KindOf(err)),
		},
	}
}

// compactJSON renders v as a single-line JSON string, falling back to an
// empty object when v cannot be marshalled.
func compactJSON(v map[string]any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
