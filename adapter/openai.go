package adapter

import (
	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
)

// openaiAdapter produces OpenAI tool-role messages: the tool output (or a
// structured error object) serialized into the message content.
type openaiAdapter struct{}

func (openaiAdapter) ShapeSuccess(ictx *invoke.Context, output map[string]any) map[string]any {
	return map[string]any{
		"role":    "tool",
		"name":    ictx.ToolName,
		"content": compactJSON(output),
	}
}

func (openaiAdapter) ShapeError(ictx *invoke.Context, err error) map[string]any {
	return map[string]any{
		"role": "tool",
		"name": ictx.ToolName,
		"content": compactJSON(map[string]any{
			"error": map[string]any{
				"kind":    string(invoke.KindOf(err)),
				"message": err.Error(),
			},
		}),
	}
}
