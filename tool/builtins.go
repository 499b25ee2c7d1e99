package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
)

// Builtins returns the small set of tools the CLI registers out of the box.
// They are intentionally trivial: their job is to make `appskit serve` useful
// for smoke-testing a host connection before any real tools exist.
func Builtins() []Tool {
	return []Tool{
		{
			Name:        "echo",
			Description: "Returns its input message unchanged.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"message": {"type": "string"}},
				"required": ["message"],
				"additionalProperties": false
			}`),
			OutputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"message": {"type": "string"}},
				"required": ["message"]
			}`),
			Handler: func(ctx context.Context, ictx *invoke.Context, input map[string]any) (map[string]any, error) {
				msg, _ := input["message"].(string)
				return map[string]any{"message": msg}, nil
			},
		},
		{
			Name:        "system.time",
			Description: "Returns the current time in RFC 3339 form, optionally in a named IANA zone.",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {"zone": {"type": "string"}},
				"additionalProperties": false
			}`),
			Handler: func(ctx context.Context, ictx *invoke.Context, input map[string]any) (map[string]any, error) {
				now := time.Now().UTC()
				if zone, ok := input["zone"].(string); ok && zone != "" {
					loc, err := time.LoadLocation(zone)
					if err != nil {
						return nil, fmt.Errorf("unknown zone %q: %w", zone, err)
					}
					now = time.Now().In(loc)
				}
				return map[string]any{"time": now.Format(time.RFC3339)}, nil
			},
		},
		{
			Name:        "system.uuid",
			Description: "Generates a random UUID.",
			InputSchema: json.RawMessage(`{"type": "object", "additionalProperties": false}`),
			Handler: func(ctx context.Context, ictx *invoke.Context, input map[string]any) (map[string]any, error) {
				return map[string]any{"uuid": uuid.NewString()}, nil
			},
		},
	}
}
