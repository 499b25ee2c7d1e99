// Package server exposes an application's tools to MCP hosts over stdio and
// streamable HTTP transports.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	appskit "github.com/AndurilCode/mcp-apps-kit-sub001"
	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
	"github.com/AndurilCode/mcp-apps-kit-sub001/plugin"
	"github.com/AndurilCode/mcp-apps-kit-sub001/tool"
)

// Server bridges an application to the MCP protocol. Tools registered on the
// application are published to connected hosts; each call runs through the
// application's full invocation pipeline.
type Server struct {
	app *appskit.App
	mcp *mcp.Server
}

// New builds a Server over app. Tools must be registered on app before New
// is called; later registrations are not published.
func New(app *appskit.App) (*Server, error) {
	if app == nil {
		return nil, fmt.Errorf("server: app is nil")
	}

	s := &Server{app: app}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    app.Name(),
		Version: app.Version(),
	}, nil)

	for _, t := range app.Tools() {
		mcpTool, err := publishedTool(t)
		if err != nil {
			return nil, fmt.Errorf("server: tool %q: %w", t.Name, err)
		}
		s.mcp.AddTool(mcpTool, s.handlerFor(t.Name))
	}

	return s, nil
}

// MCPServer exposes the underlying SDK server for embedding.
func (s *Server) MCPServer() *mcp.Server { return s.mcp }

// ServeStdio runs the server over stdin/stdout until ctx is cancelled or the
// host disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// publishedTool converts a registered tool into its MCP advertisement.
func publishedTool(t tool.Tool) (*mcp.Tool, error) {
	input, err := toSchema(t.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("input schema: %w", err)
	}
	output, err := toSchema(t.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("output schema: %w", err)
	}
	return &mcp.Tool{
		Name:         t.Name,
		Description:  t.Description,
		InputSchema:  input,
		OutputSchema: output,
	}, nil
}

func toSchema(raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		return &jsonschema.Schema{Type: "object"}, nil
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// handlerFor returns the MCP handler that routes one tool through the
// invocation pipeline. Request and response plugin hooks fire around every
// call regardless of outcome.
func (s *Server) handlerFor(name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		meta := invoke.Metadata{Transport: transportFromContext(ctx)}
		if principal, ok := PrincipalFromContext(ctx); ok {
			meta.Principal = principal
		}

		host := s.app.PluginHost()
		host.OnRequest(ctx, plugin.RequestInfo{
			Method:    "tools/call",
			Transport: meta.Transport,
			Tool:      name,
		})

		start := time.Now()
		input, err := decodeArgs(req.Params.Arguments)
		if err != nil {
			callErr := invoke.Errorf(invoke.KindInputValidation, "decoding arguments: %v", err)
			host.OnResponse(ctx, plugin.ResponseInfo{
				Method:   "tools/call",
				Tool:     name,
				Err:      callErr,
				Duration: time.Since(start),
			})
			return errorResult(callErr), nil
		}

		output, callErr := s.app.CallTool(ctx, name, input, meta)

		host.OnResponse(ctx, plugin.ResponseInfo{
			Method:   "tools/call",
			Tool:     name,
			Err:      callErr,
			Duration: time.Since(start),
		})

		if callErr != nil {
			return errorResult(callErr), nil
		}
		return successResult(output), nil
	}
}

// decodeArgs normalizes the SDK's argument payload to a map. The SDK hands
// untyped handlers either raw JSON or an already-decoded value depending on
// transport.
func decodeArgs(args any) (map[string]any, error) {
	switch v := args.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case json.RawMessage:
		return unmarshalArgs([]byte(v))
	case []byte:
		return unmarshalArgs(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return unmarshalArgs(b)
	}
}

func unmarshalArgs(b []byte) (map[string]any, error) {
	if len(b) == 0 || string(b) == "null" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func successResult(output map[string]any) *mcp.CallToolResult {
	text, err := json.Marshal(output)
	if err != nil {
		text = []byte("{}")
	}
	return &mcp.CallToolResult{
		Content:           []mcp.Content{&mcp.TextContent{Text: string(text)}},
		StructuredContent: output,
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
		Meta: mcp.Meta{
			"appskit/errorKind": string(invoke.KindOf(err)),
		},
	}
}
