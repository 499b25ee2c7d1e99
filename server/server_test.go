package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	appskit "github.com/AndurilCode/mcp-apps-kit-sub001"
	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
	"github.com/AndurilCode/mcp-apps-kit-sub001/plugin"
	"github.com/AndurilCode/mcp-apps-kit-sub001/tool"
)

func greetTool() tool.Tool {
	return tool.Tool{
		Name:        "greet",
		Description: "Greets the caller.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"name": {"type": "string"}},
			"required": ["name"]
		}`),
		Handler: func(ctx context.Context, ictx *invoke.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"message": "Hello, " + input["name"].(string)}, nil
		},
	}
}

func newTestServer(t *testing.T, opts appskit.Options) *Server {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "test-app"
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Tools == nil {
		opts.Tools = []tool.Tool{greetTool()}
	}
	app, err := appskit.New(opts)
	if err != nil {
		t.Fatalf("appskit.New: %v", err)
	}
	srv, err := New(app)
	if err != nil {
		t.Fatalf("server.New: %v", err)
	}
	return srv
}

func TestNew_RejectsNilApp(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New accepted a nil app")
	}
}

func TestHandler_Success(t *testing.T) {
	srv := newTestServer(t, appskit.Options{})
	handler := srv.handlerFor("greet")

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      "greet",
			Arguments: json.RawMessage(`{"name":"World"}`),
		},
	}
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if result.IsError {
		t.Fatalf("result = %+v", result)
	}
	structured, ok := result.StructuredContent.(map[string]any)
	if !ok || structured["message"] != "Hello, World" {
		t.Errorf("StructuredContent = %v", result.StructuredContent)
	}
	if len(result.Content) != 1 {
		t.Fatalf("content blocks = %d, want 1", len(result.Content))
	}
}

func TestHandler_ValidationError(t *testing.T) {
	srv := newTestServer(t, appskit.Options{})
	handler := srv.handlerFor("greet")

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      "greet",
			Arguments: json.RawMessage(`{}`),
		},
	}
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Fatal("result.IsError = false, want true")
	}
	if got := result.Meta["appskit/errorKind"]; got != string(invoke.KindInputValidation) {
		t.Errorf("errorKind = %v", got)
	}
}

func TestHandler_EmptyArguments(t *testing.T) {
	srv := newTestServer(t, appskit.Options{})
	handler := srv.handlerFor("greet")

	// A host may omit the arguments field entirely.
	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{Name: "greet"},
	}
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Fatal("result.IsError = false, want validation error for missing name")
	}
	if got := result.Meta["appskit/errorKind"]; got != string(invoke.KindInputValidation) {
		t.Errorf("errorKind = %v", got)
	}
}

func TestHandler_MalformedArgumentsStillObserved(t *testing.T) {
	var requests, responses int
	var respErr error
	observer := plugin.Plugin{
		Name: "observer",
		OnRequest: func(ctx context.Context, req plugin.RequestInfo) error {
			requests++
			return nil
		},
		OnResponse: func(ctx context.Context, resp plugin.ResponseInfo) error {
			responses++
			respErr = resp.Err
			return nil
		},
	}
	srv := newTestServer(t, appskit.Options{Plugins: []plugin.Plugin{observer}})
	handler := srv.handlerFor("greet")

	req := &mcp.CallToolRequest{
		Params: &mcp.CallToolParamsRaw{
			Name:      "greet",
			Arguments: json.RawMessage(`{`),
		},
	}
	result, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !result.IsError {
		t.Fatal("result.IsError = false, want true")
	}
	if requests != 1 || responses != 1 {
		t.Errorf("hooks fired requests=%d responses=%d, want 1 and 1", requests, responses)
	}
	if invoke.KindOf(respErr) != invoke.KindInputValidation {
		t.Errorf("OnResponse err = %v, want INPUT_VALIDATION", respErr)
	}
}

func TestDecodeArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    any
		want    string
		wantErr bool
	}{
		{"nil", nil, "map[]", false},
		{"map", map[string]any{"a": "b"}, "map[a:b]", false},
		{"raw json", json.RawMessage(`{"a":"b"}`), "map[a:b]", false},
		{"raw null", json.RawMessage(`null`), "map[]", false},
		{"bytes", []byte(`{"a":"b"}`), "map[a:b]", false},
		{"empty bytes", []byte{}, "map[]", false},
		{"bad json", json.RawMessage(`{`), "", true},
		{"non-object", json.RawMessage(`[1,2]`), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("decodeArgs(%v) succeeded, want error", tt.args)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeArgs: %v", err)
			}
			if gotStr := fmt.Sprint(got); gotStr != tt.want {
				t.Errorf("decodeArgs = %s, want %s", gotStr, tt.want)
			}
		})
	}
}

func TestPublishedTool(t *testing.T) {
	mcpTool, err := publishedTool(greetTool())
	if err != nil {
		t.Fatalf("publishedTool: %v", err)
	}
	if mcpTool.Name != "greet" {
		t.Errorf("tool = %+v", mcpTool)
	}
	schema, ok := mcpTool.InputSchema.(*jsonschema.Schema)
	if !ok || schema.Type != "object" {
		t.Errorf("InputSchema = %+v", mcpTool.InputSchema)
	}

	bare := tool.Tool{Name: "bare", Handler: greetTool().Handler}
	mcpTool, err = publishedTool(bare)
	if err != nil {
		t.Fatalf("publishedTool(bare): %v", err)
	}
	schema, ok = mcpTool.InputSchema.(*jsonschema.Schema)
	if !ok || schema.Type != "object" {
		t.Errorf("default schema = %+v", mcpTool.InputSchema)
	}
}
