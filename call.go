package appskit

import (
	"context"
	"time"

	"github.com/AndurilCode/mcp-apps-kit-sub001/events"
	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
	"github.com/AndurilCode/mcp-apps-kit-sub001/tool"
)

// CallTool runs one tool invocation through the full pipeline:
// validate input → build context → before hooks → middleware(handler) →
// validate output → after/error hooks → outcome event. The returned error,
// when non-nil, always carries a classification (see invoke.KindOf).
func (a *App) CallTool(ctx context.Context, name string, rawInput map[string]any, meta invoke.Metadata) (map[string]any, error) {
	_, output, err := a.call(ctx, name, rawInput, meta)
	return output, err
}

// CallToolWire runs the pipeline and shapes the outcome with the app's
// protocol adapter. It never returns an error: a failed tool call always
// yields an error-shaped response, never a silent drop.
func (a *App) CallToolWire(ctx context.Context, name string, rawInput map[string]any, meta invoke.Metadata) map[string]any {
	ictx, output, err := a.call(ctx, name, rawInput, meta)
	if ictx == nil {
		// The call failed before the pipeline built a context (unknown tool
		// or invalid input); give the adapter a bare carrier for shaping.
		ictx = &invoke.Context{ToolName: name, Input: rawInput, Meta: meta}
	}
	if err != nil {
		return a.shaper.ShapeError(ictx, err)
	}
	return a.shaper.ShapeSuccess(ictx, output)
}

// call is the orchestrator sequence shared by CallTool and CallToolWire.
// The returned context is nil when the call never entered the pipeline.
func (a *App) call(ctx context.Context, name string, rawInput map[string]any, meta invoke.Metadata) (*invoke.Context, map[string]any, error) {
	t, ok := a.tools.Get(name)
	if !ok {
		return nil, nil, invoke.Errorf(invoke.KindToolExecution, "unknown tool %q", name)
	}

	// Input validation happens before the pipeline: a call that never had
	// valid input emits no events and runs no hooks.
	input, err := t.ValidateInput(rawInput)
	if err != nil {
		return nil, nil, err
	}

	ictx := invoke.NewContext(name, input, meta)
	started := time.Now()

	a.bus.Emit(ctx, events.ToolCalled, events.ToolCalledPayload{
		InvocationID: ictx.ID,
		Tool:         name,
		Input:        input,
	})

	output, err := a.run(ctx, ictx, t)

	if err != nil {
		err = invoke.Classify(invoke.KindToolExecution, err)
		a.host.OnToolError(ctx, ictx, err)
		a.bus.Emit(ctx, events.ToolError, events.ToolErrorPayload{
			InvocationID: ictx.ID,
			Tool:         name,
			Kind:         string(invoke.KindOf(err)),
			Err:          err,
			Duration:     time.Since(started),
		})
		return ictx, nil, err
	}

	a.host.AfterToolCall(ctx, ictx, output)
	a.bus.Emit(ctx, events.ToolSuccess, events.ToolSuccessPayload{
		InvocationID: ictx.ID,
		Tool:         name,
		Output:       output,
		Duration:     time.Since(started),
	})
	return ictx, output, nil
}

// run executes the hook-and-middleware portion of one invocation and
// resolves the result from the reserved response key.
func (a *App) run(ctx context.Context, ictx *invoke.Context, t tool.Tool) (map[string]any, error) {
	// A veto here aborts the invocation before any middleware runs; it is
	// treated as a tool execution failure, not an isolated hook failure.
	if err := a.host.BeforeToolCall(ctx, ictx); err != nil {
		return nil, invoke.Classify(invoke.KindToolExecution, err)
	}

	terminal := func(ctx context.Context, ictx *invoke.Context) error {
		out, err := t.Handler(ctx, ictx, ictx.Input)
		if err != nil {
			return invoke.Classify(invoke.KindToolExecution, err)
		}
		validated, err := t.ValidateOutput(out)
		if err != nil {
			return err
		}
		ictx.SetResponse(validated)
		return nil
	}

	if err := a.chain.Execute(ctx, ictx, terminal); err != nil {
		return nil, err
	}

	// The terminal handler stores its validated output under the reserved
	// response key; a short-circuiting middleware may have done the same.
	// Either way the key is the single source of the invocation result.
	// A middleware-provided response is used as-is, without output
	// validation: middleware decide per call, for any tool, and cannot be
	// held to one tool's output contract.
	if out, ok := ictx.Response(); ok {
		return out, nil
	}
	if ictx.HasResponse() {
		return nil, invoke.Errorf(invoke.KindShortCircuit,
			"middleware stored a non-map value under %q", invoke.StateKeyResponse)
	}
	return nil, invoke.Errorf(invoke.KindShortCircuit,
		"middleware short-circuited tool %q without providing a result", ictx.ToolName)
}
