// Package events provides the typed publish/subscribe bus for app lifecycle
// and tool outcome notifications. Subscribers are plain closures invoked
// sequentially in subscription order; delivery is best-effort fan-out, never
// a control-flow gate — a failing subscriber is logged and skipped, and the
// remaining subscribers are still notified.
package events

import (
	"context"
	"time"
)

// Name identifies an event emitted on the bus.
type Name string

// Event names emitted by the invocation orchestrator. Their payload shapes
// (below) are part of the public contract and must remain stable.
const (
	// AppInit is emitted after all plugin init hooks have completed.
	AppInit Name = "app:init"

	// AppStart is emitted after all plugin start hooks have completed.
	AppStart Name = "app:start"

	// AppShutdown is emitted after shutdown hooks have run, even when some failed.
	AppShutdown Name = "app:shutdown"

	// ToolCalled is emitted when an invocation enters the pipeline.
	ToolCalled Name = "tool:called"

	// ToolSuccess is emitted when an invocation produced a result.
	ToolSuccess Name = "tool:success"

	// ToolError is emitted when an invocation failed.
	ToolError Name = "tool:error"
)

// LifecyclePayload accompanies app:init, app:start, and app:shutdown.
type LifecyclePayload struct {
	// App is the application name.
	App string

	// Time is when the phase completed.
	Time time.Time
}

// ToolCalledPayload accompanies tool:called.
type ToolCalledPayload struct {
	InvocationID string
	Tool         string
	Input        map[string]any
}

// ToolSuccessPayload accompanies tool:success.
type ToolSuccessPayload struct {
	InvocationID string
	Tool         string
	Output       map[string]any
	Duration     time.Duration
}

// ToolErrorPayload accompanies tool:error.
type ToolErrorPayload struct {
	InvocationID string
	Tool         string

	// Kind is the classified error kind (see the invoke package).
	Kind string

	// Err is the classified invocation error.
	Err error

	Duration time.Duration
}

// Handler receives one event payload.
type Handler func(ctx context.Context, payload any) error

// AnyHandler receives every event regardless of name.
type AnyHandler func(ctx context.Context, name Name, payload any) error
