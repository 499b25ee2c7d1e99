// Package plugin defines the framework plugin contract and the host that
// drives plugin lifecycle and per-call hooks. A plugin is a named, versioned
// bundle of optional hook closures; the framework owns only the closures and
// never introspects plugin state. Plugins are registered at app construction
// and persist for the process lifetime.
package plugin

import (
	"context"
	"time"

	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
)

// RequestInfo describes one transport-level request for OnRequest hooks.
type RequestInfo struct {
	// Method is the protocol method being served ("tools/call", ...).
	Method string

	// Transport identifies the serving transport ("stdio", "http").
	Transport string

	// Tool is the tool name when the request targets one, otherwise empty.
	Tool string
}

// ResponseInfo describes the outcome of one transport-level request for
// OnResponse hooks.
type ResponseInfo struct {
	Method   string
	Tool     string
	Err      error
	Duration time.Duration
}

// UILoadInfo describes a UI resource load for OnUILoad hooks.
type UILoadInfo struct {
	// Resource is the UI resource path being loaded.
	Resource string
}

// Plugin is a bundle of optional hooks. Every field may be nil; the host
// skips nil hooks. Name must be unique among the plugins given to one host.
type Plugin struct {
	// Name identifies the plugin in logs and errors.
	Name string

	// Version is the plugin's own version string, informational only.
	Version string

	// OnInit runs once during app startup, before OnStart. A failure aborts
	// startup.
	OnInit func(ctx context.Context) error

	// OnStart runs once during app startup after every plugin initialized.
	// A failure aborts startup.
	OnStart func(ctx context.Context) error

	// OnShutdown runs once during app shutdown, in reverse registration
	// order. Failures are aggregated, never fail-fast: every plugin gets a
	// chance to release its resources.
	OnShutdown func(ctx context.Context) error

	// BeforeToolCall runs before the middleware chain for every invocation.
	// Returning an error vetoes the call.
	BeforeToolCall func(ctx context.Context, ictx *invoke.Context) error

	// AfterToolCall runs after a successful invocation. Failures are logged
	// and never mask the result being returned to the caller.
	AfterToolCall func(ctx context.Context, ictx *invoke.Context, output map[string]any) error

	// OnToolError runs after a failed invocation. Failures are logged and
	// never mask the original error.
	OnToolError func(ctx context.Context, ictx *invoke.Context, callErr error) error

	// OnRequest observes transport-level requests. Failures are logged.
	OnRequest func(ctx context.Context, req RequestInfo) error

	// OnResponse observes transport-level responses. Failures are logged.
	OnResponse func(ctx context.Context, resp ResponseInfo) error

	// OnUILoad observes UI resource loads. Failures are logged.
	OnUILoad func(ctx context.Context, ui UILoadInfo) error
}
