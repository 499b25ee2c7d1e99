// Package appskit is a server-side extensibility framework for exposing
// callable tools to an external protocol host. Its core is the
// tool-invocation pipeline: the ordered composition of user-registered
// middleware, plugin hooks, and event notifications that wraps every tool
// call between validated input and validated output.
//
// An App is constructed once via New, configured with tools, plugins, and
// middleware, started with Start, and then serves invocations through
// CallTool (typically driven by the server package). The App owns all
// process-wide state — the plugin host and the event bus — with an explicit
// init/teardown lifecycle; there are no ambient globals.
//
// Subpackages:
//
//	invoke   — execution context, middleware chain, classified errors
//	plugin   — plugin contract and hook host
//	events   — lifecycle/outcome event bus
//	tool     — tool contract, schema validation, registry
//	adapter  — MCP-shaped and OpenAI-shaped wire mapping
//	auth     — bearer-token verification
//	server   — MCP transport exposure
package appskit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AndurilCode/mcp-apps-kit-sub001/adapter"
	"github.com/AndurilCode/mcp-apps-kit-sub001/auth"
	"github.com/AndurilCode/mcp-apps-kit-sub001/events"
	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
	"github.com/AndurilCode/mcp-apps-kit-sub001/plugin"
	"github.com/AndurilCode/mcp-apps-kit-sub001/tool"
)

// Options configures an App.
type Options struct {
	// Name identifies the app to hosts and in lifecycle events.
	Name string

	// Version is the app version reported to hosts.
	Version string

	// Adapter selects the wire shape; defaults to MCP.
	Adapter adapter.Kind

	// Plugins are registered in order at construction and persist for the
	// process lifetime.
	Plugins []plugin.Plugin

	// Tools are registered at construction. More may be added with
	// RegisterTool before Start.
	Tools []tool.Tool

	// Verifier, when set, is used by transports to authenticate callers.
	Verifier auth.Verifier

	// Logger receives pipeline diagnostics and isolated-failure reports.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// MaxEventSubscribers caps subscribers per event name (default 64).
	MaxEventSubscribers int
}

// App is the framework handle. All registration and invocation goes through
// it; one App instance owns its plugin host, event bus, middleware chain,
// and tool registry.
type App struct {
	name    string
	version string
	log     *slog.Logger

	tools  *tool.Registry
	chain  *invoke.Chain
	host   *plugin.Host
	bus    *events.Bus
	shaper adapter.Adapter

	verifier auth.Verifier

	mu      sync.Mutex
	started bool
}

// New constructs an App from opts.
func New(opts Options) (*App, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("appskit: app name is required")
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	shaper, err := adapter.New(opts.Adapter)
	if err != nil {
		return nil, err
	}
	host, err := plugin.NewHost(opts.Plugins, log)
	if err != nil {
		return nil, err
	}

	app := &App{
		name:    opts.Name,
		version: opts.Version,
		log:     log,
		tools:   tool.NewRegistry(),
		chain:   invoke.NewChain(),
		host:    host,
		bus:     events.NewBus(events.BusConfig{MaxSubscribers: opts.MaxEventSubscribers, Logger: log}),
		shaper:  shaper,

		verifier: opts.Verifier,
	}
	for _, t := range opts.Tools {
		if err := app.RegisterTool(t); err != nil {
			return nil, err
		}
	}
	return app, nil
}

// Name returns the app name.
func (a *App) Name() string { return a.name }

// Version returns the app version.
func (a *App) Version() string { return a.version }

// Logger returns the app logger.
func (a *App) Logger() *slog.Logger { return a.log }

// Verifier returns the configured token verifier, or nil.
func (a *App) Verifier() auth.Verifier { return a.verifier }

// PluginHost returns the app's plugin host, for transports that need to fire
// request/response/UI hooks.
func (a *App) PluginHost() *plugin.Host { return a.host }

// RegisterTool adds a tool to the app.
func (a *App) RegisterTool(t tool.Tool) error {
	return a.tools.Register(t)
}

// Tools returns the registered tools in registration order.
func (a *App) Tools() []tool.Tool {
	return a.tools.List()
}

// Use registers a middleware, effective for all subsequent invocations.
// Middleware run in registration order around every tool call.
func (a *App) Use(mw invoke.Middleware) {
	a.chain.Use(mw)
}

// On subscribes to an event. See the events package for names and payloads.
func (a *App) On(event events.Name, h events.Handler) (func(), error) {
	return a.bus.On(event, h)
}

// Once subscribes to a single delivery of an event.
func (a *App) Once(event events.Name, h events.Handler) (func(), error) {
	return a.bus.Once(event, h)
}

// OnAny subscribes to every event.
func (a *App) OnAny(h events.AnyHandler) func() {
	return a.bus.OnAny(h)
}

// Start drives the plugin lifecycle: every OnInit hook in registration order,
// then every OnStart hook, each phase sequential and fail-fast. The app:init
// and app:start events are emitted as each phase completes. A failed hook
// aborts startup with the first fatal error encountered.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return fmt.Errorf("appskit: %s already started", a.name)
	}
	a.started = true
	a.mu.Unlock()

	if err := a.host.Init(ctx); err != nil {
		return err
	}
	a.bus.Emit(ctx, events.AppInit, events.LifecyclePayload{App: a.name, Time: time.Now()})

	if err := a.host.Start(ctx); err != nil {
		return err
	}
	a.bus.Emit(ctx, events.AppStart, events.LifecyclePayload{App: a.name, Time: time.Now()})

	a.log.InfoContext(ctx, "app started", "app", a.name, "version", a.version, "tools", a.tools.Len())
	return nil
}

// Shutdown drives plugin teardown in reverse registration order. Hook
// failures are aggregated so every plugin gets a chance to release its
// resources; app:shutdown is emitted regardless.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.host.Shutdown(ctx)
	a.bus.Emit(ctx, events.AppShutdown, events.LifecyclePayload{App: a.name, Time: time.Now()})
	if err != nil {
		a.log.ErrorContext(ctx, "shutdown completed with failures", "app", a.name, "error", err)
	}
	return err
}
