package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AndurilCode/mcp-apps-kit-sub001/invoke"
)

type phase int

const (
	phaseRegistered phase = iota
	phaseInitialized
	phaseStarted
	phaseStopped
)

// Host owns an ordered plugin list for the life of the app and invokes their
// hooks. Lifecycle hooks (Init, Start, Shutdown) run once per process phase.
// Per-call hooks run in registration order, sequentially, for every matching
// point in a tool invocation.
//
// Lifecycle hooks gate whether the process may serve traffic, so Init and
// Start fail loudly and fail fast. AfterToolCall and OnToolError run once per
// request under load and are isolated: a secondary failure in a plugin must
// never hide the primary outcome from the caller.
type Host struct {
	mu      sync.Mutex
	phase   phase
	plugins []Plugin
	log     *slog.Logger
}

// NewHost creates a host over plugins in registration order. Plugin names
// must be non-empty and unique. log defaults to slog.Default().
func NewHost(plugins []Plugin, log *slog.Logger) (*Host, error) {
	if log == nil {
		log = slog.Default()
	}
	seen := make(map[string]struct{}, len(plugins))
	for i, p := range plugins {
		if p.Name == "" {
			return nil, fmt.Errorf("plugin: plugin at index %d has no name", i)
		}
		if _, dup := seen[p.Name]; dup {
			return nil, fmt.Errorf("plugin: duplicate plugin name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return &Host{plugins: plugins, log: log}, nil
}

// Plugins returns the registered plugins in registration order.
func (h *Host) Plugins() []Plugin {
	return h.plugins
}

// Init runs every plugin's OnInit hook in registration order, each completed
// before the next starts. The first failure aborts immediately: no further
// plugin is initialized and the error propagates as KindPluginInit. A second
// Init call is a caller error.
func (h *Host) Init(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.phase != phaseRegistered {
		return invoke.Errorf(invoke.KindPluginInit, "init called twice")
	}

	for _, p := range h.plugins {
		if p.OnInit == nil {
			continue
		}
		if err := p.OnInit(ctx); err != nil {
			return invoke.NewError(invoke.KindPluginInit, fmt.Sprintf("plugin %q init failed", p.Name), err)
		}
	}
	h.phase = phaseInitialized
	return nil
}

// Start runs every plugin's OnStart hook with the same sequential fail-fast
// semantics as Init. It is only valid after a successful Init.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.phase != phaseInitialized {
		return invoke.Errorf(invoke.KindPluginStart, "start called before successful init")
	}

	for _, p := range h.plugins {
		if p.OnStart == nil {
			continue
		}
		if err := p.OnStart(ctx); err != nil {
			return invoke.NewError(invoke.KindPluginStart, fmt.Sprintf("plugin %q start failed", p.Name), err)
		}
	}
	h.phase = phaseStarted
	return nil
}

// Shutdown runs every plugin's OnShutdown hook in reverse registration order;
// teardown is the mirror of setup. A failing hook is recorded but does not
// prevent the remaining hooks from running. The aggregated failures are
// returned joined.
func (h *Host) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.phase == phaseStopped {
		return nil
	}
	h.phase = phaseStopped

	var errs []error
	for i := len(h.plugins) - 1; i >= 0; i-- {
		p := h.plugins[i]
		if p.OnShutdown == nil {
			continue
		}
		if err := p.OnShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin %q shutdown: %w", p.Name, err))
		}
	}
	return errors.Join(errs...)
}

// BeforeToolCall runs each plugin's BeforeToolCall hook in registration
// order. The first failure vetoes the invocation and is returned; it is not
// isolated, so authorization-style plugins can reject calls.
func (h *Host) BeforeToolCall(ctx context.Context, ictx *invoke.Context) error {
	for _, p := range h.plugins {
		if p.BeforeToolCall == nil {
			continue
		}
		if err := p.BeforeToolCall(ctx, ictx); err != nil {
			return fmt.Errorf("plugin %q rejected tool call: %w", p.Name, err)
		}
	}
	return nil
}

// AfterToolCall runs each plugin's AfterToolCall hook in registration order.
// Hook failures are logged and swallowed.
func (h *Host) AfterToolCall(ctx context.Context, ictx *invoke.Context, output map[string]any) {
	for _, p := range h.plugins {
		if p.AfterToolCall == nil {
			continue
		}
		h.isolate(ctx, p.Name, "afterToolCall", func() error {
			return p.AfterToolCall(ctx, ictx, output)
		})
	}
}

// OnToolError runs each plugin's OnToolError hook in registration order.
// Hook failures are logged and swallowed; they never mask callErr.
func (h *Host) OnToolError(ctx context.Context, ictx *invoke.Context, callErr error) {
	for _, p := range h.plugins {
		if p.OnToolError == nil {
			continue
		}
		h.isolate(ctx, p.Name, "onToolError", func() error {
			return p.OnToolError(ctx, ictx, callErr)
		})
	}
}

// OnRequest runs each plugin's OnRequest hook. Failures are logged.
func (h *Host) OnRequest(ctx context.Context, req RequestInfo) {
	for _, p := range h.plugins {
		if p.OnRequest == nil {
			continue
		}
		h.isolate(ctx, p.Name, "onRequest", func() error {
			return p.OnRequest(ctx, req)
		})
	}
}

// OnResponse runs each plugin's OnResponse hook. Failures are logged.
func (h *Host) OnResponse(ctx context.Context, resp ResponseInfo) {
	for _, p := range h.plugins {
		if p.OnResponse == nil {
			continue
		}
		h.isolate(ctx, p.Name, "onResponse", func() error {
			return p.OnResponse(ctx, resp)
		})
	}
}

// OnUILoad runs each plugin's OnUILoad hook. Failures are logged.
func (h *Host) OnUILoad(ctx context.Context, ui UILoadInfo) {
	for _, p := range h.plugins {
		if p.OnUILoad == nil {
			continue
		}
		h.isolate(ctx, p.Name, "onUILoad", func() error {
			return p.OnUILoad(ctx, ui)
		})
	}
}

// isolate invokes one secondary hook, containing errors and panics so the
// primary outcome already being returned to the caller is never altered.
func (h *Host) isolate(ctx context.Context, name, hook string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.ErrorContext(ctx, "plugin hook panicked", "plugin", name, "hook", hook, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		h.log.ErrorContext(ctx, "plugin hook failed", "plugin", name, "hook", hook,
			"error", invoke.Classify(invoke.KindPluginHook, err))
	}
}
