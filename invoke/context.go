// Package invoke implements the per-invocation execution pipeline: the
// execution context carried through one tool call, the ordered middleware
// chain that wraps the terminal handler, and the structured errors the
// pipeline surfaces.
package invoke

import (
	"sync"

	"github.com/google/uuid"
)

// StateKeyResponse is the reserved state key a middleware may write to
// provide a result without running the terminal handler. When a middleware
// short-circuits the chain and has placed a map under this key, the
// orchestrator uses that map as the invocation result. This is a deliberate,
// documented convention; the key is part of the public contract.
const StateKeyResponse = "appskit.response"

// Metadata is the caller-supplied context for one invocation.
// All fields are read-only for the lifetime of the invocation.
type Metadata struct {
	// Locale is the caller's preferred locale, when the transport conveys one.
	Locale string

	// Transport identifies how the call reached the app ("stdio", "http", ...).
	Transport string

	// Principal is the verified caller identity, attached by the token
	// verifier before the pipeline runs. Nil when auth is not configured.
	Principal any

	// Extra holds transport-specific values that don't warrant a field.
	Extra map[string]any
}

// Context is the carrier passed through one tool invocation. ToolName, Input,
// and Meta are read-only; State (via Get/Set) is the only sanctioned mutation
// surface, used to pass computed values from early middleware to later
// middleware, plugins, and the handler.
//
// Exactly one Context exists per invocation. It is created immediately before
// dispatch, discarded after the response is produced, and never shared
// across invocations.
type Context struct {
	// ID uniquely identifies this invocation, for correlation in events,
	// traces, and audit records.
	ID string

	// ToolName is the tool being invoked.
	ToolName string

	// Input is the schema-validated argument map.
	Input map[string]any

	// Meta is the caller-supplied context.
	Meta Metadata

	// mu guards state. The timeout middleware abandons downstream work that
	// may still write state after the caller has moved on to the error path,
	// so every access goes through the lock.
	mu    sync.RWMutex
	state map[string]any
}

// NewContext creates a fresh execution context with a generated invocation ID
// and an empty state scratchpad.
func NewContext(toolName string, input map[string]any, meta Metadata) *Context {
	return &Context{
		ID:       uuid.NewString(),
		ToolName: toolName,
		Input:    input,
		Meta:     meta,
		state:    make(map[string]any),
	}
}

// Get returns the state value stored under key, and whether it was present.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.state[key]
	return v, ok
}

// Set stores a state value under key, replacing any previous value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state[key] = value
}

// Delete removes the state value stored under key.
func (c *Context) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.state, key)
}

// SetResponse stores out under the reserved response key.
func (c *Context) SetResponse(out map[string]any) {
	c.Set(StateKeyResponse, out)
}

// Response returns the result placed under the reserved response key, if any.
// The second return is false when no response has been provided, or when the
// stored value is not a map (see Error with KindShortCircuit for how the
// orchestrator reports that).
func (c *Context) Response() (map[string]any, bool) {
	v, ok := c.Get(StateKeyResponse)
	if !ok {
		return nil, false
	}
	out, ok := v.(map[string]any)
	return out, ok
}

// HasResponse reports whether any value, map or not, is stored under the
// reserved response key.
func (c *Context) HasResponse() bool {
	_, ok := c.Get(StateKeyResponse)
	return ok
}
