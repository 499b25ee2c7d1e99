package invoke

import (
	"context"
	"fmt"
)

// Middleware wraps one tool invocation. Calling proceed delegates to the next
// middleware, or to the terminal handler once every middleware has proceeded.
// Returning without calling proceed short-circuits the chain: nothing
// downstream runs, and the chain itself raises no error for it — the
// orchestrator decides whether a short-circuit without a result is an error.
//
// Within one execution a middleware may call proceed at most once; a second
// call returns an Error with KindMiddlewareControl naming the offending
// middleware's position.
type Middleware func(ctx context.Context, ictx *Context, proceed func() error) error

// Handler is the innermost step of a chain execution: typically the plugin
// host's call-hook wrapper around the tool handler.
type Handler func(ctx context.Context, ictx *Context) error

// Chain is an ordered middleware list dispatched in the onion model: "before"
// code runs in registration order, "after" code (following proceed) runs in
// reverse order around the terminal handler.
//
// A Chain is registered once and executed many times. Per-execution tracking
// state is fresh for every Execute call and never leaks between invocations.
type Chain struct {
	mws []Middleware
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{}
}

// Use appends mw to the chain. Registration order is dispatch order.
// Duplicates are permitted.
func (c *Chain) Use(mw Middleware) {
	c.mws = append(c.mws, mw)
}

// HasMiddleware reports whether at least one middleware is registered.
func (c *Chain) HasMiddleware() bool {
	return len(c.mws) > 0
}

// Len returns the number of registered middleware.
func (c *Chain) Len() int {
	return len(c.mws)
}

// Execute runs the full chain once against ictx, invoking terminal when every
// middleware has called proceed. Errors from any middleware or from terminal
// unwind back through every pending proceed call in reverse order; an
// ancestor middleware may catch, transform, or suppress them by not
// returning the error from its own body.
func (c *Chain) Execute(ctx context.Context, ictx *Context, terminal Handler) error {
	ex := &execution{
		mws:       c.mws,
		terminal:  terminal,
		proceeded: make([]bool, len(c.mws)),
	}
	return ex.dispatch(ctx, ictx, -1)
}

// execution holds the per-Execute dispatch state.
type execution struct {
	mws       []Middleware
	terminal  Handler
	proceeded []bool // proceeded[i]: middleware i has called proceed this execution
}

// dispatch advances the chain past the middleware at index from (-1 for the
// chain entry). It first records from's proceed call, rejecting a repeat,
// then invokes the next middleware or the terminal handler.
func (ex *execution) dispatch(ctx context.Context, ictx *Context, from int) error {
	if from >= 0 {
		if ex.proceeded[from] {
			return &Error{
				Kind:     KindMiddlewareControl,
				Message:  fmt.Sprintf("proceed called more than once by middleware %d", from),
				Position: from,
			}
		}
		ex.proceeded[from] = true
	}

	next := from + 1
	if next < len(ex.mws) {
		return ex.mws[next](ctx, ictx, func() error {
			return ex.dispatch(ctx, ictx, next)
		})
	}
	return ex.terminal(ctx, ictx)
}
