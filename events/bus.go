package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// DefaultMaxSubscribers is the per-event subscriber cap applied when
// BusConfig.MaxSubscribers is zero. The cap guards against subscription
// leaks: exceeding it makes On/Once return a diagnostic error instead of
// growing the list unbounded.
const DefaultMaxSubscribers = 64

// BusConfig configures a Bus.
type BusConfig struct {
	// MaxSubscribers caps the subscriber count per event name (default 64).
	MaxSubscribers int

	// Logger receives reports of failing subscribers. Defaults to slog.Default().
	Logger *slog.Logger
}

// Bus is a process-wide callback event bus owned by one app instance.
// Subscriptions persist until explicitly removed or the process ends; Once
// subscriptions auto-remove after their first delivery. Notification order
// is subscription order.
type Bus struct {
	mu      sync.Mutex
	max     int
	log     *slog.Logger
	subs    map[Name][]*subscriber
	anySubs []*anySubscriber
}

type subscriber struct {
	handler Handler
	once    bool
	fired   bool
	removed bool
}

type anySubscriber struct {
	handler AnyHandler
	removed bool
}

// NewBus creates a bus with the given configuration.
func NewBus(cfg BusConfig) *Bus {
	max := cfg.MaxSubscribers
	if max <= 0 {
		max = DefaultMaxSubscribers
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		max:  max,
		log:  log,
		subs: make(map[Name][]*subscriber),
	}
}

// On subscribes handler to event and returns an unsubscribe function.
// It fails when the event already has the configured maximum number of
// subscribers.
func (b *Bus) On(event Name, handler Handler) (func(), error) {
	return b.subscribe(event, handler, false)
}

// Once subscribes handler to event for a single delivery. The subscription
// removes itself after the first event it receives; the returned unsubscribe
// function may still be used to remove it earlier.
func (b *Bus) Once(event Name, handler Handler) (func(), error) {
	return b.subscribe(event, handler, true)
}

func (b *Bus) subscribe(event Name, handler Handler, once bool) (func(), error) {
	if handler == nil {
		return nil, fmt.Errorf("events: nil handler for %q", event)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if live := b.liveCount(event); live >= b.max {
		return nil, fmt.Errorf("events: %q has %d subscribers, limit %d; possible subscription leak", event, live, b.max)
	}

	s := &subscriber{handler: handler, once: once}
	b.subs[event] = append(b.subs[event], s)

	return func() {
		b.mu.Lock()
		s.removed = true
		b.compact(event)
		b.mu.Unlock()
	}, nil
}

// OnAny subscribes handler to every event name and returns an unsubscribe
// function. OnAny subscribers are notified after the event's own subscribers,
// in subscription order, and are not counted against per-event limits.
func (b *Bus) OnAny(handler AnyHandler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	s := &anySubscriber{handler: handler}
	b.anySubs = append(b.anySubs, s)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		s.removed = true
		b.compactAny()
		b.mu.Unlock()
	}
}

// Emit delivers payload to every current subscriber of event, then to every
// OnAny subscriber, sequentially. A subscriber returning an error (or
// panicking) is logged and does not prevent the remaining subscribers from
// being notified.
func (b *Bus) Emit(ctx context.Context, event Name, payload any) {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subs[event]))
	for _, s := range b.subs[event] {
		if s.removed || (s.once && s.fired) {
			continue
		}
		if s.once {
			s.fired = true
			s.removed = true
		}
		targets = append(targets, s)
	}
	b.compact(event)
	anyTargets := make([]*anySubscriber, 0, len(b.anySubs))
	for _, s := range b.anySubs {
		if !s.removed {
			anyTargets = append(anyTargets, s)
		}
	}
	b.mu.Unlock()

	for _, s := range targets {
		b.deliver(ctx, event, payload, func() error { return s.handler(ctx, payload) })
	}
	for _, s := range anyTargets {
		b.deliver(ctx, event, payload, func() error { return s.handler(ctx, event, payload) })
	}
}

// deliver invokes one subscriber, containing errors and panics.
func (b *Bus) deliver(ctx context.Context, event Name, payload any, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.ErrorContext(ctx, "event subscriber panicked", "event", string(event), "panic", r)
		}
	}()
	if err := fn(); err != nil {
		b.log.ErrorContext(ctx, "event subscriber failed", "event", string(event), "error", err)
	}
}

// liveCount counts non-removed subscribers for event. Caller holds b.mu.
func (b *Bus) liveCount(event Name) int {
	n := 0
	for _, s := range b.subs[event] {
		if !s.removed {
			n++
		}
	}
	return n
}

// compactAny drops removed OnAny subscribers. Caller holds b.mu.
func (b *Bus) compactAny() {
	kept := b.anySubs[:0]
	for _, s := range b.anySubs {
		if !s.removed {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		b.anySubs = nil
		return
	}
	b.anySubs = kept
}

// compact drops removed subscribers for event. Caller holds b.mu.
func (b *Bus) compact(event Name) {
	list := b.subs[event]
	kept := list[:0]
	for _, s := range list {
		if !s.removed {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, event)
		return
	}
	b.subs[event] = kept
}
