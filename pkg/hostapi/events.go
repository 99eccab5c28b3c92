package hostapi

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	ouerrors "openusage.dev/openusage/pkg/errors"
)

// Host events plugins may subscribe to.
const (
	EventRefresh     = "refresh"
	EventPanelShown  = "panel.shown"
	EventPanelHidden = "panel.hidden"
)

var knownEvents = map[string]bool{
	EventRefresh:     true,
	EventPanelShown:  true,
	EventPanelHidden: true,
}

// Events returns the names of all host events, sorted.
func Events() []string {
	names := make([]string, 0, len(knownEvents))
	for name := range knownEvents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EventHandler receives a published event.
type EventHandler func(ctx context.Context, event string, payload map[string]any)

type subscription struct {
	pluginID string
	handler  EventHandler
}

// EventBus fans host events out to plugin subscribers.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string][]subscription
	logger *slog.Logger
}

// NewEventBus creates an empty event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		subs:   make(map[string][]subscription),
		logger: logger,
	}
}

// Subscribe registers h for event on behalf of pluginID. Permission checks
// are the caller's responsibility (see Surface.Subscribe).
func (b *EventBus) Subscribe(pluginID, event string, h EventHandler) error {
	if !knownEvents[event] {
		return ouerrors.NewNotSupportedError("events." + event)
	}
	if h == nil {
		return ouerrors.NewHostCallError(string(CapabilityEvents), "nil event handler")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[event] = append(b.subs[event], subscription{pluginID: pluginID, handler: h})
	return nil
}

// UnsubscribeAll removes every subscription held by pluginID.
func (b *EventBus) UnsubscribeAll(pluginID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for event, subs := range b.subs {
		kept := subs[:0]
		for _, sub := range subs {
			if sub.pluginID != pluginID {
				kept = append(kept, sub)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, event)
		} else {
			b.subs[event] = kept
		}
	}
}

// Subscribers returns the number of handlers registered for event.
func (b *EventBus) Subscribers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[event])
}

// Publish delivers event to all subscribers in subscription order and
// returns how many handlers completed. A panicking handler is logged and
// does not stop delivery to the others.
func (b *EventBus) Publish(ctx context.Context, event string, payload map[string]any) int {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs[event]))
	copy(subs, b.subs[event])
	b.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if err := b.deliver(ctx, sub, event, payload); err != nil {
			b.logger.Warn("event handler failed", "plugin", sub.pluginID, "event", event, "error", err)
			continue
		}
		delivered++
	}
	return delivered
}

func (b *EventBus) deliver(ctx context.Context, sub subscription, event string, payload map[string]any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ouerrors.Newf("panic: %v", r)
		}
	}()
	sub.handler(ctx, event, payload)
	return nil
}
