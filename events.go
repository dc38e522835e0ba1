package wsroom

import (
	"fmt"
	"log/slog"
	"sync"
)

// Handler receives the payload of an invoked event
type Handler func(payload any)

// eventBinding represents an event callback binding
type eventBinding struct {
	ref     int
	handler Handler
}

// EventBus is a named-event fan-out with ordered handler lists.
// The zero value is ready to use.
type EventBus struct {
	mu         sync.Mutex
	bindings   map[string][]eventBinding
	bindingRef int

	logger  *slog.Logger
	metrics *Metrics
}

// NewEventBus creates an event bus that logs handler failures to logger
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// handlers returns the binding list for event, creating it on first access
// (must be called with lock held)
func (b *EventBus) handlers(event string) []eventBinding {
	if b.bindings == nil {
		b.bindings = make(map[string][]eventBinding)
	}
	list, ok := b.bindings[event]
	if !ok {
		list = []eventBinding{}
		b.bindings[event] = list
	}
	return list
}

// On appends handler to the event's list and returns the binding ref used
// to remove it. Registering the same function twice creates two bindings.
func (b *EventBus) On(event string, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bindingRef++
	ref := b.bindingRef
	list := b.handlers(event)
	b.bindings[event] = append(list, eventBinding{ref: ref, handler: handler})
	return ref
}

// RemoveHandler removes the binding with the given ref.
// It returns false if no such binding is registered for event.
func (b *EventBus) RemoveHandler(event string, ref int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.handlers(event)
	for i, binding := range list {
		if binding.ref != ref {
			continue
		}
		newList := make([]eventBinding, 0, len(list)-1)
		newList = append(newList, list[:i]...)
		newList = append(newList, list[i+1:]...)
		b.bindings[event] = newList
		return true
	}
	return false
}

// Off removes every handler for event
func (b *EventBus) Off(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.bindings, event)
}

// HandlerCount returns the number of handlers bound to event
func (b *EventBus) HandlerCount(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.bindings[event])
}

// Invoke calls every handler bound to event, in registration order.
// The list is snapshotted first: handlers bound or removed while Invoke runs
// take effect on the next call. A panicking handler is logged and skipped.
func (b *EventBus) Invoke(event string, payload any) {
	b.mu.Lock()
	list := b.handlers(event)
	eventBindings := make([]eventBinding, len(list))
	copy(eventBindings, list)
	b.mu.Unlock()

	for _, binding := range eventBindings {
		b.call(event, binding, payload)
	}
}

func (b *EventBus) call(event string, binding eventBinding, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.metrics.handlerPanic(event)
			b.log().Error("event handler failed",
				slog.String("event", event),
				slog.Int("ref", binding.ref),
				slog.Any("error", asError(r)))
		}
	}()
	binding.handler(payload)
}

func (b *EventBus) log() *slog.Logger {
	if b.logger == nil {
		return discardLogger
	}
	return b.logger
}

func asError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
