package bus

import "sync"

// Bus is an in-process pub/sub event broadcaster shared by background loops
// and the gateway pipeline. It does not carry IncomingMessage/OutgoingMessage
// traffic — those flow through the per-sender queues in internal/gateway —
// it only carries status events (scheduler ticks, heartbeat results, task
// changes) that multiple independent loops want to observe.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{handlers: make(map[string]EventHandler)}
}

// Subscribe registers a handler under id, replacing any existing handler with
// the same id.
func (b *Bus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

// Unsubscribe removes the handler registered under id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast invokes every registered handler with event. Handlers run
// synchronously on the calling goroutine; callers that need concurrency wrap
// their own handler in a `go func`.
func (b *Bus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

var _ EventPublisher = (*Bus)(nil)
