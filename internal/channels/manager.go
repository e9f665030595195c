package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/omegagate/internal/bus"
)

// Registry is the shared, read-mostly map of active channels (§5 "Shared
// resources"). The gateway dispatcher starts each channel's producer and
// fans its IncomingMessage stream into the per-sender pipeline; the
// scheduler and heartbeat loops look channels up here to deliver replies.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]Channel)}
}

func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Name()] = ch
}

func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

func (r *Registry) All() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		all = append(all, ch)
	}
	return all
}

// Send routes an OutgoingMessage through the named channel.
func (r *Registry) Send(ctx context.Context, channel string, msg bus.OutgoingMessage) error {
	ch, ok := r.Get(channel)
	if !ok {
		return fmt.Errorf("channels: unknown channel %q", channel)
	}
	return ch.Send(ctx, msg)
}

// StartAll starts every registered channel's producer and returns a single
// fanned-in IncomingMessage stream tagged with each message's origin channel
// (already set by the producer itself).
func (r *Registry) StartAll(ctx context.Context) (<-chan bus.IncomingMessage, error) {
	out := make(chan bus.IncomingMessage, 64)
	var wg sync.WaitGroup

	for _, ch := range r.All() {
		stream, err := ch.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("channels: start %s: %w", ch.Name(), err)
		}
		wg.Add(1)
		go func(name string, s <-chan bus.IncomingMessage) {
			defer wg.Done()
			for msg := range s {
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}(ch.Name(), stream)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	slog.Info("channels: started", "count", len(r.All()))
	return out, nil
}

// StopAll stops every registered channel, logging (not failing) individual
// shutdown errors since shutdown is always best-effort.
func (r *Registry) StopAll(ctx context.Context) {
	for _, ch := range r.All() {
		if err := ch.Stop(ctx); err != nil {
			slog.Warn("channels: stop failed", "channel", ch.Name(), "error", err)
		}
	}
}
