// Package gateway wires every subsystem together: channels, the message
// pipeline, the scheduler/heartbeat/summarizer background loops, and the
// per-sender serialization queues that keep one sender's messages processed
// in arrival order while different senders run fully in parallel (§5).
//
// Grounded on the teacher's consumer-loop-per-session dispatch shape,
// replacing its multi-tenant session router with a flat per-sender map
// since this gateway serves a single operator across many channels, not
// many tenants.
package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/omegagate/internal/bus"
)

// queueDepth bounds each sender's backlog; §5 calls for "bounded,
// oldest-drop" queues so one quiet sender can never starve another, and a
// sender who floods the gateway just loses their oldest unprocessed message.
const queueDepth = 8

// idleGrace is how long a per-sender worker waits for a new message before
// tearing itself down, per §5 "lazily spawned, idly torn down".
const idleGrace = 5 * time.Minute

// Processor handles one fully-resolved inbound message. *pipeline.Pipeline
// satisfies this.
type Processor interface {
	Process(ctx context.Context, msg bus.IncomingMessage) error
}

// senderQueue is one sender's bounded, single-consumer mailbox.
type senderQueue struct {
	ch   chan bus.IncomingMessage
	done chan struct{}
}

// Dispatcher demultiplexes the channel registry's fanned-in IncomingMessage
// stream into one bounded queue per sender, and runs exactly one worker
// goroutine per sender so messages from the same person are always
// processed in arrival order, while different senders proceed concurrently.
type Dispatcher struct {
	proc Processor

	mu      sync.Mutex
	queues  map[string]*senderQueue
	wg      sync.WaitGroup
}

func NewDispatcher(proc Processor) *Dispatcher {
	return &Dispatcher{proc: proc, queues: make(map[string]*senderQueue)}
}

// Run consumes in until ctx is cancelled or in closes, then waits for every
// spawned per-sender worker to drain.
func (d *Dispatcher) Run(ctx context.Context, in <-chan bus.IncomingMessage) {
	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return
		case msg, ok := <-in:
			if !ok {
				d.wg.Wait()
				return
			}
			d.enqueue(ctx, msg)
		}
	}
}

// key groups messages by channel+sender since the same sender id on two
// different channels must still serialize independently — a Telegram
// message and a WhatsApp message from the same person don't block each other.
func key(msg bus.IncomingMessage) string {
	return msg.Channel + ":" + msg.SenderID
}

func (d *Dispatcher) enqueue(ctx context.Context, msg bus.IncomingMessage) {
	d.mu.Lock()
	q, ok := d.queues[key(msg)]
	if !ok {
		q = &senderQueue{ch: make(chan bus.IncomingMessage, queueDepth), done: make(chan struct{})}
		d.queues[key(msg)] = q
		d.wg.Add(1)
		go d.worker(ctx, key(msg), q)
	}
	d.mu.Unlock()

	select {
	case q.ch <- msg:
	default:
		// Oldest-drop: make room by discarding the head, then push.
		select {
		case <-q.ch:
			slog.Warn("gateway: sender queue full, dropped oldest message", "sender", msg.SenderID, "channel", msg.Channel)
		default:
		}
		select {
		case q.ch <- msg:
		default:
			slog.Warn("gateway: sender queue still full after drop, discarding new message", "sender", msg.SenderID, "channel", msg.Channel)
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context, k string, q *senderQueue) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.queues, k)
		d.mu.Unlock()
		close(q.done)
	}()

	idle := time.NewTimer(idleGrace)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-idle.C:
			return
		case msg := <-q.ch:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			if err := d.proc.Process(ctx, msg); err != nil {
				slog.Error("gateway: pipeline error", "sender", msg.SenderID, "channel", msg.Channel, "error", err)
			}
			idle.Reset(idleGrace)
		}
	}
}
