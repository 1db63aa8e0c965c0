package eventlog

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
)

// DefaultDispatchBuffer is the event queue length used by NewDispatcher when
// buffer <= 0.
const DefaultDispatchBuffer = 4096

// Dispatcher fans events out to several recorders from one goroutine.
// Record only enqueues; Run delivers in order; Close drains the queue.
type Dispatcher struct {
	recorders []Recorder
	events    chan Event

	mu      sync.RWMutex
	closed  bool
	running bool
	done    chan struct{}

	delivered atomic.Uint64
	failures  atomic.Uint64
}

// NewDispatcher creates a dispatcher delivering to recorders in order.
func NewDispatcher(buffer int, recorders ...Recorder) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultDispatchBuffer
	}
	return &Dispatcher{
		recorders: recorders,
		events:    make(chan Event, buffer),
		done:      make(chan struct{}),
	}
}

// Record implements Recorder by enqueueing the event. It blocks only when
// the queue is full.
func (d *Dispatcher) Record(ctx context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return fmt.Errorf("dispatcher is closed")
	}

	select {
	case d.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run delivers events until Close is called and the queue is empty.
// Recorder errors are logged and counted; they never stop delivery.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		closed := d.closed
		d.mu.Unlock()
		if closed {
			// Close already drained the queue inline.
			<-d.done
			return nil
		}
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.mu.Unlock()

	defer close(d.done)
	d.drain(ctx)
	return nil
}

func (d *Dispatcher) drain(ctx context.Context) {
	for ev := range d.events {
		for _, r := range d.recorders {
			if err := r.Record(ctx, ev); err != nil {
				d.failures.Add(1)
				log.Printf("[Dispatcher] Warning: failed to record %s event for trial %d: %v", ev.Type, ev.TrialIndex, err)
			}
		}
		d.delivered.Add(1)
	}
}

// Close stops accepting events and waits until every queued event has been
// delivered. If Run was never started the queue is drained inline.
// Safe to call multiple times.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return nil
	}
	d.closed = true
	close(d.events)
	running := d.running
	if !running {
		d.running = true
	}
	d.mu.Unlock()

	if !running {
		d.drain(context.Background())
		close(d.done)
		return nil
	}
	<-d.done
	return nil
}

// Delivered returns the number of events handed to every recorder.
func (d *Dispatcher) Delivered() uint64 {
	return d.delivered.Load()
}

// Failures returns the number of recorder errors seen.
func (d *Dispatcher) Failures() uint64 {
	return d.failures.Load()
}
