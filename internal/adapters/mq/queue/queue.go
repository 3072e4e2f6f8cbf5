// Package queue defines the contract for enqueuing and consuming
// listen events on the asynchronous ingestion path.
//
// The delivery layer reports playback progress fire-and-forget; the
// queue decouples those reports from the transactional write path.
package queue

import (
	"context"
	"sync"

	"github.com/harmonia-fm/harmonia/internal/domain/model"
	"github.com/harmonia-fm/harmonia/pkg/metrics"
)

const defaultCapacity = 100000

// Event is the payload type flowing through the queue.
type Event = model.ListenEvent

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an event. Returns false when the queue is full or
	// closed; the caller decides whether that is backpressure or loss.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns a channel receiving events until the queue closes.
	Dequeue(ctx context.Context) <-chan Event

	// Len returns the current number of queued events.
	Len(ctx context.Context) int

	// Close stops intake and drains the dequeue channel.
	Close() error
}

// InMemoryQueue implements Queue on a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)
	metrics.UpdateQueueCapacity(q.capacity)
	return q
}

// Enqueue adds an event without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	select {
	case q.events <- e:
		metrics.UpdateQueueSize(len(q.events))
		return true
	case <-ctx.Done():
		return false
	default:
		metrics.RecordQueueFull()
		return false
	}
}

// Dequeue returns a channel that receives events as they become
// available. The channel closes when the queue closes.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for e := range q.events {
			select {
			case out <- e:
				metrics.UpdateQueueSize(len(q.events))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return len(q.events)
}

// Close stops intake; consumers drain whatever is left.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}
