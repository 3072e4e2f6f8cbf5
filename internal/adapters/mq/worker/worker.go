// Package worker drains the async ingestion queue through the
// single-event write path.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/harmonia-fm/harmonia/internal/adapters/mq/queue"
	"github.com/harmonia-fm/harmonia/internal/adapters/repository"
	"github.com/harmonia-fm/harmonia/pkg/logger"
	"github.com/harmonia-fm/harmonia/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 2
	workerShutdownTimeout   = 5 * time.Second
)

// Event is what workers read off the queue.
type Event = queue.Event

// Recorder applies one event transactionally (rating plus history).
type Recorder interface {
	Record(ctx context.Context, e Event) error
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Worker processes queued events through the recorder.
type Worker struct {
	queue    Queue
	recorder Recorder
	name     string

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewWorker creates a worker with configuration options.
func NewWorker(q Queue, rec Recorder, opts ...Option) *Worker {
	w := &Worker{
		queue:    q,
		recorder: rec,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop until ctx is canceled or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			w.process(ctx, e)
		}
	}
}

// process applies one event; failures are logged, never fatal to the
// loop. An unknown track on the fire-and-forget path is dropped quietly.
func (w *Worker) process(ctx context.Context, e Event) {
	start := time.Now()
	err := w.recorder.Record(ctx, e)
	metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))

	switch {
	case err == nil:
		metrics.RecordEventProcessed()
	case errors.Is(err, repository.ErrNotFound):
		metrics.RecordEventFailed()
		w.logger.Debug(ctx, "dropping event for unknown track",
			logger.String("trackID", e.TrackID),
			logger.String("kind", string(e.Kind)),
		)
	default:
		metrics.RecordEventFailed()
		w.logger.Error(ctx, "failed to record event",
			logger.String("eventID", e.EventID),
			logger.String("trackID", e.TrackID),
			logger.Error(err),
		)
	}
}

// Shutdown stops the worker and waits for the loop to exit.
func (w *Worker) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown timed out: %w", ctx.Err())
	}
}

// Pool manages a fixed set of workers over one queue.
type Pool struct {
	workers []*Worker
}

// NewPool creates and wires workerCount workers.
func NewPool(workerCount int, q Queue, rec Recorder) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}
	p := &Pool{workers: make([]*Worker, workerCount)}
	for i := range p.workers {
		p.workers[i] = NewWorker(q, rec, WithName("worker-"+strconv.Itoa(i)))
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Stop signals shutdown and waits for each worker, bounded per worker.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		close(w.shutdown)
	}
	for _, w := range p.workers {
		select {
		case <-w.done:
		case <-time.After(workerShutdownTimeout):
		}
	}
}
