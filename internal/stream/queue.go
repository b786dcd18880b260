package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxgate/internal/observe"
)

// ErrQueueFull is returned by [Queue.TryEnqueue] when the queue is at
// capacity. The caller reports the rejection to the client and closes the
// transport.
var ErrQueueFull = errors.New("stream: queue full")

// ErrQueueClosed is returned by [Queue.TryEnqueue] after [Queue.Close].
var ErrQueueClosed = errors.New("stream: queue closed")

// WorkItem pairs an admitted session with the transport its audio is
// delivered on.
type WorkItem struct {
	SessionID string
	Transport Transport
}

// Queue is the process-wide bounded FIFO of admitted sessions. Enqueueing
// never blocks; a full queue rejects immediately.
type Queue struct {
	ch      chan WorkItem
	metrics *observe.Metrics

	mu     sync.Mutex
	closed bool
}

// NewQueue creates a [Queue] with the given capacity.
func NewQueue(capacity int, m *observe.Metrics) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{
		ch:      make(chan WorkItem, capacity),
		metrics: m,
	}
}

// TryEnqueue offers an item to the queue. Returns [ErrQueueFull] without
// blocking when the queue is at capacity.
func (q *Queue) TryEnqueue(ctx context.Context, item WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- item:
		q.metrics.QueueDepth.Add(ctx, 1)
		return nil
	default:
		q.metrics.QueueFullTotal.Add(ctx, 1)
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new items. Items already queued
// remain dequeueable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Capacity returns the configured maximum depth.
func (q *Queue) Capacity() int {
	return cap(q.ch)
}

// Depth returns the current number of queued items.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// StreamFunc drives one session's pipeline to its terminal state. It owns
// the transport for the duration of the call.
type StreamFunc func(ctx context.Context, item WorkItem)

// WorkerPool runs a fixed number of workers that drain the queue. Workers
// start with [WorkerPool.Run] and stop when its context is cancelled.
type WorkerPool struct {
	queue   *Queue
	workers int
	run     StreamFunc
	metrics *observe.Metrics
}

// NewWorkerPool creates a pool of n workers draining q with run.
func NewWorkerPool(q *Queue, n int, run StreamFunc, m *observe.Metrics) *WorkerPool {
	if n <= 0 {
		n = 8
	}
	return &WorkerPool{
		queue:   q,
		workers: n,
		run:     run,
		metrics: m,
	}
}

// Run starts the workers and blocks until ctx is cancelled and all workers
// have returned. Sessions still queued at that point are rejected with a
// shutdown error frame.
func (p *WorkerPool) Run(ctx context.Context) error {
	p.metrics.WorkersTotal.Record(ctx, int64(p.workers))
	p.metrics.QueueMaxsize.Record(ctx, int64(p.queue.Capacity()))

	g, gctx := errgroup.WithContext(ctx)
	for i := range p.workers {
		g.Go(func() error {
			p.worker(gctx, i)
			return nil
		})
	}
	err := g.Wait()

	p.queue.Close()
	p.rejectQueued()
	return err
}

// worker is one dequeue loop. It exits when the context is cancelled or
// the queue is closed.
func (p *WorkerPool) worker(ctx context.Context, id int) {
	log := slog.With("worker", id)
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-p.queue.ch:
			if !ok {
				return
			}
			p.metrics.QueueDepth.Add(ctx, -1)
			p.metrics.WorkersBusy.Add(ctx, 1)
			log.Debug("worker picked up session", "session_id", item.SessionID)
			p.run(ctx, item)
			p.metrics.WorkersBusy.Add(ctx, -1)
		}
	}
}

// rejectQueued drains items left behind after shutdown, telling each
// client to retry later.
func (p *WorkerPool) rejectQueued() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for item := range p.queue.ch {
		p.metrics.QueueDepth.Add(ctx, -1)
		_ = item.Transport.Send(ctx, ErrorFrame(503, "shutting_down"))
		_ = item.Transport.Close(CloseTryAgainLater, "shutting down")
	}
}
