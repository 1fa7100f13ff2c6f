package db

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultChannelCapacity is the default buffer size for pending writes.
const DefaultChannelCapacity = 100

// DefaultDrainTimeout bounds how long Stop waits for queued writes.
const DefaultDrainTimeout = 30 * time.Second

// WriteHandler persists one queued item. It owns its own error reporting.
type WriteHandler[T any] func(ctx context.Context, item T) error

// AsyncWriter moves writes off the caller's goroutine through a buffered
// channel drained by one background goroutine.
type AsyncWriter[T any] struct {
	writeChan chan T
	handler   WriteHandler[T]
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	started   bool
	stopped   bool
	failures  atomic.Int64
}

// NewAsyncWriter creates a writer with room for capacity pending items.
func NewAsyncWriter[T any](handler WriteHandler[T], capacity int) *AsyncWriter[T] {
	if capacity <= 0 {
		capacity = DefaultChannelCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncWriter[T]{
		writeChan: make(chan T, capacity),
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the background goroutine. Repeated calls are no-ops.
func (w *AsyncWriter[T]) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.stopped {
		return
	}
	w.started = true
	w.wg.Add(1)
	go w.processWrites()
}

func (w *AsyncWriter[T]) processWrites() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			w.drainChannel()
			return
		case item := <-w.writeChan:
			w.handle(item)
		}
	}
}

// drainChannel flushes what is still buffered after cancellation.
func (w *AsyncWriter[T]) drainChannel() {
	for {
		select {
		case item := <-w.writeChan:
			w.handle(item)
		default:
			return
		}
	}
}

func (w *AsyncWriter[T]) handle(item T) {
	// The writer's own context is already cancelled while draining.
	if err := w.handler(context.Background(), item); err != nil {
		w.failures.Add(1)
	}
}

// Write queues item without blocking. It returns false when the buffer is
// full or the writer has stopped.
func (w *AsyncWriter[T]) Write(item T) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return false
	}
	select {
	case w.writeChan <- item:
		return true
	default:
		return false
	}
}

// Pending returns the number of queued items.
func (w *AsyncWriter[T]) Pending() int {
	return len(w.writeChan)
}

// Failures returns how many handler calls returned an error.
func (w *AsyncWriter[T]) Failures() int64 {
	return w.failures.Load()
}

// Stop refuses further writes, drains the buffer and waits up to timeout
// for the goroutine to exit. It reports whether the drain finished in time.
func (w *AsyncWriter[T]) Stop(timeout time.Duration) bool {
	w.mu.Lock()
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	w.cancel()
	if !started {
		return true
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
