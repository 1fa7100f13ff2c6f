// Package shutdown coordinates a graceful stop: OS signals cancel a shared
// context, in-flight requests drain, and registered cleanup runs in
// priority order.
package shutdown

import (
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrTrackerClosed is returned once shutdown has begun.
	ErrTrackerClosed = errors.New("shutdown: no new operations accepted")
	// ErrWaitTimeout is returned when operations outlive the drain timeout.
	ErrWaitTimeout = errors.New("shutdown: operations did not finish in time")
)

// Tracker counts in-flight operations and refuses new ones after Close.
type Tracker struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	active atomic.Int64
	closed bool
}

// Start registers one operation. A true result must be paired with Done.
func (t *Tracker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	t.active.Add(1)
	return true
}

// Done ends an operation started with Start.
func (t *Tracker) Done() {
	t.active.Add(-1)
	t.wg.Done()
}

// Close refuses further operations.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Closed reports whether Close has been called.
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Active returns the number of running operations.
func (t *Tracker) Active() int64 {
	return t.active.Load()
}

// Wait blocks until every operation finished or timeout elapsed.
func (t *Tracker) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Middleware tracks each request as an operation and answers 503 once the
// tracker is closed. Long-lived WebSocket connections should bypass it.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.Start() {
			w.Header().Set("Connection", "close")
			http.Error(w, "Service Unavailable: shutting down", http.StatusServiceUnavailable)
			return
		}
		defer t.Done()
		next.ServeHTTP(w, r)
	})
}
