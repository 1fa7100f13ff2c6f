package shutdown

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestManager_New(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	if m.ShuttingDown() {
		t.Error("new manager is shutting down")
	}
	if m.timeout != DefaultTimeout {
		t.Errorf("timeout = %v", m.timeout)
	}
	if m2 := NewManager(nil, WithTimeout(5*time.Second)); m2.timeout != 5*time.Second {
		t.Errorf("WithTimeout not applied: %v", m2.timeout)
	}
}

func TestManager_ShutdownSequence(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), WithTimeout(2*time.Second))

	var mu sync.Mutex
	var order []string
	record := func(name string) Func {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}
	m.Register("database", PriorityDatabase, record("database"))
	m.Register("http", PriorityHTTPServer, record("http"))
	m.Register("history", PriorityHistory, record("history"))

	if got := strings.Join(m.Handlers(), ","); got != "http,history,database" {
		t.Errorf("Handlers() = %s", got)
	}
	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !m.ShuttingDown() || m.Context().Err() == nil {
		t.Error("context not cancelled by Shutdown")
	}
	if got := strings.Join(order, ","); got != "http,history,database" {
		t.Errorf("order = %s", got)
	}
	if err := m.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestManager_ShutdownError(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	errClose := errors.New("close failed")
	m.Register("db", PriorityDatabase, func(ctx context.Context) error { return errClose })
	if err := m.Shutdown(); !errors.Is(err, errClose) {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestManager_Trigger(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))
	m.Trigger()
	select {
	case <-m.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("Trigger did not cancel the context")
	}
}

func TestManager_DrainsRequests(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), WithTimeout(2*time.Second))

	entered := make(chan struct{})
	release := make(chan struct{})
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}))

	go h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	<-entered
	if m.ActiveRequests() != 1 {
		t.Fatalf("ActiveRequests() = %d", m.ActiveRequests())
	}

	cleaned := make(chan int64, 1)
	m.Register("probe", PriorityHTTPServer, func(ctx context.Context) error {
		cleaned <- m.ActiveRequests()
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- m.Shutdown() }()

	for !m.tracker.Closed() {
		time.Sleep(time.Millisecond)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("request during shutdown = %d, want 503", rec.Code)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if active := <-cleaned; active != 0 {
		t.Errorf("cleanup ran with %d active requests", active)
	}
}

func TestManager_ForceExitOnSecondSignal(t *testing.T) {
	exited := make(chan int, 1)
	m := NewManager(zaptest.NewLogger(t), WithExit(func(code int) { exited <- code }))

	m.signals.Increment()
	if m.ShuttingDown() {
		t.Error("counter alone should not cancel the context")
	}
	m.signals.Increment()
	select {
	case code := <-exited:
		if code != 1 {
			t.Errorf("exit code = %d, want 1", code)
		}
	case <-time.After(time.Second):
		t.Fatal("exit not called on second signal")
	}
}
