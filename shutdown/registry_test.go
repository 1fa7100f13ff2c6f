package shutdown

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRegistry_Order(t *testing.T) {
	r := NewRegistry()
	var order []string
	add := func(name string, priority int) {
		r.Register(name, priority, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	add("logger", PriorityLogger)
	add("database", PriorityDatabase)
	add("http", PriorityHTTPServer)
	add("history", PriorityHistory)
	add("pages", PriorityPages)
	add("tickers", PriorityWorkers)
	add("monitor", PriorityWorkers)

	want := []string{"http", "pages", "tickers", "monitor", "history", "database", "logger"}
	if got := r.Names(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("run order = %v, want %v", order, want)
	}
}

func TestRegistry_RunsAllAndJoinsErrors(t *testing.T) {
	r := NewRegistry()
	errDB := errors.New("db busy")
	ran := 0
	r.Register("a", 1, func(ctx context.Context) error { ran++; return errDB })
	r.Register("b", 2, func(ctx context.Context) error { ran++; return nil })
	r.Register("c", 3, func(ctx context.Context) error { ran++; return errors.New("boom") })

	err := r.Run(context.Background())
	if ran != 3 {
		t.Errorf("ran %d functions, want 3", ran)
	}
	if !errors.Is(err, errDB) {
		t.Errorf("Run() error = %v, want it to wrap errDB", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "a: db busy") || !strings.Contains(msg, "c: boom") {
		t.Errorf("error message = %q", msg)
	}
}

func TestRegistry_RunOnce(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Register("x", 1, func(ctx context.Context) error { calls++; return nil })

	r.Run(context.Background())
	r.Run(context.Background())
	r.Register("late", 1, func(ctx context.Context) error { calls++; return nil })

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, late registration should be ignored", r.Len())
	}
}
