package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type fakeCloser struct {
	closed bool
	err    error
}

func (c *fakeCloser) Close() error {
	c.closed = true
	return c.err
}

func TestCloser(t *testing.T) {
	c := &fakeCloser{err: errors.New("locked")}
	if err := Closer(c)(context.Background()); err == nil || !c.closed {
		t.Errorf("Closer() = %v, closed = %v", err, c.closed)
	}
}

func TestAction(t *testing.T) {
	ran := false
	if err := Action(func() { ran = true })(context.Background()); err != nil || !ran {
		t.Errorf("Action() = %v, ran = %v", err, ran)
	}
}

func TestAction_ContextExpires(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Action(func() { <-release })(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Action() error = %v, want DeadlineExceeded", err)
	}
}

func TestSyncLogger(t *testing.T) {
	if err := SyncLogger(zaptest.NewLogger(t))(context.Background()); err != nil {
		t.Errorf("SyncLogger() error = %v", err)
	}
}
