package shutdown

import (
	"context"
	"errors"
	"io"
	"syscall"

	"go.uber.org/zap"
)

// Closer adapts an io.Closer such as *db.Database.
func Closer(c io.Closer) Func {
	return func(ctx context.Context) error {
		return c.Close()
	}
}

// Action adapts a function that cannot fail, such as pages.Manager.Close.
// fn runs in its own goroutine; if ctx ends first Action gives up waiting
// and returns ctx.Err().
func Action(fn func()) Func {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			fn()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// SyncLogger flushes logger. Sync on a terminal stdout or stderr fails
// with EINVAL or ENOTTY on Linux; those errors are ignored.
func SyncLogger(logger *zap.Logger) Func {
	return func(ctx context.Context) error {
		err := logger.Sync()
		if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
			return nil
		}
		return err
	}
}
