package shutdown

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds the whole shutdown sequence.
const DefaultTimeout = 30 * time.Second

// Manager ties a cancellable root context to OS signals, a request
// tracker and the cleanup registry.
//
//	m := shutdown.NewManager(logger)
//	m.Register("database", shutdown.PriorityDatabase, shutdown.Closer(database))
//	m.Start()
//	<-m.Context().Done()
//	err := m.Shutdown()
type Manager struct {
	logger  *zap.Logger
	timeout time.Duration

	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *Tracker
	registry *Registry
	signals  *SignalCounter
	sigChan  chan os.Signal
	exit     func(code int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithTimeout sets the shutdown deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithExit replaces os.Exit for the forced exit on a second signal.
func WithExit(exit func(code int)) Option {
	return func(m *Manager) {
		m.exit = exit
	}
}

// NewManager creates a Manager. A nil logger discards output.
func NewManager(logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  DefaultTimeout,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  &Tracker{},
		registry: NewRegistry(),
		sigChan:  make(chan os.Signal, 2),
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.signals = NewSignalCounter(2, func() {
		m.logger.Warn("second signal received, exiting immediately")
		m.exit(1)
	})
	return m
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function; see the Priority constants.
func (m *Manager) Register(name string, priority int, fn Func) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("registered cleanup",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start listens for SIGINT and SIGTERM. The first cancels Context; the
// second exits the process. Repeated calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			if m.signals.Increment() == 1 {
				m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
				m.cancel()
			}
		}
	}()
}

// Trigger begins shutdown without a signal, e.g. when the service
// controller asks the process to stop.
func (m *Manager) Trigger() {
	m.cancel()
}

// Middleware tracks HTTP requests so Shutdown can drain them.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return m.tracker.Middleware(next)
}

// Shutdown refuses new requests, waits for in-flight ones, then runs the
// registry within the remaining time. Later calls return nil.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	started := m.started
	m.mu.Unlock()

	m.cancel()
	begin := time.Now()
	m.logger.Info("shutting down",
		zap.Duration("timeout", m.timeout),
		zap.Strings("cleanup", m.registry.Names()))

	m.tracker.Close()
	if err := m.tracker.Wait(m.timeout / 2); err != nil {
		m.logger.Warn("requests still running at drain deadline",
			zap.Int64("active", m.tracker.Active()))
	}

	remaining := m.timeout - time.Since(begin)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	err := m.registry.Run(ctx)
	if started {
		signal.Stop(m.sigChan)
	}
	if err != nil {
		m.logger.Error("shutdown finished with errors",
			zap.Duration("duration", time.Since(begin)),
			zap.Error(err))
		return err
	}
	m.logger.Info("shutdown complete", zap.Duration("duration", time.Since(begin)))
	return nil
}

// ShuttingDown reports whether shutdown has begun.
func (m *Manager) ShuttingDown() bool {
	return m.ctx.Err() != nil
}

// ActiveRequests returns the number of tracked in-flight requests.
func (m *Manager) ActiveRequests() int64 {
	return m.tracker.Active()
}

// Handlers returns the cleanup names in execution order.
func (m *Manager) Handlers() []string {
	return m.registry.Names()
}
