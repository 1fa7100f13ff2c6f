package enhance

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BackendStatus is the liveness tri-state of the backend.
type BackendStatus string

const (
	StatusUnknown BackendStatus = "unknown"
	StatusOnline  BackendStatus = "online"
	StatusOffline BackendStatus = "offline"
)

// DefaultHealthInterval is how often the backend is probed.
const DefaultHealthInterval = 15 * time.Second

// HealthChecker performs one liveness probe. *Client implements it.
type HealthChecker interface {
	Health(ctx context.Context) (bool, error)
}

// HealthState is the monitor's last observation.
type HealthState struct {
	Status    BackendStatus `json:"status"`
	CheckedAt time.Time     `json:"checkedAt,omitempty"`
	// Errors holds the most recent probe failures, oldest first.
	Errors []string `json:"errors,omitempty"`
}

// HealthMonitorConfig configures a BackendHealthMonitor.
type HealthMonitorConfig struct {
	// CheckInterval is how often to probe (default: 15s)
	CheckInterval time.Duration
	// ProbeTimeout bounds one probe (default: 5s)
	ProbeTimeout time.Duration
	// OnStatusChange is called when the status changes, outside the lock.
	OnStatusChange func(HealthState)
	Logger         *zap.Logger
}

const maxHealthErrors = 5

// BackendHealthMonitor periodically probes the backend and tracks an
// online/offline/unknown status. It is independent of enhancement calls.
//
// Usage:
//
//	monitor := NewBackendHealthMonitor(client, HealthMonitorConfig{})
//	ctx, cancel := context.WithCancel(context.Background())
//	go monitor.Start(ctx)
//	// ... later ...
//	cancel()
type BackendHealthMonitor struct {
	mu       sync.RWMutex
	checker  HealthChecker
	state    HealthState
	interval time.Duration
	timeout  time.Duration
	onChange func(HealthState)
	logger   *zap.Logger
}

// NewBackendHealthMonitor creates a monitor in the unknown state.
func NewBackendHealthMonitor(checker HealthChecker, config HealthMonitorConfig) *BackendHealthMonitor {
	interval := config.CheckInterval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	timeout := config.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &BackendHealthMonitor{
		checker:  checker,
		state:    HealthState{Status: StatusUnknown},
		interval: interval,
		timeout:  timeout,
		onChange: config.OnStatusChange,
		logger:   logger.Named("health-monitor"),
	}
}

// Start probes immediately and then every interval until ctx is cancelled.
// It blocks.
func (m *BackendHealthMonitor) Start(ctx context.Context) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("stopping health monitor")
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// State returns a copy of the last observation.
func (m *BackendHealthMonitor) State() HealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.state
	s.Errors = append([]string(nil), m.state.Errors...)
	return s
}

// Status returns the current tri-state.
func (m *BackendHealthMonitor) Status() BackendStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status
}

// CheckNow runs one probe and returns the resulting status. A probe
// interrupted by ctx leaves the status unchanged.
func (m *BackendHealthMonitor) CheckNow(ctx context.Context) BackendStatus {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	healthy, err := m.checker.Health(probeCtx)
	cancel()

	if ctx.Err() != nil {
		return m.Status()
	}

	next := StatusOffline
	if healthy && err == nil {
		next = StatusOnline
	}

	m.mu.Lock()
	prev := m.state.Status
	m.state.Status = next
	m.state.CheckedAt = time.Now()
	switch {
	case next == StatusOnline:
		m.state.Errors = nil
	case err != nil:
		errs := m.state.Errors
		if len(errs) >= maxHealthErrors {
			errs = errs[1:]
		}
		m.state.Errors = append(errs, err.Error())
	}
	snapshot := m.state
	snapshot.Errors = append([]string(nil), m.state.Errors...)
	m.mu.Unlock()

	if prev != next {
		if next == StatusOnline {
			m.logger.Info("backend online")
		} else {
			m.logger.Warn("backend offline", zap.Error(err))
		}
		if m.onChange != nil {
			m.onChange(snapshot)
		}
	}
	return next
}
