package webui

import (
	"context"
	"sync"
	"time"
)

// attemptRecord counts failed logins from one address within a window.
type attemptRecord struct {
	count   int
	resetAt time.Time
}

func (a attemptRecord) expired(now time.Time) bool {
	return now.After(a.resetAt)
}

// RateLimiter blocks an address after too many failed logins.
//
// Each failure within the window increments the count. Reaching
// maxAttempts extends the record to the block duration; a successful login
// clears it.
type RateLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]attemptRecord
	maxAttempts int
	window      time.Duration
	block       time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a limiter allowing maxAttempts failures per
// window before blocking for block.
func NewRateLimiter(maxAttempts int, window, block time.Duration) *RateLimiter {
	return &RateLimiter{
		attempts:    make(map[string]attemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		block:       block,
		now:         time.Now,
	}
}

// Allow reports whether ip may try to log in, and if not, for how long it
// stays blocked.
func (r *RateLimiter) Allow(ip string) (bool, time.Duration) {
	r.mu.RLock()
	record, exists := r.attempts[ip]
	r.mu.RUnlock()

	now := r.now()
	if !exists || record.expired(now) {
		return true, 0
	}
	if record.count >= r.maxAttempts {
		return false, record.resetAt.Sub(now)
	}
	return true, 0
}

// RecordAttempt counts one failed login from ip.
func (r *RateLimiter) RecordAttempt(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record, exists := r.attempts[ip]
	if !exists || record.expired(now) {
		record = attemptRecord{resetAt: now.Add(r.window)}
	}
	record.count++
	if record.count == r.maxAttempts {
		record.resetAt = now.Add(r.block)
	}
	r.attempts[ip] = record
}

// Reset forgets ip, typically after a successful login.
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	delete(r.attempts, ip)
	r.mu.Unlock()
}

// Cleanup drops expired records and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for ip, record := range r.attempts {
		if record.expired(now) {
			delete(r.attempts, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is cancelled.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// AttemptCount returns the live failure count for ip.
func (r *RateLimiter) AttemptCount(ip string) int {
	r.mu.RLock()
	record, exists := r.attempts[ip]
	r.mu.RUnlock()

	if !exists || record.expired(r.now()) {
		return 0
	}
	return record.count
}
