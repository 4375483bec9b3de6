package storage

import (
	"context"
	"log/slog"
	"time"
)

// StartCleanup starts a background goroutine that periodically evicts
// expired entries (and their now-unused per-key locks), preventing
// unbounded memory growth. Adapted from the teacher's
// MemoryRateLimiter.StartCleanup/cleanup pair. It stops when ctx is
// cancelled or Stop is called.
func (m *Memory) StartCleanup(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	m.cleanupOnce.Do(func() {
		m.cleanupStop = make(chan struct{})
	})

	m.cleanupWG.Add(1)
	go func() {
		defer m.cleanupWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.cleanupStop:
				return
			case <-ticker.C:
				m.cleanupExpired(logger)
			}
		}
	}()
}

// cleanupExpired removes expired entries and locks with no pending use.
func (m *Memory) cleanupExpired(logger *slog.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	cleaned := 0
	for key, e := range m.entries {
		if e.HasTTL && !e.Expiry.After(now) {
			delete(m.entries, key)
			delete(m.locks, key)
			cleaned++
		}
	}
	if cleaned > 0 {
		logger.Debug("storage memory cleanup completed", "cleaned_keys", cleaned, "remaining_keys", len(m.entries))
	}
}

// StopCleanup stops the background cleanup goroutine, if running. Safe to
// call multiple times or without a prior StartCleanup.
func (m *Memory) StopCleanup() {
	m.cleanupOnce.Do(func() {
		m.cleanupStop = make(chan struct{})
	})
	select {
	case <-m.cleanupStop:
	default:
		close(m.cleanupStop)
	}
	m.cleanupWG.Wait()
}
