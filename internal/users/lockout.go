package users

import (
	"sync"
	"time"
)

const defaultBlockDuration = 15 * time.Minute

// LockoutStore tracks failed login attempts per username. Implementations
// decide their own persistence; the in-memory store below intentionally
// resets on process restart, which matches the product's tolerance for
// lockouts and must not be treated as a source of truth.
type LockoutStore interface {
	RecordFailure(username string, maxAttempts int)
	IsBlocked(username string) bool
	RemainingBlock(username string) time.Duration
	Clear(username string)
}

// MemoryLockoutStore is a process-local LockoutStore guarded by a mutex.
type MemoryLockoutStore struct {
	mu            sync.Mutex
	failures      map[string]int
	blockedUntil  map[string]time.Time
	blockDuration time.Duration
	clock         func() time.Time
}

// MemoryLockoutOption customizes a MemoryLockoutStore.
type MemoryLockoutOption func(*MemoryLockoutStore)

// WithBlockDuration overrides the default 15 minute block window.
func WithBlockDuration(duration time.Duration) MemoryLockoutOption {
	return func(store *MemoryLockoutStore) {
		if duration > 0 {
			store.blockDuration = duration
		}
	}
}

// WithLockoutClock injects a deterministic clock for tests.
func WithLockoutClock(clock func() time.Time) MemoryLockoutOption {
	return func(store *MemoryLockoutStore) {
		if clock != nil {
			store.clock = clock
		}
	}
}

// NewMemoryLockoutStore constructs an empty in-memory lockout tracker.
func NewMemoryLockoutStore(options ...MemoryLockoutOption) *MemoryLockoutStore {
	store := &MemoryLockoutStore{
		failures:      make(map[string]int),
		blockedUntil:  make(map[string]time.Time),
		blockDuration: defaultBlockDuration,
		clock:         time.Now,
	}
	for _, option := range options {
		option(store)
	}
	return store
}

// RecordFailure counts one failed attempt and blocks the username once the
// configured maximum is reached. The failure counter resets on block so a
// fresh count starts after the window expires.
func (s *MemoryLockoutStore) RecordFailure(username string, maxAttempts int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts := s.failures[username] + 1
	if maxAttempts > 0 && attempts >= maxAttempts {
		s.blockedUntil[username] = s.clock().Add(s.blockDuration)
		delete(s.failures, username)
		return
	}
	s.failures[username] = attempts
}

// IsBlocked reports whether the username is inside an active block window.
// Expired blocks are cleaned up on read.
func (s *MemoryLockoutStore) IsBlocked(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, blocked := s.blockedUntil[username]
	if !blocked {
		return false
	}
	if s.clock().After(until) {
		delete(s.blockedUntil, username)
		return false
	}
	return true
}

// RemainingBlock returns how long the username stays blocked, zero when it
// is not blocked.
func (s *MemoryLockoutStore) RemainingBlock(username string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, blocked := s.blockedUntil[username]
	if !blocked {
		return 0
	}
	remaining := until.Sub(s.clock())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear drops both the failure count and any active block for the username.
func (s *MemoryLockoutStore) Clear(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.failures, username)
	delete(s.blockedUntil, username)
}
