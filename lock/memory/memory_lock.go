package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"finflow"
	"finflow/lock"
)

// Ensure MemoryLocker implements lock.Locker
var _ lock.Locker = (*MemoryLocker)(nil)

// Ensure memoryLockHandle implements lock.LockHandle
var _ lock.LockHandle = (*memoryLockHandle)(nil)

// MemoryLocker implements the Locker interface in process memory.
// Suitable for single-instance deployments and tests; use the Redis
// locker when multiple instances share the entity store.
type MemoryLocker struct {
	mu            sync.Mutex
	locks         map[string]*lockEntry
	retryInterval time.Duration
}

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// Option is a functional option for configuring MemoryLocker
type Option func(*MemoryLocker)

// WithRetryInterval sets the poll interval used while waiting for a contended lock
func WithRetryInterval(interval time.Duration) Option {
	return func(l *MemoryLocker) {
		l.retryInterval = interval
	}
}

// NewMemoryLocker creates a new in-memory locker
func NewMemoryLocker(opts ...Option) *MemoryLocker {
	l := &MemoryLocker{
		locks:         make(map[string]*lockEntry),
		retryInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire acquires locks on the given keys.
// Keys are sorted alphabetically before acquisition to prevent deadlocks.
// Contended keys are retried until the context deadline expires.
func (l *MemoryLocker) Acquire(ctx context.Context, keys []string, ttl time.Duration) (lock.LockHandle, error) {
	if len(keys) == 0 {
		return nil, errors.New("no keys provided")
	}

	sortedKeys := make([]string, len(keys))
	copy(sortedKeys, keys)
	sort.Strings(sortedKeys)

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate lock token: %w", err)
	}

	for {
		if l.tryAcquireAll(sortedKeys, token, ttl) {
			return &memoryLockHandle{
				locker:   l,
				token:    token,
				acquired: sortedKeys,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", finflow.ErrLockTimeout, ctx.Err())
		case <-time.After(l.retryInterval):
		}
	}
}

// tryAcquireAll takes all keys or none under a single critical section
func (l *MemoryLocker) tryAcquireAll(sortedKeys []string, token string, ttl time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for _, key := range sortedKeys {
		if entry, exists := l.locks[key]; exists && entry.expiresAt.After(now) {
			return false
		}
	}

	expiresAt := now.Add(ttl)
	for _, key := range sortedKeys {
		l.locks[key] = &lockEntry{token: token, expiresAt: expiresAt}
	}
	return true
}

// IsLocked reports whether the given key is currently held
func (l *MemoryLocker) IsLocked(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.locks[key]
	if !exists {
		return false, nil
	}
	if !entry.expiresAt.After(time.Now()) {
		delete(l.locks, key)
		return false, nil
	}
	return true, nil
}

// ForceRelease releases the given key regardless of owner
func (l *MemoryLocker) ForceRelease(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.locks, key)
	return nil
}

// extend extends the TTL of the given keys if the token still owns them
func (l *MemoryLocker) extend(keys []string, token string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	var extendErr error
	for _, key := range keys {
		entry, exists := l.locks[key]
		if !exists || entry.token != token || !entry.expiresAt.After(now) {
			extendErr = errors.Join(extendErr, fmt.Errorf("%w: key %s", finflow.ErrLockExtensionFailed, key))
			continue
		}
		entry.expiresAt = now.Add(ttl)
	}
	return extendErr
}

// release releases the given keys if the token still owns them
func (l *MemoryLocker) release(keys []string, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		if entry, exists := l.locks[key]; exists && entry.token == token {
			delete(l.locks, key)
		}
	}
}

// memoryLockHandle represents a handle to acquired in-memory locks
type memoryLockHandle struct {
	locker   *MemoryLocker
	token    string
	acquired []string
	mu       sync.Mutex
}

// Extend extends the TTL of all held locks
func (h *memoryLockHandle) Extend(ctx context.Context, ttl time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.acquired) == 0 {
		return finflow.ErrLockNotHeld
	}
	return h.locker.extend(h.acquired, h.token, ttl)
}

// Release releases all held locks. Releasing twice is a no-op.
func (h *memoryLockHandle) Release(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.acquired) == 0 {
		return nil
	}
	h.locker.release(h.acquired, h.token)
	h.acquired = nil
	return nil
}

// Keys returns the keys that are locked
func (h *memoryLockHandle) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.acquired == nil {
		return nil
	}
	keys := make([]string, len(h.acquired))
	copy(keys, h.acquired)
	return keys
}

// generateToken generates a unique token for lock ownership
func generateToken() (string, error) {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
