package lock

import (
	"context"
	"time"
)

// Locker is the distributed lock interface.
// It provides methods to acquire locks on multiple keys atomically.
type Locker interface {
	// Acquire acquires locks on the given keys.
	// Keys are sorted alphabetically before acquisition to prevent deadlocks.
	// If a key is held by another owner, Acquire retries until the context
	// deadline; it returns ErrLockTimeout when the deadline expires first.
	// Returns a LockHandle for extending and releasing the locks.
	Acquire(ctx context.Context, keys []string, ttl time.Duration) (LockHandle, error)

	// IsLocked reports whether the given key is currently held by any owner.
	IsLocked(ctx context.Context, key string) (bool, error)

	// ForceRelease releases the given key regardless of owner.
	// Intended for operator use only; a forced release invalidates the
	// current holder's handle.
	ForceRelease(ctx context.Context, key string) error
}

// LockHandle represents a handle to acquired locks.
// It provides methods to extend the TTL and release the locks.
type LockHandle interface {
	// Extend extends the TTL of all held locks.
	// Returns ErrLockExtensionFailed if extension fails.
	Extend(ctx context.Context, ttl time.Duration) error

	// Release releases all held locks.
	// Attempts to release all locks even if some releases fail.
	// Releasing an already-released handle is a no-op.
	Release(ctx context.Context) error

	// Keys returns the keys that are locked.
	Keys() []string
}
