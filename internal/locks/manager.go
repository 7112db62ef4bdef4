package locks

import "context"

// Lock represents an acquired balance lock, scoping a single contact's
// rotation decision to the caller that won it.
type Lock interface {
	Refresh(ctx context.Context, ttlSeconds int) error
	Release(ctx context.Context) error
	// GetValue returns the token identifying the holder, or "" for a
	// fallback lock that was never backed by Redis.
	GetValue() string
}

// Manager can acquire locks identified by a key, e.g.
// "balance-lock:<scope>:<contact>".
type Manager interface {
	Acquire(ctx context.Context, key string, ttlSeconds int) (Lock, bool, error)
}
