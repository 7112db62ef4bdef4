package balance

import (
	"context"
	"fmt"
)

// acquireLock narrows the window for concurrent Select calls on the same
// contact within the same group, but rotation is best-effort rather than
// strictly serialized (§4.2): a caller that loses the race still proceeds
// unlocked instead of failing. Returns a nil release func when no locker
// is configured, when the lock could not be acquired, and when the locker
// returns an error.
func (b *Balancer) acquireLock(ctx context.Context, namespace, normalizedContact string) (func(), error) {
	if b.locker == nil {
		return nil, nil
	}

	scope := namespace
	if scope == "" {
		scope = "global"
	}
	key := fmt.Sprintf("balance-lock:%s:%s", scope, normalizedContact)

	lock, acquired, err := b.locker.Acquire(ctx, key, b.lockTTL)
	if err != nil || !acquired {
		return nil, nil
	}
	return func() {
		_ = lock.Release(ctx)
	}, nil
}
