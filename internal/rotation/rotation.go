// Package rotation implements the shared rotation-state store consumed by
// the balancer: a cache-first typed store with a process-local fallback so
// a cache outage degrades gracefully within one process.
package rotation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/zedaapi/instance-gateway/internal/logging"
)

// Descriptor is the small record tracking one contact's (or the global)
// rotation state within a cycle.
type Descriptor struct {
	UsedInstances    []string `json:"usedInstances"`
	LastUsedInstance string   `json:"lastUsedInstance,omitempty"`
	RotationCount    int      `json:"rotationCount"`
}

// HasUsed reports whether instance appears in UsedInstances.
func (d Descriptor) HasUsed(instance string) bool {
	for _, used := range d.UsedInstances {
		if used == instance {
			return true
		}
	}
	return false
}

// Store is the cache-first, fallback-backed rotation state store.
type Store struct {
	cache    *redis.Client
	fallback sync.Map // string -> Descriptor
	ttl      time.Duration
	log      *slog.Logger

	cacheErrors func(op string)
}

// New builds a Store. cache may be nil, in which case the store operates
// entirely out of the in-process fallback map.
func New(cache *redis.Client, ttl time.Duration, log *slog.Logger) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{cache: cache, ttl: ttl, log: log}
}

// SetCacheErrorMetric installs a callback invoked whenever a cache-tier
// operation is absorbed by the fallback tier.
func (s *Store) SetCacheErrorMetric(fn func(op string)) {
	s.cacheErrors = fn
}

// Get tries the cache first; on cache error or miss it returns the
// in-memory fallback entry if present; otherwise reports absence.
func (s *Store) Get(ctx context.Context, key string) (Descriptor, bool, error) {
	logger := logging.ContextLogger(ctx, s.log)

	if s.cache != nil {
		raw, err := s.cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var d Descriptor
			if unmarshalErr := json.Unmarshal(raw, &d); unmarshalErr != nil {
				logger.Warn("rotation store: corrupt cache entry, falling back",
					slog.String("key", key), slog.String("error", unmarshalErr.Error()))
				s.recordCacheError("get_unmarshal")
				break
			}
			s.fallback.Store(key, d)
			return d, true, nil
		case errors.Is(err, redis.Nil):
			// cache miss; fall through to fallback tier
		default:
			logger.Warn("rotation store: cache get failed, using fallback",
				slog.String("key", key), slog.String("error", err.Error()))
			s.recordCacheError("get")
		}
	}

	if v, ok := s.fallback.Load(key); ok {
		return v.(Descriptor), true, nil
	}
	return Descriptor{}, false, nil
}

// Set writes the cache and updates the fallback. A cache-write error is
// logged but never fails the call; the fallback tier is always updated.
func (s *Store) Set(ctx context.Context, key string, d Descriptor) error {
	logger := logging.ContextLogger(ctx, s.log)
	s.fallback.Store(key, d)

	if s.cache == nil {
		return nil
	}

	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		logger.Warn("rotation store: cache set failed, fallback updated",
			slog.String("key", key), slog.String("error", err.Error()))
		s.recordCacheError("set")
	}
	return nil
}

// Delete removes the key from both tiers.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.fallback.Delete(key)
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Del(ctx, key).Err(); err != nil {
		s.recordCacheError("delete")
		return nil
	}
	return nil
}

func (s *Store) recordCacheError(op string) {
	if s.cacheErrors != nil {
		s.cacheErrors(op)
	}
}
