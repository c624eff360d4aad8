package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache serves values from cache and loads misses with fn.
// Loaded values are stored only when cacheable reports true, so entries that
// can still change (e.g. a running check) are always fetched fresh.
type ReadThroughCache[K comparable, V any] struct {
	cache     CacheManager[K, V]
	fn        func(ctx context.Context, key K) (V, error)
	cacheable func(V) bool
	ttl       time.Duration
}

// NewReadThroughCache wires fn behind cache. A nil cacheable caches every
// successful load.
func NewReadThroughCache[K comparable, V any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, key K) (V, error),
	cacheable func(V) bool,
	ttl time.Duration,
) *ReadThroughCache[K, V] {
	if cacheable == nil {
		cacheable = func(V) bool { return true }
	}
	return &ReadThroughCache[K, V]{
		cache:     cache,
		fn:        fn,
		cacheable: cacheable,
		ttl:       ttl,
	}
}

// Get returns the cached value for key or loads it.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}

	value, err := r.fn(ctx, key)
	if err != nil {
		return value, err
	}

	if r.cacheable(value) {
		r.cache.Set(ctx, key, value, r.ttl)
	}
	return value, nil
}

// Invalidate drops key so the next Get reloads it.
func (r *ReadThroughCache[K, V]) Invalidate(ctx context.Context, key K) {
	_ = r.cache.Delete(ctx, key)
}
