// internal/storage/loader.go
package storage

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoadFunc fetches a value from the backend
type LoadFunc[V any] func(ctx context.Context) (V, error)

// Loader reads through a Cache and coalesces concurrent misses: while a
// load for a key is in flight, other callers for the same key wait for it
// instead of issuing their own request.
type Loader[V any] struct {
	cache Cache[V]
	group singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

// NewLoader wraps cache
func NewLoader[V any](cache Cache[V]) *Loader[V] {
	return &Loader[V]{cache: cache, generations: make(map[string]uint64)}
}

// Cache returns the underlying cache
func (l *Loader[V]) Cache() Cache[V] {
	return l.cache
}

// Fetch returns the cached value for key, or runs load once for all
// concurrent callers and caches a successful result. Failed loads are not
// cached. cached reports whether the value came from the cache.
func (l *Loader[V]) Fetch(ctx context.Context, key string, load LoadFunc[V]) (value V, cached bool, err error) {
	if v, ok := l.cache.Get(ctx, key); ok {
		return v, true, nil
	}

	// The shared load must not die with whichever caller happened to start it
	loadCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key, func() (interface{}, error) {
		if v, ok := l.cache.Get(loadCtx, key); ok {
			return v, nil
		}
		gen := l.generation(key)
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		// a Forget during the load means v may predate it
		if l.generation(key) == gen {
			l.cache.Put(loadCtx, key, v)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero V
			return zero, false, res.Err
		}
		return res.Val.(V), false, nil
	}
}

// Forget drops key from the cache so the next Fetch reloads it. A load
// already in flight still answers its callers but does not cache.
func (l *Loader[V]) Forget(ctx context.Context, key string) {
	l.mu.Lock()
	l.generations[key]++
	l.mu.Unlock()

	l.cache.Delete(ctx, key)
	l.group.Forget(key)
}

func (l *Loader[V]) generation(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generations[key]
}
