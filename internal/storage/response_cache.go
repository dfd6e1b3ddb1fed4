// internal/storage/response_cache.go
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/Corphon/shakescript/internal/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Cache stores backend responses by request key. A value is returned only
// while it is younger than the cache TTL; older entries read as absent and
// are overwritten by the next Put.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Put(ctx context.Context, key string, value V)
	Delete(ctx context.Context, key string)
}

// Entry is a cached payload and the time it was fetched
type Entry[V any] struct {
	Data      V         `json:"data"`
	FetchedAt time.Time `json:"fetched_at"`
}

// FreshAt reports whether the entry is still valid at now
func (e Entry[V]) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) < ttl
}

// Option configures a cache
type Option func(*settings)

type settings struct {
	name    string
	now     func() time.Time
	metrics *utils.Metrics
	logger  *zap.Logger
}

// WithName labels the cache in metrics and logs
func WithName(name string) Option {
	return func(s *settings) { s.name = name }
}

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithMetrics records hits and misses
func WithMetrics(m *utils.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithLogger sets the logger used for backend failures
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func newSettings(opts []Option) settings {
	s := settings{
		name:   "default",
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// ResponseCache is an in-process Cache bounded to a fixed number of keys.
// When full, the least recently used key is evicted.
type ResponseCache[V any] struct {
	settings
	ttl     time.Duration
	entries *lru.Cache[string, Entry[V]]
}

// NewResponseCache creates a cache holding at most capacity keys
func NewResponseCache[V any](capacity int, ttl time.Duration, opts ...Option) (*ResponseCache[V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("cache ttl must be positive, got %s", ttl)
	}
	entries, err := lru.New[string, Entry[V]](capacity)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}

	return &ResponseCache[V]{
		settings: newSettings(opts),
		ttl:      ttl,
		entries:  entries,
	}, nil
}

// Get returns the cached value for key if it has not expired
func (c *ResponseCache[V]) Get(_ context.Context, key string) (V, bool) {
	// Peek first so a stale entry does not get promoted
	entry, ok := c.entries.Peek(key)
	if !ok || !entry.FreshAt(c.now(), c.ttl) {
		c.metrics.CacheMiss(c.name)
		var zero V
		return zero, false
	}

	c.entries.Get(key)
	c.metrics.CacheHit(c.name)
	return entry.Data, true
}

// Put stores value under key with a fresh timestamp
func (c *ResponseCache[V]) Put(_ context.Context, key string, value V) {
	c.entries.Add(key, Entry[V]{Data: value, FetchedAt: c.now()})
}

// Delete drops key
func (c *ResponseCache[V]) Delete(_ context.Context, key string) {
	c.entries.Remove(key)
}

// Len returns the number of stored keys, expired ones included
func (c *ResponseCache[V]) Len() int {
	return c.entries.Len()
}
