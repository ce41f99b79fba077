// Package cache 实现翻译缓存：指纹 -> 译文，并保证同一指纹同时最多只有一次后端调用。
package cache

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"pdf-translator/internal/logger"
)

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) (string, error)

// Stats 缓存统计
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	// Shared counts callers whose flight result was handed to more than
	// one caller, the leader included.
	Shared int64 `json:"shared"`
}

// Cache combines a Store with per-key single-flight execution.
type Cache struct {
	store Store
	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
	shared atomic.Int64
}

// New creates a Cache over store. A nil store means an in-memory store.
func New(store Store) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{store: store}
}

type flightResult struct {
	value  string
	cached bool
}

// Do returns the cached value for key, or runs fn once for all concurrent
// callers of the same key and stores its result. hit reports whether the
// value came from the store.
//
// fn runs detached from the caller's cancellation so that one abandoned
// caller does not fail the others; a caller whose ctx ends returns
// ctx.Err() immediately without waiting for the flight.
func (c *Cache) Do(ctx context.Context, key string, fn ComputeFunc) (value string, hit bool, err error) {
	if v, ok := c.lookup(ctx, key); ok {
		c.hits.Add(1)
		return v, true, nil
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// 另一个 flight 可能刚写入
		if v, ok := c.lookup(flightCtx, key); ok {
			return flightResult{value: v, cached: true}, nil
		}

		v, err := fn(flightCtx)
		if err != nil {
			return nil, err
		}
		if err := c.store.Set(flightCtx, key, v); err != nil {
			logger.Warn("failed to store translation", logger.String("key", short(key)), logger.Err(err))
		}
		return flightResult{value: v}, nil
	})

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.shared.Add(1)
		}
		if res.Err != nil {
			return "", false, res.Err
		}
		r := res.Val.(flightResult)
		if r.cached {
			c.hits.Add(1)
		} else {
			c.misses.Add(1)
		}
		return r.value, r.cached, nil
	}
}

func (c *Cache) lookup(ctx context.Context, key string) (string, bool) {
	v, ok, err := c.store.Get(ctx, key)
	if err != nil {
		logger.Warn("cache lookup failed", logger.String("key", short(key)), logger.Err(err))
		return "", false
	}
	return v, ok
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Shared: c.shared.Load(),
	}
}

// Store returns the underlying store.
func (c *Cache) Store() Store {
	return c.store
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
