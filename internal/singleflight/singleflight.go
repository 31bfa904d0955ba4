package singleflight

import (
	"context"
	"sync"
)

// Group coalesces concurrent calls for the same key K so that fn runs at
// most once per flight. Every caller waits for the shared result.
//
// Concurrency notes:
//   - The first caller for a key starts the flight; fn runs on its own
//     goroutine with a context detached from any single caller.
//   - A caller whose ctx is cancelled returns ctx.Err() and leaves the
//     flight. When the last caller leaves, the flight's context is
//     cancelled and the key is forgotten, so the next caller starts fresh.
//   - Publishing (val, err) happens-before close(c.done), so reads after
//     <-done observe the final values.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done    chan struct{} // closed when val/err are published
	val     V
	err     error
	waiters int
	cancel  context.CancelFunc
}

// Do runs fn once for key and returns its result to every concurrent caller.
// shared reports whether this caller joined a flight started by another.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func(context.Context) (V, error)) (v V, shared bool, err error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	c, shared := g.m[key]
	if !shared {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		c = &call[V]{done: make(chan struct{}), cancel: cancel}
		g.m[key] = c
		go g.run(fctx, key, c, fn)
	}
	c.waiters++
	g.mu.Unlock()

	select {
	case <-c.done:
		return c.val, shared, c.err
	case <-ctx.Done():
		g.mu.Lock()
		c.waiters--
		if c.waiters == 0 {
			c.cancel()
			g.forgetLocked(key, c)
		}
		g.mu.Unlock()
		var zero V
		return zero, shared, ctx.Err()
	}
}

// InFlight returns the number of keys with a running flight.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}

func (g *Group[K, V]) run(ctx context.Context, key K, c *call[V], fn func(context.Context) (V, error)) {
	v, err := fn(ctx)
	c.val, c.err = v, err

	g.mu.Lock()
	g.forgetLocked(key, c)
	g.mu.Unlock()

	close(c.done)
	c.cancel()
}

func (g *Group[K, V]) forgetLocked(key K, c *call[V]) {
	if g.m[key] == c {
		delete(g.m, key)
	}
}
