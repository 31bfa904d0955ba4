// Package supply keeps a bounded, time-expiring FIFO of ready-to-place items
// warm. At most one fetch is in flight; failed fetches are retried with
// exponential backoff until the attempt budget is spent.
//
// A Cache is not safe for concurrent use. All methods, and all callbacks it
// delivers, must run on one serialized queue: pass a Scheduler that serializes
// with the owner (see sched.Locked) and call methods from that owner only.
package supply

import (
	"context"
	"log/slog"
	"sync"

	"github.com/IvanBrykalov/adplacer/failure"
	"github.com/IvanBrykalov/adplacer/internal/backoff"
	"github.com/IvanBrykalov/adplacer/sched"
)

// flight hands one fetch result from the fetcher's goroutine to the
// scheduler. Exactly one side disposes a result nobody wants: the fetcher
// callback when it arrives after Clear, Clear when the result was delivered
// but its completion never ran (for example a closed loop dropped it).
type flight[T any] struct {
	mu        sync.Mutex
	delivered bool
	settled   bool // consumed by complete, or abandoned by Clear
	v         T
	err       error
}

// Cache is the supply queue.
type Cache[T any] struct {
	opt   Options[T]
	retry *backoff.Retrier
	log   *slog.Logger

	queue []Item[T] // oldest first
	seq   uint64

	inFlight   bool
	cancel     context.CancelFunc // cancels the in-flight fetch
	flight     *flight[T]         // hand-off for the in-flight result
	retryTimer sched.Handle

	// gen invalidates callbacks issued before the last Clear.
	gen    uint64
	closed bool
}

// New constructs a Cache. It panics without a Fetcher.
func New[T any](opt Options[T]) *Cache[T] {
	if opt.Fetcher == nil {
		panic("supply: Fetcher must be set")
	}
	if opt.Capacity <= 0 {
		opt.Capacity = DefaultCapacity
	}
	if opt.TTL <= 0 {
		opt.TTL = DefaultTTL
	}
	if opt.RetryMaxAttempts == 0 {
		opt.RetryMaxAttempts = backoff.DefaultMaxAttempts
	}
	if opt.Scheduler == nil {
		opt.Scheduler = sched.NewLoop()
	}
	if opt.Clock == nil {
		opt.Clock = sched.SystemClock{}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Cache[T]{
		opt: opt,
		retry: backoff.New(backoff.Policy{
			Base:        opt.RetryBase,
			MaxDelay:    opt.RetryMaxDelay,
			MaxAttempts: opt.RetryMaxAttempts,
		}),
		log: opt.Logger.With("component", "supply"),
	}
}

// SetListener replaces the listener. Used by owners that are built after the cache.
func (c *Cache[T]) SetListener(l Listener) { c.opt.Listener = l }

// RequestRefill issues a fetch unless one is already in flight or the queue
// is full. A pending retry timer is superseded. Reports whether a fetch was issued.
func (c *Cache[T]) RequestRefill() bool {
	if c.closed || c.inFlight || len(c.queue) >= c.opt.Capacity {
		return false
	}
	if c.retryTimer != nil {
		c.retryTimer.Cancel()
		c.retryTimer = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.inFlight = true
	c.cancel = cancel
	gen, seq := c.gen, c.seq

	f := &flight[T]{}
	c.flight = f
	var once sync.Once
	c.log.Debug("supply: fetch issued", "seq", seq, "queued", len(c.queue))
	c.opt.Fetcher.Fetch(ctx, seq, func(v T, err error) {
		once.Do(func() {
			f.mu.Lock()
			if f.settled {
				f.mu.Unlock()
				if err == nil {
					c.evict(v, EvictStale)
				}
				return
			}
			f.delivered, f.v, f.err = true, v, err
			f.mu.Unlock()
			c.opt.Scheduler.Post(func() { c.finish(gen, f) })
		})
	})
	return true
}

// Dequeue pops the oldest fresh item. Items older than TTL are disposed and
// skipped. When the queue has room and nothing is in flight or pending, a
// refill is posted.
func (c *Cache[T]) Dequeue() (Item[T], bool) {
	var zero Item[T]
	if c.closed {
		return zero, false
	}

	now := c.opt.Clock.NowUnixNano()
	out, ok := zero, false
	for len(c.queue) > 0 {
		it := c.queue[0]
		c.queue[0] = zero
		c.queue = c.queue[1:]
		if it.Expired(now, c.opt.TTL) {
			c.evict(it.Value, EvictTTL)
			continue
		}
		out, ok = it, true
		break
	}
	if ok {
		c.opt.Metrics.Hit()
	} else {
		c.opt.Metrics.Miss()
	}
	c.opt.Metrics.Size(len(c.queue))

	if !c.inFlight && c.retryTimer == nil && len(c.queue) < c.opt.Capacity {
		gen := c.gen
		c.opt.Scheduler.Post(func() {
			if gen == c.gen {
				c.RequestRefill()
			}
		})
	}
	return out, ok
}

// Clear disposes every queued item, cancels the in-flight fetch and any
// pending retry, and resets the sequence number and backoff. The cache stays
// usable.
func (c *Cache[T]) Clear() {
	for i, it := range c.queue {
		c.evict(it.Value, EvictClear)
		c.queue[i] = Item[T]{}
	}
	c.queue = nil
	if c.retryTimer != nil {
		c.retryTimer.Cancel()
		c.retryTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if f := c.flight; f != nil {
		c.flight = nil
		f.mu.Lock()
		late := f.delivered && !f.settled && f.err == nil
		v := f.v
		f.settled = true
		f.v = *new(T)
		f.mu.Unlock()
		if late {
			c.evict(v, EvictStale)
		}
	}
	c.gen++
	c.inFlight = false
	c.seq = 0
	c.retry.Reset()
	c.opt.Metrics.Size(0)
}

// Close clears the cache and ignores all later refills. Idempotent.
func (c *Cache[T]) Close() {
	if c.closed {
		return
	}
	c.Clear()
	c.closed = true
}

// Len returns the number of queued items (fresh or not yet checked).
func (c *Cache[T]) Len() int { return len(c.queue) }

// Capacity returns the configured queue bound.
func (c *Cache[T]) Capacity() int { return c.opt.Capacity }

// Seq returns the sequence number the next fetch will carry.
func (c *Cache[T]) Seq() uint64 { return c.seq }

// InFlight reports whether a fetch is outstanding.
func (c *Cache[T]) InFlight() bool { return c.inFlight }

// RetryPending reports whether a backoff timer is armed.
func (c *Cache[T]) RetryPending() bool { return c.retryTimer != nil }

// Attempts returns consecutive failed fetches since the last success or reset.
func (c *Cache[T]) Attempts() int { return c.retry.Attempts() }

// ---- completion (runs on the scheduler) ----

func (c *Cache[T]) finish(gen uint64, f *flight[T]) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return
	}
	f.settled = true
	v, err := f.v, f.err
	f.v = *new(T)
	f.mu.Unlock()
	if c.flight == f {
		c.flight = nil
	}
	c.complete(gen, v, err)
}

func (c *Cache[T]) complete(gen uint64, v T, err error) {
	if gen != c.gen || c.closed {
		if err == nil {
			c.evict(v, EvictStale)
		}
		return
	}
	c.inFlight = false
	c.cancel = nil
	if err != nil {
		c.onFetchFailure(err)
		return
	}
	c.onFetchSuccess(v)
}

func (c *Cache[T]) onFetchSuccess(v T) {
	c.opt.Metrics.Fetch(true)
	c.seq++
	c.retry.Reset()

	wasEmpty := len(c.queue) == 0
	c.queue = append(c.queue, Item[T]{Value: v, FetchedAt: c.opt.Clock.NowUnixNano()})
	c.opt.Metrics.Size(len(c.queue))
	c.log.Debug("supply: item cached", "seq", c.seq, "queued", len(c.queue))

	gen := c.gen
	if wasEmpty && c.opt.Listener != nil {
		c.opt.Listener.SupplyAvailable()
	}
	// The listener may have cleared or closed us.
	if gen == c.gen && len(c.queue) < c.opt.Capacity {
		c.RequestRefill()
	}
}

func (c *Cache[T]) onFetchFailure(err error) {
	c.opt.Metrics.Fetch(false)

	delay, ok := c.retry.Next()
	if !ok {
		reason := failure.Classify(err)
		c.log.Warn("supply: retries exhausted", "reason", reason.String(), "err", err)
		c.retry.Reset()
		if c.opt.Listener != nil {
			c.opt.Listener.SupplyFailed(reason)
		}
		return
	}

	c.log.Debug("supply: fetch failed, retry scheduled", "attempt", c.retry.Attempts(), "delay", delay, "err", err)
	var h sched.Handle
	h = c.opt.Scheduler.AfterFunc(delay, func() {
		if c.retryTimer != h {
			return
		}
		c.retryTimer = nil
		c.RequestRefill()
	})
	c.retryTimer = h
}

func (c *Cache[T]) evict(v T, reason EvictReason) {
	c.opt.Metrics.Evict(reason)
	if c.opt.OnDispose != nil {
		c.opt.OnDispose(v)
	}
}
