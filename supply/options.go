package supply

import (
	"context"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/adplacer/failure"
	"github.com/IvanBrykalov/adplacer/sched"
)

// Defaults applied by New.
const (
	DefaultCapacity = 3
	DefaultTTL      = 15 * time.Minute
)

// EvictReason explains why a queued item left the cache without being dequeued.
type EvictReason int

const (
	// EvictTTL: the item was older than TTL when it reached the head.
	EvictTTL EvictReason = iota
	// EvictClear: dropped by Clear/Close.
	EvictClear
	// EvictStale: a fetch completed after Clear and its result was discarded.
	EvictStale
)

func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictClear:
		return "clear"
	default:
		return "stale"
	}
}

// Fetcher issues one asynchronous fetch. done must be called at most once;
// ctx is cancelled when the cache no longer wants the result.
type Fetcher[T any] interface {
	Fetch(ctx context.Context, seq uint64, done func(T, error))
}

// FetchFunc adapts a blocking fetch function; each call runs on its own goroutine.
type FetchFunc[T any] func(ctx context.Context, seq uint64) (T, error)

// Fetch implements Fetcher.
func (f FetchFunc[T]) Fetch(ctx context.Context, seq uint64, done func(T, error)) {
	go func() {
		v, err := f(ctx, seq)
		done(v, err)
	}()
}

// Listener receives supply state changes on the scheduler's queue.
type Listener interface {
	// SupplyAvailable fires when an item lands in a previously empty queue.
	SupplyAvailable()
	// SupplyFailed fires once when the retry budget is exhausted.
	SupplyFailed(reason failure.Reason)
}

// Metrics exposes supply-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	Size(entries int)
	Fetch(ok bool)
}

// Options configures a Cache. Zero values are safe except Fetcher:
//   - Capacity <= 0 => DefaultCapacity
//   - TTL <= 0      => DefaultTTL
//   - nil Scheduler => a private sched.Loop
//   - nil Clock     => wall clock
//   - nil Metrics   => NoopMetrics
//   - nil Logger    => slog.Default()
type Options[T any] struct {
	Capacity int
	TTL      time.Duration

	// Retry schedule after failed fetches: the n-th consecutive failure waits
	// RetryBase * 2^n (capped at RetryMaxDelay). After RetryMaxAttempts
	// retries the cache gives up until the next manual RequestRefill.
	// RetryMaxAttempts 0 means the default of 5 retries; negative means
	// unbounded.
	RetryBase        time.Duration
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int

	Fetcher   Fetcher[T]
	Scheduler sched.Scheduler
	Clock     sched.Clock
	Listener  Listener

	// OnDispose releases an item the cache drops (expired, cleared, stale).
	// A result that arrives after Clear or Close is released on the
	// fetcher's goroutine, so OnDispose must be safe to call from there.
	OnDispose func(v T)

	Metrics Metrics
	Logger  *slog.Logger
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Hit()              {}
func (NoopMetrics) Miss()             {}
func (NoopMetrics) Evict(EvictReason) {}
func (NoopMetrics) Size(int)          {}
func (NoopMetrics) Fetch(bool)        {}

var _ Metrics = NoopMetrics{}
