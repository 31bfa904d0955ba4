package placer

import (
	"log/slog"

	"github.com/IvanBrykalov/adplacer/failure"
	"github.com/IvanBrykalov/adplacer/policy"
	"github.com/IvanBrykalov/adplacer/positioning"
	"github.com/IvanBrykalov/adplacer/rules"
	"github.com/IvanBrykalov/adplacer/sched"
	"github.com/IvanBrykalov/adplacer/supply"
)

// Sink receives placement events. Calls happen under the placer lock.
type Sink interface {
	// ItemPlaced reports an item filled into the slot at adjusted.
	ItemPlaced(adjusted int)
	// ItemRemoved reports an item taken out of the slot that was at adjusted.
	ItemRemoved(adjusted int)
	// LoadFailed reports a terminal rules or supply failure.
	LoadFailed(reason failure.Reason)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) ItemPlaced(int)            {}
func (NopSink) ItemRemoved(int)           {}
func (NopSink) LoadFailed(failure.Reason) {}

// Options configures a Placer. Zero values are safe except Supply.Fetcher:
//   - nil Positioning.Transport => rules come from Rules (static)
//   - nil Policy                => move
//   - nil Scheduler             => a private sched.Loop, closed by Destroy
//   - nil Clock                 => wall clock
//   - nil Sink                  => NopSink
//   - nil Metrics               => NoopMetrics
//   - nil Logger                => slog.Default()
//   - ViewTypes <= 0            => 1
type Options[T any] struct {
	// Rules are used when no rules Transport is configured.
	Rules rules.Rules
	// Positioning configures the remote rules source. Transport, RetryBase
	// and MaxRetryDelay are honored; scheduling, metrics and logging are
	// supplied by the Placer.
	Positioning positioning.ServerOptions

	// Supply configures the item queue. Fetcher, Capacity, TTL and the retry
	// fields are honored; the rest is supplied by the Placer.
	Supply supply.Options[T]

	// Policy decides how content mutations move slots.
	Policy policy.Policy

	// Lookahead extends every PlaceInRange by this many adjusted positions.
	Lookahead int

	// ViewType maps a placed item to a renderer id; ViewTypes is the number of
	// distinct ids it can return.
	ViewType  func(v T) int
	ViewTypes int

	// OnDispose releases an item that will never be shown again.
	OnDispose func(v T)

	Sink      Sink
	Scheduler sched.Scheduler
	Clock     sched.Clock
	Metrics   Metrics
	Logger    *slog.Logger
}
