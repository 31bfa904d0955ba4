package placer

import (
	"github.com/IvanBrykalov/adplacer/positioning"
	"github.com/IvanBrykalov/adplacer/supply"
)

// Metrics collects placer, supply and rules signals in one sink.
type Metrics interface {
	supply.Metrics
	positioning.Metrics
	// Placed counts items filled into slots.
	Placed()
	// Removed counts placed items taken out again.
	Removed()
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
type NoopMetrics struct {
	supply.NoopMetrics
}

func (NoopMetrics) Load(positioning.Outcome) {}
func (NoopMetrics) Placed()                  {}
func (NoopMetrics) Removed()                 {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
