package prom

import (
	"github.com/IvanBrykalov/adplacer/placer"
	"github.com/IvanBrykalov/adplacer/positioning"
	"github.com/IvanBrykalov/adplacer/supply"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements placer.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits    prometheus.Counter
	misses  prometheus.Counter
	evicts  *prometheus.CounterVec
	queued  prometheus.Gauge
	fetches *prometheus.CounterVec
	loads   *prometheus.CounterVec
	placed  prometheus.Counter
	removed prometheus.Counter
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	counterVec := func(name, help, label string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		}, []string{label})
	}

	a := &Adapter{
		hits:    counter("supply_hits_total", "Dequeues that returned a fresh item"),
		misses:  counter("supply_misses_total", "Dequeues that found no fresh item"),
		evicts:  counterVec("supply_evictions_total", "Queued items dropped without placement, by reason", "reason"),
		fetches: counterVec("supply_fetches_total", "Completed supply fetches by result", "result"),
		loads:   counterVec("rules_loads_total", "Finished rules load attempts by outcome", "outcome"),
		placed:  counter("placed_total", "Items filled into slots"),
		removed: counter("removed_total", "Placed items taken out of slots"),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "supply_queue_size",
			Help:        "Items waiting in the supply queue",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.queued, a.fetches, a.loads, a.placed, a.removed)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r supply.EvictReason) { a.evicts.WithLabelValues(r.String()).Inc() }

// Size updates the queue gauge.
func (a *Adapter) Size(entries int) { a.queued.Set(float64(entries)) }

// Fetch counts a finished supply fetch.
func (a *Adapter) Fetch(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	a.fetches.WithLabelValues(result).Inc()
}

// Load counts a finished rules load attempt.
func (a *Adapter) Load(o positioning.Outcome) { a.loads.WithLabelValues(o.String()).Inc() }

// Placed counts a filled slot.
func (a *Adapter) Placed() { a.placed.Inc() }

// Removed counts an item taken out of a slot.
func (a *Adapter) Removed() { a.removed.Inc() }

// Compile-time check: ensure Adapter implements placer.Metrics.
var _ placer.Metrics = (*Adapter)(nil)
