package placer

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/IvanBrykalov/adplacer/failure"
	"github.com/IvanBrykalov/adplacer/placement"
	"github.com/IvanBrykalov/adplacer/policy"
	"github.com/IvanBrykalov/adplacer/policy/move"
	"github.com/IvanBrykalov/adplacer/positioning"
	"github.com/IvanBrykalov/adplacer/rules"
	"github.com/IvanBrykalov/adplacer/sched"
	"github.com/IvanBrykalov/adplacer/supply"
)

// Placer is the caller-facing orchestrator. All methods are safe for
// concurrent use; see the package doc for the serialization model.
type Placer[T any] struct {
	mu sync.Mutex

	opt    Options[T]
	sink   Sink
	log    *slog.Logger
	loop   *sched.Loop // owned scheduler, nil when the caller supplied one
	source positioning.Source
	supply *supply.Cache[T]
	m      *placement.Map[T]
	change policy.ChangePolicy

	lo, hi int // last requested adjusted range, half-open

	// Reload state: while loading, the old layout stays on screen and no
	// slot is filled until both rules and supply have arrived.
	loading     bool
	loadGen     uint64
	rulesReady  bool
	pending     rules.Rules
	supplyReady bool

	destroyed bool
}

// New constructs a Placer. It panics without Supply.Fetcher.
func New[T any](opt Options[T]) *Placer[T] {
	if opt.Supply.Fetcher == nil {
		panic("placer: Supply.Fetcher must be set")
	}
	p := &Placer[T]{}

	if opt.Scheduler == nil {
		p.loop = sched.NewLoop()
		opt.Scheduler = p.loop
	}
	if opt.Clock == nil {
		opt.Clock = sched.SystemClock{}
	}
	if opt.Sink == nil {
		opt.Sink = NopSink{}
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	if opt.Policy == nil {
		opt.Policy = move.New()
	}
	if opt.Lookahead < 0 {
		opt.Lookahead = 0
	}
	if opt.ViewTypes <= 0 {
		opt.ViewTypes = 1
	}
	p.opt = opt
	p.sink = opt.Sink
	p.log = opt.Logger.With("component", "placer")

	locked := sched.NewLocked(opt.Scheduler, &p.mu)

	so := opt.Supply
	so.Scheduler = locked
	so.Clock = opt.Clock
	so.Listener = supplyListener[T]{p}
	so.OnDispose = opt.OnDispose
	so.Metrics = opt.Metrics
	so.Logger = opt.Logger
	p.supply = supply.New(so)

	if opt.Positioning.Transport != nil {
		po := opt.Positioning
		po.Scheduler = locked
		po.Metrics = opt.Metrics
		po.Logger = opt.Logger
		p.source = positioning.NewServer(po)
	} else {
		p.source = positioning.NewStatic(opt.Rules, locked)
	}

	p.m = placement.New[T](rules.Rules{}, 0)
	p.change = opt.Policy.New(ledgerHooks[T]{p})
	return p
}

// LoadAds starts a full reload for contextID: rules are requested again and
// the supply queue is refilled from scratch. Filled slots stay visible until
// the new layout can be placed.
func (p *Placer[T]) LoadAds(contextID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}

	p.loadGen++
	gen := p.loadGen
	p.loading = true
	p.rulesReady = false
	p.pending = rules.Rules{}
	p.supplyReady = false

	p.log.Info("placer: loading", "context", contextID, "policy", p.opt.Policy.Name())
	p.supply.Clear()
	p.supply.RequestRefill()
	p.source.Load(contextID, func(r rules.Rules, err error) {
		if gen != p.loadGen || p.destroyed {
			return
		}
		p.onRules(r, err)
	})
}

// SetContentLength reports the content length without saying where content
// moved. Slots past a shrunken end are dropped; growth reveals new slots.
func (p *Placer[T]) SetContentLength(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 {
		n = 0
	}
	p.release(p.m.SetLength(n), true)
}

// ContentInserted reports count items inserted at original index. Out of
// range reports are ignored.
func (p *Placer[T]) ContentInserted(index, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count <= 0 || index < 0 || index > p.m.Len() {
		p.log.Debug("placer: ignoring insert", "index", index, "count", count, "len", p.m.Len())
		return
	}
	p.change.OnInsert(index, count)
}

// ContentRemoved reports count items removed at original index. Out of range
// reports are ignored.
func (p *Placer[T]) ContentRemoved(index, count int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count <= 0 || index < 0 || index+count > p.m.Len() {
		p.log.Debug("placer: ignoring remove", "index", index, "count", count, "len", p.m.Len())
		return
	}
	p.change.OnRemove(index, count)
}

// PlaceInRange fills unfilled slots in the adjusted range [lo, hi) from the
// supply queue and remembers the range for later arrivals.
func (p *Placer[T]) PlaceInRange(lo, hi int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if lo < 0 {
		lo = 0
	}
	p.lo, p.hi = lo, hi
	p.place()
}

// ClearAll removes every placed item and empties the supply queue. Slots
// stay reserved and are filled again by later PlaceInRange calls.
func (p *Placer[T]) ClearAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.release(p.m.ClearAll(), true)
	p.supply.Clear()
}

// Destroy releases every item, cancels all pending work and turns the
// Placer into a content-only pass-through. Idempotent.
func (p *Placer[T]) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed {
		return
	}
	p.destroyed = true
	p.loading = false
	p.loadGen++

	p.source.Close()
	p.supply.Close()
	p.release(p.m.Recompute(rules.Rules{}, p.m.Len()), false)
	if p.loop != nil {
		p.loop.Close()
	}
	p.log.Debug("placer: destroyed")
}

// ---- queries ----

// AdjustedLen returns the length of the combined stream.
func (p *Placer[T]) AdjustedLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m.AdjustedLen()
}

// ContentLen returns the original content length.
func (p *Placer[T]) ContentLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m.Len()
}

// ToAdjusted maps an original index into the combined stream.
func (p *Placer[T]) ToAdjusted(original int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m.ToAdjusted(original)
}

// ToOriginal maps a combined-stream position back to content, or
// placement.NotFound for slot positions.
func (p *Placer[T]) ToOriginal(adjusted int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m.ToOriginal(adjusted)
}

// IsSlot reports whether adjusted is a reserved slot.
func (p *Placer[T]) IsSlot(adjusted int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m.IsSlot(adjusted)
}

// ItemAt returns the item placed at adjusted.
func (p *Placer[T]) ItemAt(adjusted int) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.m.Item(adjusted)
	return it.Value, ok
}

// ViewType returns the renderer id for the item at adjusted. ok is false for
// content positions and empty slots.
func (p *Placer[T]) ViewType(adjusted int) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	it, ok := p.m.Item(adjusted)
	if !ok {
		return 0, false
	}
	if p.opt.ViewType == nil {
		return 0, true
	}
	return p.opt.ViewType(it.Value), true
}

// ViewTypeCount returns the number of renderer ids injected items use.
func (p *Placer[T]) ViewTypeCount() int { return p.opt.ViewTypes }

// Slots returns a snapshot of the visible slots.
func (p *Placer[T]) Slots() []placement.Slot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m.Slots()
}

// ---- internals (called with p.mu held) ----

func (p *Placer[T]) onRules(r rules.Rules, err error) {
	if err != nil {
		reason := failure.Classify(err)
		p.log.Warn("placer: rules failed", "reason", reason.String(), "err", err)
		p.sink.LoadFailed(reason)
		// Degrade to content only; a later LoadAds starts over.
		p.supply.Clear()
		p.placeInitial(rules.Rules{})
		return
	}
	p.rulesReady = true
	p.pending = r
	if p.supplyReady {
		p.placeInitial(r)
	}
}

func (p *Placer[T]) onSupplyAvailable() {
	if p.destroyed {
		return
	}
	if p.loading {
		p.supplyReady = true
		if p.rulesReady {
			p.placeInitial(p.pending)
		}
		return
	}
	p.place()
}

func (p *Placer[T]) onSupplyFailed(reason failure.Reason) {
	if p.destroyed {
		return
	}
	p.log.Warn("placer: supply failed", "reason", reason.String())
	p.sink.LoadFailed(reason)
	if p.loading {
		// Nothing will arrive; switch to the new layout with empty slots.
		p.supplyReady = true
		if p.rulesReady {
			p.placeInitial(p.pending)
		}
	}
}

// placeInitial swaps in the layout for r: old items are removed, then the
// remembered range is filled.
func (p *Placer[T]) placeInitial(r rules.Rules) {
	p.loading = false
	p.rulesReady = false
	p.pending = rules.Rules{}
	p.supplyReady = false

	p.release(p.m.Recompute(r, p.m.Len()), true)
	p.log.Info("placer: layout applied", "rules", r.String(), "slots", p.m.SlotCount())
	p.place()
}

// place fills empty slots in the remembered range.
func (p *Placer[T]) place() {
	if p.destroyed || p.loading {
		return
	}
	hi := p.hi + p.opt.Lookahead
	if n := p.m.AdjustedLen(); hi > n {
		hi = n
	}
	for _, adj := range p.m.EmptyIn(p.lo, hi) {
		it, ok := p.supply.Dequeue()
		if !ok {
			p.supply.RequestRefill()
			return
		}
		p.m.Fill(adj, it)
		p.opt.Metrics.Placed()
		p.sink.ItemPlaced(adj)
	}
}

// release disposes items the ledger gave up, highest position first so each
// reported position is still valid when the caller applies it.
func (p *Placer[T]) release(rel []placement.Released[T], notify bool) {
	if len(rel) == 0 {
		return
	}
	sort.Slice(rel, func(i, j int) bool { return rel[i].Adjusted > rel[j].Adjusted })
	for _, r := range rel {
		p.opt.Metrics.Removed()
		if notify {
			p.sink.ItemRemoved(r.Adjusted)
		}
		if p.opt.OnDispose != nil {
			p.opt.OnDispose(r.Item.Value)
		}
	}
}

// ---- adapters ----

// supplyListener keeps the listener methods off the Placer's public API.
type supplyListener[T any] struct{ p *Placer[T] }

func (l supplyListener[T]) SupplyAvailable()              { l.p.onSupplyAvailable() }
func (l supplyListener[T]) SupplyFailed(r failure.Reason) { l.p.onSupplyFailed(r) }

// ledgerHooks binds the change policy to the placement map.
type ledgerHooks[T any] struct{ p *Placer[T] }

func (h ledgerHooks[T]) Len() int      { return h.p.m.Len() }
func (h ledgerHooks[T]) LastSlot() int { return h.p.m.LastSlot() }

func (h ledgerHooks[T]) Insert(index, count int) { h.p.m.Insert(index, count) }

func (h ledgerHooks[T]) Remove(index, count int) {
	rel, _ := h.p.m.Remove(index, count)
	h.p.release(rel, true)
}

func (h ledgerHooks[T]) Resize(length int) { h.p.release(h.p.m.SetLength(length), true) }

var (
	_ supply.Listener = supplyListener[int]{}
	_ policy.Hooks    = ledgerHooks[int]{}
)
