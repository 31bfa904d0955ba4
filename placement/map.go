// Package placement is the position-translation ledger between the
// content-only ("original") index space and the combined content+injected
// ("adjusted") index space.
//
// Design
//
//   - Slots: each reserved slot sits before an original index. The k-th
//     counted slot (0-based) has adjusted position original+k, so a slot
//     shifts every later original position forward by one.
//
//   - Materialization: the rules describe an unbounded desired sequence of
//     slots. Desired slots are materialized lazily, once enough content exists
//     to reach them (original index < content length).
//
//   - Mutations: Insert/Remove move slots with the content they sit in front
//     of. Desired slots not yet materialized always lie past the content end,
//     so they move by the net change of every mutation.
//
//   - Counting: only slots whose original index is below the content length
//     are visible. A slot can trail the content exactly at the end (after a
//     removal) and becomes visible again once content grows.
//
// A Map is not safe for concurrent use.
package placement

import (
	"sort"

	"github.com/IvanBrykalov/adplacer/rules"
	"github.com/IvanBrykalov/adplacer/supply"
)

// NotFound is returned by ToOriginal for slot positions and invalid input.
const NotFound = -1

// Slot is a visible reserved slot.
type Slot[T any] struct {
	Adjusted int
	Original int // the original index this slot sits before
	Item     *supply.Item[T]
}

// Filled reports whether an item is placed in the slot.
func (s Slot[T]) Filled() bool { return s.Item != nil }

// Released is an item detached from the ledger, with the adjusted position
// its slot had before the change. The caller disposes of it.
type Released[T any] struct {
	Adjusted int
	Item     supply.Item[T]
}

type slot[T any] struct {
	orig int
	seq  int // index in the rules' desired sequence
	item *supply.Item[T]
}

// Map is the placement ledger.
type Map[T any] struct {
	r      rules.Rules
	length int
	slots  []slot[T] // strictly ascending orig

	next  int // next desired sequence index to materialize
	shift int // net content movement applied to desired slots not yet materialized
}

// New returns a ledger for r over length original items.
func New[T any](r rules.Rules, length int) *Map[T] {
	m := &Map[T]{}
	m.Recompute(r, length)
	return m
}

// Recompute rebuilds the reserved slots from scratch. Items held by the old
// slots are returned for disposal.
func (m *Map[T]) Recompute(r rules.Rules, length int) []Released[T] {
	released := m.releaseAll()
	if length < 0 {
		length = 0
	}
	m.r = r
	m.length = length
	m.slots = nil
	m.next = 0
	m.shift = 0
	m.materialize()
	return released
}

// Rules returns the rules the ledger was built from.
func (m *Map[T]) Rules() rules.Rules { return m.r }

// Len returns the original content length.
func (m *Map[T]) Len() int { return m.length }

// AdjustedLen returns content length plus visible slots.
func (m *Map[T]) AdjustedLen() int { return m.length + m.counted() }

// SlotCount returns the number of visible slots.
func (m *Map[T]) SlotCount() int { return m.counted() }

// SetLength changes the content length without describing where content
// moved. Growth materializes newly reachable slots; shrinking drops slots
// past the new end and rewinds so they reappear if content grows back.
func (m *Map[T]) SetLength(n int) []Released[T] {
	if n < 0 {
		n = 0
	}
	if n >= m.length {
		m.length = n
		m.materialize()
		return nil
	}

	cut := sort.Search(len(m.slots), func(i int) bool { return m.slots[i].orig > n })
	var released []Released[T]
	if cut < len(m.slots) {
		first := m.slots[cut]
		m.next = first.seq
		m.shift = first.orig - m.ruleOrig(first.seq)
		for i := cut; i < len(m.slots); i++ {
			if s := m.slots[i]; s.item != nil {
				released = append(released, Released[T]{Adjusted: s.orig + i, Item: *s.item})
			}
		}
		clear(m.slots[cut:])
		m.slots = m.slots[:cut]
	}
	m.length = n
	return released
}

// Insert records count items inserted at original index. Slots at or after
// index move with the content; a slot sitting exactly before index stays
// attached to the item that was there, so new content lands in front of it.
// Appending at the end is plain growth (see SetLength).
// Reports false (and does nothing) for out-of-range input.
func (m *Map[T]) Insert(index, count int) bool {
	if count <= 0 || index < 0 || index > m.length {
		return false
	}
	if index == m.length {
		m.SetLength(m.length + count)
		return true
	}
	from := sort.Search(len(m.slots), func(i int) bool { return m.slots[i].orig >= index })
	for i := from; i < len(m.slots); i++ {
		m.slots[i].orig += count
	}
	m.shift += count
	m.length += count
	m.materialize()
	return true
}

// Remove records count items removed starting at original index. Slots
// strictly inside the removed range are discarded; later slots move back.
// If a moved slot lands on the slot sitting before index, one survives: the
// filled one, or the earlier on a tie. Removing a tail is plain truncation
// (see SetLength). Discarded items are returned.
func (m *Map[T]) Remove(index, count int) ([]Released[T], bool) {
	if count <= 0 || index < 0 || index+count > m.length {
		return nil, false
	}
	end := index + count
	if end == m.length {
		return m.SetLength(index), true
	}

	var released []Released[T]
	release := func(s slot[T], pos int) {
		if s.item != nil {
			released = append(released, Released[T]{Adjusted: s.orig + pos, Item: *s.item})
		}
	}

	kept := m.slots[:0]
	for i, s := range m.slots {
		switch {
		case s.orig <= index:
			kept = append(kept, s)
		case s.orig < end:
			release(s, i)
		default:
			oldAdj := s.orig + i
			s.orig -= count
			if n := len(kept); n > 0 && kept[n-1].orig == s.orig {
				prev := kept[n-1]
				if prev.item == nil && s.item != nil {
					kept[n-1] = s
					release(prev, n-1)
				} else if s.item != nil {
					released = append(released, Released[T]{Adjusted: oldAdj, Item: *s.item})
				}
				continue
			}
			kept = append(kept, s)
		}
	}
	clear(m.slots[len(kept):])
	m.slots = kept
	m.shift -= count
	m.length -= count
	m.materialize()
	return released, true
}

// ToAdjusted maps an original index to the combined space. Indices at or past
// the content end extrapolate past the last visible slot.
func (m *Map[T]) ToAdjusted(original int) int {
	if original < 0 {
		return NotFound
	}
	if original >= m.length {
		return original + m.counted()
	}
	before := sort.Search(len(m.slots), func(i int) bool { return m.slots[i].orig > original })
	return original + before
}

// ToOriginal maps an adjusted position back to the original index, or
// NotFound when the position is a slot.
func (m *Map[T]) ToOriginal(adjusted int) int {
	if adjusted < 0 {
		return NotFound
	}
	i, ok := m.find(adjusted)
	if ok {
		return NotFound
	}
	return adjusted - i
}

// IsSlot reports whether adjusted is a visible reserved slot.
func (m *Map[T]) IsSlot(adjusted int) bool {
	_, ok := m.find(adjusted)
	return ok
}

// Item returns the item placed at adjusted, if any.
func (m *Map[T]) Item(adjusted int) (supply.Item[T], bool) {
	i, ok := m.find(adjusted)
	if !ok || m.slots[i].item == nil {
		return supply.Item[T]{}, false
	}
	return *m.slots[i].item, true
}

// Fill places it into the empty slot at adjusted. It reports false when
// adjusted is not a visible slot or the slot is already filled.
func (m *Map[T]) Fill(adjusted int, it supply.Item[T]) bool {
	i, ok := m.find(adjusted)
	if !ok || m.slots[i].item != nil {
		return false
	}
	m.slots[i].item = &it
	return true
}

// Clear detaches the item at adjusted, leaving the slot reserved and empty.
func (m *Map[T]) Clear(adjusted int) (supply.Item[T], bool) {
	i, ok := m.find(adjusted)
	if !ok || m.slots[i].item == nil {
		return supply.Item[T]{}, false
	}
	it := *m.slots[i].item
	m.slots[i].item = nil
	return it, true
}

// ClearAll detaches every item (visible or trailing). Slots stay reserved.
func (m *Map[T]) ClearAll() []Released[T] {
	return m.releaseAll()
}

// LastSlot returns the original index the last visible slot sits before,
// or -1 when no slot is visible.
func (m *Map[T]) LastSlot() int {
	if c := m.counted(); c > 0 {
		return m.slots[c-1].orig
	}
	return -1
}

// Slots returns the visible slots in ascending order.
func (m *Map[T]) Slots() []Slot[T] {
	c := m.counted()
	out := make([]Slot[T], c)
	for i := 0; i < c; i++ {
		s := m.slots[i]
		out[i] = Slot[T]{Adjusted: s.orig + i, Original: s.orig, Item: s.item}
	}
	return out
}

// EmptyIn returns the adjusted positions of visible, unfilled slots within
// the half-open range [lo, hi), ascending.
func (m *Map[T]) EmptyIn(lo, hi int) []int {
	c := m.counted()
	start := sort.Search(c, func(i int) bool { return m.slots[i].orig+i >= lo })
	var out []int
	for i := start; i < c; i++ {
		adj := m.slots[i].orig + i
		if adj >= hi {
			break
		}
		if m.slots[i].item == nil {
			out = append(out, adj)
		}
	}
	return out
}

// FilledIn returns the adjusted positions of filled visible slots in [lo, hi).
func (m *Map[T]) FilledIn(lo, hi int) []int {
	c := m.counted()
	start := sort.Search(c, func(i int) bool { return m.slots[i].orig+i >= lo })
	var out []int
	for i := start; i < c; i++ {
		adj := m.slots[i].orig + i
		if adj >= hi {
			break
		}
		if m.slots[i].item != nil {
			out = append(out, adj)
		}
	}
	return out
}

// ---- internals ----

// counted is the number of slots sitting before an existing original item.
func (m *Map[T]) counted() int {
	return sort.Search(len(m.slots), func(i int) bool { return m.slots[i].orig >= m.length })
}

// find locates the visible slot at adjusted. When absent, i is the number of
// visible slots before adjusted.
func (m *Map[T]) find(adjusted int) (i int, ok bool) {
	c := m.counted()
	i = sort.Search(c, func(k int) bool { return m.slots[k].orig+k >= adjusted })
	return i, i < c && m.slots[i].orig+i == adjusted
}

// ruleOrig is the original index of desired slot j before any content moved.
func (m *Map[T]) ruleOrig(j int) int {
	adj, _ := m.r.Slot(j)
	return adj - j
}

// materialize appends desired slots that the current content can reach.
func (m *Map[T]) materialize() {
	for {
		adj, ok := m.r.Slot(m.next)
		if !ok {
			return
		}
		orig := adj - m.next + m.shift
		if orig >= m.length {
			return
		}
		seq := m.next
		m.next++
		// A moved slot already occupies this spot (or one past it).
		if n := len(m.slots); orig < 0 || (n > 0 && orig <= m.slots[n-1].orig) {
			continue
		}
		m.slots = append(m.slots, slot[T]{orig: orig, seq: seq})
	}
}

func (m *Map[T]) releaseAll() []Released[T] {
	var out []Released[T]
	for i := range m.slots {
		if it := m.slots[i].item; it != nil {
			out = append(out, Released[T]{Adjusted: m.slots[i].orig + i, Item: *it})
			m.slots[i].item = nil
		}
	}
	return out
}
