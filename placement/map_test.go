package placement

import (
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/IvanBrykalov/adplacer/rules"
	"github.com/IvanBrykalov/adplacer/supply"
)

// --- helpers ---

func adjusted[T any](m *Map[T]) []int {
	var out []int
	for _, s := range m.Slots() {
		out = append(out, s.Adjusted)
	}
	return out
}

func item(v string) supply.Item[string] { return supply.Item[string]{Value: v} }

// checkInvariants verifies slot spacing, the length identity and the
// original<->adjusted bijection over the whole combined range.
func checkInvariants[T any](t *testing.T, m *Map[T]) {
	t.Helper()

	slots := m.Slots()
	if got, want := m.AdjustedLen(), m.Len()+len(slots); got != want {
		t.Fatalf("AdjustedLen=%d, want Len+slots=%d", got, want)
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Adjusted-slots[i-1].Adjusted < 2 {
			t.Fatalf("adjacent slots at %d and %d", slots[i-1].Adjusted, slots[i].Adjusted)
		}
	}
	for _, s := range slots {
		if s.Original >= m.Len() {
			t.Fatalf("visible slot sits past content end: orig=%d len=%d", s.Original, m.Len())
		}
	}

	seen := 0
	for a := 0; a < m.AdjustedLen(); a++ {
		o := m.ToOriginal(a)
		if m.IsSlot(a) {
			if o != NotFound {
				t.Fatalf("slot %d maps to original %d", a, o)
			}
			continue
		}
		if o < 0 || o >= m.Len() {
			t.Fatalf("adjusted %d maps out of range: %d (len %d)", a, o, m.Len())
		}
		if back := m.ToAdjusted(o); back != a {
			t.Fatalf("round trip %d -> %d -> %d", a, o, back)
		}
		if o != seen {
			t.Fatalf("originals out of order at adjusted %d: got %d want %d", a, o, seen)
		}
		seen++
	}
	if seen != m.Len() {
		t.Fatalf("bijection covers %d originals, want %d", seen, m.Len())
	}
}

// --- tests ---

// Scenario A: interval 2 over four items reserves adjusted 1, 3 and 5.
func TestMap_IntervalScenario(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 4)
	if got, want := adjusted(m), []int{1, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("slots=%v, want %v", got, want)
	}
	if m.AdjustedLen() != 7 {
		t.Fatalf("AdjustedLen=%d, want 7", m.AdjustedLen())
	}
	for a, want := range []int{0, NotFound, 1, NotFound, 2, NotFound, 3} {
		if got := m.ToOriginal(a); got != want {
			t.Fatalf("ToOriginal(%d)=%d, want %d", a, got, want)
		}
	}
	checkInvariants(t, m)
}

// Fixed positions reachable by the content are reserved; the rest wait.
func TestMap_FixedPositionsReachable(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew([]int{0, 2, 10}, 0), 3)
	if got, want := adjusted(m), []int{0, 2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("slots=%v, want %v", got, want)
	}
	checkInvariants(t, m)

	m.SetLength(9)
	if got, want := adjusted(m), []int{0, 2, 10}; !reflect.DeepEqual(got, want) {
		t.Fatalf("after growth slots=%v, want %v", got, want)
	}
	checkInvariants(t, m)
}

func TestMap_FixedThenRepeating(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew([]int{1, 4}, 3), 10)
	if got, want := adjusted(m), []int{1, 4, 7, 10, 13}; !reflect.DeepEqual(got, want) {
		t.Fatalf("slots=%v, want %v", got, want)
	}
	checkInvariants(t, m)
}

func TestMap_ZeroRulesAndEmptyContent(t *testing.T) {
	t.Parallel()

	m := New[string](rules.Rules{}, 5)
	if m.SlotCount() != 0 || m.AdjustedLen() != 5 {
		t.Fatalf("zero rules must reserve nothing, got %v", adjusted(m))
	}
	checkInvariants(t, m)

	e := New[string](rules.MustNew([]int{0}, 2), 0)
	if e.AdjustedLen() != 0 || e.IsSlot(0) {
		t.Fatalf("no content means no visible slots")
	}
}

func TestMap_RecomputeIsIdempotent(t *testing.T) {
	t.Parallel()

	r := rules.MustNew([]int{2}, 5)
	m := New[string](r, 40)
	first := adjusted(m)
	m.Recompute(r, 40)
	if got := adjusted(m); !reflect.DeepEqual(got, first) {
		t.Fatalf("recompute changed slots: %v vs %v", got, first)
	}
}

func TestMap_RecomputeReleasesItems(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 4)
	m.Fill(1, item("a"))
	m.Fill(5, item("b"))

	rel := m.Recompute(rules.MustNew(nil, 3), 4)
	if len(rel) != 2 || rel[0].Adjusted != 1 || rel[1].Adjusted != 5 {
		t.Fatalf("released=%+v", rel)
	}
	if got, want := adjusted(m), []int{2}; !reflect.DeepEqual(got, want) {
		t.Fatalf("slots=%v, want %v", got, want)
	}
}

// Content inserted exactly at a reserved slot lands in front of it.
func TestMap_InsertAtReservedSlot(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 4) // slots 1,3,5
	m.Fill(1, item("ad"))

	if !m.Insert(1, 1) {
		t.Fatalf("Insert rejected")
	}
	if got, want := adjusted(m), []int{2, 4, 6}; !reflect.DeepEqual(got, want) {
		t.Fatalf("slots=%v, want %v", got, want)
	}
	if got := m.ToAdjusted(1); got != 1 {
		t.Fatalf("new item at adjusted %d, want 1", got)
	}
	if got := m.ToOriginal(3); got != 2 {
		t.Fatalf("old item 1 must follow the slot, got original %d", got)
	}
	if it, ok := m.Item(2); !ok || it.Value != "ad" {
		t.Fatalf("filled slot must move with the content")
	}
	checkInvariants(t, m)
}

func TestMap_InsertBeforeAllSlots(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 4)
	m.Insert(0, 2)
	if got, want := adjusted(m), []int{3, 5, 7}; !reflect.DeepEqual(got, want) {
		t.Fatalf("slots=%v, want %v", got, want)
	}
	if m.Len() != 6 {
		t.Fatalf("Len=%d, want 6", m.Len())
	}
	checkInvariants(t, m)
}

// Appending reveals the slots the rules place over the grown content.
func TestMap_InsertAtEndGrows(t *testing.T) {
	t.Parallel()

	r := rules.MustNew(nil, 2)
	m := New[string](r, 4)
	m.Insert(4, 3)
	if got, want := adjusted(m), adjusted(New[string](r, 7)); !reflect.DeepEqual(got, want) {
		t.Fatalf("slots=%v, want %v", got, want)
	}
	checkInvariants(t, m)
}

func TestMap_InsertThenRemoveRestores(t *testing.T) {
	t.Parallel()

	for _, r := range []rules.Rules{
		rules.MustNew(nil, 2),
		rules.MustNew([]int{0, 3}, 4),
		rules.MustNew([]int{5}, 0),
	} {
		for idx := 0; idx <= 12; idx++ {
			m := New[string](r, 12)
			before := adjusted(m)
			m.Insert(idx, 3)
			checkInvariants(t, m)
			if _, ok := m.Remove(idx, 3); !ok {
				t.Fatalf("Remove rejected")
			}
			if got := adjusted(m); !reflect.DeepEqual(got, before) {
				t.Fatalf("rules=%v idx=%d: %v after round trip, want %v", r, idx, got, before)
			}
			checkInvariants(t, m)
		}
	}
}

// Slots strictly inside the removed range are discarded with their items.
func TestMap_RemoveDiscardsInteriorSlots(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 3), 8) // originals 2,4,6 -> adjusted 2,5,8
	m.Fill(5, item("gone"))

	rel, ok := m.Remove(3, 2)
	if !ok {
		t.Fatalf("Remove rejected")
	}
	if len(rel) != 1 || rel[0].Adjusted != 5 || rel[0].Item.Value != "gone" {
		t.Fatalf("released=%+v", rel)
	}
	if got, want := adjusted(m), []int{2, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("slots=%v, want %v", got, want)
	}
	checkInvariants(t, m)
}

// Two slots meeting at the removal point collapse; the filled one survives.
func TestMap_RemoveCollisionKeepsFilled(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 6) // originals 1..5
	m.Fill(3, item("keep"))                    // original 2

	rel, _ := m.Remove(1, 1)
	if len(rel) != 0 {
		t.Fatalf("nothing filled should be released, got %+v", rel)
	}
	if it, ok := m.Item(1); !ok || it.Value != "keep" {
		t.Fatalf("filled slot must survive the collision")
	}
	checkInvariants(t, m)
}

func TestMap_RemoveCollisionBothFilledKeepsEarlier(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 6)
	m.Fill(1, item("first"))
	m.Fill(3, item("second"))

	rel, _ := m.Remove(1, 1)
	if len(rel) != 1 || rel[0].Item.Value != "second" || rel[0].Adjusted != 3 {
		t.Fatalf("released=%+v", rel)
	}
	if it, _ := m.Item(1); it.Value != "first" {
		t.Fatalf("earlier slot must win a tie")
	}
	checkInvariants(t, m)
}

func TestMap_RemoveAtEndLeavesTrailingSlot(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 4) // originals 1,2,3
	m.Remove(3, 1)
	if got, want := adjusted(m), []int{1, 3}; !reflect.DeepEqual(got, want) {
		t.Fatalf("slots=%v, want %v", got, want)
	}
	checkInvariants(t, m)

	m.Insert(3, 1)
	if got, want := adjusted(m), []int{1, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("trailing slot must reappear, got %v", got)
	}
}

func TestMap_RejectsOutOfRangeMutations(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 4)
	if m.Insert(-1, 1) || m.Insert(5, 1) || m.Insert(0, 0) {
		t.Fatalf("invalid Insert accepted")
	}
	if _, ok := m.Remove(3, 2); ok {
		t.Fatalf("Remove past end accepted")
	}
	if m.Len() != 4 {
		t.Fatalf("rejected mutation changed length")
	}
}

func TestMap_SetLengthShrinkAndRegrow(t *testing.T) {
	t.Parallel()

	r := rules.MustNew([]int{0}, 3)
	m := New[string](r, 12)
	want := adjusted(m)
	m.Fill(want[len(want)-1], item("tail"))

	rel := m.SetLength(3)
	if len(rel) != 1 || rel[0].Item.Value != "tail" {
		t.Fatalf("released=%+v", rel)
	}
	checkInvariants(t, m)

	m.SetLength(12)
	if got := adjusted(m); !reflect.DeepEqual(got, want) {
		t.Fatalf("regrow slots=%v, want %v", got, want)
	}
	checkInvariants(t, m)
}

func TestMap_FillAndClear(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 4)
	if m.Fill(0, item("x")) {
		t.Fatalf("Fill must reject content positions")
	}
	if !m.Fill(3, item("x")) || m.Fill(3, item("y")) {
		t.Fatalf("Fill must accept once")
	}
	if got := m.EmptyIn(0, 7); !reflect.DeepEqual(got, []int{1, 5}) {
		t.Fatalf("EmptyIn=%v", got)
	}
	if got := m.FilledIn(0, 7); !reflect.DeepEqual(got, []int{3}) {
		t.Fatalf("FilledIn=%v", got)
	}
	if got := m.EmptyIn(1, 5); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("EmptyIn must be half-open, got %v", got)
	}
	it, ok := m.Clear(3)
	if !ok || it.Value != "x" {
		t.Fatalf("Clear returned %v %v", it, ok)
	}
	if _, ok := m.Clear(3); ok {
		t.Fatalf("second Clear must report false")
	}
	if !m.IsSlot(3) {
		t.Fatalf("cleared slot stays reserved")
	}
}

func TestMap_ToAdjustedExtrapolates(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 4)
	if got := m.ToAdjusted(4); got != m.AdjustedLen() {
		t.Fatalf("ToAdjusted(len)=%d, want %d", got, m.AdjustedLen())
	}
	if m.ToAdjusted(-1) != NotFound || m.ToOriginal(-1) != NotFound {
		t.Fatalf("negative input must be NotFound")
	}
}

// Random mutation sequences keep every structural invariant.
func TestMap_RandomMutations(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 50; round++ {
		var fixed []int
		for p := rng.IntN(3); p < 30; p += 2 + rng.IntN(6) {
			fixed = append(fixed, p)
		}
		interval := 0
		if rng.IntN(3) > 0 {
			interval = 2 + rng.IntN(6)
		}
		m := New[string](rules.MustNew(fixed, interval), rng.IntN(30))
		for step := 0; step < 40; step++ {
			switch rng.IntN(4) {
			case 0:
				m.Insert(rng.IntN(m.Len()+1), 1+rng.IntN(4))
			case 1:
				if m.Len() > 0 {
					i := rng.IntN(m.Len())
					m.Remove(i, 1+rng.IntN(m.Len()-i))
				}
			case 2:
				m.SetLength(rng.IntN(40))
			case 3:
				if s := m.Slots(); len(s) > 0 {
					m.Fill(s[rng.IntN(len(s))].Adjusted, item("x"))
				}
			}
			checkInvariants(t, m)
		}
	}
}

func TestMap_LastSlot(t *testing.T) {
	t.Parallel()

	m := New[string](rules.MustNew(nil, 2), 4)
	if got := m.LastSlot(); got != 3 {
		t.Fatalf("LastSlot=%d, want 3", got)
	}
	m.SetLength(1)
	if got := m.LastSlot(); got != -1 {
		t.Fatalf("LastSlot=%d, want -1 (slot before original 1 trails the content)", got)
	}
}
