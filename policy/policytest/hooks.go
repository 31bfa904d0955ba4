// Package policytest provides a recording policy.Hooks for strategy tests.
package policytest

// Call is one recorded hook invocation.
type Call struct {
	Op           string // "insert", "remove" or "resize"
	Index, Count int
	Length       int // resize target
}

// Hooks records every mutating call and reports a configurable ledger shape.
type Hooks struct {
	Length int
	Last   int // LastSlot result; set -1 for "no visible slot"
	Calls  []Call
}

func (h *Hooks) Len() int      { return h.Length }
func (h *Hooks) LastSlot() int { return h.Last }

func (h *Hooks) Insert(index, count int) {
	h.Calls = append(h.Calls, Call{Op: "insert", Index: index, Count: count})
	h.Length += count
}

func (h *Hooks) Remove(index, count int) {
	h.Calls = append(h.Calls, Call{Op: "remove", Index: index, Count: count})
	h.Length -= count
}

func (h *Hooks) Resize(length int) {
	h.Calls = append(h.Calls, Call{Op: "resize", Length: length})
	h.Length = length
}
