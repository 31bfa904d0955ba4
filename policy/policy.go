// Package policy defines content-change strategies: how a reported insertion
// or removal of content is applied to the placement ledger.
package policy

// Hooks expose the ledger operations a strategy can use. Implementations are
// provided by the placer over its placement map.
//
// Concurrency: all hook calls happen under the placer lock.
// Important: hooks update only the ledger; the placer emits events and
// disposes of items the ledger releases.
type Hooks interface {
	// Len returns the current content length.
	Len() int
	// LastSlot returns the original index the last visible slot sits
	// before, or -1 when no slot is visible.
	LastSlot() int
	// Insert moves slots at or after index forward by count.
	Insert(index, count int)
	// Remove drops slots inside [index, index+count) and moves later ones back.
	Remove(index, count int)
	// Resize changes the content length without moving any slot.
	Resize(length int)
}

// ChangePolicy is a strategy instance bound to one placer's hooks.
// Callers validate index/count against Len before invoking it.
type ChangePolicy interface {
	OnInsert(index, count int)
	OnRemove(index, count int)
}

// Policy is a factory that creates strategy instances bound to a
// particular placer's hooks.
type Policy interface {
	Name() string
	New(Hooks) ChangePolicy
}
