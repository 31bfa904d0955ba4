// Package atend implements the tail-aware content-change strategy.
//
// Mutations that leave every visible slot in place (an insertion after the
// last visible slot, a removal starting at or after it) are applied as tail
// growth or truncation, so the rules decide where the next slots go. Earlier
// mutations shift slots like the move strategy.
package atend

import "github.com/IvanBrykalov/adplacer/policy"

type atEnd struct {
	h policy.Hooks
}

type atEndPolicy struct{}

// New returns a Policy factory for the at-end strategy.
func New() policy.Policy { return atEndPolicy{} }

func (atEndPolicy) Name() string { return "atend" }

// New implements policy.Policy by binding placer hooks.
func (atEndPolicy) New(h policy.Hooks) policy.ChangePolicy { return &atEnd{h: h} }

func (p *atEnd) OnInsert(index, count int) {
	if index > p.h.LastSlot() {
		p.h.Resize(p.h.Len() + count)
		return
	}
	p.h.Insert(index, count)
}

func (p *atEnd) OnRemove(index, count int) {
	if last := p.h.LastSlot(); last < 0 || index >= last {
		p.h.Resize(p.h.Len() - count)
		return
	}
	p.h.Remove(index, count)
}
