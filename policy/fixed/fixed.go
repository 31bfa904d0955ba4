// Package fixed implements the keep-in-place content-change strategy: slots
// keep their adjusted positions and content flows around them.
package fixed

import "github.com/IvanBrykalov/adplacer/policy"

type fixed struct {
	h policy.Hooks
}

type fixedPolicy struct{}

// New returns a Policy factory for the fixed strategy.
func New() policy.Policy { return fixedPolicy{} }

func (fixedPolicy) Name() string { return "fixed" }

// New implements policy.Policy by binding placer hooks.
func (fixedPolicy) New(h policy.Hooks) policy.ChangePolicy { return &fixed{h: h} }

// OnInsert only grows the content.
func (p *fixed) OnInsert(_, count int) { p.h.Resize(p.h.Len() + count) }

// OnRemove only shrinks the content; slots past the new end go away.
func (p *fixed) OnRemove(_, count int) { p.h.Resize(p.h.Len() - count) }
