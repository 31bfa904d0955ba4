// Package move implements the default content-change strategy: reserved
// slots travel with the content they sit in front of.
package move

import "github.com/IvanBrykalov/adplacer/policy"

type move struct {
	h policy.Hooks
}

type movePolicy struct{}

// New returns a Policy factory for the move strategy.
func New() policy.Policy { return movePolicy{} }

func (movePolicy) Name() string { return "move" }

// New implements policy.Policy by binding placer hooks.
func (movePolicy) New(h policy.Hooks) policy.ChangePolicy { return &move{h: h} }

// OnInsert shifts every slot at or after index.
func (p *move) OnInsert(index, count int) { p.h.Insert(index, count) }

// OnRemove discards slots inside the range and shifts the rest back.
func (p *move) OnRemove(index, count int) { p.h.Remove(index, count) }
