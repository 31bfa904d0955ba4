// Package sched abstracts the serialized task queue and cancellable timers the
// placement engine runs on. All asynchronous completions (fetch results, retry
// timers) are delivered through a Scheduler so that a single owner observes
// them in order.
package sched

import (
	"sync"
	"sync/atomic"
	"time"
)

// Handle is a cancellable scheduled callback.
type Handle interface {
	// Cancel prevents the callback from running. It reports whether the call
	// stopped it; false means it already ran or was already cancelled.
	Cancel() bool
}

// Scheduler runs callbacks on a serialized queue.
type Scheduler interface {
	// Post enqueues fn to run later on the queue. Post never runs fn inline.
	Post(fn func())
	// AfterFunc enqueues fn once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Handle
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) NowUnixNano() int64 { return time.Now().UnixNano() }

const (
	statePending int32 = iota
	stateFired
	stateCancelled
)

// gate is the fire/cancel race arbiter shared by timer handles.
type gate struct{ state atomic.Int32 }

func (g *gate) fire() bool   { return g.state.CompareAndSwap(statePending, stateFired) }
func (g *gate) cancel() bool { return g.state.CompareAndSwap(statePending, stateCancelled) }

// ---- Locked ----

// Locked wraps a Scheduler so every callback runs while holding l.
// Timer cancellation is checked under l, so a Cancel issued by the lock
// holder is final: the callback never runs afterwards.
type Locked struct {
	inner Scheduler
	l     sync.Locker
}

// NewLocked returns a Scheduler that serializes callbacks through l.
func NewLocked(inner Scheduler, l sync.Locker) *Locked {
	return &Locked{inner: inner, l: l}
}

func (s *Locked) Post(fn func()) {
	s.inner.Post(func() {
		s.l.Lock()
		defer s.l.Unlock()
		fn()
	})
}

func (s *Locked) AfterFunc(d time.Duration, fn func()) Handle {
	h := &lockedHandle{}
	h.inner = s.inner.AfterFunc(d, func() {
		s.l.Lock()
		defer s.l.Unlock()
		if !h.g.fire() {
			return
		}
		fn()
	})
	return h
}

type lockedHandle struct {
	g     gate
	inner Handle
}

func (h *lockedHandle) Cancel() bool {
	if !h.g.cancel() {
		return false
	}
	h.inner.Cancel()
	return true
}

var _ Scheduler = (*Locked)(nil)
