// Package schedtest provides a deterministic Scheduler and Clock for tests.
package schedtest

import (
	"sort"
	"sync"
	"time"

	"github.com/IvanBrykalov/adplacer/sched"
)

// Manual is a virtual-time Scheduler. Posted callbacks run only on Flush or
// Advance; timers fire only when Advance moves time past their deadline.
// It also implements sched.Clock with the same virtual time.
type Manual struct {
	mu     sync.Mutex
	now    int64
	seq    int
	queue  []func()
	timers []*timer
	delays []time.Duration // every AfterFunc delay, in request order
}

type timer struct {
	due       int64
	seq       int
	fn        func()
	done      bool
	cancelled bool
	m         *Manual
}

// New returns a Manual whose clock starts at start.
func New(start time.Time) *Manual {
	return &Manual{now: start.UnixNano()}
}

// NowUnixNano implements sched.Clock.
func (m *Manual) NowUnixNano() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Post queues fn until the next Flush.
func (m *Manual) Post(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, fn)
}

// AfterFunc registers fn to fire once virtual time reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) sched.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &timer{due: m.now + int64(d), seq: m.seq, fn: fn, m: m}
	m.timers = append(m.timers, t)
	m.delays = append(m.delays, d)
	return t
}

func (t *timer) Cancel() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.done || t.cancelled {
		return false
	}
	t.cancelled = true
	t.m.dropLocked(t)
	return true
}

// Flush runs queued callbacks, including ones they post, until the queue is
// empty. It returns how many ran.
func (m *Manual) Flush() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		fn()
		n++
	}
}

// Advance moves virtual time forward by d, firing due timers in deadline
// order and flushing the queue after each.
func (m *Manual) Advance(d time.Duration) {
	m.Flush()
	m.mu.Lock()
	target := m.now + int64(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		t := m.nextDueLocked(target)
		if t == nil {
			m.now = target
			m.mu.Unlock()
			break
		}
		m.now = t.due
		t.done = true
		m.dropLocked(t)
		m.mu.Unlock()

		t.fn()
		m.Flush()
	}
	m.Flush()
}

// Pending returns the remaining delays of timers that have not fired.
func (m *Manual) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, 0, len(m.timers))
	for _, t := range m.timers {
		out = append(out, time.Duration(t.due-m.now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Delays returns every delay ever passed to AfterFunc, in request order.
func (m *Manual) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.delays...)
}

// Queued reports how many posted callbacks wait for Flush.
func (m *Manual) Queued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

func (m *Manual) nextDueLocked(limit int64) *timer {
	var best *timer
	for _, t := range m.timers {
		if t.due > limit {
			continue
		}
		if best == nil || t.due < best.due || (t.due == best.due && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (m *Manual) dropLocked(t *timer) {
	for i, x := range m.timers {
		if x == t {
			m.timers = append(m.timers[:i], m.timers[i+1:]...)
			return
		}
	}
}

var (
	_ sched.Scheduler = (*Manual)(nil)
	_ sched.Clock     = (*Manual)(nil)
)
