package sched

import (
	"sync"
	"time"
)

// Loop is a Scheduler backed by one goroutine that runs posted callbacks in
// FIFO order. Timers post onto the loop when they expire.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewLoop starts the loop goroutine.
func NewLoop() *Loop {
	l := &Loop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Post enqueues fn. Posts after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// AfterFunc posts fn onto the loop after d.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Handle {
	h := &loopTimer{}
	h.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if h.g.fire() {
				fn()
			}
		})
	})
	return h
}

// Close stops the loop. Queued callbacks that have not started are dropped.
// Close does not wait for a running callback, so it is safe to call from one.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.queue = nil
	l.cond.Broadcast()
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
	}
}

type loopTimer struct {
	g gate
	t *time.Timer
}

func (h *loopTimer) Cancel() bool {
	if !h.g.cancel() {
		return false
	}
	h.t.Stop()
	return true
}

var _ Scheduler = (*Loop)(nil)
