// Package positioning obtains placement rules, either from static
// configuration or from a remote transport with exponential-backoff retry.
//
// Sources are not safe for concurrent use; drive them from the owner's
// serialized queue (see sched.Locked). Callbacks are delivered on that queue.
package positioning

import (
	"context"

	"github.com/IvanBrykalov/adplacer/rules"
	"github.com/IvanBrykalov/adplacer/sched"
)

// Callback receives the loaded rules, or a terminal *failure.Error.
// It is invoked at most once per Load.
type Callback func(r rules.Rules, err error)

// Source loads rules for a context (for example an ad unit id).
type Source interface {
	// Load starts a load, cancelling any load already in progress: the
	// cancelled load never invokes its callback.
	Load(contextID string, cb Callback)
	// Close cancels any work in progress. Idempotent.
	Close()
}

// Transport fetches the raw rules payload. done must be called at most once;
// ctx is cancelled when the result is no longer wanted.
type Transport interface {
	FetchRules(ctx context.Context, contextID string, done func(payload []byte, err error))
}

// TransportFunc adapts a blocking fetch; each call runs on its own goroutine.
type TransportFunc func(ctx context.Context, contextID string) ([]byte, error)

// FetchRules implements Transport.
func (f TransportFunc) FetchRules(ctx context.Context, contextID string, done func([]byte, error)) {
	go func() {
		b, err := f(ctx, contextID)
		done(b, err)
	}()
}

// Static serves fixed rules. The callback still arrives asynchronously on
// the scheduler so callers see the same ordering as with a remote source.
type Static struct {
	r      rules.Rules
	s      sched.Scheduler
	gen    uint64
	closed bool
}

// NewStatic returns a Source that always yields r.
func NewStatic(r rules.Rules, s sched.Scheduler) *Static {
	if s == nil {
		s = sched.NewLoop()
	}
	return &Static{r: r, s: s}
}

// Load posts r to cb unless superseded or closed first.
func (st *Static) Load(_ string, cb Callback) {
	if st.closed {
		return
	}
	st.gen++
	gen := st.gen
	st.s.Post(func() {
		if gen != st.gen || st.closed {
			return
		}
		cb(st.r, nil)
	})
}

// Close drops any pending delivery.
func (st *Static) Close() {
	st.closed = true
	st.gen++
}

var (
	_ Source    = (*Static)(nil)
	_ Source    = (*Server)(nil)
	_ Transport = TransportFunc(nil)
)
