package positioning

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/IvanBrykalov/adplacer/failure"
	"github.com/IvanBrykalov/adplacer/internal/backoff"
	"github.com/IvanBrykalov/adplacer/rules"
	"github.com/IvanBrykalov/adplacer/sched"
)

// State of a Server source.
type State int

const (
	Idle State = iota
	Loading
	RetryScheduled
	Loaded
	Failed
	Closed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case RetryScheduled:
		return "retry_scheduled"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	case Closed:
		return "closed"
	default:
		return "idle"
	}
}

// Outcome labels a finished load attempt for metrics.
type Outcome int

const (
	OutcomeLoaded Outcome = iota
	OutcomeRetry
	OutcomeWarmingUp
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLoaded:
		return "loaded"
	case OutcomeRetry:
		return "retry"
	case OutcomeWarmingUp:
		return "warming_up"
	default:
		return "failed"
	}
}

// Metrics exposes positioning observability hooks.
type Metrics interface {
	Load(outcome Outcome)
}

// NoopMetrics is the default Metrics.
type NoopMetrics struct{}

func (NoopMetrics) Load(Outcome) {}

// ServerOptions configures a Server. Zero values are safe except Transport.
type ServerOptions struct {
	Transport Transport
	Scheduler sched.Scheduler

	// RetryBase is the base delay: the n-th consecutive failure waits
	// RetryBase * 2^n. Once that would exceed MaxRetryDelay the load fails
	// terminally. Defaults: 1s and 5m.
	RetryBase     time.Duration
	MaxRetryDelay time.Duration

	Metrics Metrics
	Logger  *slog.Logger
}

// Server loads rules through a Transport and retries failures.
type Server struct {
	opt   ServerOptions
	retry *backoff.Retrier
	log   *slog.Logger

	state     State
	contextID string
	cb        Callback

	gen        uint64
	cancel     context.CancelFunc
	retryTimer sched.Handle
}

// NewServer constructs a Server. It panics without a Transport.
func NewServer(opt ServerOptions) *Server {
	if opt.Transport == nil {
		panic("positioning: Transport must be set")
	}
	if opt.Scheduler == nil {
		opt.Scheduler = sched.NewLoop()
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}
	return &Server{
		opt: opt,
		retry: backoff.New(backoff.Policy{
			Base:      opt.RetryBase,
			MaxDelay:  opt.MaxRetryDelay,
			StopAtMax: true,
		}),
		log: opt.Logger.With("component", "positioning"),
	}
}

// Load cancels the current load (request and retry timer) and starts a new
// one with a fresh retry budget.
func (s *Server) Load(contextID string, cb Callback) {
	if s.state == Closed {
		return
	}
	s.stop()
	s.retry.Reset()
	s.contextID = contextID
	s.cb = cb
	s.request()
}

// Close cancels all work; the Server ignores later loads.
func (s *Server) Close() {
	if s.state == Closed {
		return
	}
	s.stop()
	s.cb = nil
	s.state = Closed
}

// State reports where the load state machine is.
func (s *Server) State() State { return s.state }

// Attempts returns how many retries have been scheduled for the current load.
func (s *Server) Attempts() int { return s.retry.Attempts() }

func (s *Server) stop() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.retryTimer != nil {
		s.retryTimer.Cancel()
		s.retryTimer = nil
	}
}

func (s *Server) request() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = Loading
	gen := s.gen

	var once sync.Once
	s.log.Debug("positioning: requesting rules", "context_id", s.contextID, "attempt", s.retry.Attempts())
	s.opt.Transport.FetchRules(ctx, s.contextID, func(payload []byte, err error) {
		once.Do(func() {
			s.opt.Scheduler.Post(func() { s.complete(gen, payload, err) })
		})
	})
}

func (s *Server) complete(gen uint64, payload []byte, err error) {
	if gen != s.gen || s.state == Closed {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}

	var r rules.Rules
	if err == nil {
		r, err = rules.Parse(payload)
	}
	if err != nil {
		s.handleFailure(err)
		return
	}

	s.retry.Reset()
	s.state = Loaded
	s.opt.Metrics.Load(OutcomeLoaded)
	s.log.Info("positioning: rules loaded", "context_id", s.contextID, "rules", r.String())
	cb := s.cb
	s.cb = nil
	if cb != nil {
		cb(r, nil)
	}
}

func (s *Server) handleFailure(err error) {
	warming := errors.Is(err, rules.ErrWarmingUp)
	delay, ok := s.retry.Next()
	if !ok {
		s.state = Failed
		s.opt.Metrics.Load(OutcomeFailed)
		terr := failure.Terminal(err)
		s.log.Warn("positioning: giving up", "context_id", s.contextID, "reason", terr.Reason.String(), "err", err)
		cb := s.cb
		s.cb = nil
		if cb != nil {
			cb(rules.Rules{}, terr)
		}
		return
	}

	if warming {
		s.opt.Metrics.Load(OutcomeWarmingUp)
		s.log.Debug("positioning: server warming up", "context_id", s.contextID, "retry_in", delay)
	} else {
		s.opt.Metrics.Load(OutcomeRetry)
		s.log.Error("positioning: load failed", "context_id", s.contextID, "retry_in", delay, "err", err)
	}

	s.state = RetryScheduled
	var h sched.Handle
	h = s.opt.Scheduler.AfterFunc(delay, func() {
		if s.retryTimer != h || s.state == Closed {
			return
		}
		s.retryTimer = nil
		s.request()
	})
	s.retryTimer = h
}
