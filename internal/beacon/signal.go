package beacon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/beacond/internal/groutine"
)

// Signal is a single-slot saturating event: at most one raise is ever
// pending, and further raises coalesce into it instead of queueing.
//
// The producer side (Raise) never blocks, so it is safe to call from a
// timer goroutine; the consumer side blocks on C() or Wait. Excess raises
// are counted, not delivered.
type Signal struct {
	ch      chan struct{}
	metrics SignalMetrics
}

// SignalMetrics tracks raise/coalesce/observe counts. All fields are
// updated atomically.
type SignalMetrics struct {
	Raised    int64 // raises that became the pending event
	Coalesced int64 // raises dropped into an already-pending event
	Observed  int64 // events consumed via Wait
}

// NewSignal creates an empty signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Raise marks the signal pending. Returns false if an event was already
// pending and this raise coalesced into it. Never blocks.
func (s *Signal) Raise() bool {
	select {
	case s.ch <- struct{}{}:
		atomic.AddInt64(&s.metrics.Raised, 1)
		return true
	default:
		atomic.AddInt64(&s.metrics.Coalesced, 1)
		return false
	}
}

// C returns the channel the pending event is delivered on. Receiving from
// it consumes the event.
func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// Wait blocks until the signal is raised or ctx is done.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ch:
		atomic.AddInt64(&s.metrics.Observed, 1)
		return nil
	}
}

// Metrics returns a snapshot of the signal counters.
func (s *Signal) Metrics() SignalMetrics {
	return SignalMetrics{
		Raised:    atomic.LoadInt64(&s.metrics.Raised),
		Coalesced: atomic.LoadInt64(&s.metrics.Coalesced),
		Observed:  atomic.LoadInt64(&s.metrics.Observed),
	}
}

// MinRefreshPeriod is the shortest allowed payload refresh period.
const MinRefreshPeriod = time.Second

// RefreshTimer raises a Signal every fixed period from its own goroutine.
// It performs no other work; the controller decides what a refresh means.
type RefreshTimer struct {
	period time.Duration
	sig    *Signal
	logger *logrus.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

// NewRefreshTimer creates a timer that raises sig every period. The period
// must be positive; the configuration layer enforces the MinRefreshPeriod
// floor for production use.
func NewRefreshTimer(period time.Duration, sig *Signal, logger *logrus.Logger) (*RefreshTimer, error) {
	if period <= 0 {
		return nil, &ConfigError{
			Field: "refresh_period",
			Msg:   "must be positive",
		}
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RefreshTimer{
		period: period,
		sig:    sig,
		logger: logger,
	}, nil
}

// Start launches the timer goroutine. It may be called at most once.
func (t *RefreshTimer) Start(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		panic("RefreshTimer.Start called more than once")
	}

	ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})

	groutine.Go(ctx, "refresh-timer", func(ctx context.Context) {
		defer close(t.done)

		ticker := time.NewTicker(t.period)
		defer ticker.Stop()

		t.logger.WithField("period", t.period).Debug("Refresh timer started")

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !t.sig.Raise() {
					// The controller has not consumed the previous event
					// yet; this firing folds into it.
					t.logger.Debug("Refresh signal coalesced")
				}
			}
		}
	})
}

// Stop terminates the timer goroutine and waits for it to exit.
// Safe to call multiple times; a no-op if the timer was never started.
func (t *RefreshTimer) Stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}
