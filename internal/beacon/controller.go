// Package beacon implements the advertisement lifecycle controller: the
// loop that keeps an encrypted beacon broadcasting, refreshes its payload
// on a fixed period, and tears the radio down on any failure.
package beacon

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// MaxPayloadLen bounds the advertisement payload buffer. It matches the
// link-layer advertising data limit.
const MaxPayloadLen = 31

// PayloadSource produces a fresh encrypted payload into buf and returns the
// number of bytes written. It must be safe to call repeatedly from a single
// goroutine and must not block indefinitely.
type PayloadSource interface {
	Generate(buf []byte) (int, error)
}

// Session is the radio-stack boundary the controller drives. Start is only
// valid while no broadcast is active and Stop only while one is; violating
// that is a programming error the implementation must surface. Disable
// tears the whole radio stack down and is called exactly once when the
// controller exits.
type Session interface {
	Start(payload []byte) error
	Stop() error
	Disable() error
}

// State of the controller.
type State int32

const (
	// Idle: before the first payload has been obtained.
	Idle State = iota
	// Broadcasting: a session is active, waiting for the next refresh.
	Broadcasting
	// Faulted: terminal, reached after an unrecoverable operation failure.
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Broadcasting:
		return "broadcasting"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Controller owns the advertisement lifecycle. It is single-threaded with
// respect to session state: one goroutine runs Run, and the only thing
// crossing in from outside is the refresh signal.
//
// Per observed signal it performs exactly one stop + regenerate + start
// cycle. Any operation failure is fatal: the controller transitions to
// Faulted, the radio is disabled, and Run returns a *CycleError. There is
// no retry or backoff.
type Controller struct {
	session Session
	source  PayloadSource
	refresh *Signal
	logger  *logrus.Logger

	// buf is the single reusable payload buffer. It is handed to the
	// session by reference and must not be rewritten until the prior
	// session's Stop has completed.
	buf [MaxPayloadLen]byte

	state  atomic.Int32
	cycles atomic.Uint64
}

// NewController wires a controller to its collaborators. The refresh signal
// is consumed exclusively by Run; nothing else may receive from it.
func NewController(session Session, source PayloadSource, refresh *Signal, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	c := &Controller{
		session: session,
		source:  source,
		refresh: refresh,
		logger:  logger,
	}
	c.state.Store(int32(Idle))
	return c
}

// State reports the current controller state. Safe from any goroutine.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Cycles reports how many broadcast cycles have been started.
func (c *Controller) Cycles() uint64 {
	return c.cycles.Load()
}

// Run executes the lifecycle loop until ctx is canceled or an operation
// fails. It returns nil on graceful shutdown and a *CycleError on fault.
// The radio stack is disabled on every exit path, exactly once.
func (c *Controller) Run(ctx context.Context) error {
	defer func() {
		// Best-effort teardown, attempted regardless of which operation
		// (if any) failed. The triggering error already decided the
		// return value; a disable failure is only logged.
		if err := c.session.Disable(); err != nil {
			c.logger.WithError(err).Warn("Radio disable failed during teardown")
		} else {
			c.logger.Debug("Radio stack disabled")
		}
	}()

	for {
		cycle := c.cycles.Load() + 1

		n, err := c.source.Generate(c.buf[:])
		if err != nil {
			return c.fault(OpGenerate, cycle, err)
		}

		if err := c.session.Start(c.buf[:n]); err != nil {
			return c.fault(OpStart, cycle, err)
		}
		c.cycles.Store(cycle)
		c.state.Store(int32(Broadcasting))

		c.logger.WithFields(logrus.Fields{
			"cycle": cycle,
			"bytes": n,
		}).Info("Broadcasting advertisement")

		// The only suspension point in the loop: wait for the next
		// refresh signal, or for shutdown.
		select {
		case <-ctx.Done():
			if err := c.session.Stop(); err != nil {
				return c.fault(OpStop, cycle, err)
			}
			c.state.Store(int32(Idle))
			c.logger.WithField("cycles", cycle).Info("Controller shut down")
			return nil

		case <-c.refresh.C():
			atomic.AddInt64(&c.refresh.metrics.Observed, 1)
		}

		// The buffer stays untouched until this Stop returns: the radio
		// may still be reading it for the in-flight broadcast.
		if err := c.session.Stop(); err != nil {
			return c.fault(OpStop, cycle, err)
		}

		c.logger.WithField("cycle", cycle).Debug("Refreshing advertisement payload")
	}
}

func (c *Controller) fault(op CycleOp, cycle uint64, err error) error {
	c.state.Store(int32(Faulted))
	cerr := &CycleError{Op: op, Cycle: cycle, Err: err}
	c.logger.WithError(err).WithFields(logrus.Fields{
		"op":    string(op),
		"cycle": cycle,
	}).Error("Controller faulted")
	return cerr
}
