// Package advertiser wraps BLE advertising behind an explicit start/stop
// session. A Session enforces the at-most-one-active invariant; the Radio
// underneath is the actual transport.
package advertiser

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// MaxServiceData is the largest service-data payload a legacy advertisement
// can carry: the 31-byte advertising data limit minus the AD structure
// overhead (length, type, 16-bit service UUID).
const MaxServiceData = 27

// Advertising interval bounds accepted by the link layer, in wall time.
// The interval is expressed on the wire in 0.625 ms ticks.
const (
	MinAdvInterval = 20 * time.Millisecond
	MaxAdvInterval = 10240 * time.Millisecond
	advTick        = 625 * time.Microsecond
)

// Params carries the fixed advertising configuration. It is set once per
// session and never mutated mid-run.
type Params struct {
	// IntervalMin and IntervalMax bound the randomized advertising
	// interval the controller-side radio picks from.
	IntervalMin time.Duration
	IntervalMax time.Duration

	// ServiceUUID tags the service-data element.
	ServiceUUID uint16

	// RandomAddress advertises from a non-resolvable private address
	// instead of the public one.
	RandomAddress bool
}

// Validate checks the interval bounds against the link-layer limits.
func (p Params) Validate() error {
	if p.IntervalMin < MinAdvInterval || p.IntervalMin > MaxAdvInterval {
		return fmt.Errorf("interval min %s out of range [%s, %s]", p.IntervalMin, MinAdvInterval, MaxAdvInterval)
	}
	if p.IntervalMax < MinAdvInterval || p.IntervalMax > MaxAdvInterval {
		return fmt.Errorf("interval max %s out of range [%s, %s]", p.IntervalMax, MinAdvInterval, MaxAdvInterval)
	}
	if p.IntervalMin > p.IntervalMax {
		return fmt.Errorf("interval min %s exceeds max %s", p.IntervalMin, p.IntervalMax)
	}
	return nil
}

// IntervalMinTicks returns the lower interval bound in 0.625 ms ticks.
func (p Params) IntervalMinTicks() uint16 {
	return uint16(p.IntervalMin / advTick)
}

// IntervalMaxTicks returns the upper interval bound in 0.625 ms ticks.
func (p Params) IntervalMaxTicks() uint16 {
	return uint16(p.IntervalMax / advTick)
}

// SessionState represents the specific kind of session state violation.
type SessionState string

const (
	AlreadyAdvertising SessionState = "already_advertising"
	NotAdvertising     SessionState = "not_advertising"
)

// SessionError reports a start/stop call made from the wrong state. These
// are programming errors, surfaced rather than silently ignored.
type SessionError struct {
	State SessionState
	Msg   string
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare SessionError values by State.
func (e *SessionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for session states.
var (
	ErrAlreadyAdvertising = &SessionError{State: AlreadyAdvertising}
	ErrNotAdvertising     = &SessionError{State: NotAdvertising}
)

// Payload errors.
var (
	ErrEmptyPayload    = errors.New("empty payload")
	ErrPayloadTooLarge = errors.New("payload exceeds advertising data limit")
)

// Radio is the underlying advertising transport.
//
// Advertise begins broadcasting payload and returns once the broadcast is
// running; the transport keeps reading payload for the whole broadcast
// duration, so the caller must not mutate it until Stop returns. Disable
// powers the stack down; after Disable the radio is unusable.
type Radio interface {
	Advertise(payload []byte, p Params) error
	Stop() error
	Disable() error
}

// Session is a state-checked advertising session over a Radio. At most one
// broadcast is active at a time; Start while active or Stop while inactive
// returns a *SessionError.
//
// Session methods are not safe for concurrent use: the lifecycle controller
// is the sole owner of session state.
type Session struct {
	radio  Radio
	params Params
	logger *logrus.Logger
	active bool
}

// NewSession validates params and binds them to the radio.
func NewSession(radio Radio, params Params, logger *logrus.Logger) (*Session, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid advertising params: %w", err)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Session{
		radio:  radio,
		params: params,
		logger: logger,
	}, nil
}

// Active reports whether a broadcast is currently running.
func (s *Session) Active() bool {
	return s.active
}

// Start begins broadcasting payload with the session's fixed params.
func (s *Session) Start(payload []byte) error {
	if s.active {
		return ErrAlreadyAdvertising
	}
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	if len(payload) > MaxServiceData {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), MaxServiceData)
	}

	if err := s.radio.Advertise(payload, s.params); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}
	s.active = true

	s.logger.WithFields(logrus.Fields{
		"bytes":        len(payload),
		"interval_min": s.params.IntervalMin,
		"interval_max": s.params.IntervalMax,
		"service_uuid": fmt.Sprintf("%04X", s.params.ServiceUUID),
	}).Debug("Advertising session started")
	return nil
}

// Stop halts the current broadcast.
func (s *Session) Stop() error {
	if !s.active {
		return ErrNotAdvertising
	}
	if err := s.radio.Stop(); err != nil {
		return fmt.Errorf("failed to stop advertising: %w", err)
	}
	s.active = false
	s.logger.Debug("Advertising session stopped")
	return nil
}

// Disable tears the radio stack down, halting any in-flight broadcast.
func (s *Session) Disable() error {
	s.active = false
	return s.radio.Disable()
}
