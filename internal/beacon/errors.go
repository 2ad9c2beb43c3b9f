package beacon

import (
	"errors"
	"fmt"
)

// CycleOp identifies the controller operation that failed.
type CycleOp string

const (
	OpGenerate CycleOp = "generate"
	OpStart    CycleOp = "start"
	OpStop     CycleOp = "stop"
)

// CycleError wraps a failure of one refresh-cycle operation together with
// the cycle it happened in. Every CycleError is fatal to the controller.
type CycleError struct {
	Op    CycleOp
	Cycle uint64
	Err   error
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("cycle %d: %s failed: %v", e.Cycle, e.Op, e.Err)
}

// Unwrap returns the underlying operation error.
func (e *CycleError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to compare CycleError values by Op.
func (e *CycleError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*CycleError)
	if !ok {
		return false
	}
	return e.Op == t.Op
}

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// Process exit codes, one per failing operation so the exit status alone
// identifies what killed the beacon.
const (
	ExitOK       = 0
	ExitSetup    = 1 // radio bring-up, key installation, configuration
	ExitGenerate = 2
	ExitStart    = 3
	ExitStop     = 4
)

// ExitCode maps a controller error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cerr *CycleError
	if errors.As(err, &cerr) {
		switch cerr.Op {
		case OpGenerate:
			return ExitGenerate
		case OpStart:
			return ExitStart
		case OpStop:
			return ExitStop
		}
	}
	return ExitSetup
}
