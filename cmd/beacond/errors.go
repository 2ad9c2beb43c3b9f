package main

import (
	"errors"
	"os"

	"github.com/srg/beacond/advertiser"
	"github.com/srg/beacond/internal/beacon"
	"github.com/srg/beacond/internal/payload"
	"github.com/srg/beacond/internal/provision"
)

// formatUserError turns internal errors into operator-facing messages,
// without losing the original text for anything unrecognized.
func formatUserError(err error) string {
	var cerr *beacon.CycleError
	var derr *provision.DeviceError

	switch {
	case errors.As(err, &cerr):
		return "beacon faulted: " + cerr.Error()
	case errors.Is(err, payload.ErrKeyNotSet):
		return "master key not installed - check the key file"
	case errors.Is(err, payload.ErrTimeUnavailable):
		return "system clock not set - the payload binds to the current time"
	case errors.Is(err, advertiser.ErrAlreadyAdvertising), errors.Is(err, advertiser.ErrNotAdvertising):
		return "advertising session state error: " + err.Error()
	case errors.Is(err, provision.ErrAckTimeout):
		return "device did not respond - is it reset and listening on the port?"
	case errors.As(err, &derr):
		return derr.Error()
	case errors.Is(err, os.ErrNotExist):
		return err.Error() + " (file not found)"
	default:
		return err.Error()
	}
}
