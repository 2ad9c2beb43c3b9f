// Package provision pushes a master key to a device over a serial line.
//
// The protocol matches the device's provisioning console: a single
// "KEY <base64>\n" frame, answered by "OK" or "ERR <reason>". The device is
// expected to have been reset and to be listening before Push is called.
package provision

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/beacond/internal/groutine"
	"github.com/srg/beacond/internal/payload"
)

// DefaultAckTimeout bounds the wait for the device acknowledgement.
const DefaultAckTimeout = 5 * time.Second

// ErrAckTimeout indicates the device never acknowledged the key frame.
var ErrAckTimeout = errors.New("timed out waiting for device acknowledgement")

// DeviceError carries a rejection reason reported by the device itself.
type DeviceError struct {
	Reason string
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device rejected key: %s", e.Reason)
}

// Push writes the key frame to port and waits for the acknowledgement.
// A zero timeout uses DefaultAckTimeout.
func Push(port io.ReadWriter, key []byte, timeout time.Duration, logger *logrus.Logger) error {
	if len(key) != payload.KeySize {
		return fmt.Errorf("key is %d bytes, need %d", len(key), payload.KeySize)
	}
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	frame := "KEY " + base64.StdEncoding.EncodeToString(key) + "\n"
	if _, err := io.WriteString(port, frame); err != nil {
		return fmt.Errorf("failed to write key frame: %w", err)
	}
	logger.WithField("bytes", len(frame)).Debug("Key frame sent")

	// Serial ports have no read deadline, so the read happens in a
	// goroutine and the timeout races it. On timeout the reader goroutine
	// stays blocked until the caller closes the port.
	type response struct {
		line string
		err  error
	}
	respCh := make(chan response, 1)

	groutine.Go(nil, "provision-ack-reader", func(_ context.Context) {
		r := bufio.NewReader(port)
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				respCh <- response{err: err}
				return
			}
			line = strings.TrimSpace(line)
			// Everything that is not an acknowledgement is console noise:
			// the echoed frame, boot banners, empty prompt lines.
			if line == "OK" || strings.HasPrefix(line, "ERR") {
				respCh <- response{line: line}
				return
			}
			logger.WithField("line", line).Debug("Ignoring console output")
		}
	})

	select {
	case resp := <-respCh:
		if resp.err != nil {
			return fmt.Errorf("failed to read device response: %w", resp.err)
		}
		if resp.line == "OK" {
			logger.Info("Device acknowledged key")
			return nil
		}
		reason := strings.TrimSpace(strings.TrimPrefix(resp.line, "ERR"))
		if reason == "" {
			reason = "unspecified"
		}
		return &DeviceError{Reason: reason}
	case <-time.After(timeout):
		return ErrAckTimeout
	}
}
