// Package heartbeat blinks a proof-of-life LED. It is fully independent of
// the broadcast loop: an unavailable LED degrades to a no-op at startup and
// never faults the beacon.
package heartbeat

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/srg/beacond/internal/groutine"
)

// LED is a binary indicator.
type LED interface {
	Set(on bool) error
}

type noopLED struct{}

func (noopLED) Set(bool) error { return nil }

// NoopLED returns an LED that does nothing. Used when the platform has no
// usable indicator.
func NoopLED() LED {
	return noopLED{}
}

// SysfsLED drives a Linux LED class device through its brightness file.
type SysfsLED struct {
	path string
}

// NewSysfsLED binds the named /sys/class/leds entry.
func NewSysfsLED(name string) (*SysfsLED, error) {
	path := filepath.Join("/sys/class/leds", name, "brightness")
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("led %q unavailable: %w", name, err)
	}
	_ = f.Close()
	return &SysfsLED{path: path}, nil
}

// Set switches the LED on or off.
func (l *SysfsLED) Set(on bool) error {
	v := []byte("0")
	if on {
		v = []byte("1")
	}
	return os.WriteFile(l.path, v, 0)
}

// Blinker toggles an LED on a fixed period: on for OnTime, off for the rest
// of the period. It shares no state with the broadcast loop.
type Blinker struct {
	led    LED
	period time.Duration
	onTime time.Duration
	logger *logrus.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
}

// NewBlinker creates a blinker. OnTime must be shorter than the period.
func NewBlinker(led LED, period, onTime time.Duration, logger *logrus.Logger) (*Blinker, error) {
	if period <= 0 {
		return nil, fmt.Errorf("blink period must be positive, got %s", period)
	}
	if onTime <= 0 || onTime >= period {
		return nil, fmt.Errorf("blink on-time %s must be within (0, %s)", onTime, period)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Blinker{
		led:    led,
		period: period,
		onTime: onTime,
		logger: logger,
	}, nil
}

// Start launches the blink goroutine. If the LED rejects the initial probe
// the blinker logs a warning and stays off; this is not an error.
func (b *Blinker) Start(ctx context.Context) {
	if !b.started.CompareAndSwap(false, true) {
		panic("Blinker.Start called more than once")
	}

	b.done = make(chan struct{})

	if err := b.led.Set(false); err != nil {
		b.logger.WithError(err).Warn("Heartbeat LED unavailable, continuing without it")
		close(b.done)
		return
	}

	ctx, b.cancel = context.WithCancel(ctx)

	groutine.Go(ctx, "heartbeat-blinker", func(ctx context.Context) {
		defer close(b.done)
		defer func() { _ = b.led.Set(false) }()

		on := false
		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			on = !on
			if err := b.led.Set(on); err != nil {
				// Losing the heartbeat mid-run is not worth more than a
				// single warning per toggle attempt.
				b.logger.WithError(err).Warn("Heartbeat LED write failed")
			}

			next := b.onTime
			if !on {
				next = b.period - b.onTime
			}
			timer.Reset(next)
		}
	})
}

// Stop terminates the blink goroutine and waits for the LED to settle off.
// A no-op if the blinker never started or degraded at startup.
func (b *Blinker) Stop() {
	if b.cancel == nil {
		return
	}
	b.cancel()
	<-b.done
}
