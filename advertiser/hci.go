package advertiser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"
	"github.com/sirupsen/logrus"

	"github.com/srg/beacond/internal/groutine"
)

// startGracePeriod is how long Advertise waits for the broadcast goroutine
// to fail before declaring the broadcast running. HCI errors (resource
// exhaustion, stack state) surface within the first command exchange.
const startGracePeriod = 100 * time.Millisecond

// Advertising PDU type and own-address constants from the HCI spec.
const (
	advTypeNonConnInd  = 0x03 // non-connectable undirected advertising
	ownAddrTypePublic  = 0x00
	ownAddrTypeRandom  = 0x01
	advChannelMapAll   = 0x07 // channels 37, 38, 39
	advFilterPolicyAny = 0x00
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
var DeviceFactory = func() (ble.Device, error) {
	return linux.NewDevice()
}

// HCIRadio implements Radio on top of a go-ble HCI device. The ctx-scoped
// ble advertising call runs in a background goroutine; Advertise and Stop
// translate it into the synchronous start/stop contract.
type HCIRadio struct {
	logger *logrus.Logger

	mu     sync.Mutex
	dev    ble.Device
	cancel context.CancelFunc
	done   chan error
}

// NewHCIRadio brings the HCI device up and applies the advertising
// parameters. A failure here is a setup error: the caller must not enter
// the broadcast loop.
func NewHCIRadio(params Params, logger *logrus.Logger) (*HCIRadio, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to bring up HCI device: %w", err)
	}

	if err := applyAdvParams(dev, params); err != nil {
		_ = dev.Stop()
		return nil, fmt.Errorf("failed to set advertising parameters: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"interval_min_ticks": params.IntervalMinTicks(),
		"interval_max_ticks": params.IntervalMaxTicks(),
		"random_address":     params.RandomAddress,
	}).Debug("HCI radio ready")

	return &HCIRadio{logger: logger, dev: dev}, nil
}

// applyAdvParams pushes interval bounds and address mode down to the
// controller. Mock devices without an HCI transport skip this.
func applyAdvParams(dev ble.Device, p Params) error {
	ld, ok := dev.(*linux.Device)
	if !ok {
		return nil
	}

	ownAddr := uint8(ownAddrTypePublic)
	if p.RandomAddress {
		ownAddr = ownAddrTypeRandom
	}

	return ld.HCI.Send(&cmd.LESetAdvertisingParameters{
		AdvertisingIntervalMin:  p.IntervalMinTicks(),
		AdvertisingIntervalMax:  p.IntervalMaxTicks(),
		AdvertisingType:         advTypeNonConnInd,
		OwnAddressType:          ownAddr,
		AdvertisingChannelMap:   advChannelMapAll,
		AdvertisingFilterPolicy: advFilterPolicyAny,
	}, nil)
}

// Advertise starts broadcasting payload as 16-bit service data.
func (r *HCIRadio) Advertise(payload []byte, p Params) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return ErrAlreadyAdvertising
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	groutine.Go(ctx, "hci-advertise", func(ctx context.Context) {
		done <- r.dev.AdvertiseServiceData16(ctx, p.ServiceUUID, payload)
	})

	select {
	case err := <-done:
		cancel()
		if err == nil {
			err = errors.New("advertising ended unexpectedly")
		}
		return err
	case <-time.After(startGracePeriod):
	}

	r.cancel = cancel
	r.done = done
	return nil
}

// Stop halts the running broadcast and waits for the advertising goroutine
// to exit.
func (r *HCIRadio) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.haltLocked()
}

func (r *HCIRadio) haltLocked() error {
	if r.cancel == nil {
		return ErrNotAdvertising
	}

	r.cancel()
	err := <-r.done
	r.cancel = nil
	r.done = nil

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Disable halts any in-flight broadcast and powers the HCI device down.
func (r *HCIRadio) Disable() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		if err := r.haltLocked(); err != nil {
			r.logger.WithError(err).Warn("Broadcast halt failed during radio disable")
		}
	}
	return r.dev.Stop()
}
