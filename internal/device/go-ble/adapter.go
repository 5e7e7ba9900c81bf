package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/device"
)

// DefaultConnectTimeout bounds a single dial attempt when the caller gives none.
const DefaultConnectTimeout = 30 * time.Second

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func() (ble.Device, error) {
	return newPlatformDevice()
}

// Adapter wraps one ble.Device and implements device.Adapter. The HCI device
// is opened once and shared between scanning and dialing.
type Adapter struct {
	dev    ble.Device
	logger *logrus.Logger

	closeOnce sync.Once
}

// NewAdapter opens the platform BLE device through DeviceFactory.
func NewAdapter(logger *logrus.Logger) (*Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithError(err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}
	return &Adapter{dev: dev, logger: logger}, nil
}

// Scan wraps the raw ble.Device.Scan to convert ble.Advertisement to the device.Advertisement
func (a *Adapter) Scan(ctx context.Context, allowDup bool, handler func(device.Advertisement)) error {
	bleHandler := func(adv ble.Advertisement) {
		handler(NewBLEAdvertisement(adv))
	}
	if err := a.dev.Scan(ctx, allowDup, bleHandler); err != nil {
		return NormalizeError(err)
	}
	return nil
}

// Connect dials the peripheral and discovers its GATT profile.
func (a *Adapter) Connect(ctx context.Context, address string, opts *device.ConnectOptions) (device.Session, error) {
	if strings.TrimSpace(address) == "" {
		a.logger.Error("Connection attempt with empty address")
		return nil, fmt.Errorf("device address is empty")
	}

	timeout := DefaultConnectTimeout
	if opts != nil && opts.ConnectTimeout > 0 {
		timeout = opts.ConnectTimeout
	}

	a.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := a.dev.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return nil, a.dialError(ctx, address, err)
	}

	a.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		a.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			a.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	a.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(profile.Services),
	}).Info("BLE device connected successfully")

	return newSession(address, client, profile, a.logger), nil
}

// dialError separates the caller's deadline (a timeout, never retried) from
// the per-dial timeout and other stack failures (transient).
func (a *Adapter) dialError(ctx context.Context, address string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: connecting to %q: %w", device.ErrTimeout, address, ctxErr)
		}
		return fmt.Errorf("connecting to %q: %w", address, ctxErr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to connect to device with address %q: %w: dial timed out", address, device.ErrLinkFailure)
	}
	return fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
}

// Close stops the underlying HCI device. Safe to call more than once.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		err = a.dev.Stop()
	})
	return err
}
