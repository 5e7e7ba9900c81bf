package goble

import (
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/device"
)

// BLESession is an open go-ble client with a discovered profile.
type BLESession struct {
	address string
	client  ble.Client
	profile *ble.Profile
	logger  *logrus.Logger

	mu        sync.Mutex
	connected bool
}

func newSession(address string, client ble.Client, profile *ble.Profile, logger *logrus.Logger) *BLESession {
	return &BLESession{
		address:   address,
		client:    client,
		profile:   profile,
		logger:    logger,
		connected: true,
	}
}

func (s *BLESession) Address() string {
	return s.address
}

// characteristic resolves a characteristic UUID against the discovered profile.
// Returns a NotFoundError if the peripheral does not expose it.
func (s *BLESession) characteristic(charUUID string) (*ble.Characteristic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil, device.ErrNotConnected
	}

	normalized, err := device.ValidateUUID(charUUID)
	if err != nil {
		return nil, err
	}
	u, err := ble.Parse(normalized[0])
	if err != nil {
		return nil, fmt.Errorf("invalid characteristic UUID %q: %w", charUUID, err)
	}
	c := s.profile.FindCharacteristic(ble.NewCharacteristic(u))
	if c == nil {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: normalized}
	}
	return c, nil
}

// Subscribe enables notifications on the characteristic. The payload is
// copied before handler runs since the stack reuses its receive buffer.
func (s *BLESession) Subscribe(charUUID string, handler func(data []byte)) error {
	if handler == nil {
		return fmt.Errorf("no handler specified for subscription to %s", charUUID)
	}

	c, err := s.characteristic(charUUID)
	if err != nil {
		return err
	}

	err = s.client.Subscribe(c, false, func(req []byte) {
		handler(append([]byte(nil), req...))
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"address":  s.address,
			"charUUID": charUUID,
			"error":    err,
		}).Error("Failed to subscribe to characteristic notifications")
		return fmt.Errorf("subscribe %s: %w", charUUID, NormalizeError(err))
	}

	s.logger.WithFields(logrus.Fields{
		"address":  s.address,
		"charUUID": charUUID,
	}).Debug("Subscribed to characteristic notifications")
	return nil
}

func (s *BLESession) Unsubscribe(charUUID string) error {
	c, err := s.characteristic(charUUID)
	if err != nil {
		return err
	}
	if err := s.client.Unsubscribe(c, false); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", charUUID, NormalizeError(err))
	}

	s.logger.WithFields(logrus.Fields{
		"address":  s.address,
		"charUUID": charUUID,
	}).Debug("Unsubscribed from characteristic notifications")
	return nil
}

func (s *BLESession) WriteNoResponse(charUUID string, data []byte) error {
	c, err := s.characteristic(charUUID)
	if err != nil {
		return err
	}
	if err := s.client.WriteCharacteristic(c, data, true); err != nil {
		return fmt.Errorf("write %s: %w", charUUID, NormalizeError(err))
	}

	s.logger.WithFields(logrus.Fields{
		"address":  s.address,
		"charUUID": charUUID,
		"bytes":    len(data),
	}).Debug("Wrote characteristic without response")
	return nil
}

// Disconnected is closed once the peripheral or the local stack ends the link.
func (s *BLESession) Disconnected() <-chan struct{} {
	return s.client.Disconnected()
}

// Disconnect cancels the connection. Calling it on a closed session is a no-op.
func (s *BLESession) Disconnect() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		s.logger.Debug("Disconnect called but already disconnected")
		return nil
	}
	s.connected = false
	client := s.client
	s.mu.Unlock()

	s.logger.WithField("address", s.address).Info("Disconnecting BLE device...")
	if err := client.CancelConnection(); err != nil {
		s.logger.WithField("error", err).Warn("BLE device disconnected with errors")
		return NormalizeError(err)
	}
	s.logger.Info("BLE device disconnected successfully")
	return nil
}
