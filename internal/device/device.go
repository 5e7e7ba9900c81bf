package device

import (
	"context"
	"time"
)

// Advertisement is a single broadcast event as seen by the scanner.
type Advertisement interface {
	LocalName() string
	// ManufacturerData returns the raw manufacturer-specific record:
	// the 16-bit little-endian company identifier followed by the vendor payload.
	// go-ble keeps only one such record per advertisement.
	ManufacturerData() []byte
	RSSI() int
	Addr() string
}

// ScanningDevice represents a BLE device capable of scanning for advertisements.
// Scan blocks until ctx is done or the stack fails; handler is invoked on the
// stack's goroutine and must not block.
type ScanningDevice interface {
	Scan(ctx context.Context, allowDup bool, handler func(Advertisement)) error
}

// ConnectOptions defines BLE connection options
type ConnectOptions struct {
	ConnectTimeout time.Duration
}

// Connector opens GATT sessions to peripherals by address.
type Connector interface {
	Connect(ctx context.Context, address string, opts *ConnectOptions) (Session, error)
}

// Session is an open GATT connection to a single peripheral.
type Session interface {
	Address() string

	// Subscribe enables notifications on the characteristic. handler receives a
	// private copy of every notification payload, on the stack's goroutine.
	Subscribe(charUUID string, handler func(data []byte)) error
	Unsubscribe(charUUID string) error

	// WriteNoResponse writes data without requesting an acknowledgment.
	WriteNoResponse(charUUID string, data []byte) error

	Disconnect() error

	// Disconnected is closed once the link is gone, whichever side ended it.
	Disconnected() <-chan struct{}
}

// Adapter is the local radio: one device that scans and connects.
type Adapter interface {
	ScanningDevice
	Connector
	Close() error
}
