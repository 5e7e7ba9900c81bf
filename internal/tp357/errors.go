package tp357

import (
	"errors"

	"github.com/srg/tp357/internal/device"
)

var (
	// ErrInvalidMode is returned for a mode outside day, week and year.
	ErrInvalidMode = errors.New("invalid query mode")

	// ErrEmptyResult means a completed exchange produced no valid reading.
	// The device may simply have nothing stored for the requested range.
	ErrEmptyResult = errors.New("device returned no readings")

	// ErrTimeout is the device timeout: the deadline expired while waiting
	// for an advertisement, a connection or the end of the stream.
	ErrTimeout = device.ErrTimeout

	// ErrStreamClosed is returned by Stream.Next once the listener is torn
	// down and every queued reading has been delivered.
	ErrStreamClosed = errors.New("advertisement stream closed")
)
