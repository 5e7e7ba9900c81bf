// Package devicefactory hands out the BLE adapter used by the command-line
// tool. It is a seam so that tests can substitute a simulated radio.
package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/tp357/internal/device"
	goble "github.com/srg/tp357/internal/device/go-ble"
)

// AdapterFactory opens the local BLE adapter.
// This is a variable so that it can be overridden in tests.
var AdapterFactory = func(logger *logrus.Logger) (device.Adapter, error) {
	return goble.NewAdapter(logger)
}

// NewAdapter opens the adapter through AdapterFactory.
func NewAdapter(logger *logrus.Logger) (device.Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	return AdapterFactory(logger)
}
