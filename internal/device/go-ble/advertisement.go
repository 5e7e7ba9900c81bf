package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/tp357/internal/device"
)

// BLEAdvertisement wraps ble.Advertisement to implement device.Advertisement interface
type BLEAdvertisement struct {
	adv ble.Advertisement
}

// NewBLEAdvertisement creates a new BLEAdvertisement wrapper
func NewBLEAdvertisement(adv ble.Advertisement) device.Advertisement {
	return &BLEAdvertisement{adv: adv}
}

func (a *BLEAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *BLEAdvertisement) RSSI() int         { return a.adv.RSSI() }

func (a *BLEAdvertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}

// ManufacturerData returns a copy of the manufacturer-specific AD record.
// go-ble keeps the company identifier in the first two bytes, which is the
// layout the TP357 decoder expects.
func (a *BLEAdvertisement) ManufacturerData() []byte {
	md := a.adv.ManufacturerData()
	if len(md) == 0 {
		return nil
	}
	return append([]byte(nil), md...)
}

// Unwrap returns the underlying ble.Advertisement for internal use within go-ble package
func (a *BLEAdvertisement) Unwrap() ble.Advertisement {
	return a.adv
}
