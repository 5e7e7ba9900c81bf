package testutils

import (
	"github.com/go-ble/ble"
	"github.com/srg/tp357/internal/device"
	goble "github.com/srg/tp357/internal/device/go-ble"
	"github.com/srg/tp357/internal/testutils/mocks"
	"github.com/srg/tp357/internal/tp357"
)

// AdvertisementBuilder helps construct mock advertisements.
type AdvertisementBuilder struct {
	name      string
	address   string
	rssi      int
	manufData []byte
}

// NewAdvertisementBuilder creates a new builder with default values
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		address: "00:00:00:00:00:00",
	}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.manufData = data
	return b
}

// WithTP357Reading sets the manufacturer record to the TP357 layout.
func (b *AdvertisementBuilder) WithTP357Reading(rawTemp int16, humidity, battery uint8) *AdvertisementBuilder {
	b.manufData = tp357.PackAdvertisement(0xc2, tp357.RawAdvertisement{
		RawSample: tp357.RawSample{Temperature: rawTemp, Humidity: humidity},
		Battery:   battery,
	})
	return b
}

// Build creates a MockAdvertisement that implements ble.Advertisement.
// Expectations are optional since the scanner reads fields lazily.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}

	addr := &mocks.MockAddr{}
	addr.On("String").Return(b.address).Maybe()

	adv.On("Addr").Return(addr).Maybe()
	adv.On("LocalName").Return(b.name).Maybe()
	adv.On("RSSI").Return(b.rssi).Maybe()
	adv.On("ManufacturerData").Return(b.manufData).Maybe()
	return adv
}

// BuildDevice wraps the built advertisement the way the go-ble adapter does.
func (b *AdvertisementBuilder) BuildDevice() device.Advertisement {
	return goble.NewBLEAdvertisement(b.Build())
}

// AdvertisementArrayBuilder collects advertisements for a scan.
type AdvertisementArrayBuilder struct {
	advs []ble.Advertisement
}

func NewAdvertisementArrayBuilder() *AdvertisementArrayBuilder {
	return &AdvertisementArrayBuilder{}
}

// WithAdvertisements adds pre-built advertisements.
func (ab *AdvertisementArrayBuilder) WithAdvertisements(advs ...ble.Advertisement) *AdvertisementArrayBuilder {
	ab.advs = append(ab.advs, advs...)
	return ab
}

// With adds the advertisement built by b.
func (ab *AdvertisementArrayBuilder) With(b *AdvertisementBuilder) *AdvertisementArrayBuilder {
	ab.advs = append(ab.advs, b.Build())
	return ab
}

func (ab *AdvertisementArrayBuilder) Build() []ble.Advertisement {
	return append([]ble.Advertisement(nil), ab.advs...)
}
