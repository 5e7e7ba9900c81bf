package tp357

import (
	"time"
)

// AdvertisementSource labels readings decoded from advertisements, next to
// the query mode names used for history.
const AdvertisementSource = "adv"

// Reading is one decoded sample. Address, RSSI and BatteryPercent are set
// only for readings decoded from advertisements.
type Reading struct {
	Timestamp          time.Time `json:"time"`
	Address            string    `json:"address,omitempty"`
	RSSI               *int      `json:"rssi,omitempty"`
	HumidityPercent    int       `json:"hum_rh"`
	TemperatureCelsius float64   `json:"temp"`
	BatteryPercent     *int      `json:"batt,omitempty"`
}

func intPtr(v int) *int {
	return &v
}
