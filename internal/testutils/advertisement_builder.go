package testutils

import (
	"github.com/go-ble/ble"
	"github.com/srg/lhctl/internal/testutils/mocks"
)

// AdvertisementBuilder builds mocked BLE advertisements for testing.
type AdvertisementBuilder struct {
	name    string
	address string
	rssi    int
}

// NewAdvertisementBuilder creates an advertisement with a default RSSI of -60
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{rssi: -60}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// Build creates the mock. Every accessor may be called any number of times.
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}
	adv.On("LocalName").Return(b.name).Maybe()
	adv.On("RSSI").Return(b.rssi).Maybe()

	var addr ble.Addr
	if b.address != "" {
		addr = ble.NewAddr(b.address)
	}
	adv.On("Addr").Return(addr).Maybe()
	return adv
}

// buildAll converts mocks to the go-ble interface type
func buildAll(ads []*mocks.MockAdvertisement) []ble.Advertisement {
	out := make([]ble.Advertisement, 0, len(ads))
	for _, a := range ads {
		out = append(out, a)
	}
	return out
}
