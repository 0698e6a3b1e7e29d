package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/lhctl/internal/lighthouse"
	"github.com/srg/lhctl/internal/testutils/mocks"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds a mocked ble.Device that connects to a
// single peripheral with the configured GATT profile.
type PeripheralDeviceBuilder struct {
	t        *testing.T
	profile  DeviceProfileConfig
	ads      []*mocks.MockAdvertisement
	dialErr  error
	writeErr error
	readErr  error
}

// NewPeripheralDeviceBuilder creates a builder with an empty profile
func NewPeripheralDeviceBuilder(t *testing.T) *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{t: t}
}

// NewLighthouseBuilder creates a builder for a base station with the control
// service and its power, channel and identify characteristics.
func NewLighthouseBuilder(t *testing.T, power, channel byte) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder(t).
		WithService(lighthouse.ControlServiceUUID).
		WithCharacteristic(lighthouse.PowerCharacteristicUUID, "read,write,notify", []byte{power}).
		WithCharacteristic(lighthouse.ChannelCharacteristicUUID, "read,write,notify", []byte{channel}).
		WithCharacteristic(lighthouse.IdentifyCharacteristicUUID, "write", nil)
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := &b.profile.Services[len(b.profile.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// WithAdvertisements makes Scan report ads before blocking until cancelled
func (b *PeripheralDeviceBuilder) WithAdvertisements(ads ...*mocks.MockAdvertisement) *PeripheralDeviceBuilder {
	b.ads = append(b.ads, ads...)
	return b
}

// WithDialError makes every Dial fail
func (b *PeripheralDeviceBuilder) WithDialError(err error) *PeripheralDeviceBuilder {
	b.dialErr = err
	return b
}

// WithWriteError makes every characteristic write fail
func (b *PeripheralDeviceBuilder) WithWriteError(err error) *PeripheralDeviceBuilder {
	b.writeErr = err
	return b
}

// WithReadError makes every characteristic read fail
func (b *PeripheralDeviceBuilder) WithReadError(err error) *PeripheralDeviceBuilder {
	b.readErr = err
	return b
}

// parseCharacteristicProperties converts a property string to ble.Property flags
func parseCharacteristicProperties(props string) ble.Property {
	if props == "" {
		return ble.CharRead | ble.CharWrite | ble.CharNotify
	}

	var property ble.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "read":
			property |= ble.CharRead
		case "write":
			property |= ble.CharWrite
		case "write-without-response":
			property |= ble.CharWriteNR
		case "notify":
			property |= ble.CharNotify
		case "indicate":
			property |= ble.CharIndicate
		}
	}
	return property
}

// MockPeripheral is the result of Build: the mocked adapter plus handles to
// drive the connected peripheral from a test.
type MockPeripheral struct {
	Device *mocks.MockDevice
	Client *mocks.MockClient

	services     []*ble.Service
	disconnected chan struct{}
	dropOnce     sync.Once

	mu       sync.Mutex
	handlers map[string]ble.NotificationHandler
}

// Drop simulates the peripheral going out of range
func (p *MockPeripheral) Drop() {
	p.dropOnce.Do(func() { close(p.disconnected) })
}

// Characteristic returns the mocked characteristic for uuid, or nil
func (p *MockPeripheral) Characteristic(uuid string) *ble.Characteristic {
	for _, svc := range p.services {
		for _, c := range svc.Characteristics {
			if lighthouse.SameUUID(c.UUID.String(), uuid) {
				return c
			}
		}
	}
	return nil
}

// Notify delivers a notification to the subscriber of uuid.
// It reports false if nobody subscribed.
func (p *MockPeripheral) Notify(uuid string, data []byte) bool {
	p.mu.Lock()
	h, ok := p.handlers[lighthouse.NormalizeUUID(uuid)]
	p.mu.Unlock()
	if !ok {
		return false
	}
	h(data)
	return true
}

// Subscribed reports whether uuid has a notification handler
func (p *MockPeripheral) Subscribed(uuid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.handlers[lighthouse.NormalizeUUID(uuid)]
	return ok
}

// Build creates the mocked ble.Device with the configured profile
func (b *PeripheralDeviceBuilder) Build() *MockPeripheral {
	p := &MockPeripheral{
		Device:       &mocks.MockDevice{},
		Client:       &mocks.MockClient{},
		disconnected: make(chan struct{}),
		handlers:     make(map[string]ble.NotificationHandler),
	}
	if b.t != nil {
		b.t.Cleanup(p.Drop)
	}

	for _, svcConfig := range b.profile.Services {
		svc := &ble.Service{UUID: ble.MustParse(svcConfig.UUID)}
		for _, charConfig := range svcConfig.Characteristics {
			svc.Characteristics = append(svc.Characteristics, &ble.Characteristic{
				UUID:     ble.MustParse(charConfig.UUID),
				Property: parseCharacteristicProperties(charConfig.Properties),
				Value:    charConfig.Value,
			})
		}
		p.services = append(p.services, svc)
	}

	if b.dialErr != nil {
		p.Device.On("Dial", mock.Anything, mock.Anything).Return(nil, b.dialErr).Maybe()
	} else {
		p.Device.On("Dial", mock.Anything, mock.Anything).Return(p.Client, nil).Maybe()
	}
	p.Device.On("Stop").Return(nil).Maybe()
	p.Device.On("Scan", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			handler := args.Get(2).(ble.AdvHandler)
			for _, adv := range buildAll(b.ads) {
				handler(adv)
			}
			<-ctx.Done()
		}).
		Return(context.Canceled).Maybe()

	p.Client.On("Disconnected").Return((<-chan struct{})(p.disconnected)).Maybe()
	p.Client.On("CancelConnection").Run(func(mock.Arguments) { p.Drop() }).Return(nil).Maybe()
	p.Client.On("DiscoverServices", mock.Anything).Return(p.services, nil).Maybe()

	for _, svc := range p.services {
		p.Client.On("DiscoverCharacteristics", mock.Anything, svc).Return(svc.Characteristics, nil).Maybe()

		for _, char := range svc.Characteristics {
			uuid := lighthouse.NormalizeUUID(char.UUID.String())

			p.Client.On("DiscoverDescriptors", mock.Anything, char).Return([]*ble.Descriptor{}, nil).Maybe()
			p.Client.On("WriteCharacteristic", char, mock.Anything, mock.Anything).Return(b.writeErr).Maybe()
			p.Client.On("Subscribe", char, false, mock.Anything).
				Run(func(args mock.Arguments) {
					p.mu.Lock()
					p.handlers[uuid] = args.Get(2).(ble.NotificationHandler)
					p.mu.Unlock()
				}).
				Return(nil).Maybe()

			switch {
			case b.readErr != nil:
				p.Client.On("ReadCharacteristic", char).Return(nil, b.readErr).Maybe()
			case char.Property&ble.CharRead != 0:
				p.Client.On("ReadCharacteristic", char).Return(char.Value, nil).Maybe()
			default:
				p.Client.On("ReadCharacteristic", char).Return(nil, fmt.Errorf("characteristic does not support read")).Maybe()
			}
		}
	}

	return p
}
