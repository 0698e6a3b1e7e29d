package testutils

import (
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/lhctl/internal/radio/goble"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite is a testify suite that replaces the go-ble device
// factory with a mocked adapter connected to one peripheral.
//
// Without configuration the peripheral is a powered-on base station on
// channel 5. To customise it, configure the builder before calling the parent
// SetupTest:
//
//	func (s *RadioSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService(lighthouse.ControlServiceUUID).
//	        WithCharacteristic(lighthouse.PowerCharacteristicUUID, "read,write,notify", []byte{0x00})
//
//	    s.MockBLEPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper *TestHelper
	Logger *logrus.Logger

	OriginalDeviceFactory func() (ble.Device, error)

	PeripheralBuilder *PeripheralDeviceBuilder
	Peripheral        *MockPeripheral
}

// SetupSuite initializes the helper and remembers the real device factory
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.OriginalDeviceFactory = goble.DeviceFactory

	s.T().Cleanup(func() {
		goble.DeviceFactory = s.OriginalDeviceFactory
	})
}

// SetupTest builds the peripheral and installs its device factory
func (s *MockBLEPeripheralSuite) SetupTest() {
	s.Helper.Hook.Reset()

	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewLighthouseBuilder(s.T(), 0x0B, 0x05)
	}
	s.Peripheral = s.PeripheralBuilder.Build()

	device := s.Peripheral.Device
	goble.DeviceFactory = func() (ble.Device, error) {
		return device, nil
	}
}

// TearDownTest restores the factory and resets the configuration
func (s *MockBLEPeripheralSuite) TearDownTest() {
	goble.DeviceFactory = s.OriginalDeviceFactory
	s.PeripheralBuilder = nil
	s.Peripheral = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder(s.T())
	}
	return s.PeripheralBuilder
}
