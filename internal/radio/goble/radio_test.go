package goble_test

import (
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/lhctl/internal/lighthouse"
	"github.com/srg/lhctl/internal/radio/goble"
	"github.com/srg/lhctl/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	stationHW   = "c8:2b:96:00:00:01"
	stationName = "LHB-0A1B2C3D"
)

var (
	controlService = lighthouse.NormalizeUUID(lighthouse.ControlServiceUUID)
	powerChar      = lighthouse.NormalizeUUID(lighthouse.PowerCharacteristicUUID)
	channelChar    = lighthouse.NormalizeUUID(lighthouse.ChannelCharacteristicUUID)
	identifyChar   = lighthouse.NormalizeUUID(lighthouse.IdentifyCharacteristicUUID)
)

type RadioTestSuite struct {
	testutils.MockBLEPeripheralSuite

	events *testutils.EventRecorder
	radio  *goble.Radio
}

func (s *RadioTestSuite) SetupTest() {
	s.MockBLEPeripheralSuite.SetupTest()

	s.events = &testutils.EventRecorder{}
	s.radio = goble.New(s.events, goble.Options{
		Logger:           s.Logger,
		ConnectTimeout:   time.Second,
		OperationTimeout: time.Second,
	})
}

func (s *RadioTestSuite) TearDownTest() {
	s.Require().NoError(s.radio.Close())
	s.MockBLEPeripheralSuite.TearDownTest()
}

func (s *RadioTestSuite) waitFor(name string) testutils.RecordedEvent {
	s.Require().Eventually(func() bool {
		return s.events.Has(name)
	}, 2*time.Second, 5*time.Millisecond, "event %q MUST be reported", name)

	all := s.events.Named(name)
	return all[len(all)-1]
}

func (s *RadioTestSuite) connect() {
	s.radio.Connect(stationHW)
	s.waitFor("connected")
}

func (s *RadioTestSuite) discover() {
	s.connect()
	s.radio.DiscoverServices(stationHW)
	s.waitFor("services-discovered")
	s.radio.DiscoverCharacteristics(stationHW, controlService)
	s.waitFor("characteristics-discovered")
}

func (s *RadioTestSuite) TestOpen() {
	s.NoError(s.radio.Open())
}

func (s *RadioTestSuite) TestConnect_DiscoversControlService() {
	// GOAL: Verify a connect followed by discovery reports normalized service and characteristic UUIDs
	//
	// TEST SCENARIO: Connect → discover services → discover characteristics of the control service → UUIDs reported

	s.connect()

	s.radio.DiscoverServices(stationHW)
	services := s.waitFor("services-discovered")
	s.Equal(stationHW, services.HW)
	s.Equal([]string{controlService}, services.Names, "services MUST be reported in normalized form")

	s.radio.DiscoverCharacteristics(stationHW, lighthouse.ControlServiceUUID)
	chars := s.waitFor("characteristics-discovered")
	s.Equal(controlService, chars.Arg)
	s.ElementsMatch([]string{powerChar, channelChar, identifyChar}, chars.Names)

	s.Peripheral.Client.AssertCalled(s.T(), "DiscoverDescriptors", mock.Anything, s.Peripheral.Characteristic(powerChar))
}

func (s *RadioTestSuite) TestDiscoverCharacteristics_UnknownService() {
	s.connect()

	s.radio.DiscoverCharacteristics(stationHW, "180f")
	failed := s.waitFor("discovery-failed")
	s.Equal("180f", failed.Arg)
	s.ErrorIs(failed.Err, goble.ErrUnknownService)
}

func (s *RadioTestSuite) TestRead_ReportsValue() {
	s.discover()

	s.radio.Read(stationHW, powerChar)
	value := s.waitFor("value-updated")
	s.Equal(powerChar, value.Arg)
	s.Equal([]byte{0x0B}, value.Data, "read MUST report the peripheral value")
}

func (s *RadioTestSuite) TestSubscribe_ForwardsNotifications() {
	s.discover()

	s.radio.Subscribe(stationHW, lighthouse.PowerCharacteristicUUID)
	s.Require().Eventually(func() bool {
		return s.Peripheral.Subscribed(powerChar)
	}, time.Second, 5*time.Millisecond, "power characteristic MUST be subscribed")

	s.Require().True(s.Peripheral.Notify(powerChar, []byte{0x02}))
	value := s.waitFor("value-updated")
	s.Equal(powerChar, value.Arg)
	s.Equal([]byte{0x02}, value.Data)
}

func (s *RadioTestSuite) TestWrite_Confirmed() {
	// GOAL: Verify confirmed writes are sent with response and acknowledged
	//
	// TEST SCENARIO: Discover → write 0x00 to power → WriteCharacteristic(noRsp=false) → write-acknowledged

	s.discover()

	s.radio.Write(stationHW, powerChar, []byte{0x00}, true)
	ack := s.waitFor("write-acknowledged")
	s.Equal(powerChar, ack.Arg)

	s.Peripheral.Client.AssertCalled(s.T(), "WriteCharacteristic", s.Peripheral.Characteristic(powerChar), []byte{0x00}, false)
}

func (s *RadioTestSuite) TestWrite_UnknownCharacteristic() {
	s.connect()

	s.radio.Write(stationHW, powerChar, []byte{0x01}, true)
	failed := s.waitFor("write-failed")
	s.ErrorIs(failed.Err, goble.ErrUnknownCharacteristic, "write before discovery MUST fail")
}

func (s *RadioTestSuite) TestWrite_NotConnected() {
	s.radio.Write(stationHW, powerChar, []byte{0x01}, true)

	failed := s.waitFor("write-failed")
	s.ErrorIs(failed.Err, goble.ErrNotConnected, "write without a link MUST fail")
	s.Len(s.events.Named("write-failed"), 1)
}

// gatedEvents holds failure callbacks until release is closed
type gatedEvents struct {
	*testutils.EventRecorder
	release chan struct{}
}

func (g *gatedEvents) WriteFailed(hw, characteristic string, err error) {
	<-g.release
	g.EventRecorder.WriteFailed(hw, characteristic, err)
}

func (g *gatedEvents) DiscoveryFailed(hw, service string, err error) {
	<-g.release
	g.EventRecorder.DiscoveryFailed(hw, service, err)
}

func (s *RadioTestSuite) TestNotConnected_FailuresNeverRunOnCallerGoroutine() {
	// GOAL: Verify requests for a missing link return before their failure is delivered,
	// so an event sink that is busy with the caller can never block it
	//
	// TEST SCENARIO: Sink blocks failure callbacks → Write + DiscoverServices return → release → both failures recorded

	sink := &gatedEvents{EventRecorder: &testutils.EventRecorder{}, release: make(chan struct{})}
	radio := goble.New(sink, goble.Options{Logger: s.Logger})
	defer func() { s.NoError(radio.Close()) }()

	returned := make(chan struct{})
	go func() {
		radio.Write(stationHW, powerChar, []byte{0x01}, true)
		radio.DiscoverServices(stationHW)
		radio.DiscoverCharacteristics(stationHW, controlService)
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		close(sink.release)
		s.FailNow("requests without a link MUST return before the failure is reported")
	}
	close(sink.release)

	s.Eventually(func() bool {
		return len(sink.Named("write-failed")) == 1 && len(sink.Named("discovery-failed")) == 2
	}, 2*time.Second, 5*time.Millisecond, "every failure MUST still be reported")
	for _, e := range sink.Named("discovery-failed") {
		s.ErrorIs(e.Err, goble.ErrNotConnected)
	}
}

func (s *RadioTestSuite) TestLinkLoss_ReportsDisconnect() {
	s.connect()

	s.Peripheral.Drop()
	disconnected := s.waitFor("disconnected")
	s.Equal(stationHW, disconnected.HW)
	s.ErrorIs(disconnected.Err, goble.ErrNotConnected, "unexpected drop MUST carry an error")
}

func (s *RadioTestSuite) TestDisconnect_RequestedIsClean() {
	s.connect()

	s.radio.Disconnect(stationHW)
	disconnected := s.waitFor("disconnected")
	s.NoError(disconnected.Err, "requested disconnect MUST NOT carry an error")

	// A fresh connect works once the link is gone
	s.radio.Connect(stationHW)
	s.Require().Eventually(func() bool {
		return len(s.events.Named("connected")) == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func (s *RadioTestSuite) TestConnect_IgnoresDuplicateRequest() {
	s.connect()
	s.radio.Connect(stationHW)

	time.Sleep(20 * time.Millisecond)
	s.Len(s.events.Named("connected"), 1)
	s.Empty(s.events.Named("connect-failed"))
}

func (s *RadioTestSuite) TestScan_ReportsNamedAdvertisements() {
	// GOAL: Verify advertisements with a local name reach the event sink
	//
	// TEST SCENARIO: Scan sees one named and one anonymous advertisement → only the named one is reported

	peripheral := testutils.NewLighthouseBuilder(s.T(), 0x0B, 0x05).WithAdvertisements(
		testutils.CreateMockAdvertisement(stationName, stationHW, -48),
		testutils.CreateMockAdvertisement("", "c8:2b:96:00:00:99", -70),
	).Build()
	s.installDevice(peripheral)

	s.radio.Scan()
	discovered := s.waitFor("discovered")
	s.Equal(stationHW, discovered.HW)
	s.Equal(stationName, discovered.Arg)
	s.Equal(-48, discovered.RSSI)

	s.radio.StopScan()
	s.Len(s.events.Named("discovered"), 1)
}

func (s *RadioTestSuite) TestConnect_DialFailure() {
	peripheral := testutils.NewLighthouseBuilder(s.T(), 0x0B, 0x05).
		WithDialError(errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")).
		Build()
	s.installDevice(peripheral)

	s.radio.Connect(stationHW)
	failed := s.waitFor("connect-failed")
	s.ErrorIs(failed.Err, goble.ErrBluetoothOff)
}

func (s *RadioTestSuite) installDevice(p *testutils.MockPeripheral) {
	s.Require().NoError(s.radio.Close())
	device := p.Device
	goble.DeviceFactory = func() (ble.Device, error) { return device, nil }
	s.radio = goble.New(s.events, goble.Options{Logger: s.Logger, ConnectTimeout: time.Second, OperationTimeout: time.Second})
}

func TestRadioTestSuite(t *testing.T) {
	suite.Run(t, new(RadioTestSuite))
}
