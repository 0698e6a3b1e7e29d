package engine

// Radio is the outbound side of the BLE stack.
//
// Every method is a request: it must return immediately and report the
// outcome through the Events the radio was created with. Reporting from
// inside the request is allowed; the engine never blocks on its own events.
// Radio implementations are expected to serialize writes to the same device.
type Radio interface {
	Scan()
	StopScan()
	Connect(hw string)
	Disconnect(hw string)
	DiscoverServices(hw string)
	DiscoverCharacteristics(hw, service string)
	Subscribe(hw, characteristic string)
	Read(hw, characteristic string)
	Write(hw, characteristic string, data []byte, confirmed bool)
}

// Events is the inbound side of the BLE stack: completions and unsolicited
// notifications, keyed by the hardware identity the radio uses for a peripheral.
//
// Implementations must be safe to call from any goroutine.
type Events interface {
	Discovered(hw, name string, rssi int)
	Connected(hw string)
	ConnectFailed(hw string, err error)
	Disconnected(hw string, err error)
	ServicesDiscovered(hw string, services []string)
	// DiscoveryFailed reports a failed service enumeration (service == "")
	// or a failed characteristic enumeration of one service.
	DiscoveryFailed(hw, service string, err error)
	CharacteristicsDiscovered(hw, service string, characteristics []string)
	ValueUpdated(hw, characteristic string, data []byte)
	WriteAcknowledged(hw, characteristic string)
	WriteFailed(hw, characteristic string, err error)
}
