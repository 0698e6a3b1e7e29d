package engine

import (
	"slices"

	"github.com/sirupsen/logrus"
	"github.com/srg/lhctl/internal/lighthouse"
	"github.com/srg/lhctl/internal/registry"
)

// Compile-time check that Engine accepts radio events
var _ Events = (*Engine)(nil)

// Discovered handles an advertisement from the radio
func (e *Engine) Discovered(hw, name string, rssi int) {
	e.post(func() { e.handleDiscovered(hw, name, rssi) })
}

// Connected handles a successful connect
func (e *Engine) Connected(hw string) {
	e.post(func() { e.handleConnected(hw) })
}

// ConnectFailed handles a failed connect attempt
func (e *Engine) ConnectFailed(hw string, err error) {
	e.post(func() { e.handleConnectFailed(hw, err) })
}

// Disconnected handles a dropped or closed connection
func (e *Engine) Disconnected(hw string, err error) {
	e.post(func() { e.handleDisconnected(hw, err) })
}

// ServicesDiscovered handles the result of service enumeration
func (e *Engine) ServicesDiscovered(hw string, services []string) {
	services = append([]string(nil), services...)
	e.post(func() { e.handleServicesDiscovered(hw, services) })
}

// DiscoveryFailed handles a failed service or characteristic enumeration
func (e *Engine) DiscoveryFailed(hw, service string, err error) {
	e.post(func() { e.handleDiscoveryFailed(hw, service, err) })
}

// CharacteristicsDiscovered handles the characteristics found in one service
func (e *Engine) CharacteristicsDiscovered(hw, service string, characteristics []string) {
	characteristics = append([]string(nil), characteristics...)
	e.post(func() { e.handleCharacteristicsDiscovered(hw, service, characteristics) })
}

// ValueUpdated handles a read result or a notification
func (e *Engine) ValueUpdated(hw, characteristic string, data []byte) {
	data = append([]byte(nil), data...)
	e.post(func() { e.handleValueUpdated(hw, characteristic, data) })
}

// WriteAcknowledged handles a confirmed write
func (e *Engine) WriteAcknowledged(hw, characteristic string) {
	e.post(func() { e.handleWriteResult(hw, characteristic, nil) })
}

// WriteFailed handles a rejected or lost write
func (e *Engine) WriteFailed(hw, characteristic string, err error) {
	e.post(func() { e.handleWriteResult(hw, characteristic, err) })
}

// lookup returns the station for hw, or logs and reports false for events
// that arrive after the station was evicted.
func (e *Engine) lookup(hw, event string) (registry.BaseStation, bool) {
	station, ok := e.registry.Get(hw)
	if !ok {
		e.logger.WithFields(logrus.Fields{
			"hw":    hw,
			"event": event,
		}).Debug("Discarding event for unknown device")
	}
	return station, ok
}

func (e *Engine) handleDiscovered(hw, name string, rssi int) {
	station, result := e.registry.UpsertDiscovered(hw, name, rssi)

	switch result {
	case registry.Rejected:
		e.logger.WithFields(logrus.Fields{
			"hw":   hw,
			"name": name,
		}).Debug("Ignoring advertisement with non-matching name")

	case registry.Created:
		e.notify(DeviceAdded, station)
		if e.active {
			e.connect(station, registry.LinkConnecting)
		}

	case registry.Existing:
		// Reconnects are owned by linkLost; advertisements only refresh the signal
		e.registry.UpdateSignalStrength(hw, rssi)
		e.notifyUpdated(hw)
	}
}

func (e *Engine) connect(station registry.BaseStation, state registry.LinkState) {
	e.registry.SetLink(station.HardwareIdentity, state)
	e.logger.WithFields(fieldsFor(station)).WithField("link", state).Info("Connecting to base station")
	e.radio.Connect(station.HardwareIdentity)
}

func (e *Engine) handleConnected(hw string) {
	station, ok := e.lookup(hw, "connected")
	if !ok {
		// A connect that completes after eviction would otherwise leak a link
		e.radio.Disconnect(hw)
		return
	}

	s := e.session(hw)
	e.cancelEvictionTimer(hw)
	s.retried = false
	s.pendingDiscoveries = 0

	e.registry.MarkConnected(hw)
	e.registry.SetLink(hw, registry.LinkServicesDiscovering)
	e.logger.WithFields(fieldsFor(station)).Info("Base station connected")
	e.notifyUpdated(hw)

	if !e.active {
		e.logger.WithFields(fieldsFor(station)).Info("Connected while in background, disconnecting")
		e.radio.Disconnect(hw)
		return
	}

	e.radio.DiscoverServices(hw)
}

func (e *Engine) handleConnectFailed(hw string, err error) {
	station, ok := e.lookup(hw, "connect-failed")
	if !ok {
		return
	}

	e.logger.WithFields(fieldsFor(station)).WithError(err).Warn("Failed to connect to base station")

	e.registry.MarkDisconnected(hw)
	e.registry.SetLink(hw, registry.LinkDisconnected)
	e.notifyUpdated(hw)
	e.linkLost(station)
}

func (e *Engine) handleDisconnected(hw string, err error) {
	station, ok := e.lookup(hw, "disconnected")
	if !ok {
		return
	}

	entry := e.logger.WithFields(fieldsFor(station))
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Info("Base station disconnected")

	e.session(hw).pendingDiscoveries = 0
	e.registry.MarkDisconnected(hw)
	e.registry.SetLink(hw, registry.LinkDisconnected)
	e.notifyUpdated(hw)
	e.linkLost(station)
}

// linkLost applies the recovery policy after a disconnect or failed connect:
// while active, arm the eviction timer and issue the single reconnect attempt.
func (e *Engine) linkLost(station registry.BaseStation) {
	hw := station.HardwareIdentity
	if !e.active {
		e.logger.WithFields(fieldsFor(station)).Debug("In background, not reconnecting")
		return
	}

	e.armEvictionTimer(station)

	s := e.session(hw)
	if s.retried {
		e.logger.WithFields(fieldsFor(station)).Debug("Reconnect already attempted, waiting for eviction")
		return
	}
	s.retried = true

	current, _ := e.registry.Get(hw)
	e.connect(current, registry.LinkReconnecting)
}

func (e *Engine) handleServicesDiscovered(hw string, services []string) {
	station, ok := e.lookup(hw, "services-discovered")
	if !ok {
		return
	}
	if !station.Connected {
		e.logger.WithFields(fieldsFor(station)).Debug("Discarding service discovery for disconnected device")
		return
	}

	e.logger.WithFields(fieldsFor(station)).WithField("services", len(services)).Debug("Services discovered")
	if !slices.ContainsFunc(services, lighthouse.IsControlService) {
		e.logger.WithFields(fieldsFor(station)).Warn("Base station does not expose the control service")
	}

	// Refs from an earlier pass are only kept if this pass finds them again
	e.registry.ClearCharacteristics(hw)

	if len(services) == 0 {
		e.markReady(hw)
		return
	}

	e.session(hw).pendingDiscoveries = len(services)
	e.registry.SetLink(hw, registry.LinkCharacteristicsDiscovering)
	e.notifyUpdated(hw)

	for _, svc := range services {
		e.radio.DiscoverCharacteristics(hw, svc)
	}
}

func (e *Engine) handleDiscoveryFailed(hw, service string, err error) {
	station, ok := e.lookup(hw, "discovery-failed")
	if !ok {
		return
	}

	entry := e.logger.WithFields(fieldsFor(station)).WithError(err).WithField("link", station.Link)
	if service == "" {
		entry.Warn("Service discovery failed")
		return
	}
	entry.WithField("service", service).Warn("Characteristic discovery failed")

	// The failed service still counts, so other services can make the device ready
	e.serviceDone(station)
}

func (e *Engine) handleCharacteristicsDiscovered(hw, service string, characteristics []string) {
	station, ok := e.lookup(hw, "characteristics-discovered")
	if !ok {
		return
	}
	if !station.Connected {
		e.logger.WithFields(fieldsFor(station)).Debug("Discarding characteristic discovery for disconnected device")
		return
	}

	for _, uuid := range characteristics {
		kind := lighthouse.KindForUUID(uuid)
		if kind == lighthouse.KindUnknown {
			continue
		}

		e.registry.ApplyCharacteristicDiscovery(hw, kind, registry.CharacteristicRef{Service: service, UUID: uuid})
		e.logger.WithFields(fieldsFor(station)).WithFields(logrus.Fields{
			"service": service,
			"char":    uuid,
			"kind":    kind,
		}).Debug("Found base station characteristic")

		// identify is write-only
		if kind == lighthouse.KindPower || kind == lighthouse.KindChannel {
			e.radio.Subscribe(hw, uuid)
			e.radio.Read(hw, uuid)
		}
	}

	e.notifyUpdated(hw)
	e.serviceDone(station)
}

// serviceDone accounts for one finished per-service discovery
func (e *Engine) serviceDone(station registry.BaseStation) {
	if station.Link != registry.LinkCharacteristicsDiscovering {
		return
	}

	s := e.session(station.HardwareIdentity)
	if s.pendingDiscoveries > 0 {
		s.pendingDiscoveries--
	}
	if s.pendingDiscoveries == 0 {
		e.markReady(station.HardwareIdentity)
	}
}

func (e *Engine) markReady(hw string) {
	e.registry.SetLink(hw, registry.LinkReady)
	station, _ := e.registry.Get(hw)

	e.logger.WithFields(fieldsFor(station)).WithFields(logrus.Fields{
		"power":    station.PowerCharacteristic != nil,
		"channel":  station.ChannelCharacteristic != nil,
		"identify": station.IdentifyCharacteristic != nil,
	}).Info("Base station ready")
	e.notify(DeviceUpdated, station)
}

func (e *Engine) handleValueUpdated(hw, characteristic string, data []byte) {
	station, ok := e.lookup(hw, "value-updated")
	if !ok {
		return
	}
	if len(data) == 0 {
		e.logger.WithFields(fieldsFor(station)).WithField("char", characteristic).Debug("Ignoring empty characteristic value")
		return
	}

	kind := lighthouse.KindForUUID(characteristic)
	e.registry.ApplyValueUpdate(hw, kind, data[0])

	updated, _ := e.registry.Get(hw)
	e.logger.WithFields(fieldsFor(updated)).WithFields(logrus.Fields{
		"kind":  kind,
		"raw":   data[0],
		"power": updated.PowerState,
	}).Debug("Characteristic value updated")
	e.notify(DeviceUpdated, updated)
}

func (e *Engine) handleWriteResult(hw, characteristic string, err error) {
	station, ok := e.lookup(hw, "write-result")
	if !ok {
		return
	}

	kind := lighthouse.KindForUUID(characteristic)
	entry := e.logger.WithFields(fieldsFor(station)).WithField("kind", kind)

	n := Notification{Kind: CommandAcknowledged, Station: station, Characteristic: kind}
	if err != nil {
		entry.WithError(err).Warn("Characteristic write failed")
		n.Kind = CommandFailed
		n.Err = err
	} else {
		entry.Info("Characteristic write acknowledged")
	}
	e.notifications.Send(n)
}
