package registry

import (
	"time"

	"github.com/srg/lhctl/internal/lighthouse"
)

// LinkState is the connection lifecycle state of a base station.
// Evicted is not a state: an evicted station is no longer in the registry.
type LinkState int

const (
	LinkDiscovered LinkState = iota
	LinkConnecting
	LinkServicesDiscovering
	LinkCharacteristicsDiscovering
	LinkReady
	LinkDisconnected
	LinkReconnecting
)

func (s LinkState) String() string {
	switch s {
	case LinkDiscovered:
		return "discovered"
	case LinkConnecting:
		return "connecting"
	case LinkServicesDiscovering:
		return "discovering-services"
	case LinkCharacteristicsDiscovering:
		return "discovering-characteristics"
	case LinkReady:
		return "ready"
	case LinkDisconnected:
		return "disconnected"
	case LinkReconnecting:
		return "reconnecting"
	default:
		return "invalid"
	}
}

// MarshalText renders link states by name in JSON output
func (s LinkState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Connecting reports whether a connect request is in flight
func (s LinkState) Connecting() bool {
	return s == LinkConnecting || s == LinkReconnecting
}

// CharacteristicRef locates a characteristic on the peripheral
type CharacteristicRef struct {
	Service string `json:"service"`
	UUID    string `json:"uuid"`
}

// BaseStation is one Lighthouse V2 base station known to the registry.
//
// Values handed out by the registry are copies; mutating them has no effect
// on registry state.
type BaseStation struct {
	ID               string                `json:"id"`
	HardwareIdentity string                `json:"hardware_identity"`
	Name             string                `json:"name"`
	Connected        bool                  `json:"connected"`
	SignalStrength   int                   `json:"rssi"`
	Link             LinkState             `json:"link"`
	PowerState       lighthouse.PowerState `json:"power_state"`
	RawPowerState    *byte                 `json:"raw_power_state,omitempty"`
	RawChannel       *byte                 `json:"raw_channel,omitempty"`

	PowerCharacteristic    *CharacteristicRef `json:"power_characteristic,omitempty"`
	ChannelCharacteristic  *CharacteristicRef `json:"channel_characteristic,omitempty"`
	IdentifyCharacteristic *CharacteristicRef `json:"identify_characteristic,omitempty"`

	DiscoveredAt time.Time `json:"discovered_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// Ready reports whether characteristic discovery has completed on the current connection
func (b BaseStation) Ready() bool {
	return b.Connected && b.Link == LinkReady
}

// Ref returns the characteristic reference for kind, or nil
func (b BaseStation) Ref(kind lighthouse.CharacteristicKind) *CharacteristicRef {
	switch kind {
	case lighthouse.KindPower:
		return b.PowerCharacteristic
	case lighthouse.KindChannel:
		return b.ChannelCharacteristic
	case lighthouse.KindIdentify:
		return b.IdentifyCharacteristic
	default:
		return nil
	}
}

// Channel returns the raw channel byte and whether it has been read
func (b BaseStation) Channel() (byte, bool) {
	if b.RawChannel == nil {
		return 0, false
	}
	return *b.RawChannel, true
}

// clone returns a deep copy so pointer fields are never shared between versions
func (b *BaseStation) clone() *BaseStation {
	c := *b
	c.RawPowerState = cloneByte(b.RawPowerState)
	c.RawChannel = cloneByte(b.RawChannel)
	c.PowerCharacteristic = cloneRef(b.PowerCharacteristic)
	c.ChannelCharacteristic = cloneRef(b.ChannelCharacteristic)
	c.IdentifyCharacteristic = cloneRef(b.IdentifyCharacteristic)
	return &c
}

func cloneByte(p *byte) *byte {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneRef(r *CharacteristicRef) *CharacteristicRef {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}
