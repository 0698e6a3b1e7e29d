package lighthouse

import "strings"

// GATT identifiers of the Lighthouse V2 control service
const (
	ControlServiceUUID         = "00001523-1212-EFDE-1523-785FEABCD124"
	PowerCharacteristicUUID    = "00001525-1212-EFDE-1523-785FEABCD124"
	ChannelCharacteristicUUID  = "00001524-1212-EFDE-1523-785FEABCD124"
	IdentifyCharacteristicUUID = "00008421-1212-EFDE-1523-785FEABCD124"
)

// CharacteristicKind classifies the characteristics the engine knows about
type CharacteristicKind int

const (
	KindUnknown CharacteristicKind = iota
	KindPower
	KindChannel
	KindIdentify
)

func (k CharacteristicKind) String() string {
	switch k {
	case KindPower:
		return "power"
	case KindChannel:
		return "channel"
	case KindIdentify:
		return "identify"
	default:
		return "unknown"
	}
}

var (
	normalizedPower    = NormalizeUUID(PowerCharacteristicUUID)
	normalizedChannel  = NormalizeUUID(ChannelCharacteristicUUID)
	normalizedIdentify = NormalizeUUID(IdentifyCharacteristicUUID)
	normalizedControl  = NormalizeUUID(ControlServiceUUID)
)

// NormalizeUUID converts a UUID to lowercase hex without dashes or a 0x prefix,
// the form go-ble uses when printing UUIDs.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "0x")
	return strings.ReplaceAll(s, "-", "")
}

// SameUUID compares two UUIDs regardless of case and dashes
func SameUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}

// KindForUUID returns the characteristic kind for a characteristic UUID.
// Characteristics this package does not know about map to KindUnknown.
func KindForUUID(uuid string) CharacteristicKind {
	switch NormalizeUUID(uuid) {
	case normalizedPower:
		return KindPower
	case normalizedChannel:
		return KindChannel
	case normalizedIdentify:
		return KindIdentify
	default:
		return KindUnknown
	}
}

// IsControlService reports whether uuid is the Lighthouse control service
func IsControlService(uuid string) bool {
	return NormalizeUUID(uuid) == normalizedControl
}
