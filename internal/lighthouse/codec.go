package lighthouse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// PowerState is the decoded value of the power-state characteristic
type PowerState int

const (
	Unknown PowerState = iota
	Sleep
	Standby
	On
	Booting
)

func (s PowerState) String() string {
	switch s {
	case Sleep:
		return "sleep"
	case Standby:
		return "standby"
	case On:
		return "on"
	case Booting:
		return "booting"
	default:
		return "unknown"
	}
}

// MarshalText lets snapshots render power states by name in JSON output.
func (s PowerState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrInvalidCommand is returned for a Command value outside the defined set
var ErrInvalidCommand = errors.New("invalid power command")

// Command is a power command written to the power-state characteristic
type Command int

const (
	CommandSleep Command = iota
	CommandStandby
	CommandOn
)

func (c Command) String() string {
	switch c {
	case CommandSleep:
		return "sleep"
	case CommandStandby:
		return "standby"
	case CommandOn:
		return "on"
	default:
		return fmt.Sprintf("command(%d)", int(c))
	}
}

// Raw power-state bytes as reported by the device.
const (
	rawSleep    byte = 0x00
	rawBooting1 byte = 0x01
	rawStandby  byte = 0x02
	rawBooting8 byte = 0x08
	rawBooting9 byte = 0x09
	rawOn       byte = 0x0B
)

// identifyByte is written to the identify characteristic.
const identifyByte byte = 0x01

var qualifyingName = regexp.MustCompile(`^LHB-[0-9A-F]{8}$`)

// DecodePowerState maps a raw power-state byte to a PowerState.
// Every byte has a result; unmapped values decode to Unknown.
func DecodePowerState(b byte) PowerState {
	switch b {
	case rawSleep:
		return Sleep
	case rawStandby:
		return Standby
	case rawOn:
		return On
	case rawBooting1, rawBooting8, rawBooting9:
		return Booting
	default:
		return Unknown
	}
}

// EncodeCommand returns the byte written to the power characteristic for c.
//
// Note that "on" is written as 0x01 but reported back as 0x0B once the
// device has finished booting. Values outside the defined commands are
// rejected rather than mapped to a byte.
func EncodeCommand(c Command) (byte, error) {
	switch c {
	case CommandOn:
		return 0x01, nil
	case CommandStandby:
		return 0x02, nil
	case CommandSleep:
		return 0x00, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrInvalidCommand, c)
	}
}

// ParseCommand parses a user-supplied command name
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return CommandOn, nil
	case "standby":
		return CommandStandby, nil
	case "sleep", "off":
		return CommandSleep, nil
	default:
		return 0, fmt.Errorf("%w %q (must be on, standby, sleep or off)", ErrInvalidCommand, s)
	}
}

// IsQualifyingName reports whether an advertised name belongs to a Lighthouse V2 base station
func IsQualifyingName(name string) bool {
	return qualifyingName.MatchString(name)
}

// IdentifyPayload returns the byte that makes a base station blink its LED.
// It goes to the identify characteristic, never to the power characteristic.
func IdentifyPayload() byte {
	return identifyByte
}
