package lighthouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePowerState(t *testing.T) {
	tests := []struct {
		name     string
		input    byte
		expected PowerState
	}{
		{name: "sleep", input: 0x00, expected: Sleep},
		{name: "booting 0x01", input: 0x01, expected: Booting},
		{name: "standby", input: 0x02, expected: Standby},
		{name: "booting 0x08", input: 0x08, expected: Booting},
		{name: "booting 0x09", input: 0x09, expected: Booting},
		{name: "on", input: 0x0B, expected: On},
		{name: "unmapped 0x03", input: 0x03, expected: Unknown},
		{name: "unmapped 0x0A", input: 0x0A, expected: Unknown},
		{name: "unmapped 0xFF", input: 0xFF, expected: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DecodePowerState(tt.input))
		})
	}
}

func TestDecodePowerState_IsTotal(t *testing.T) {
	known := map[byte]PowerState{
		0x00: Sleep, 0x01: Booting, 0x02: Standby,
		0x08: Booting, 0x09: Booting, 0x0B: On,
	}

	for i := 0; i <= 0xFF; i++ {
		b := byte(i)
		want, ok := known[b]
		if !ok {
			want = Unknown
		}
		assert.Equalf(t, want, DecodePowerState(b), "byte 0x%02X MUST decode to %s", b, want)
	}
}

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		command  Command
		expected byte
	}{
		{CommandOn, 0x01},
		{CommandStandby, 0x02},
		{CommandSleep, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.command.String(), func(t *testing.T) {
			b, err := EncodeCommand(tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, b)
		})
	}

	// "on" is written as 0x01 but observed as 0x0B; the two must stay different
	on, err := EncodeCommand(CommandOn)
	require.NoError(t, err)
	assert.NotEqual(t, On, DecodePowerState(on), "command and state encodings of \"on\" MUST differ")
}

func TestEncodeCommand_RejectsUndefinedValues(t *testing.T) {
	// GOAL: Verify an out-of-range command never turns into a write to the device
	//
	// TEST SCENARIO: Command(42) and Command(-1) → ErrInvalidCommand, no byte

	for _, c := range []Command{Command(42), Command(-1), CommandOn + 1} {
		_, err := EncodeCommand(c)
		assert.ErrorIsf(t, err, ErrInvalidCommand, "%s MUST be rejected", c)
	}
}

func TestIdentifyPayload(t *testing.T) {
	assert.Equal(t, byte(0x01), IdentifyPayload())
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		input    string
		expected Command
	}{
		{"on", CommandOn},
		{"ON", CommandOn},
		{"standby", CommandStandby},
		{"sleep", CommandSleep},
		{"off", CommandSleep},
		{" Standby ", CommandStandby},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			cmd, err := ParseCommand(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, cmd)
		})
	}

	_, err := ParseCommand("reboot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reboot")
}

func TestIsQualifyingName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{name: "valid name", input: "LHB-0A1B2C3D", expected: true},
		{name: "all digits", input: "LHB-12345678", expected: true},
		{name: "all letters", input: "LHB-ABCDEFAB", expected: true},
		{name: "lowercase hex", input: "LHB-0a1b2c3d", expected: false},
		{name: "lowercase prefix", input: "lhb-0A1B2C3D", expected: false},
		{name: "seven digits", input: "LHB-0A1B2C3", expected: false},
		{name: "nine digits", input: "LHB-0A1B2C3DE", expected: false},
		{name: "non-hex letter", input: "LHB-0A1B2C3G", expected: false},
		{name: "leading garbage", input: "xLHB-0A1B2C3D", expected: false},
		{name: "trailing garbage", input: "LHB-0A1B2C3D ", expected: false},
		{name: "v1 base station", input: "HTC BS 123456", expected: false},
		{name: "empty", input: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsQualifyingName(tt.input))
		})
	}
}

func TestPowerState_String(t *testing.T) {
	assert.Equal(t, "unknown", Unknown.String())
	assert.Equal(t, "sleep", Sleep.String())
	assert.Equal(t, "standby", Standby.String())
	assert.Equal(t, "on", On.String())
	assert.Equal(t, "booting", Booting.String())

	text, err := On.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "on", string(text))
}
