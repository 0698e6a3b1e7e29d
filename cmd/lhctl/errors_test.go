package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/srg/lhctl/internal/engine"
	"github.com/srg/lhctl/internal/radio/goble"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{
			name:     "nil error",
			err:      nil,
			contains: "",
		},
		{
			name:     "bluetooth off through wrapping",
			err:      fmt.Errorf("failed to open bluetooth adapter: %w", goble.ErrBluetoothOff),
			contains: "enable it and try again",
		},
		{
			name:     "unsupported platform",
			err:      goble.ErrUnsupportedPlatform,
			contains: "not supported on this platform",
		},
		{
			name:     "unknown device",
			err:      &engine.CommandError{DeviceID: "LHB-FFFFFFFF", Command: "power", Err: engine.ErrDeviceNotFound},
			contains: `base station "LHB-FFFFFFFF" not found`,
		},
		{
			name:     "characteristic not yet discovered",
			err:      &engine.CommandError{DeviceID: "LHB-0A1B2C3D", Command: "identify", Err: engine.ErrCharacteristicUnavailable},
			contains: "still being discovered",
		},
		{
			name:     "not ready before timeout",
			err:      fmt.Errorf("%w: LHB-0A1B2C3D did not become ready within 30s", ErrNotReady),
			contains: "make sure it is powered and in range",
		},
		{
			name:     "rejected write keeps details",
			err:      fmt.Errorf("%w: LHB-0A1B2C3D power: gatt error", ErrCommandRejected),
			contains: "LHB-0A1B2C3D power: gatt error",
		},
		{
			name:     "engine closed",
			err:      engine.ErrEngineClosed,
			contains: "interrupted",
		},
		{
			name:     "deadline",
			err:      context.DeadlineExceeded,
			contains: "timed out",
		},
		{
			name:     "unknown errors pass through",
			err:      errors.New("something odd"),
			contains: "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatUserError(tt.err)
			if tt.contains == "" {
				assert.Empty(t, msg)
				return
			}
			assert.Contains(t, msg, tt.contains, "user message MUST explain the failure")
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}
