package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/lhctl/internal/engine"
	"github.com/srg/lhctl/internal/radio/goble"
)

// Command-level errors
var (
	// ErrCommandRejected means the base station answered a command write with an error
	ErrCommandRejected = errors.New("command rejected by base station")

	// ErrNotReady means the target never finished discovery within --timeout
	ErrNotReady = errors.New("base station not ready")
)

// FormatUserError turns known failures into a hint the user can act on.
// Unknown errors are printed as-is.
func FormatUserError(err error) string {
	var cmdErr *engine.CommandError

	switch {
	case err == nil:
		return ""
	case errors.Is(err, goble.ErrBluetoothOff):
		return "Bluetooth is turned off or unavailable; enable it and try again"
	case errors.Is(err, goble.ErrUnsupportedPlatform):
		return "Bluetooth LE is not supported on this platform"
	case errors.Is(err, ErrNotReady):
		return fmt.Sprintf("%v; make sure it is powered and in range", err)
	case errors.As(err, &cmdErr) && errors.Is(cmdErr.Err, engine.ErrDeviceNotFound):
		return fmt.Sprintf("base station %q not found; run 'lhctl list' to see nearby stations", cmdErr.DeviceID)
	case errors.As(err, &cmdErr) && errors.Is(cmdErr.Err, engine.ErrCharacteristicUnavailable):
		return fmt.Sprintf("base station %q is still being discovered; retry in a few seconds", cmdErr.DeviceID)
	case errors.Is(err, ErrCommandRejected):
		return err.Error()
	case errors.Is(err, engine.ErrEngineClosed):
		return "interrupted before the command completed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timed out waiting for the base station"
	default:
		return err.Error()
	}
}
