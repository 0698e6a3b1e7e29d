package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lhctl/internal/lighthouse"
	"github.com/srg/lhctl/internal/registry"
)

// SetPower writes a power command to a base station.
//
// deviceID may be the station ID, its hardware identity or its name. The
// call returns once the write has been requested; the acknowledgement arrives
// later as a CommandAcknowledged or CommandFailed notification, and the new power
// state as a DeviceUpdated notification.
func (e *Engine) SetPower(ctx context.Context, deviceID string, cmd lighthouse.Command) error {
	command := "set power " + cmd.String()
	payload, err := lighthouse.EncodeCommand(cmd)
	if err != nil {
		return &CommandError{DeviceID: deviceID, Command: command, Err: err}
	}

	return e.call(ctx, func() error {
		return e.dispatch(deviceID, command, lighthouse.KindPower, payload)
	})
}

// Identify makes a base station blink its LED for a while.
// The station reports itself as on afterwards regardless of its prior state.
func (e *Engine) Identify(ctx context.Context, deviceID string) error {
	return e.call(ctx, func() error {
		return e.dispatch(deviceID, "identify", lighthouse.KindIdentify, lighthouse.IdentifyPayload())
	})
}

// dispatch runs on the loop
func (e *Engine) dispatch(deviceID, command string, kind lighthouse.CharacteristicKind, payload byte) error {
	station, ok := e.registry.Find(deviceID)
	if !ok {
		return &CommandError{DeviceID: deviceID, Command: command, Err: ErrDeviceNotFound}
	}

	ref := station.Ref(kind)
	if ref == nil {
		e.logger.WithFields(fieldsFor(station)).WithField("command", command).
			Warn("Command rejected, characteristic not discovered yet")
		return &CommandError{DeviceID: deviceID, Command: command, Err: ErrCharacteristicUnavailable}
	}

	e.logger.WithFields(fieldsFor(station)).WithFields(logrus.Fields{
		"command": command,
		"payload": payload,
	}).Info("Writing command to base station")

	e.radio.Write(station.HardwareIdentity, ref.UUID, []byte{payload}, true)
	return nil
}

// WaitReady blocks until the station identified by deviceID is connected with
// characteristic discovery complete, or ctx ends.
func (e *Engine) WaitReady(ctx context.Context, deviceID string) (registry.BaseStation, error) {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		if station, ok := e.registry.Find(deviceID); ok && station.Ready() {
			return station, nil
		}

		select {
		case <-ctx.Done():
			return registry.BaseStation{}, ctx.Err()
		case <-e.done:
			return registry.BaseStation{}, ErrEngineClosed
		case <-ticker.C:
		}
	}
}

const readyPollInterval = 50 * time.Millisecond
