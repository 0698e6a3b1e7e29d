package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrCharacteristicUnavailable means a command was issued before the
	// characteristic it writes to was discovered.
	ErrCharacteristicUnavailable = errors.New("characteristic unavailable")

	// ErrDeviceNotFound means the command target is not in the registry
	ErrDeviceNotFound = errors.New("device not found")

	// ErrEngineClosed is returned once Close has been called
	ErrEngineClosed = errors.New("engine closed")

	// ErrAlreadyStarted is returned by a second Start
	ErrAlreadyStarted = errors.New("engine already started")
)

// CommandError describes a command that was aborted before anything was written
type CommandError struct {
	DeviceID string
	Command  string
	Err      error
}

func (e *CommandError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s %s: %v", e.Command, e.DeviceID, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}
