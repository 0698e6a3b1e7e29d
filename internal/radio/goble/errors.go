package goble

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotConnected          = errors.New("device not connected")
	ErrBluetoothOff          = errors.New("bluetooth is turned off")
	ErrTimeout               = errors.New("operation timed out")
	ErrUnknownService        = errors.New("service not discovered")
	ErrUnknownCharacteristic = errors.New("characteristic not discovered")
	ErrUnsupportedPlatform   = errors.New("no BLE support on this platform")
)

// NormalizeError maps known go-ble error strings to the sentinel errors above.
// The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotConnected) || errors.Is(err, ErrBluetoothOff) {
		return err
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return err
	}
}

func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
