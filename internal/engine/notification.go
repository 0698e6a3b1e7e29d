package engine

import (
	"github.com/srg/lhctl/internal/lighthouse"
	"github.com/srg/lhctl/internal/registry"
)

// NotificationKind tells the presentation layer what changed
type NotificationKind int

const (
	DeviceAdded NotificationKind = iota
	DeviceUpdated
	DeviceEvicted
	CommandAcknowledged
	CommandFailed
)

func (k NotificationKind) String() string {
	switch k {
	case DeviceAdded:
		return "added"
	case DeviceUpdated:
		return "updated"
	case DeviceEvicted:
		return "evicted"
	case CommandAcknowledged:
		return "command-acknowledged"
	case CommandFailed:
		return "command-failed"
	default:
		return "invalid"
	}
}

// Notification is published after the registry changes or a write completes.
// Station is a copy taken after the change; for DeviceEvicted it is the last
// state before removal.
type Notification struct {
	Kind           NotificationKind
	Station        registry.BaseStation
	Characteristic lighthouse.CharacteristicKind
	Err            error
}
