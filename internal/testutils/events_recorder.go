package testutils

import (
	"sync"
)

// RecordedEvent is one callback received by EventRecorder
type RecordedEvent struct {
	Name  string
	HW    string
	Arg   string
	Names []string
	Data  []byte
	RSSI  int
	Err   error
}

// EventRecorder implements the engine's radio event sink and keeps every call
type EventRecorder struct {
	mu     sync.Mutex
	events []RecordedEvent
}

func (r *EventRecorder) add(e RecordedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *EventRecorder) Discovered(hw, name string, rssi int) {
	r.add(RecordedEvent{Name: "discovered", HW: hw, Arg: name, RSSI: rssi})
}

func (r *EventRecorder) Connected(hw string) {
	r.add(RecordedEvent{Name: "connected", HW: hw})
}

func (r *EventRecorder) ConnectFailed(hw string, err error) {
	r.add(RecordedEvent{Name: "connect-failed", HW: hw, Err: err})
}

func (r *EventRecorder) Disconnected(hw string, err error) {
	r.add(RecordedEvent{Name: "disconnected", HW: hw, Err: err})
}

func (r *EventRecorder) ServicesDiscovered(hw string, services []string) {
	r.add(RecordedEvent{Name: "services-discovered", HW: hw, Names: append([]string(nil), services...)})
}

func (r *EventRecorder) DiscoveryFailed(hw, service string, err error) {
	r.add(RecordedEvent{Name: "discovery-failed", HW: hw, Arg: service, Err: err})
}

func (r *EventRecorder) CharacteristicsDiscovered(hw, service string, characteristics []string) {
	r.add(RecordedEvent{Name: "characteristics-discovered", HW: hw, Arg: service, Names: append([]string(nil), characteristics...)})
}

func (r *EventRecorder) ValueUpdated(hw, characteristic string, data []byte) {
	r.add(RecordedEvent{Name: "value-updated", HW: hw, Arg: characteristic, Data: append([]byte(nil), data...)})
}

func (r *EventRecorder) WriteAcknowledged(hw, characteristic string) {
	r.add(RecordedEvent{Name: "write-acknowledged", HW: hw, Arg: characteristic})
}

func (r *EventRecorder) WriteFailed(hw, characteristic string, err error) {
	r.add(RecordedEvent{Name: "write-failed", HW: hw, Arg: characteristic, Err: err})
}

// Named returns every recorded event with the given name, oldest first
func (r *EventRecorder) Named(name string) []RecordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []RecordedEvent
	for _, e := range r.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Has reports whether at least one event with name was recorded
func (r *EventRecorder) Has(name string) bool {
	return len(r.Named(name)) > 0
}
