package registry

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/srg/lhctl/internal/lighthouse"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// UpsertResult tells the caller what UpsertDiscovered did
type UpsertResult int

const (
	// Rejected means the advertised name is not a base station name; nothing was stored
	Rejected UpsertResult = iota
	// Existing means the device was already known; the stored record is unchanged
	Existing
	// Created means a new record was added in the Unknown power state
	Created
)

func (r UpsertResult) String() string {
	switch r {
	case Rejected:
		return "rejected"
	case Existing:
		return "existing"
	case Created:
		return "created"
	default:
		return "invalid"
	}
}

// Registry is the in-memory table of known base stations, keyed by hardware identity.
//
// Mutating methods and Get must be called from a single goroutine (the engine
// loop). Snapshot, Find and Len may be called from any goroutine: a stored
// record is never modified in place, every mutation swaps in a fresh copy and
// publishes a new snapshot, so readers never see a half-applied update.
type Registry struct {
	entries  *orderedmap.OrderedMap[string, *BaseStation]
	snapshot atomic.Pointer[[]*BaseStation]
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
	logger   *logrus.Logger
}

// New creates an empty registry
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}

	r := &Registry{
		entries: orderedmap.New[string, *BaseStation](),
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
		now:     time.Now,
		logger:  logger,
	}
	r.publish()
	return r
}

// SetClock replaces the time source used for DiscoveredAt/LastSeen and ID timestamps
func (r *Registry) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

func (r *Registry) newID() string {
	return ulid.MustNew(ulid.Timestamp(r.now()), r.entropy).String()
}

// UpsertDiscovered admits a newly advertised device.
// Non-qualifying names are rejected; known hardware identities are returned unchanged.
func (r *Registry) UpsertDiscovered(hw, name string, rssi int) (BaseStation, UpsertResult) {
	if !lighthouse.IsQualifyingName(name) {
		return BaseStation{}, Rejected
	}

	if existing, ok := r.entries.Get(hw); ok {
		return *existing.clone(), Existing
	}

	now := r.now()
	station := &BaseStation{
		ID:               r.newID(),
		HardwareIdentity: hw,
		Name:             name,
		SignalStrength:   rssi,
		Link:             LinkDiscovered,
		PowerState:       lighthouse.Unknown,
		DiscoveredAt:     now,
		LastSeen:         now,
	}
	r.entries.Set(hw, station)
	r.publish()

	r.logger.WithFields(logrus.Fields{
		"id":   station.ID,
		"hw":   hw,
		"name": name,
		"rssi": rssi,
	}).Info("Discovered new base station")

	return *station.clone(), Created
}

// UpdateSignalStrength records the RSSI of a repeat advertisement
func (r *Registry) UpdateSignalStrength(hw string, rssi int) bool {
	return r.update(hw, func(b *BaseStation) {
		b.SignalStrength = rssi
		b.LastSeen = r.now()
	})
}

// MarkConnected sets the connected flag; all other fields are kept
func (r *Registry) MarkConnected(hw string) bool {
	return r.update(hw, func(b *BaseStation) {
		b.Connected = true
	})
}

// MarkDisconnected clears the connected flag.
// Power state, channel and characteristic refs survive for a quick reconnect.
func (r *Registry) MarkDisconnected(hw string) bool {
	return r.update(hw, func(b *BaseStation) {
		b.Connected = false
	})
}

// SetLink records a lifecycle transition
func (r *Registry) SetLink(hw string, state LinkState) bool {
	return r.update(hw, func(b *BaseStation) {
		b.Link = state
	})
}

// ApplyCharacteristicDiscovery stores a characteristic reference.
// Kinds other than power, channel and identify are ignored.
func (r *Registry) ApplyCharacteristicDiscovery(hw string, kind lighthouse.CharacteristicKind, ref CharacteristicRef) bool {
	if _, ok := r.entries.Get(hw); !ok {
		return false
	}
	if kind == lighthouse.KindUnknown {
		return true
	}

	return r.update(hw, func(b *BaseStation) {
		stored := ref
		switch kind {
		case lighthouse.KindPower:
			b.PowerCharacteristic = &stored
		case lighthouse.KindChannel:
			b.ChannelCharacteristic = &stored
		case lighthouse.KindIdentify:
			b.IdentifyCharacteristic = &stored
		}
	})
}

// ClearCharacteristics drops the power, channel and identify refs ahead of a
// new discovery pass. Raw values and the decoded power state are kept.
func (r *Registry) ClearCharacteristics(hw string) bool {
	return r.update(hw, func(b *BaseStation) {
		b.PowerCharacteristic = nil
		b.ChannelCharacteristic = nil
		b.IdentifyCharacteristic = nil
	})
}

// ApplyValueUpdate stores a raw characteristic value.
// Power values also recompute PowerState; values of other kinds besides channel are ignored.
func (r *Registry) ApplyValueUpdate(hw string, kind lighthouse.CharacteristicKind, raw byte) bool {
	if _, ok := r.entries.Get(hw); !ok {
		return false
	}

	switch kind {
	case lighthouse.KindPower:
		return r.update(hw, func(b *BaseStation) {
			v := raw
			b.RawPowerState = &v
			b.PowerState = lighthouse.DecodePowerState(raw)
		})
	case lighthouse.KindChannel:
		return r.update(hw, func(b *BaseStation) {
			v := raw
			b.RawChannel = &v
		})
	default:
		return true
	}
}

// Remove deletes a record. Removing an unknown identity is not an error.
func (r *Registry) Remove(hw string) bool {
	if _, ok := r.entries.Delete(hw); !ok {
		return false
	}
	r.publish()
	return true
}

// Get returns a copy of the record for hw. Loop-side only.
func (r *Registry) Get(hw string) (BaseStation, bool) {
	b, ok := r.entries.Get(hw)
	if !ok {
		return BaseStation{}, false
	}
	return *b.clone(), true
}

// Find looks a station up by ID, hardware identity or advertised name, in that order
func (r *Registry) Find(key string) (BaseStation, bool) {
	snap := r.snapshot.Load()
	if snap == nil {
		return BaseStation{}, false
	}

	for _, match := range []func(*BaseStation) bool{
		func(b *BaseStation) bool { return b.ID == key },
		func(b *BaseStation) bool { return b.HardwareIdentity == key },
		func(b *BaseStation) bool { return b.Name == key },
	} {
		for _, b := range *snap {
			if match(b) {
				return *b.clone(), true
			}
		}
	}
	return BaseStation{}, false
}

// Len returns the number of known stations
func (r *Registry) Len() int {
	snap := r.snapshot.Load()
	if snap == nil {
		return 0
	}
	return len(*snap)
}

// Snapshot returns all stations in discovery order.
// The returned slice is owned by the caller.
func (r *Registry) Snapshot() []BaseStation {
	snap := r.snapshot.Load()
	if snap == nil {
		return nil
	}
	out := make([]BaseStation, len(*snap))
	for i, b := range *snap {
		out[i] = *b.clone()
	}
	return out
}

// update applies fn to a copy of the record and swaps it in
func (r *Registry) update(hw string, fn func(*BaseStation)) bool {
	current, ok := r.entries.Get(hw)
	if !ok {
		return false
	}

	next := current.clone()
	fn(next)
	r.entries.Set(hw, next)
	r.publish()
	return true
}

// publish shares the stored records; they are replaced, never modified
func (r *Registry) publish() {
	snap := make([]*BaseStation, 0, r.entries.Len())
	for pair := r.entries.Oldest(); pair != nil; pair = pair.Next() {
		snap = append(snap, pair.Value)
	}
	r.snapshot.Store(&snap)
}
