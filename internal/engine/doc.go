// Package engine manages Valve Lighthouse V2 base stations over Bluetooth
// Low Energy.
//
// The engine owns the base station registry and drives each station through
// its connection lifecycle:
//   - Discovery from advertisements whose local name matches LHB-XXXXXXXX
//   - Connection, service discovery and characteristic discovery
//   - Power-state and channel reads, with notifications on both
//   - A single reconnect attempt after an unexpected disconnect
//   - Eviction of stations that do not reconnect within the eviction timeout
//   - Power and identify commands, acknowledged through the notification stream
//
// Hardware access goes through the Radio interface; results come back through
// the Events methods implemented by Engine. Everything is serialized on one
// loop goroutine, so Radio implementations may call Events from any goroutine.
package engine
