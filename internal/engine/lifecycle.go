package engine

import (
	"github.com/srg/lhctl/internal/registry"
)

// OnAppActive resumes scanning and tries to connect every station that is
// not connected, each with a fresh eviction timer.
func (e *Engine) OnAppActive() {
	e.post(e.enterForeground)
}

// OnAppBackground stops scanning and disconnects every connected station.
// No eviction timers or reconnects happen until the app is active again.
func (e *Engine) OnAppBackground() {
	e.post(e.enterBackground)
}

func (e *Engine) enterForeground() {
	wasActive := e.active
	e.active = true
	if !wasActive {
		e.logger.Info("App became active")
	}
	e.startScan()

	for _, station := range e.registry.Snapshot() {
		if station.Connected || station.Link.Connecting() {
			continue
		}

		e.armEvictionTimer(station)
		e.session(station.HardwareIdentity).retried = false
		e.connect(station, registry.LinkConnecting)
	}
}

func (e *Engine) enterBackground() {
	if !e.active {
		return
	}
	e.active = false
	e.logger.Info("App moved to background")
	e.stopScan()

	for _, s := range e.sessions {
		e.stopTimer(s)
	}

	for _, station := range e.registry.Snapshot() {
		if station.Connected {
			e.logger.WithFields(fieldsFor(station)).Debug("Disconnecting base station for background")
			e.radio.Disconnect(station.HardwareIdentity)
		}
	}
}

// armEvictionTimer starts the eviction countdown unless one is already running
func (e *Engine) armEvictionTimer(station registry.BaseStation) {
	hw := station.HardwareIdentity
	s := e.session(hw)
	if s.timer != nil {
		return
	}

	s.timerGen++
	gen := s.timerGen
	s.timer = e.clock.AfterFunc(e.evictionTimeout, func() {
		e.post(func() { e.handleEvictionTimer(hw, gen) })
	})

	e.logger.WithFields(fieldsFor(station)).WithField("timeout", e.evictionTimeout).Debug("Eviction timer armed")
}

func (e *Engine) cancelEvictionTimer(hw string) {
	if s, ok := e.sessions[hw]; ok && s.timer != nil {
		e.stopTimer(s)
		e.logger.WithField("hw", hw).Debug("Eviction timer cancelled")
	}
}

// stopTimer stops s.timer and invalidates any expiry already queued
func (e *Engine) stopTimer(s *session) {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.timer = nil
	s.timerGen++
}

func (e *Engine) handleEvictionTimer(hw string, gen uint64) {
	s, ok := e.sessions[hw]
	if !ok || s.timerGen != gen || s.timer == nil {
		return
	}
	s.timer = nil

	station, ok := e.registry.Get(hw)
	if !ok || station.Connected || !e.active {
		return
	}

	e.logger.WithFields(fieldsFor(station)).WithField("timeout", e.evictionTimeout).
		Info("Evicting base station that did not reconnect")

	e.registry.Remove(hw)
	delete(e.sessions, hw)
	e.notify(DeviceEvicted, station)
}
