package engine

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var errNotLinked = errors.New("not connected")

type radioCall struct {
	Op        string
	HW        string
	Arg       string
	Data      []byte
	Confirmed bool
}

// fakeRadio records every request the engine makes
type fakeRadio struct {
	mu    sync.Mutex
	calls []radioCall
}

func (r *fakeRadio) record(c radioCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *fakeRadio) Scan() { r.record(radioCall{Op: "scan"}) }
func (r *fakeRadio) StopScan() { r.record(radioCall{Op: "stop-scan"}) }
func (r *fakeRadio) Connect(hw string) { r.record(radioCall{Op: "connect", HW: hw}) }
func (r *fakeRadio) Disconnect(hw string) { r.record(radioCall{Op: "disconnect", HW: hw}) }
func (r *fakeRadio) DiscoverServices(hw string) { r.record(radioCall{Op: "discover-services", HW: hw}) }

func (r *fakeRadio) DiscoverCharacteristics(hw, service string) {
	r.record(radioCall{Op: "discover-characteristics", HW: hw, Arg: service})
}

func (r *fakeRadio) Subscribe(hw, characteristic string) {
	r.record(radioCall{Op: "subscribe", HW: hw, Arg: characteristic})
}

func (r *fakeRadio) Read(hw, characteristic string) {
	r.record(radioCall{Op: "read", HW: hw, Arg: characteristic})
}

func (r *fakeRadio) Write(hw, characteristic string, data []byte, confirmed bool) {
	r.record(radioCall{Op: "write", HW: hw, Arg: characteristic, Data: append([]byte(nil), data...), Confirmed: confirmed})
}

func (r *fakeRadio) Calls(op string) []radioCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []radioCall
	for _, c := range r.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (r *fakeRadio) Count(op string) int {
	return len(r.Calls(op))
}

func (r *fakeRadio) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// manualClock fires timers only when the test advances it
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock    *manualClock
	deadline time.Duration
	fn       func()
	stopped  bool
	fired    bool
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &manualTimer{clock: c, deadline: c.now + d, fn: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward and runs every timer that came due
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d

	var due []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.deadline <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].deadline < due[j].deadline })
	for _, t := range due {
		t.fn()
	}
}

// Pending counts timers that are armed and not yet fired
func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// inlineRadio answers every request on the caller's goroutine, which for the
// engine is the loop itself. Connect and discovery succeed; writes fail.
type inlineRadio struct {
	fakeRadio
	events Events
}

func (r *inlineRadio) Connect(hw string) {
	r.fakeRadio.Connect(hw)
	r.events.Connected(hw)
}

func (r *inlineRadio) DiscoverServices(hw string) {
	r.fakeRadio.DiscoverServices(hw)
	r.events.ServicesDiscovered(hw, []string{controlService})
}

func (r *inlineRadio) DiscoverCharacteristics(hw, service string) {
	r.fakeRadio.DiscoverCharacteristics(hw, service)
	r.events.CharacteristicsDiscovered(hw, service, []string{powerChar, channelChar, identifyChar})
}

func (r *inlineRadio) Write(hw, characteristic string, data []byte, confirmed bool) {
	r.fakeRadio.Write(hw, characteristic, data, confirmed)
	r.events.WriteFailed(hw, characteristic, errNotLinked)
}
