package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/lhctl/internal/groutine"
	"github.com/srg/lhctl/internal/registry"
	"github.com/srg/lhctl/internal/ringchan"
)

const (
	// DefaultEvictionTimeout is how long a disconnected station may take to reconnect
	DefaultEvictionTimeout = 30 * time.Second

	// DefaultEventBuffer is the capacity of the event loop queue.
	// Events beyond it wait in an overflow list instead of blocking the sender.
	DefaultEventBuffer = 256

	// DefaultNotificationBuffer is the capacity of the notification stream
	DefaultNotificationBuffer = 128
)

// Options configures an Engine
type Options struct {
	Radio              Radio
	Logger             *logrus.Logger
	Clock              Clock
	EvictionTimeout    time.Duration
	EventBuffer        int
	NotificationBuffer int
}

// session is per-device bookkeeping owned by the event loop
type session struct {
	pendingDiscoveries int
	retried            bool
	timer              Timer
	timerGen           uint64
}

// Engine owns the base station registry and drives every device through its
// connection lifecycle.
//
// All hardware events, timer expirations, lifecycle hooks and commands are
// executed one at a time on a single loop goroutine; only that goroutine
// mutates the registry. Public methods may be called from any goroutine.
type Engine struct {
	radio           Radio
	registry        *registry.Registry
	logger          *logrus.Logger
	clock           Clock
	evictionTimeout time.Duration

	queue         chan func()
	overflowMu    sync.Mutex
	overflow      []func()
	wake          chan struct{}
	stop          chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
	started       atomic.Bool
	notifications *ringchan.RingChannel[Notification]

	// loop-owned state
	active   bool
	scanning bool
	sessions map[string]*session
}

// New creates an engine. Call SetRadio before Start if opts.Radio is nil.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.EvictionTimeout <= 0 {
		opts.EvictionTimeout = DefaultEvictionTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.NotificationBuffer <= 0 {
		opts.NotificationBuffer = DefaultNotificationBuffer
	}

	return &Engine{
		radio:           opts.Radio,
		registry:        registry.New(opts.Logger),
		logger:          opts.Logger,
		clock:           opts.Clock,
		evictionTimeout: opts.EvictionTimeout,
		queue:           make(chan func(), opts.EventBuffer),
		wake:            make(chan struct{}, 1),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
		notifications:   ringchan.New[Notification](opts.NotificationBuffer),
		sessions:        make(map[string]*session),
	}
}

// SetRadio attaches the radio. The radio usually needs the engine as its
// Events sink, so the two are wired after construction.
func (e *Engine) SetRadio(r Radio) {
	if e.started.Load() {
		panic("engine: SetRadio after Start")
	}
	e.radio = r
}

// Start launches the event loop in the active state and begins scanning.
// The loop stops when ctx is cancelled or Close is called.
func (e *Engine) Start(ctx context.Context) error {
	if e.radio == nil {
		panic("engine: Start without a radio")
	}
	if !e.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	e.post(func() {
		e.logger.WithField("eviction_timeout", e.evictionTimeout).Info("Lighthouse engine started")
		e.active = true
		e.startScan()
	})

	groutine.Go(ctx, e.logger, "lighthouse-engine", e.run)
	return nil
}

// Close stops scanning, cancels eviction timers, disconnects connected
// stations and stops the loop. It is safe to call more than once.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.stop)
	})
	if e.started.Load() {
		<-e.done
	}
}

// Done is closed once the event loop has exited
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Flush waits until every event posted before the call has been processed
func (e *Engine) Flush(ctx context.Context) error {
	return e.call(ctx, func() error { return nil })
}

// Snapshot returns a copy of every known base station in discovery order
func (e *Engine) Snapshot() []registry.BaseStation {
	return e.registry.Snapshot()
}

// Find looks a station up by ID, hardware identity or name
func (e *Engine) Find(key string) (registry.BaseStation, bool) {
	return e.registry.Find(key)
}

// Notifications streams registry changes and write completions.
// Old notifications are dropped if the reader falls behind.
func (e *Engine) Notifications() <-chan Notification {
	return e.notifications.C()
}

func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	defer e.shutdown()

	e.logger.WithField("goroutine", groutine.GetName(ctx)).Debug("Event loop running")

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case fn := <-e.queue:
			fn()
		case <-e.wake:
			if !e.drainOverflow() {
				return
			}
		}
	}
}

// drainOverflow runs everything still in the queue, then the overflow list.
// Nothing enters the queue while the overflow list is non-empty, and producers
// hold overflowMu while sending, so taking both under the lock keeps events in
// the order they were posted. It returns false once stop is closed.
func (e *Engine) drainOverflow() bool {
	for {
		e.overflowMu.Lock()
		var batch []func()
	queued:
		for {
			select {
			case fn := <-e.queue:
				batch = append(batch, fn)
			default:
				break queued
			}
		}
		batch = append(batch, e.overflow...)
		e.overflow = nil
		e.overflowMu.Unlock()

		if len(batch) == 0 {
			return true
		}
		for _, fn := range batch {
			select {
			case <-e.stop:
				return false
			default:
			}
			fn()
		}
	}
}

func (e *Engine) shutdown() {
	e.stopScan()

	for hw, s := range e.sessions {
		e.stopTimer(s)
		if station, ok := e.registry.Get(hw); ok && station.Connected {
			e.radio.Disconnect(hw)
		}
	}
	e.active = false
	e.notifications.Close()
	e.logger.WithFields(logrus.Fields{
		"notifications": e.notifications.Written(),
		"dropped":       e.notifications.Overwritten(),
	}).Info("Lighthouse engine stopped")
}

// post hands fn to the loop without blocking. It returns false once the
// engine is closed.
//
// The loop itself posts events whenever a radio call reports back inline, so
// a full queue spills into the overflow list rather than waiting for a reader.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.stop:
		return false
	case <-e.done:
		return false
	default:
	}

	e.overflowMu.Lock()
	defer e.overflowMu.Unlock()

	if len(e.overflow) == 0 {
		select {
		case e.queue <- fn:
			return true
		default:
		}
	}

	e.overflow = append(e.overflow, fn)
	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// call runs fn on the loop and waits for its result
func (e *Engine) call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := make(chan error, 1)
	if !e.post(func() { result <- fn() }) {
		return ErrEngineClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrEngineClosed
	}
}

func (e *Engine) session(hw string) *session {
	s, ok := e.sessions[hw]
	if !ok {
		s = &session{}
		e.sessions[hw] = s
	}
	return s
}

func (e *Engine) notify(kind NotificationKind, station registry.BaseStation) {
	e.notifications.Send(Notification{Kind: kind, Station: station})
}

func (e *Engine) notifyUpdated(hw string) {
	if station, ok := e.registry.Get(hw); ok {
		e.notify(DeviceUpdated, station)
	}
}

func (e *Engine) startScan() {
	if e.scanning {
		return
	}
	e.scanning = true
	e.logger.Debug("Requesting BLE scan")
	e.radio.Scan()
}

func (e *Engine) stopScan() {
	if !e.scanning {
		return
	}
	e.scanning = false
	e.logger.Debug("Requesting BLE scan stop")
	e.radio.StopScan()
}

func fieldsFor(station registry.BaseStation) logrus.Fields {
	return logrus.Fields{
		"id":   station.ID,
		"hw":   station.HardwareIdentity,
		"name": station.Name,
	}
}
