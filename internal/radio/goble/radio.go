package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/lhctl/internal/engine"
	"github.com/srg/lhctl/internal/groutine"
	"github.com/srg/lhctl/internal/lighthouse"
)

const (
	// DefaultConnectTimeout bounds a single dial attempt
	DefaultConnectTimeout = 10 * time.Second

	// DefaultOperationTimeout bounds discovery, read and write requests
	DefaultOperationTimeout = 5 * time.Second
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = newPlatformDevice

// Options configures a Radio
type Options struct {
	Logger           *logrus.Logger
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	AllowDuplicates  bool
}

// Radio drives a go-ble device on behalf of the engine.
//
// Requests return immediately. Each one runs on its own goroutine and reports
// back through engine.Events. GATT requests for the same peripheral are
// serialized.
type Radio struct {
	events           engine.Events
	logger           *logrus.Logger
	connectTimeout   time.Duration
	operationTimeout time.Duration
	allowDuplicates  bool

	ctx    context.Context
	cancel context.CancelFunc

	devMu sync.Mutex
	dev   ble.Device

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanGen    uint64

	linkMu sync.Mutex // guards insert/remove sequences on links
	links  *hashmap.Map[string, *link]
}

var _ engine.Radio = (*Radio)(nil)

// link is one peripheral connection, from dial until disconnect
type link struct {
	hw      string
	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool

	gattMu sync.Mutex

	stateMu         sync.Mutex
	client          ble.Client
	services        map[string]*ble.Service
	characteristics map[string]*ble.Characteristic
}

func (l *link) currentClient() ble.Client {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.client
}

func (l *link) characteristic(uuid string) (*ble.Characteristic, bool) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	c, ok := l.characteristics[lighthouse.NormalizeUUID(uuid)]
	return c, ok
}

// New creates a radio that reports to events
func New(events engine.Events, opts Options) *Radio {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = DefaultOperationTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Radio{
		events:           events,
		logger:           opts.Logger,
		connectTimeout:   opts.ConnectTimeout,
		operationTimeout: opts.OperationTimeout,
		allowDuplicates:  opts.AllowDuplicates,
		ctx:              ctx,
		cancel:           cancel,
		links:            hashmap.New[string, *link](),
	}
}

// Open initializes the BLE adapter. Calling it is optional; it lets callers
// report a missing or powered-off adapter before starting the engine.
func (r *Radio) Open() error {
	_, err := r.device()
	return err
}

func (r *Radio) device() (ble.Device, error) {
	r.devMu.Lock()
	defer r.devMu.Unlock()

	if r.dev != nil {
		return r.dev, nil
	}

	dev, err := DeviceFactory()
	if err != nil {
		err = NormalizeError(err)
		r.logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	r.dev = dev
	return dev, nil
}

// Close stops scanning, drops every connection and releases the adapter
func (r *Radio) Close() error {
	r.StopScan()
	r.cancel()

	r.links.Range(func(hw string, l *link) bool {
		if client := l.currentClient(); client != nil {
			if err := client.CancelConnection(); err != nil {
				r.logger.WithField("hw", hw).WithError(err).Debug("Failed to cancel connection on close")
			}
		}
		return true
	})

	r.devMu.Lock()
	defer r.devMu.Unlock()
	if r.dev == nil {
		return nil
	}
	err := r.dev.Stop()
	r.dev = nil
	return NormalizeError(err)
}

// Scan starts scanning until StopScan or Close
func (r *Radio) Scan() {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	if r.scanCancel != nil {
		return
	}

	dev, err := r.device()
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.ctx)
	r.scanCancel = cancel
	r.scanGen++
	gen := r.scanGen

	groutine.Go(ctx, r.logger, "ble-scan", func(ctx context.Context) {
		r.logger.WithField("allow_duplicates", r.allowDuplicates).Debug("BLE scan started")

		err := dev.Scan(ctx, r.allowDuplicates, r.handleAdvertisement)
		if err != nil && ctx.Err() == nil && !errors.Is(err, context.Canceled) {
			r.logger.WithError(NormalizeError(err)).Error("BLE scan failed")
		} else {
			r.logger.Debug("BLE scan stopped")
		}

		r.scanMu.Lock()
		if r.scanGen == gen {
			r.scanCancel = nil
		}
		r.scanMu.Unlock()
		cancel()
	})
}

// StopScan stops a running scan
func (r *Radio) StopScan() {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	if r.scanCancel != nil {
		r.scanCancel()
		r.scanCancel = nil
	}
}

func (r *Radio) handleAdvertisement(adv ble.Advertisement) {
	name := adv.LocalName()
	if name == "" || adv.Addr() == nil {
		return
	}
	r.events.Discovered(adv.Addr().String(), name, adv.RSSI())
}

// Connect dials hw. The outcome arrives as Connected or ConnectFailed; a
// later link loss arrives as Disconnected.
func (r *Radio) Connect(hw string) {
	l, created := r.addLink(hw)
	if !created {
		r.logger.WithField("hw", hw).Debug("Connect already in progress")
		return
	}

	groutine.Go(l.ctx, r.logger, "ble-link", func(ctx context.Context) {
		r.runLink(ctx, l)
	})
}

func (r *Radio) addLink(hw string) (*link, bool) {
	r.linkMu.Lock()
	defer r.linkMu.Unlock()

	if existing, ok := r.links.Get(hw); ok {
		return existing, false
	}

	ctx, cancel := context.WithCancel(r.ctx)
	l := &link{
		hw:              hw,
		ctx:             ctx,
		cancel:          cancel,
		services:        make(map[string]*ble.Service),
		characteristics: make(map[string]*ble.Characteristic),
	}
	r.links.Set(hw, l)
	return l, true
}

func (r *Radio) dropLink(l *link) {
	r.linkMu.Lock()
	if current, ok := r.links.Get(l.hw); ok && current == l {
		r.links.Del(l.hw)
	}
	r.linkMu.Unlock()
	l.cancel()
}

// runLink dials the peripheral and then watches the connection until it drops
func (r *Radio) runLink(ctx context.Context, l *link) {
	logger := r.logger.WithField("hw", l.hw)

	dev, err := r.device()
	if err != nil {
		r.dropLink(l)
		r.events.ConnectFailed(l.hw, err)
		return
	}

	dialCtx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	logger.WithField("timeout", r.connectTimeout).Debug("Dialing BLE device...")
	client, err := dev.Dial(dialCtx, ble.NewAddr(l.hw))
	if err != nil {
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: connect after %v: %v", ErrTimeout, r.connectTimeout, err)
		}
		err = NormalizeError(err)
		logger.WithError(err).Debug("Dial failed")
		r.dropLink(l)
		r.events.ConnectFailed(l.hw, err)
		return
	}

	l.stateMu.Lock()
	l.client = client
	l.stateMu.Unlock()

	// Disconnect was requested while dialing
	if l.closing.Load() {
		logger.Debug("Connection completed after disconnect request, cancelling")
		if err := client.CancelConnection(); err != nil {
			logger.WithError(err).Debug("Failed to cancel connection")
		}
		r.dropLink(l)
		r.events.ConnectFailed(l.hw, context.Canceled)
		return
	}

	logger.Debug("BLE device connected")
	r.events.Connected(l.hw)

	select {
	case <-client.Disconnected():
		var cause error
		if !l.closing.Load() {
			cause = ErrNotConnected
			logger.Warn("BLE link lost")
		} else {
			logger.Debug("BLE link closed")
		}
		r.dropLink(l)
		r.events.Disconnected(l.hw, cause)

	case <-ctx.Done():
		if err := client.CancelConnection(); err != nil {
			logger.WithError(err).Debug("Failed to cancel connection")
		}
	}
}

// Disconnect closes the connection to hw or aborts a dial in progress
func (r *Radio) Disconnect(hw string) {
	l, ok := r.links.Get(hw)
	if !ok {
		r.logger.WithField("hw", hw).Debug("Disconnect for unknown link ignored")
		return
	}
	if !l.closing.CompareAndSwap(false, true) {
		return
	}

	client := l.currentClient()
	if client == nil {
		l.cancel()
		return
	}

	groutine.Go(r.ctx, r.logger, "ble-disconnect", func(context.Context) {
		if err := client.CancelConnection(); err != nil {
			r.logger.WithField("hw", hw).WithError(NormalizeError(err)).Warn("Failed to cancel BLE connection")
		}
	})
}

// gatt runs fn on a fresh goroutine with the link's GATT lock held.
// unavailable is called instead, also on its own goroutine, when hw has no
// live connection. Callers may be holding the event sink's loop.
func (r *Radio) gatt(hw, name string, fn func(l *link, client ble.Client), unavailable func(error)) {
	var client ble.Client
	l, ok := r.links.Get(hw)
	if ok {
		client = l.currentClient()
	}
	if client == nil {
		groutine.Go(r.ctx, r.logger, name+"-unavailable", func(context.Context) {
			unavailable(ErrNotConnected)
		})
		return
	}

	groutine.Go(l.ctx, r.logger, name, func(context.Context) {
		l.gattMu.Lock()
		defer l.gattMu.Unlock()
		fn(l, client)
	})
}

// DiscoverServices enumerates the primary services of hw
func (r *Radio) DiscoverServices(hw string) {
	failed := func(err error) { r.events.DiscoveryFailed(hw, "", err) }

	r.gatt(hw, "ble-discover-services", func(l *link, client ble.Client) {
		services, err := withTimeout(r.operationTimeout, func() ([]*ble.Service, error) {
			return client.DiscoverServices(nil)
		})
		if err != nil {
			failed(NormalizeError(err))
			return
		}

		uuids := make([]string, 0, len(services))
		l.stateMu.Lock()
		for _, svc := range services {
			uuid := lighthouse.NormalizeUUID(svc.UUID.String())
			l.services[uuid] = svc
			uuids = append(uuids, uuid)
		}
		l.stateMu.Unlock()

		r.logger.WithFields(logrus.Fields{
			"hw":       hw,
			"services": len(uuids),
		}).Debug("Services discovered")
		r.events.ServicesDiscovered(hw, uuids)
	}, failed)
}

// DiscoverCharacteristics enumerates the characteristics of one service.
// Descriptors are discovered too, so subscriptions can find the CCCD.
func (r *Radio) DiscoverCharacteristics(hw, service string) {
	failed := func(err error) { r.events.DiscoveryFailed(hw, service, err) }

	r.gatt(hw, "ble-discover-characteristics", func(l *link, client ble.Client) {
		l.stateMu.Lock()
		svc, ok := l.services[lighthouse.NormalizeUUID(service)]
		l.stateMu.Unlock()
		if !ok {
			failed(ErrUnknownService)
			return
		}

		chars, err := withTimeout(r.operationTimeout, func() ([]*ble.Characteristic, error) {
			return client.DiscoverCharacteristics(nil, svc)
		})
		if err != nil {
			failed(NormalizeError(err))
			return
		}

		uuids := make([]string, 0, len(chars))
		for _, c := range chars {
			uuid := lighthouse.NormalizeUUID(c.UUID.String())
			if _, err := withTimeout(r.operationTimeout, func() ([]*ble.Descriptor, error) {
				return client.DiscoverDescriptors(nil, c)
			}); err != nil {
				r.logger.WithFields(logrus.Fields{
					"hw":   hw,
					"char": uuid,
				}).WithError(err).Debug("Descriptor discovery failed")
			}

			l.stateMu.Lock()
			l.characteristics[uuid] = c
			l.stateMu.Unlock()
			uuids = append(uuids, uuid)
		}

		r.events.CharacteristicsDiscovered(hw, lighthouse.NormalizeUUID(service), uuids)
	}, failed)
}

// Subscribe enables notifications; values arrive as ValueUpdated
func (r *Radio) Subscribe(hw, characteristic string) {
	logger := r.logger.WithFields(logrus.Fields{"hw": hw, "char": characteristic})
	failed := func(err error) { logger.WithError(err).Warn("Failed to subscribe to characteristic") }

	r.gatt(hw, "ble-subscribe", func(l *link, client ble.Client) {
		c, ok := l.characteristic(characteristic)
		if !ok {
			failed(ErrUnknownCharacteristic)
			return
		}

		uuid := lighthouse.NormalizeUUID(characteristic)
		_, err := withTimeout(r.operationTimeout, func() (struct{}, error) {
			return struct{}{}, client.Subscribe(c, false, func(data []byte) {
				r.events.ValueUpdated(hw, uuid, data)
			})
		})
		if err != nil {
			failed(NormalizeError(err))
			return
		}
		logger.Debug("Subscribed to characteristic")
	}, failed)
}

// Read requests the current value; it arrives as ValueUpdated
func (r *Radio) Read(hw, characteristic string) {
	logger := r.logger.WithFields(logrus.Fields{"hw": hw, "char": characteristic})
	failed := func(err error) { logger.WithError(err).Warn("Failed to read characteristic") }

	r.gatt(hw, "ble-read", func(l *link, client ble.Client) {
		c, ok := l.characteristic(characteristic)
		if !ok {
			failed(ErrUnknownCharacteristic)
			return
		}

		data, err := withTimeout(r.operationTimeout, func() ([]byte, error) {
			return client.ReadCharacteristic(c)
		})
		if err != nil {
			failed(NormalizeError(err))
			return
		}
		r.events.ValueUpdated(hw, lighthouse.NormalizeUUID(characteristic), data)
	}, failed)
}

// Write sends data to a characteristic. With confirmed set the peripheral
// must acknowledge the write before WriteAcknowledged is reported.
func (r *Radio) Write(hw, characteristic string, data []byte, confirmed bool) {
	data = append([]byte(nil), data...)
	uuid := lighthouse.NormalizeUUID(characteristic)
	failed := func(err error) { r.events.WriteFailed(hw, uuid, err) }

	r.gatt(hw, "ble-write", func(l *link, client ble.Client) {
		c, ok := l.characteristic(uuid)
		if !ok {
			failed(ErrUnknownCharacteristic)
			return
		}

		_, err := withTimeout(r.operationTimeout, func() (struct{}, error) {
			return struct{}{}, client.WriteCharacteristic(c, data, !confirmed)
		})
		if err != nil {
			failed(NormalizeError(err))
			return
		}
		r.events.WriteAcknowledged(hw, uuid)
	}, failed)
}

// withTimeout runs fn and gives up waiting after d. go-ble calls take no
// context, so an abandoned call keeps running until the stack returns.
func withTimeout[T any](d time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)

	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()

	select {
	case res := <-ch:
		return res.v, res.err
	case <-time.After(d):
		var zero T
		return zero, fmt.Errorf("%w after %v", ErrTimeout, d)
	}
}
