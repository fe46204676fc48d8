package driver

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"tinygo.org/x/bluetooth"

	"ledstrip-controller/internal/color"
)

var (
	adapter = bluetooth.DefaultAdapter

	bledomServiceUUID        = mustUUID("0000fff0-0000-1000-8000-00805f9b34fb")
	bledomCharacteristicUUID = mustUUID("0000fff3-0000-1000-8000-00805f9b34fb")
	genericAccessUUID        = mustUUID("00001800-0000-1000-8000-00805f9b34fb")
	deviceNameUUID           = mustUUID("00002a00-0000-1000-8000-00805f9b34fb")
)

func mustUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// BLEDOMOptions configure the BLE link.
type BLEDOMOptions struct {
	DeviceNames       []string
	ScanTimeout       time.Duration
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	RetryDelay        time.Duration
	RateLimit         float64
	RateBurst         int
}

// BLEDOM mirrors the strip onto a single-zone ELK-BLEDOM Bluetooth
// controller. Only pixel 0 is shown; a dark frame powers the device off.
// Run must be started for anything to reach the device.
type BLEDOM struct {
	opts         BLEDOMOptions
	onConnection func(connected bool, rssi int16)

	mu   sync.Mutex
	buf  pixelBuffer
	sent mirror

	linkMu         sync.Mutex
	characteristic bluetooth.DeviceCharacteristic
	connected      bool

	disconnectChan chan struct{}
	commandChan    chan []byte
	limiter        *rate.Limiter
	logger         *log.Entry
}

func NewBLEDOM(opts BLEDOMOptions, onConnection func(connected bool, rssi int16)) *BLEDOM {
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if onConnection == nil {
		onConnection = func(bool, int16) {}
	}
	return &BLEDOM{
		opts:           opts,
		onConnection:   onConnection,
		commandChan:    make(chan []byte, opts.RateBurst*2),
		disconnectChan: make(chan struct{}, 1),
		limiter:        rate.NewLimiter(rate.Limit(opts.RateLimit), opts.RateBurst),
		logger:         log.WithFields(log.Fields{"component": "driver", "driver": "bledom"}),
	}
}

func (b *BLEDOM) SetLength(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.setLength(n)
}

func (b *BLEDOM) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.init()
	return nil
}

func (b *BLEDOM) SetPixel(i int, c color.RGB) {
	b.mu.Lock()
	b.buf.set(i, c)
	b.mu.Unlock()
}

// Show queues only what changed since the last frame.
func (b *BLEDOM) Show() error {
	b.mu.Lock()
	next := mirrorOf(b.buf.pixels)
	payloads := next.diff(b.sent)
	b.sent = next
	b.mu.Unlock()

	for _, p := range payloads {
		b.write(p)
	}
	return nil
}

func (b *BLEDOM) Close() error { return nil }

func (b *BLEDOM) write(payload []byte) {
	select {
	case b.commandChan <- payload:
	default:
		b.logger.Warnf("command queue full, dropping %x", payload)
	}
}

// resync replays the last mirrored state after a reconnect.
func (b *BLEDOM) resync() {
	b.mu.Lock()
	payloads := b.sent.diff(mirror{})
	b.mu.Unlock()

	b.write(brightnessPayload(100))
	for _, p := range payloads {
		b.write(p)
	}
}

func (b *BLEDOM) commandWriterLoop(ctx context.Context) {
	b.logger.Debug("command writer loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-b.commandChan:
			if err := b.limiter.Wait(ctx); err != nil {
				return
			}

			b.linkMu.Lock()
			char, ok := b.characteristic, b.connected
			b.linkMu.Unlock()
			if !ok {
				// Not connected; resync covers it on the next link.
				continue
			}

			if _, err := char.WriteWithoutResponse(payload); err != nil {
				b.logger.WithError(err).Warn("write failed, assuming disconnected")
				b.signalDisconnect()
			}
		}
	}
}

func (b *BLEDOM) signalDisconnect() {
	select {
	case b.disconnectChan <- struct{}{}:
	default:
	}
}

func (b *BLEDOM) setLink(char bluetooth.DeviceCharacteristic, connected bool) {
	b.linkMu.Lock()
	b.characteristic = char
	b.connected = connected
	b.linkMu.Unlock()
}

func contains(s []string, str string) bool {
	for _, v := range s {
		if v == str {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run keeps the link up until ctx is cancelled: scan, connect, discover,
// then heartbeat until the device drops.
func (b *BLEDOM) Run(ctx context.Context) {
	go b.commandWriterLoop(ctx)
	b.onConnection(false, 0)

	for ctx.Err() == nil {
		if !b.connectOnce(ctx) {
			if !sleepCtx(ctx, b.opts.RetryDelay) {
				break
			}
		}
	}
	b.logger.Info("BLE link shutting down")
}

// connectOnce runs one scan/connect/heartbeat cycle. It returns false when
// the caller should wait RetryDelay before the next attempt.
func (b *BLEDOM) connectOnce(ctx context.Context) bool {
	if err := adapter.Enable(); err != nil {
		b.logger.WithError(err).Error("failed to enable adapter")
		return false
	}

	select {
	case <-b.disconnectChan:
	default:
	}
	b.setLink(bluetooth.DeviceCharacteristic{}, false)

	b.logger.Info("scanning for BLEDOM device")
	adapter.StopScan()

	found := make(chan bluetooth.ScanResult, 1)
	go func() {
		err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if contains(b.opts.DeviceNames, result.LocalName()) {
				a.StopScan()
				select {
				case found <- result:
				default:
				}
			}
		})
		if err != nil {
			b.logger.WithError(err).Warn("scan error")
		}
	}()

	var result bluetooth.ScanResult
	scanCtx, cancelScan := context.WithTimeout(ctx, b.opts.ScanTimeout)
	select {
	case result = <-found:
		cancelScan()
		b.logger.Infof("found %s (RSSI %d)", result.LocalName(), result.RSSI)
	case <-scanCtx.Done():
		cancelScan()
		adapter.StopScan()
		b.logger.Info("scan timed out")
		return false
	}

	var device bluetooth.Device
	connectErr := make(chan error, 1)
	go func() {
		d, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
		if err == nil {
			device = d
		}
		connectErr <- err
	}()

	select {
	case err := <-connectErr:
		if err != nil {
			b.logger.WithError(err).Warn("connect failed")
			b.onConnection(false, 0)
			return false
		}
	case <-time.After(b.opts.ConnectTimeout):
		b.logger.Warn("connect timed out")
		adapter.StopScan()
		return false
	case <-ctx.Done():
		return true
	}

	type discovered struct {
		char, heartbeat bluetooth.DeviceCharacteristic
		err             error
	}
	discoverDone := make(chan discovered, 1)
	go func() {
		var d discovered
		services, err := device.DiscoverServices([]bluetooth.UUID{bledomServiceUUID})
		if err != nil || len(services) == 0 {
			d.err = errNoService(err)
			discoverDone <- d
			return
		}
		chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bledomCharacteristicUUID})
		if err != nil || len(chars) == 0 {
			d.err = errNoService(err)
			discoverDone <- d
			return
		}
		d.char = chars[0]

		// The heartbeat reads the GAP device name when the device has it.
		if ga, _ := device.DiscoverServices([]bluetooth.UUID{genericAccessUUID}); len(ga) > 0 {
			if names, _ := ga[0].DiscoverCharacteristics([]bluetooth.UUID{deviceNameUUID}); len(names) > 0 {
				d.heartbeat = names[0]
			}
		}
		discoverDone <- d
	}()

	var d discovered
	select {
	case d = <-discoverDone:
		if d.err != nil {
			b.logger.WithError(d.err).Warn("service discovery failed")
			device.Disconnect()
			return false
		}
	case <-time.After(b.opts.ConnectTimeout):
		b.logger.Warn("service discovery timed out")
		device.Disconnect()
		return false
	case <-ctx.Done():
		device.Disconnect()
		return true
	}

	b.setLink(d.char, true)
	b.onConnection(true, result.RSSI)
	b.logger.Infof("connected to %s", result.LocalName())
	b.resync()

	heartbeat := time.NewTicker(b.opts.HeartbeatInterval)
	defer heartbeat.Stop()
	scratch := make([]byte, 20)
	for {
		select {
		case <-heartbeat.C:
			if d.heartbeat.UUID() == (bluetooth.UUID{}) {
				continue
			}
			if _, err := d.heartbeat.Read(scratch); err != nil {
				b.logger.WithError(err).Warn("heartbeat failed")
				b.signalDisconnect()
			}
		case <-b.disconnectChan:
			b.logger.Info("link lost, reconnecting")
			b.setLink(bluetooth.DeviceCharacteristic{}, false)
			b.onConnection(false, 0)
			if err := device.Disconnect(); err != nil {
				b.logger.WithError(err).Debug("disconnect")
			}
			return false
		case <-ctx.Done():
			b.setLink(bluetooth.DeviceCharacteristic{}, false)
			device.Disconnect()
			return true
		}
	}
}

func errNoService(cause error) error {
	if cause == nil {
		return errors.New("BLEDOM service or characteristic not found")
	}
	return errors.Wrap(cause, "BLEDOM discovery")
}
