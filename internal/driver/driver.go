// Package driver provides the pixel driver backends a strip controller
// writes frames through.
package driver

import (
	"context"

	"github.com/pkg/errors"

	"ledstrip-controller/internal/color"
	"ledstrip-controller/internal/config"
)

// Driver owns the output buffer of a strip. SetLength is only applied by the
// following Init; SetPixel ignores indexes outside the buffer.
type Driver interface {
	SetLength(n int) error
	Init() error
	SetPixel(i int, c color.RGB)
	Show() error
	Close() error
}

// Runner is implemented by drivers that keep a background connection.
type Runner interface {
	Run(ctx context.Context)
}

// Hooks let the agent observe driver activity.
type Hooks struct {
	// OnFrame receives a copy of every shown frame (web driver).
	OnFrame func(frame []color.RGB)
	// OnConnection reports link changes (bledom driver).
	OnConnection func(connected bool, rssi int16)
}

// ErrUnknownType is returned by New for an unsupported backend name.
var ErrUnknownType = errors.New("driver: unknown type")

// New builds the backend selected by cfg.Strip.Driver.Type.
func New(cfg *config.Config, hooks Hooks) (Driver, error) {
	d := cfg.Strip.Driver
	switch d.Type {
	case config.DriverMemory, "":
		return NewMemory(), nil
	case config.DriverWeb:
		return NewWeb(hooks.OnFrame), nil
	case config.DriverOPC:
		return NewOPC(d.OPC.Address, d.OPC.Channel), nil
	case config.DriverSPI:
		return NewSPI(d.SPI.Port), nil
	case config.DriverBLEDOM:
		return NewBLEDOM(BLEDOMOptions{
			DeviceNames:       cfg.BLE.DeviceNames,
			ScanTimeout:       config.Duration(cfg.BLE.ScanTimeout),
			ConnectTimeout:    config.Duration(cfg.BLE.ConnectTimeout),
			HeartbeatInterval: config.Duration(cfg.BLE.HeartbeatInterval),
			RetryDelay:        config.Duration(cfg.BLE.RetryDelay),
			RateLimit:         cfg.BLE.RateLimit,
			RateBurst:         cfg.BLE.RateBurst,
		}, hooks.OnConnection), nil
	}
	return nil, errors.Wrapf(ErrUnknownType, "%q", d.Type)
}

// pixelBuffer is the shared sizing logic of the buffered backends.
type pixelBuffer struct {
	pending int
	pixels  []color.RGB
}

func (b *pixelBuffer) setLength(n int) error {
	if n <= 0 {
		return errors.Errorf("driver: invalid length %d", n)
	}
	b.pending = n
	return nil
}

func (b *pixelBuffer) init() {
	if len(b.pixels) == b.pending {
		for i := range b.pixels {
			b.pixels[i] = color.Black
		}
		return
	}
	b.pixels = make([]color.RGB, b.pending)
}

func (b *pixelBuffer) set(i int, c color.RGB) {
	if i >= 0 && i < len(b.pixels) {
		b.pixels[i] = c
	}
}

func (b *pixelBuffer) snapshot() []color.RGB {
	out := make([]color.RGB, len(b.pixels))
	copy(out, b.pixels)
	return out
}
