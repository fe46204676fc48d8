package driver

import (
	"sync"
	"time"

	"github.com/kellydunn/go-opc"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"ledstrip-controller/internal/color"
)

// OPC streams frames to an Open Pixel Control server such as a Fadecandy.
// The connection is opened lazily and re-dialed after a failed send, at most
// once per opcRedialInterval; frames shown in between are dropped.
type OPC struct {
	address string
	channel uint8

	mu        sync.Mutex
	buf       pixelBuffer
	client    *opc.Client
	connected bool
	msg       *opc.Message
	redial    *rate.Limiter
	attempts  int
	logger    *log.Entry
}

const opcRedialInterval = time.Second

func NewOPC(address string, channel uint8) *OPC {
	return &OPC{
		address: address,
		channel: channel,
		redial:  rate.NewLimiter(rate.Every(opcRedialInterval), 1),
		logger:  log.WithFields(log.Fields{"component": "driver", "driver": "opc", "address": address}),
	}
}

func (o *OPC) SetLength(n int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n*3 > 0xFFFF {
		return errors.Errorf("driver: %d pixels exceed one OPC message", n)
	}
	return o.buf.setLength(n)
}

// Init sizes the message. An unreachable server is not fatal here; Show
// retries the connection.
func (o *OPC) Init() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.buf.init()
	o.msg = opc.NewMessage(o.channel)
	o.msg.SetLength(uint16(len(o.buf.pixels) * 3))
	if err := o.connectLocked(); err != nil {
		o.logger.WithError(err).Warn("OPC server not reachable yet")
	}
	return nil
}

func (o *OPC) connectLocked() error {
	if o.connected {
		return nil
	}
	o.attempts++
	client := opc.NewClient()
	if err := client.Connect("tcp", o.address); err != nil {
		return errors.Wrapf(err, "driver: connect %s (attempt %d)", o.address, o.attempts)
	}
	o.client = client
	o.connected = true
	o.attempts = 0
	o.logger.Info("connected")
	return nil
}

func (o *OPC) SetPixel(i int, c color.RGB) {
	o.mu.Lock()
	o.buf.set(i, c)
	o.mu.Unlock()
}

func (o *OPC) Show() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.msg == nil {
		return errors.New("driver: opc not initialized")
	}
	if !o.connected {
		if !o.redial.Allow() {
			o.logger.Debug("server down, frame dropped")
			return nil
		}
		if err := o.connectLocked(); err != nil {
			return err
		}
	}
	for i, px := range o.buf.pixels {
		o.msg.SetPixelColor(i, px.R, px.G, px.B)
	}
	if err := o.client.Send(o.msg); err != nil {
		o.connected = false
		return errors.Wrap(err, "driver: opc send")
	}
	return nil
}

// Close forgets the connection; go-opc exposes no way to close it.
func (o *OPC) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.connected = false
	o.client = nil
	return nil
}
