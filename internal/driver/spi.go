package driver

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"

	"ledstrip-controller/internal/color"
)

// nrzled encodes each WS2812 bit as three SPI bits and only accepts this
// clock.
const nrzClock = 2500 * physic.KiloHertz

// PortOpener opens a SPI port by name.
type PortOpener func(name string) (spi.PortCloser, error)

func openHostPort(name string) (spi.PortCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "driver: periph host init")
	}
	return spireg.Open(name)
}

// SPI drives WS2812 pixels from a spidev port using NRZ encoding.
type SPI struct {
	port string
	open PortOpener

	mu     sync.Mutex
	buf    pixelBuffer
	raw    []byte
	p      spi.PortCloser
	dev    *nrzled.Dev
	logger *log.Entry
}

func NewSPI(port string) *SPI {
	return NewSPIWithOpener(port, openHostPort)
}

// NewSPIWithOpener uses open instead of the periph host registry.
func NewSPIWithOpener(port string, open PortOpener) *SPI {
	return &SPI{
		port:   port,
		open:   open,
		logger: log.WithFields(log.Fields{"component": "driver", "driver": "spi", "port": port}),
	}
}

func (s *SPI) SetLength(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.setLength(n)
}

// Init (re)creates the device for the current length. A port accepts a
// single Connect, so a resize halts the device and reopens the port.
func (s *SPI) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.releaseLocked(); err != nil {
		s.logger.WithError(err).Warn("releasing port before resize")
	}
	p, err := s.open(s.port)
	if err != nil {
		return errors.Wrapf(err, "driver: open %s", s.port)
	}
	dev, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: s.buf.pending,
		Channels:  3,
		Freq:      nrzClock,
	})
	if err != nil {
		p.Close()
		return errors.Wrapf(err, "driver: nrzled with %d pixels", s.buf.pending)
	}
	s.p = p
	s.dev = dev
	s.buf.init()
	s.raw = make([]byte, len(s.buf.pixels)*3)
	s.logger.Infof("ready: %d pixels", len(s.buf.pixels))
	return nil
}

func (s *SPI) releaseLocked() error {
	if s.dev != nil {
		if err := s.dev.Halt(); err != nil {
			s.logger.WithError(err).Warn("halt failed")
		}
		s.dev = nil
	}
	if s.p == nil {
		return nil
	}
	err := s.p.Close()
	s.p = nil
	return errors.Wrap(err, "driver: close spi port")
}

func (s *SPI) SetPixel(i int, c color.RGB) {
	s.mu.Lock()
	s.buf.set(i, c)
	s.mu.Unlock()
}

func (s *SPI) Show() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return errors.New("driver: spi not initialized")
	}
	for i, px := range s.buf.pixels {
		s.raw[i*3] = px.R
		s.raw[i*3+1] = px.G
		s.raw[i*3+2] = px.B
	}
	if _, err := s.dev.Write(s.raw); err != nil {
		return errors.Wrap(err, "driver: spi write")
	}
	return nil
}

func (s *SPI) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}
