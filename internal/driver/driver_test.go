package driver

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"ledstrip-controller/internal/color"
	"ledstrip-controller/internal/config"
)

func TestMemoryLengthAppliesOnInit(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SetLength(4))
	require.NoError(t, m.Init())
	assert.Equal(t, 4, m.Len())

	require.NoError(t, m.SetLength(8))
	assert.Equal(t, 4, m.Len(), "resize waits for Init")
	require.NoError(t, m.Init())
	assert.Equal(t, 8, m.Len())
	assert.Equal(t, 2, m.Inits())

	assert.Error(t, m.SetLength(0))
}

func TestMemoryShowLatches(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SetLength(3))
	require.NoError(t, m.Init())

	m.SetPixel(0, color.White)
	m.SetPixel(7, color.White)
	assert.Empty(t, m.Pixels(), "nothing shown yet")

	require.NoError(t, m.Show())
	assert.Equal(t, []color.RGB{color.White, color.Black, color.Black}, m.Pixels())
	assert.Equal(t, 1, m.Shows())
}

func TestWebForwardsFrames(t *testing.T) {
	var got []color.RGB
	w := NewWeb(func(frame []color.RGB) { got = frame })
	require.NoError(t, w.SetLength(2))
	require.NoError(t, w.Init())
	w.SetPixel(1, color.RGB{B: 7})
	require.NoError(t, w.Show())
	assert.Equal(t, []color.RGB{color.Black, {B: 7}}, got)
}

func TestOPCSendsSetPixelMessage(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4+2*3)
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, err := io.ReadFull(conn, buf); err == nil {
			received <- buf
		}
	}()

	o := NewOPC(ln.Addr().String(), 3)
	require.NoError(t, o.SetLength(2))
	require.NoError(t, o.Init())
	o.SetPixel(0, color.RGB{R: 1, G: 2, B: 3})
	o.SetPixel(1, color.RGB{R: 4, G: 5, B: 6})
	require.NoError(t, o.Show())

	select {
	case msg := <-received:
		assert.Equal(t, []byte{3, 0, 0, 6, 1, 2, 3, 4, 5, 6}, msg)
	case <-time.After(5 * time.Second):
		t.Fatal("no OPC message received")
	}
	require.NoError(t, o.Close())
}

func TestOPCRedialIsPaced(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	o := NewOPC(addr, 0)
	require.NoError(t, o.SetLength(1))
	require.NoError(t, o.Init(), "an absent server is retried on Show")
	assert.Error(t, o.Show())
	assert.Equal(t, 2, o.attempts)

	for i := 0; i < 50; i++ {
		require.NoError(t, o.Show(), "frames are dropped until the next redial")
	}
	assert.Equal(t, 2, o.attempts, "redials are paced")
}

func TestBLEDOMMirror(t *testing.T) {
	dark := mirrorOf([]color.RGB{color.Black, color.Black})
	assert.False(t, dark.on)

	lit := mirrorOf([]color.RGB{{R: 9}, color.Black})
	assert.True(t, lit.on)
	assert.Equal(t, color.RGB{R: 9}, lit.color)

	assert.Equal(t, [][]byte{powerPayload(true), colorPayload(color.RGB{R: 9})}, lit.diff(mirror{}))
	assert.Empty(t, lit.diff(lit), "unchanged frames send nothing")
	assert.Equal(t, [][]byte{powerPayload(false)}, dark.diff(lit))

	blue := mirrorOf([]color.RGB{{B: 1}})
	assert.Equal(t, [][]byte{colorPayload(color.RGB{B: 1})}, blue.diff(lit))
}

func TestBLEDOMPayloads(t *testing.T) {
	assert.Equal(t, []byte{0x7E, 0x04, 0x04, 0x01, 0x00, 0x01, 0xFF, 0x00, 0xEF}, powerPayload(true))
	assert.Equal(t, []byte{0x7E, 0x07, 0x05, 0x03, 0x10, 0x20, 0x30, 0x10, 0xEF}, colorPayload(color.RGB{R: 0x10, G: 0x20, B: 0x30}))
	assert.Equal(t, byte(100), brightnessPayload(200)[3])
}

func TestBLEDOMShowQueuesChanges(t *testing.T) {
	b := NewBLEDOM(BLEDOMOptions{RateLimit: 10, RateBurst: 4}, nil)
	require.NoError(t, b.SetLength(3))
	require.NoError(t, b.Init())
	b.SetPixel(0, color.RGB{G: 50})
	require.NoError(t, b.Show())
	require.NoError(t, b.Show())
	assert.Len(t, b.commandChan, 2, "power on and color, then nothing for the repeat")
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := config.Default()
	d, err := New(cfg, Hooks{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, d)

	cfg.Strip.Driver.Type = config.DriverWeb
	d, err = New(cfg, Hooks{})
	require.NoError(t, err)
	assert.IsType(t, &Web{}, d)

	cfg.Strip.Driver.Type = config.DriverOPC
	d, err = New(cfg, Hooks{})
	require.NoError(t, err)
	assert.IsType(t, &OPC{}, d)

	cfg.Strip.Driver.Type = config.DriverBLEDOM
	d, err = New(cfg, Hooks{})
	require.NoError(t, err)
	_, ok := d.(Runner)
	assert.True(t, ok)

	cfg.Strip.Driver.Type = "dmx"
	_, err = New(cfg, Hooks{})
	assert.True(t, errors.Is(err, ErrUnknownType))
}

// fakeSPIPort accepts a single Connect per open, as sysfs spidev does.
type fakeSPIPort struct {
	name     string
	freq     physic.Frequency
	connects int
	closed   bool
	writes   [][]byte
}

func (p *fakeSPIPort) String() string                    { return p.name }
func (p *fakeSPIPort) LimitSpeed(physic.Frequency) error { return nil }

func (p *fakeSPIPort) Close() error {
	p.closed = true
	return nil
}

func (p *fakeSPIPort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if p.closed {
		return nil, errors.New("port closed")
	}
	if p.connects > 0 {
		return nil, errors.New("Connect() can only be called exactly once")
	}
	p.connects++
	p.freq = f
	return &fakeSPIConn{port: p}, nil
}

type fakeSPIConn struct{ port *fakeSPIPort }

func (c *fakeSPIConn) String() string               { return c.port.name }
func (c *fakeSPIConn) Duplex() conn.Duplex          { return conn.Half }
func (c *fakeSPIConn) TxPackets([]spi.Packet) error { return nil }

func (c *fakeSPIConn) Tx(w, r []byte) error {
	c.port.writes = append(c.port.writes, append([]byte(nil), w...))
	return nil
}

func TestSPIInitResizeShowClose(t *testing.T) {
	var ports []*fakeSPIPort
	s := NewSPIWithOpener("spidev-test", func(name string) (spi.PortCloser, error) {
		p := &fakeSPIPort{name: name}
		ports = append(ports, p)
		return p, nil
	})
	assert.Error(t, s.Show(), "show before init")

	require.NoError(t, s.SetLength(10))
	require.NoError(t, s.Init())
	require.Len(t, ports, 1)
	assert.Equal(t, 2500*physic.KiloHertz, ports[0].freq)

	s.SetPixel(0, color.RGB{R: 255})
	require.NoError(t, s.Show())
	require.Len(t, ports[0].writes, 1)
	w := ports[0].writes[0]
	// 3 latch bytes, 4 SPI bytes per color byte in GRB order, 3 latch bytes.
	require.Len(t, w, 3+10*3*4+3)
	assert.Equal(t, []byte{0x88, 0x88, 0x88, 0x88}, w[3:7], "green 0")
	assert.Equal(t, []byte{0xEE, 0xEE, 0xEE, 0xEE}, w[7:11], "red 255")

	require.NoError(t, s.SetLength(30))
	require.NoError(t, s.Init(), "resize reopens the port")
	require.Len(t, ports, 2)
	assert.True(t, ports[0].closed)
	assert.Len(t, ports[0].writes, 2, "old device halted before close")
	assert.Equal(t, 1, ports[1].connects)

	s.SetPixel(29, color.White)
	require.NoError(t, s.Show())
	require.Len(t, ports[1].writes, 1)
	assert.Len(t, ports[1].writes[0], 3+30*3*4+3)

	require.NoError(t, s.Close())
	assert.True(t, ports[1].closed)
	assert.Len(t, ports[1].writes, 2, "close blanks via halt")
	assert.Error(t, s.Show())
}

func TestSPIOpenFailure(t *testing.T) {
	s := NewSPIWithOpener("missing", func(string) (spi.PortCloser, error) {
		return nil, errors.New("no such device")
	})
	require.NoError(t, s.SetLength(4))
	assert.Error(t, s.Init())
	assert.NoError(t, s.Close())
}
