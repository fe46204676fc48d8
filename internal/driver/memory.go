package driver

import (
	"sync"

	"ledstrip-controller/internal/color"
)

// Memory keeps the strip in process memory. It backs tests and headless runs.
type Memory struct {
	mu    sync.Mutex
	buf   pixelBuffer
	shown []color.RGB
	shows int
	inits int
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) SetLength(n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.setLength(n)
}

func (m *Memory) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf.init()
	m.shown = nil
	m.inits++
	return nil
}

func (m *Memory) SetPixel(i int, c color.RGB) {
	m.mu.Lock()
	m.buf.set(i, c)
	m.mu.Unlock()
}

// Show latches the buffer; Pixels reports what was latched.
func (m *Memory) Show() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shown = m.buf.snapshot()
	m.shows++
	return nil
}

func (m *Memory) Close() error { return nil }

// Pixels returns the last shown frame.
func (m *Memory) Pixels() []color.RGB {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]color.RGB, len(m.shown))
	copy(out, m.shown)
	return out
}

// Len is the current buffer size.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buf.pixels)
}

func (m *Memory) Shows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shows
}

func (m *Memory) Inits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inits
}
