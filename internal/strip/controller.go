// Package strip holds the device state machine of one addressable LED strip
// and the controller that renders it through a pixel driver.
package strip

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ledstrip-controller/internal/animation"
	"ledstrip-controller/internal/codec"
	"ledstrip-controller/internal/color"
)

// ErrNotInitialized is returned by operations that need Init first.
var ErrNotInitialized = errors.New("strip: controller not initialized")

// PixelDriver owns the physical output of a strip. SetLength takes effect on
// the next Init.
type PixelDriver interface {
	SetLength(n int) error
	Init() error
	SetPixel(i int, c color.RGB)
	Show() error
	Close() error
}

// Reporter receives status lines such as "kitchen on".
type Reporter interface {
	Send(text string) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(text string) error

func (f ReporterFunc) Send(text string) error { return f(text) }

// Device is the narrow capability a host integration drives.
type Device interface {
	Init() error
	HandleCommand(text string) error
	Refresh() error
	Tick(now time.Time) error
}

// Options configure a Controller.
type Options struct {
	Name       string
	Pin        int
	Length     int
	Brightness uint8
	Color      color.RGB
}

// Controller serializes state changes, animation frames and driver writes
// for one strip. All methods are safe for concurrent use.
type Controller struct {
	name string
	pin  int

	mu          sync.Mutex
	state       State
	frame       []color.RGB
	driver      PixelDriver
	scheduler   animation.Scheduler
	initialized bool

	reporters []Reporter
	logger    *log.Entry
}

var _ Device = (*Controller)(nil)

// NewController creates a powered-off controller in Static mode.
func NewController(opts Options, driver PixelDriver, reporters ...Reporter) *Controller {
	return &Controller{
		name: opts.Name,
		pin:  opts.Pin,
		state: State{
			Color:      opts.Color,
			Mode:       animation.Static,
			LastMode:   animation.Static,
			Length:     opts.Length,
			Brightness: opts.Brightness,
		},
		driver:    driver,
		reporters: reporters,
		logger:    log.WithFields(log.Fields{"component": "strip", "device": opts.Name}),
	}
}

// Init sizes and initializes the driver, draws the initial state and sends
// the first status report.
func (c *Controller) Init() error {
	c.mu.Lock()
	if c.state.Length <= 0 {
		c.mu.Unlock()
		return errors.Errorf("strip: invalid length %d", c.state.Length)
	}
	if err := c.reinitLocked(c.state.Length); err != nil {
		c.mu.Unlock()
		return err
	}
	c.initialized = true
	err := c.renderLocked()
	status := c.statusLocked()
	c.mu.Unlock()

	c.report(status)
	c.logger.Infof("initialized: %d pixels on pin %d", c.Length(), c.pin)
	return err
}

// HandleCommand strips an optional "<name> " routing prefix, parses the
// rest, applies it and renders. A status report is sent even when the
// command is rejected.
func (c *Controller) HandleCommand(text string) error {
	cmd, err := codec.Parse(c.stripPrefix(text))
	if err != nil {
		if rerr := c.Refresh(); rerr != nil {
			return rerr
		}
		c.logger.WithError(err).Warn("rejected command")
		return err
	}
	return c.Apply(cmd)
}

// Apply runs an already parsed command.
func (c *Controller) Apply(cmd codec.Command) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	err := c.applyLocked(cmd)
	status := c.statusLocked()
	c.mu.Unlock()

	c.report(status)
	return err
}

func (c *Controller) applyLocked(cmd codec.Command) error {
	next, fx := Apply(c.state, cmd)
	if fx.Reinit {
		if err := c.reinitLocked(next.Length); err != nil {
			// Driver is still sized for the old length.
			return err
		}
	}
	c.state = next
	if fx.Activate {
		c.scheduler.Activate(next.Mode, next.Speed)
	}
	c.logger.Debugf("applied %s: power=%t mode=%s", cmd, next.Power, next.Mode)
	return c.renderLocked()
}

func (c *Controller) reinitLocked(n int) error {
	old := c.state.Length
	if err := c.driver.SetLength(n); err != nil {
		return errors.Wrapf(err, "strip: set driver length %d", n)
	}
	if err := c.driver.Init(); err != nil {
		if old > 0 && old != n {
			c.restoreLocked(old)
		}
		return errors.Wrapf(err, "strip: init driver with %d pixels", n)
	}
	c.frame = make([]color.RGB, n)
	return nil
}

// restoreLocked brings the driver back to the old length and redraws the
// unchanged state, since Init cleared the hardware buffer.
func (c *Controller) restoreLocked(old int) {
	if err := c.driver.SetLength(old); err != nil {
		c.logger.WithError(err).Error("driver restore failed")
		return
	}
	if err := c.driver.Init(); err != nil {
		c.logger.WithError(err).Error("driver restore failed")
		return
	}
	if err := c.renderLocked(); err != nil {
		c.logger.WithError(err).Warn("redraw after restore failed")
	}
}

// Tick advances the active animation by at most one frame. It is a no-op
// while the strip is dark, static or inside the frame period.
func (c *Controller) Tick(now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized || !c.state.Power || c.state.Mode.IsStatic() {
		return nil
	}
	frame, ok := c.scheduler.Tick(now, c.state.params())
	if !ok {
		return nil
	}
	return c.renderFrameLocked(frame)
}

// Refresh re-sends the status report.
func (c *Controller) Refresh() error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return ErrNotInitialized
	}
	status := c.statusLocked()
	c.mu.Unlock()

	c.report(status)
	return nil
}

// renderLocked draws the current state. Animated modes show the scheduler's
// current frame without advancing it.
func (c *Controller) renderLocked() error {
	var frame []color.RGB
	if c.state.Power && !c.state.Mode.IsStatic() {
		frame = c.scheduler.Current(c.state.params())
	}
	return c.renderFrameLocked(frame)
}

// renderFrameLocked is the only path that writes to the driver.
func (c *Controller) renderFrameLocked(frame []color.RGB) error {
	v := c.state.view()
	for i := range c.frame {
		c.frame[i] = v.PixelAt(i, frame)
	}
	for i, px := range c.frame {
		c.driver.SetPixel(i, px)
	}
	if err := c.driver.Show(); err != nil {
		return errors.Wrap(err, "strip: show")
	}
	return nil
}

// Validate reports whether text would be accepted by HandleCommand without
// applying it.
func (c *Controller) Validate(text string) error {
	_, err := codec.Parse(c.stripPrefix(text))
	return err
}

func (c *Controller) stripPrefix(text string) string {
	s := strings.TrimSpace(text)
	if c.name == "" {
		return s
	}
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i > 0 && strings.EqualFold(s[:i], c.name) {
		return strings.TrimLeftFunc(s[i:], unicode.IsSpace)
	}
	return s
}

func (c *Controller) statusLocked() string {
	if c.name == "" {
		return c.state.StatusText()
	}
	return c.name + " " + c.state.StatusText()
}

func (c *Controller) report(status string) {
	for _, r := range c.reporters {
		if err := r.Send(status); err != nil {
			c.logger.WithError(err).Warn("status report failed")
		}
	}
}

// AddReporter registers another status sink.
func (c *Controller) AddReporter(r Reporter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reporters = append(c.reporters, r)
}

// StatusText returns "on" or "off".
func (c *Controller) StatusText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.StatusText()
}

// Status returns the full report line, "<name> on|off".
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) Name() string { return c.name }
func (c *Controller) Pin() int     { return c.pin }

func (c *Controller) Length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Length
}

func (c *Controller) Power() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Power
}

func (c *Controller) Color() color.RGB {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Color
}

func (c *Controller) Mode() animation.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Mode
}

// State returns a copy of the device state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Frame returns a copy of the last rendered pixel buffer.
func (c *Controller) Frame() []color.RGB {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]color.RGB, len(c.frame))
	copy(out, c.frame)
	return out
}

// Snapshot returns the serializable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	return Snapshot{
		Name:       c.name,
		Pin:        c.pin,
		Power:      s.Power,
		Color:      s.Color.Hex(),
		Mode:       s.Mode.String(),
		Theme:      uint8(s.Mode.Theme()),
		LastMode:   s.LastMode.String(),
		Speed:      s.Speed,
		Length:     s.Length,
		Brightness: s.Brightness,
	}
}

// Close darkens the strip and releases the driver.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scheduler.Stop()
	if c.initialized {
		for i := range c.frame {
			c.frame[i] = color.Black
			c.driver.SetPixel(i, color.Black)
		}
		if err := c.driver.Show(); err != nil {
			c.logger.WithError(err).Warn("final blank failed")
		}
		c.initialized = false
	}
	return c.driver.Close()
}
