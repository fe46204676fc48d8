package animation

import (
	"time"

	"ledstrip-controller/internal/color"
)

// Scheduler advances the active theme by one frame per host tick. It never
// sleeps: Speed is the minimum frame period in milliseconds and a tick that
// arrives early simply produces no frame.
//
// Scheduler is not safe for concurrent use; its owner serializes access.
type Scheduler struct {
	mode    Mode
	speed   uint16
	counter uint32
	emitted bool
	last    time.Time
}

// Activate switches to mode m and restarts the frame counter, so every
// activation starts from the same visual phase.
func (s *Scheduler) Activate(m Mode, speed uint16) {
	s.mode = m
	s.speed = speed
	s.counter = 0
	s.emitted = false
	s.last = time.Time{}
}

// Stop returns the scheduler to the idle Static mode.
func (s *Scheduler) Stop() {
	s.Activate(Static, s.speed)
}

// Mode returns the mode the scheduler is animating.
func (s *Scheduler) Mode() Mode {
	return s.mode
}

// Active reports whether an animation is running.
func (s *Scheduler) Active() bool {
	return !s.mode.IsStatic()
}

// Counter returns the index of the next frame Tick will emit.
func (s *Scheduler) Counter() uint32 {
	return s.counter
}

// Period is the advisory delay between two frames.
func (s *Scheduler) Period() time.Duration {
	return time.Duration(s.speed) * time.Millisecond
}

// Tick computes the next frame when the scheduler is active and the frame
// period has elapsed, then advances the counter. ok is false when there is
// nothing to show.
func (s *Scheduler) Tick(now time.Time, p Params) (frame []color.RGB, ok bool) {
	if !s.Active() || p.Length <= 0 {
		return nil, false
	}
	if s.emitted && now.Sub(s.last) < s.Period() {
		return nil, false
	}
	frame = Frame(s.mode.Theme(), s.counter, p)
	s.counter++
	s.emitted = true
	s.last = now
	return frame, true
}

// Current recomputes the most recently emitted frame, or frame 0 when the
// animation was just activated. It does not advance the counter.
func (s *Scheduler) Current(p Params) []color.RGB {
	if !s.Active() {
		return nil
	}
	var n uint32
	if s.emitted {
		n = s.counter - 1
	}
	return Frame(s.mode.Theme(), n, p)
}
