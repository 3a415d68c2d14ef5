// Package progress animates a synthetic completion percentage while a
// server-side job is outstanding. The value is a heuristic, not a
// measurement: it climbs quickly, slows down, then holds below 100 until
// the caller stops it with the final value.
package progress

import (
	"sync"
	"time"

	"github.com/fpang/docflow/internal/clock"
)

const (
	// StartValue is shown as soon as the simulator starts.
	StartValue = 5
	// TickInterval is the cadence of automatic increments.
	TickInterval = 800 * time.Millisecond

	fastUntil = 50
	holdAt    = 90
	fastStep  = 5
	slowStep  = 2
)

// Next returns the value following v: +5 below 50, +2 below 90, then hold.
// Increments never jump past a threshold.
func Next(v int) int {
	switch {
	case v >= holdAt:
		return v
	case v < fastUntil:
		return min(v+fastStep, fastUntil)
	default:
		return min(v+slowStep, holdAt)
	}
}

// Simulator drives Next on a fixed cadence. At most one tick chain is
// active; Start cancels any previous one.
type Simulator struct {
	clock    clock.Clock
	onChange func(int)

	mu      sync.Mutex
	value   int
	timer   clock.Timer
	gen     uint64
	running bool
}

// New creates a stopped simulator. onChange, if non-nil, receives every
// value produced by a tick. It is called without internal locks held.
func New(c clock.Clock, onChange func(int)) *Simulator {
	return &Simulator{clock: c, onChange: onChange}
}

// Start resets the value to StartValue and begins ticking.
func (s *Simulator) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.value = StartValue
	s.running = true
	s.scheduleLocked(s.gen)
}

// Stop cancels ticking and pins the value to final.
func (s *Simulator) Stop(final int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.value = final
}

// Value returns the current value.
func (s *Simulator) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Running reports whether a tick chain is active.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Simulator) stopLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.running = false
	s.gen++
}

func (s *Simulator) scheduleLocked(gen uint64) {
	s.timer = s.clock.AfterFunc(TickInterval, func() { s.tick(gen) })
}

func (s *Simulator) tick(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || !s.running {
		s.mu.Unlock()
		return
	}
	s.value = Next(s.value)
	v := s.value
	s.scheduleLocked(gen)
	s.mu.Unlock()

	if s.onChange != nil {
		s.onChange(v)
	}
}
