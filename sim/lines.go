package sim

import (
	"sync"
	"sync/atomic"
	"time"
)

// Pin records the levels driven on an output line. OnSet, when set, runs
// on every change.
type Pin struct {
	mu     sync.Mutex
	levels []bool
	OnSet  func(high bool)
}

func (p *Pin) Set(high bool) error {
	p.mu.Lock()
	p.levels = append(p.levels, high)
	cb := p.OnSet
	p.mu.Unlock()
	if cb != nil {
		cb(high)
	}
	return nil
}

// Levels returns every level driven so far.
func (p *Pin) Levels() []bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]bool(nil), p.levels...)
}

// Level returns the current level, low before the first Set.
func (p *Pin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.levels) > 0 && p.levels[len(p.levels)-1]
}

// LdacPin is a Pin wired to the LDAC input of a simulated chip: every
// edge latches the DAC codes.
func LdacPin(c *Chips, chipIdx uint8) *Pin {
	return &Pin{OnSet: func(bool) { c.Latch(chipIdx) }}
}

// PWM records the configuration of a PWM channel.
type PWM struct {
	mu      sync.Mutex
	Period  time.Duration
	Pulse   time.Duration
	Enabled bool
	Updates int
}

func (p *PWM) Configure(period, pulse time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Period, p.Pulse = period, pulse
	p.Updates++
	return nil
}

func (p *PWM) Enable(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Enabled = on
	return nil
}

// Clock advances by Step microseconds on every read, so bounded spins
// terminate without real time passing.
type Clock struct {
	now  atomic.Uint32
	Step uint32
}

func NewClock(step uint32) *Clock {
	return &Clock{Step: step}
}

func (c *Clock) Micros() uint32 {
	return c.now.Add(c.Step) - c.Step
}

// Advance moves the clock forward by us microseconds.
func (c *Clock) Advance(us uint32) {
	c.now.Add(us)
}
