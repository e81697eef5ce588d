// Package input implements a driver for a serial gamepad with a latch,
// a clock and a data line, such as the SNES controller. The protocol is
// clocked in small steps, one per blanking line, so that reading the
// gamepad never delays the visible lines.
package input

import (
	"fmt"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/bcm283x"
)

type Event struct {
	Button  Button
	Pressed bool
}

type Button int

// Buttons in shift order.
const (
	B Button = iota
	Y
	Select
	Start
	Up
	Down
	Left
	Right
	A
	X
	L
	R
	buttonCount = 16
)

func (b Button) String() string {
	switch b {
	case B:
		return "b"
	case Y:
		return "y"
	case Select:
		return "select"
	case Start:
		return "start"
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	case A:
		return "a"
	case X:
		return "x"
	case L:
		return "l"
	case R:
		return "r"
	default:
		return fmt.Sprintf("button%d", int(b))
	}
}

// State is the set of pressed buttons, bit n for [Button] n.
type State uint16

func (s State) Pressed(b Button) bool {
	return s&(1<<b) != 0
}

// Diff calls f for every button changed from prev to s.
func (s State) Diff(prev State, f func(Event)) {
	changed := s ^ prev
	for b := Button(0); b < buttonCount; b++ {
		if changed&(1<<b) != 0 {
			f(Event{Button: b, Pressed: s.Pressed(b)})
		}
	}
}

// Steps is the length of a read cycle. An input window of Steps lines
// reads the gamepad exactly once per frame.
const Steps = 2*buttonCount + 2

// Output is a digital output pin, such as a [gpio.PinOut].
type Output interface {
	Out(l gpio.Level) error
}

// Input is a digital input pin, such as a [gpio.PinIn].
type Input interface {
	Read() gpio.Level
}

// Gamepad reads a gamepad one protocol step at a time.
type Gamepad struct {
	latch Output
	clock Output
	data  Input

	step  int
	shift State
	state atomic.Uint32
	reads atomic.Uint32
	err   atomic.Pointer[error]
}

func NewGamepad(latch, clock Output, data Input) *Gamepad {
	return &Gamepad{latch: latch, clock: clock, data: data}
}

// Step advances the read cycle by one step. It is meant to be called
// once per blanking line.
func (g *Gamepad) Step() {
	s := g.step
	g.step++
	if g.step == Steps {
		g.step = 0
	}
	switch {
	case s == 0:
		g.out(g.latch, gpio.High)
	case s == 1:
		g.out(g.latch, gpio.Low)
		g.shift = 0
		g.sample(0)
	case s < 2*buttonCount:
		if s%2 == 0 {
			g.out(g.clock, gpio.High)
		} else {
			g.out(g.clock, gpio.Low)
			g.sample(Button(s / 2))
		}
	case s == 2*buttonCount:
		g.state.Store(uint32(g.shift))
		g.reads.Add(1)
	}
}

func (g *Gamepad) sample(b Button) {
	// Buttons pull the data line low.
	if g.data.Read() == gpio.Low {
		g.shift |= 1 << b
	}
}

func (g *Gamepad) out(p Output, l gpio.Level) {
	if err := p.Out(l); err != nil {
		g.err.CompareAndSwap(nil, &err)
	}
}

// State returns the buttons pressed at the last completed read.
func (g *Gamepad) State() State {
	return State(g.state.Load())
}

// Reads returns the number of completed reads.
func (g *Gamepad) Reads() uint32 {
	return g.reads.Load()
}

// Err returns the first pin error, if any.
func (g *Gamepad) Err() error {
	if err := g.err.Load(); err != nil {
		return *err
	}
	return nil
}

// OpenPi returns a gamepad connected to the latch, clock and data
// pins of a Raspberry Pi.
func OpenPi() (*Gamepad, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	latch, clock, data := bcm283x.GPIO17, bcm283x.GPIO27, bcm283x.GPIO22
	for _, p := range []gpio.PinOut{latch, clock} {
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("input: %s: %w", p, err)
		}
	}
	if err := data.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("input: %s: %w", data, err)
	}
	return NewGamepad(latch, clock, data), nil
}
