package input

import (
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
)

// Virtual is a software model of a gamepad shift register, for
// simulation and tests.
type Virtual struct {
	pressed atomic.Uint32
	latched State
	latch   gpio.Level
	clock   gpio.Level
	bit     int
	latches int
}

// Press sets the pressed buttons.
func (v *Virtual) Press(s State) {
	v.pressed.Store(uint32(s))
}

// Latch returns the latch pin.
func (v *Virtual) Latch() Output {
	return virtualPin(func(l gpio.Level) {
		if l == gpio.High && v.latch == gpio.Low {
			v.latched = State(v.pressed.Load())
			v.bit = 0
			v.latches++
		}
		v.latch = l
	})
}

// Clock returns the clock pin.
func (v *Virtual) Clock() Output {
	return virtualPin(func(l gpio.Level) {
		if l == gpio.High && v.clock == gpio.Low && v.latch == gpio.Low {
			v.bit++
		}
		v.clock = l
	})
}

// Read implements the data pin. It reads low for a pressed button.
func (v *Virtual) Read() gpio.Level {
	if v.bit < buttonCount && v.latched.Pressed(Button(v.bit)) {
		return gpio.Low
	}
	return gpio.High
}

// Latches returns the number of latch pulses.
func (v *Virtual) Latches() int {
	return v.latches
}

// Gamepad returns a gamepad reading v.
func (v *Virtual) Gamepad() *Gamepad {
	return NewGamepad(v.Latch(), v.Clock(), v)
}

type virtualPin func(l gpio.Level)

func (p virtualPin) Out(l gpio.Level) error {
	p(l)
	return nil
}
