package input

import (
	"errors"
	"slices"
	"testing"

	"periph.io/x/conn/v3/gpio"
)

func TestRead(t *testing.T) {
	for _, pressed := range []State{0, 1 << Start, 1<<A | 1<<Left, 0xffff, 1 << 15} {
		v := new(Virtual)
		v.Press(pressed)
		g := v.Gamepad()
		for range Steps {
			g.Step()
		}
		if g.Reads() != 1 || v.Latches() != 1 {
			t.Fatalf("%d reads, %d latches in a cycle", g.Reads(), v.Latches())
		}
		if got := g.State(); got != pressed {
			t.Errorf("read %#04x, want %#04x", got, pressed)
		}
	}
}

func TestStateHeld(t *testing.T) {
	v := new(Virtual)
	v.Press(1 << B)
	g := v.Gamepad()
	for range 2*buttonCount + 1 {
		g.Step()
	}
	v.Press(1 << Y)
	// The state is only updated at the end of a cycle.
	for range Steps {
		if !g.State().Pressed(B) {
			t.Fatal("state changed mid cycle")
		}
		g.Step()
	}
	if s := g.State(); s != 1<<Y {
		t.Errorf("state %#04x after second read", s)
	}
}

func TestPressMidCycle(t *testing.T) {
	v := new(Virtual)
	g := v.Gamepad()
	g.Step()
	// Presses after the latch are not seen until the next cycle.
	v.Press(1 << A)
	for range Steps - 1 {
		g.Step()
	}
	if s := g.State(); s != 0 {
		t.Errorf("state %#04x", s)
	}
	for range Steps {
		g.Step()
	}
	if s := g.State(); s != 1<<A {
		t.Errorf("state %#04x", s)
	}
}

func TestDiff(t *testing.T) {
	var events []Event
	State(1<<A|1<<Up).Diff(1<<Up|1<<Start, func(e Event) {
		events = append(events, e)
	})
	want := []Event{{Start, false}, {A, true}}
	if !slices.Equal(events, want) {
		t.Errorf("events %v, want %v", events, want)
	}
}

type failingPin struct {
	err error
}

func (p failingPin) Out(l gpio.Level) error {
	return p.err
}

func TestPinError(t *testing.T) {
	v := new(Virtual)
	fail := errors.New("pin failure")
	g := NewGamepad(v.Latch(), failingPin{fail}, v)
	for range Steps {
		g.Step()
	}
	if err := g.Err(); !errors.Is(err, fail) {
		t.Errorf("error %v", err)
	}
}
