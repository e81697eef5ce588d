//go:build tinygo && stm32f4

// Command firmware generates a 640x480 VGA signal on STM32F4 boards.
// The gamepad Start button cycles through the test patterns and
// diagnostics reports are sent over the serial port once a second.
package main

import (
	"context"
	"log"
	"machine"

	"periph.io/x/conn/v3/gpio"

	"rasterline.org/audio"
	"rasterline.org/diag"
	"rasterline.org/driver/stm32"
	"rasterline.org/input"
	"rasterline.org/pattern"
	"rasterline.org/scanout"
	"rasterline.org/timing"
)

// Gamepad wiring.
const (
	padLatch = machine.PC0
	padClock = machine.PC1
	padData  = machine.PC2
)

// pin adapts a machine pin to the gamepad driver.
type pin machine.Pin

func (p pin) Out(l gpio.Level) error {
	machine.Pin(p).Set(bool(l))
	return nil
}

func (p pin) Read() gpio.Level {
	return gpio.Level(machine.Pin(p).Get())
}

func main() {
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	d, err := setup()
	if err != nil {
		// Reports have not started, so the console is free.
		log.Printf("firmware: %v", err)
		select {}
	}
	serve(d)
}

// device is the running signal generator.
type device struct {
	mode     timing.Mode
	driver   *scanout.Driver
	pad      *input.Gamepad
	player   *audio.Player
	patterns *pattern.Cycle
}

func setup() (*device, error) {
	mode := timing.VGA640x480
	hw, err := stm32.Init(stm32.Board)
	if err != nil {
		return nil, err
	}
	padLatch.Configure(machine.PinConfig{Mode: machine.PinOutput})
	padClock.Configure(machine.PinConfig{Mode: machine.PinOutput})
	padData.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	dev := &device{
		mode:     mode,
		pad:      input.NewGamepad(pin(padLatch), pin(padClock), pin(padData)),
		player:   audio.NewPlayer(stm32.InitDAC()),
		patterns: pattern.NewCycle(pattern.Bars{}, pattern.Gradient{}, pattern.Solid(0xfff)),
	}
	d, err := scanout.New(hw, scanout.Config{
		Mode:     mode,
		Producer: dev.patterns,
		Input:    dev.pad.Step,
		Audio:    dev.player.Tick,
		Align:    1024,
		Memory:   stm32.BufferMemory(),
	})
	if err != nil {
		return nil, err
	}
	dev.driver = d
	hw.SetInterrupts(d.HandleLine, d.HandleTransferComplete)
	d.Start()
	return dev, nil
}

// serve runs the frame loop. The serial port carries nothing but
// reports from here on, so failures disable the failing part instead
// of being logged.
func serve(dev *device) {
	d, pad := dev.driver, dev.pad
	reports := diag.NewReporter(machine.Serial, d, dev.mode, stm32.CPUClock, 60)
	reports.Buttons = func() uint16 { return uint16(pad.State()) }
	click := beep(dev.mode.LineFrequency(), 1000, 0.05)
	reporting, padOK := true, true
	var buttons input.State
	frame := d.Frame()
	for {
		frame, _ = d.WaitFrame(context.Background(), frame)
		if padOK && pad.Err() != nil {
			padOK = false
			reports.Buttons = nil
		}
		if padOK {
			s := pad.State()
			s.Diff(buttons, func(e input.Event) {
				if e.Button == input.Start && e.Pressed {
					dev.patterns.Next()
					dev.player.Play(click, false)
				}
			})
			buttons = s
		}
		if reporting {
			if _, err := reports.Poll(); err != nil {
				reporting = false
			}
		}
	}
}

// beep returns a square wave of freq Hz lasting secs seconds.
func beep(rate, freq, secs float64) audio.Clip {
	c := make(audio.Clip, int(rate*secs))
	half := int(rate / freq / 2)
	for i := range c {
		if (i/half)%2 == 0 {
			c[i] = audio.Silence + 0x40
		} else {
			c[i] = audio.Silence - 0x40
		}
	}
	return c
}
