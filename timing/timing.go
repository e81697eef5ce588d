// Package timing describes the raster geometry and clock setup of
// a fixed video mode.
package timing

import (
	"errors"
	"fmt"
)

// Mode is a frame timing table. Line timer values are in ticks of
// TimerClock; pixel values are in ticks of PixelTimerClock.
type Mode struct {
	Name string

	// TimerClock is the frequency of the horizontal line timer.
	TimerClock uint32
	// PixelTimerClock is the frequency of the timer pacing the
	// pixel transfer.
	PixelTimerClock uint32
	// PixelClockDiv is the number of pixel timer ticks per pixel.
	PixelClockDiv uint32

	// LinePeriod is the horizontal period.
	LinePeriod uint32
	// HSyncWidth is the duration of the horizontal sync pulse,
	// starting at the top of the period.
	HSyncWidth uint32
	// TriggerOffset is the offset into the period where the pixel
	// engine is gated on.
	TriggerOffset uint32

	VisiblePixels int

	VisibleLines    int
	FrontPorchLines int
	SyncLines       int
	BackPorchLines  int

	// InputFirstLine and InputLines define the blanking lines
	// where input devices are sampled, once per line.
	InputFirstLine int
	InputLines     int
}

// Region is a vertical raster region.
type Region uint8

const (
	Visible Region = iota
	FrontPorch
	Sync
	BackPorch
)

func (r Region) String() string {
	switch r {
	case Visible:
		return "visible"
	case FrontPorch:
		return "front porch"
	case Sync:
		return "sync"
	case BackPorch:
		return "back porch"
	default:
		return fmt.Sprintf("Region(%d)", uint8(r))
	}
}

// VGA640x480 is 640x480 at 60Hz with a 31.46875 kHz line rate,
// generated from an 88 MHz line timer and a 176 MHz pixel timer.
var VGA640x480 = Mode{
	Name:            "640x480",
	TimerClock:      88_000_000,
	PixelTimerClock: 176_000_000,
	PixelClockDiv:   7,
	// 88 MHz / 31.46875 kHz = 2796.425.
	LinePeriod: 2796,
	// 88 MHz * 3.813µs = 335.544.
	HSyncWidth: 336,
	// 88 MHz * (3.813µs + 1.907µs) = 503.36, less the 14 ticks it
	// takes the pixel timer to start after the trigger.
	TriggerOffset: 503 - 14,

	VisiblePixels: 640,

	VisibleLines:    480,
	FrontPorchLines: 10,
	SyncLines:       2,
	BackPorchLines:  32,

	InputFirstLine: 480,
	InputLines:     34,
}

// TotalLines is the number of lines in a frame.
func (m Mode) TotalLines() int {
	return m.VisibleLines + m.FrontPorchLines + m.SyncLines + m.BackPorchLines
}

// VSyncStart is the line where vertical sync is asserted.
func (m Mode) VSyncStart() int {
	return m.VisibleLines + m.FrontPorchLines
}

// VSyncEnd is the line where vertical sync is deasserted.
func (m Mode) VSyncEnd() int {
	return m.VSyncStart() + m.SyncLines
}

// Region returns the region of line. The line must be in the range
// [0, TotalLines).
func (m Mode) Region(line int) Region {
	switch {
	case line < m.VisibleLines:
		return Visible
	case line < m.VSyncStart():
		return FrontPorch
	case line < m.VSyncEnd():
		return Sync
	default:
		return BackPorch
	}
}

// InInputWindow reports whether input devices are sampled during
// line.
func (m Mode) InInputWindow(line int) bool {
	return m.InputFirstLine <= line && line < m.InputFirstLine+m.InputLines
}

// LineFrequency is the horizontal frequency in Hz.
func (m Mode) LineFrequency() float64 {
	return float64(m.TimerClock) / float64(m.LinePeriod)
}

// RefreshRate is the vertical frequency in Hz.
func (m Mode) RefreshRate() float64 {
	return m.LineFrequency() / float64(m.TotalLines())
}

// PixelClock is the pixel frequency in Hz.
func (m Mode) PixelClock() float64 {
	return float64(m.PixelTimerClock) / float64(m.PixelClockDiv)
}

// StreamTicks is the number of line timer ticks it takes to stream
// a visible line plus its trailing blank pixel, rounded up.
func (m Mode) StreamTicks() uint32 {
	pixelTicks := uint64(m.VisiblePixels+1) * uint64(m.PixelClockDiv)
	ticks := pixelTicks * uint64(m.TimerClock)
	return uint32((ticks + uint64(m.PixelTimerClock) - 1) / uint64(m.PixelTimerClock))
}

// Validate checks the consistency of the table.
func (m Mode) Validate() error {
	switch {
	case m.TimerClock == 0 || m.PixelTimerClock == 0:
		return errors.New("timing: zero clock")
	case m.PixelClockDiv == 0:
		return errors.New("timing: zero pixel clock divisor")
	case m.LinePeriod == 0:
		return errors.New("timing: zero line period")
	case m.VisiblePixels <= 0:
		return errors.New("timing: no visible pixels")
	case m.VisibleLines <= 0:
		return errors.New("timing: no visible lines")
	case m.FrontPorchLines < 0 || m.BackPorchLines < 0:
		return errors.New("timing: negative porch")
	case m.SyncLines <= 0:
		return errors.New("timing: no sync lines")
	case m.FrontPorchLines+m.BackPorchLines == 0:
		// Vertical sync would be asserted on the line after the last
		// visible line and the frame counter would race it.
		return errors.New("timing: no blanking lines around sync")
	}
	if m.HSyncWidth == 0 || m.HSyncWidth >= m.LinePeriod {
		return fmt.Errorf("timing: hsync width %d outside period %d", m.HSyncWidth, m.LinePeriod)
	}
	if m.TriggerOffset <= m.HSyncWidth {
		return fmt.Errorf("timing: pixel trigger %d before hsync end %d", m.TriggerOffset, m.HSyncWidth)
	}
	if end := uint64(m.TriggerOffset) + uint64(m.StreamTicks()); end >= uint64(m.LinePeriod) {
		return fmt.Errorf("timing: line streaming ends at tick %d, after period %d", end, m.LinePeriod)
	}
	if m.InputLines < 0 {
		return errors.New("timing: negative input window")
	}
	if m.InputLines > 0 {
		if m.InputFirstLine < m.VisibleLines {
			return fmt.Errorf("timing: input window starts at visible line %d", m.InputFirstLine)
		}
		if m.InputFirstLine+m.InputLines > m.TotalLines() {
			return fmt.Errorf("timing: input window [%d,%d) exceeds %d lines",
				m.InputFirstLine, m.InputFirstLine+m.InputLines, m.TotalLines())
		}
	}
	return nil
}
