// Package sim implements a simulated scanline pipeline: a horizontal
// line timer with an hsync output and a pixel engine trigger, a gated
// pixel transfer to an output port and the transfer complete flag and
// interrupt, with the quirks of the real hardware. It records what
// reaches the video output and counts timing faults.
package sim

import (
	"errors"
	"image"
	"time"

	"rasterline.org/image/rgb444"
	"rasterline.org/scanout"
	"rasterline.org/timing"
)

// Faults counts the misbehaviours observed on the simulated outputs.
type Faults struct {
	// ArmNotIdle counts arming of a pixel engine that was still
	// armed or streaming.
	ArmNotIdle int
	// StaleFlag counts arming with the transfer complete flag set.
	StaleFlag int
	// LateTransfer counts line periods starting with a transfer
	// still in flight.
	LateTransfer int
	// Spurious counts transfer complete interrupts left pending
	// after the handler returned.
	Spurious int
	// Unacked counts line interrupts not acknowledged by the
	// handler.
	Unacked int
	// MissedLine counts visible lines where nothing was streamed.
	MissedLine int
	// TrailingPixel counts lines whose last streamed pixel was not
	// blank.
	TrailingPixel int
	// NotBlank counts line periods ending with a non-blank output.
	NotBlank int
	// VSync counts lines where the vertical sync output disagreed
	// with the raster region.
	VSync int
	// Overrun counts line handlers exceeding the configured budget.
	Overrun int
}

// Total is the sum of all faults.
func (f Faults) Total() int {
	return f.ArmNotIdle + f.StaleFlag + f.LateTransfer + f.Spurious + f.Unacked +
		f.MissedLine + f.TrailingPixel + f.NotBlank + f.VSync + f.Overrun
}

type Config struct {
	// ClearLatency is the number of extra flag clear writes before
	// the transfer complete flag reads as cleared.
	ClearLatency int
	// Budget is the longest line handler duration before it is
	// counted as an overrun. Zero disables the check.
	Budget time.Duration
}

// Hardware simulates the line timer, pixel engine and sync outputs.
// It implements [scanout.Hardware] and [scanout.CycleCounter].
type Hardware struct {
	conf    Config
	mode    timing.Mode
	started bool
	total   int

	// Interrupt handlers.
	onLine     func()
	onTransfer func()

	lineIRQ   bool
	port      scanout.Pixel
	vsync     bool
	state     scanout.ArmState
	src       scanout.LineBuffer
	flag      bool
	clearWait int
	pending   bool

	// beam is the line of the current period. The timer starts
	// at the top of line 0, before its first interrupt.
	beam    int
	periods uint64
	pulses  uint64
	arms    uint64
	frames  uint64

	frame  *rgb444.Image
	last   *rgb444.Image
	faults Faults
}

func New(c Config) *Hardware {
	return &Hardware{conf: c}
}

// SetInterrupts installs the line timer and transfer complete
// interrupt handlers.
func (h *Hardware) SetInterrupts(line, transfer func()) {
	h.onLine = line
	h.onTransfer = transfer
}

func (h *Hardware) StartLineTimer(m timing.Mode) {
	h.mode = m
	h.total = m.TotalLines()
	h.started = true
	h.beam = 0
	r := image.Rect(0, 0, m.VisiblePixels, m.VisibleLines)
	h.frame = rgb444.New(r)
	h.last = rgb444.New(r)
}

func (h *Hardware) AckLineInterrupt() {
	h.lineIRQ = false
}

func (h *Hardware) Blank() {
	h.port = scanout.Blank
}

func (h *Hardware) Arm(buf scanout.LineBuffer) {
	if len(buf) != h.mode.VisiblePixels+1 {
		panic("sim: transfer length mismatch")
	}
	if h.state != scanout.Idle {
		h.faults.ArmNotIdle++
	}
	if h.flag {
		h.faults.StaleFlag++
	}
	h.src = buf
	h.state = scanout.Armed
	h.arms++
}

func (h *Hardware) TransferComplete() bool {
	return h.flag
}

func (h *Hardware) ClearTransferComplete() {
	if h.clearWait > 0 {
		h.clearWait--
		return
	}
	h.flag = false
}

func (h *Hardware) StopPixelEngine() {
	h.state = scanout.Idle
	h.src = nil
	// Disabling the stream raises its interrupt again.
	h.pending = true
}

func (h *Hardware) DiscardTransferInterrupt() {
	h.pending = false
}

func (h *Hardware) SetVSync(active bool) {
	h.vsync = active
}

// Step simulates one line period.
func (h *Hardware) Step() error {
	if !h.started {
		return errors.New("sim: line timer not started")
	}
	if h.onLine == nil || h.onTransfer == nil {
		return errors.New("sim: interrupt handlers not installed")
	}
	// Top of the period: hsync pulse and line interrupt.
	h.beam++
	if h.beam == h.total {
		h.beam = 0
	}
	h.pulses++
	if h.state != scanout.Idle {
		h.faults.LateTransfer++
	}
	h.lineIRQ = true
	start := time.Now()
	h.onLine()
	if d := h.conf.Budget; d > 0 && time.Since(start) > d {
		h.faults.Overrun++
	}
	if h.lineIRQ {
		h.faults.Unacked++
		h.lineIRQ = false
	}
	if h.vsync != (h.mode.Region(h.beam) == timing.Sync) {
		h.faults.VSync++
	}

	// Trigger: the pixel clock is gated on.
	visible := h.beam < h.mode.VisibleLines
	switch {
	case h.state == scanout.Armed:
		h.stream(visible)
	case visible:
		h.faults.MissedLine++
	}

	// End of the period.
	if h.port != scanout.Blank {
		h.faults.NotBlank++
	}
	if h.beam == h.mode.VisibleLines-1 {
		h.frame, h.last = h.last, h.frame
		h.frames++
	}
	h.periods++
	return nil
}

func (h *Hardware) stream(visible bool) {
	h.state = scanout.Streaming
	var row []rgb444.Color
	if visible {
		row = h.frame.Row(h.beam)
	}
	for i, p := range h.src {
		h.port = p
		if i < len(row) {
			row[i] = rgb444.Color(p & 0xfff)
		}
	}
	if h.port != scanout.Blank {
		h.faults.TrailingPixel++
	}
	h.flag = true
	h.clearWait = h.conf.ClearLatency
	h.pending = true
	h.onTransfer()
	if h.pending {
		h.faults.Spurious++
		h.pending = false
	}
}

// Run simulates n line periods.
func (h *Hardware) Run(n int) error {
	for range n {
		if err := h.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Beam returns the line of the last simulated period.
func (h *Hardware) Beam() int {
	return h.beam
}

// Port returns the value on the pixel output port.
func (h *Hardware) Port() scanout.Pixel {
	return h.port
}

// VSync reports whether vertical sync is asserted.
func (h *Hardware) VSync() bool {
	return h.vsync
}

// State returns the pixel engine state.
func (h *Hardware) State() scanout.ArmState {
	return h.state
}

// Periods returns the number of simulated line periods.
func (h *Hardware) Periods() uint64 {
	return h.periods
}

// HSyncPulses returns the number of horizontal sync pulses emitted.
func (h *Hardware) HSyncPulses() uint64 {
	return h.pulses
}

// Frames returns the number of captured frames.
func (h *Hardware) Frames() uint64 {
	return h.frames
}

// Capture returns the last fully streamed frame. The image is reused
// by later frames.
func (h *Hardware) Capture() *rgb444.Image {
	return h.last
}

// Faults returns the faults observed so far.
func (h *Hardware) Faults() Faults {
	return h.faults
}

// Elapsed returns the simulated time.
func (h *Hardware) Elapsed() time.Duration {
	if h.mode.TimerClock == 0 {
		return 0
	}
	clk := uint64(h.mode.TimerClock)
	ticks := h.periods * uint64(h.mode.LinePeriod)
	sec, rem := ticks/clk, ticks%clk
	return time.Duration(sec)*time.Second + time.Duration(rem*uint64(time.Second)/clk)
}

// Cycles returns a free running count of host nanoseconds.
func (h *Hardware) Cycles() uint32 {
	return uint32(monotonic())
}
