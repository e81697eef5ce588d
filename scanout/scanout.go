// Package scanout implements the line and frame state machine of a
// raster video signal generator.
//
// A free running horizontal timer raises an interrupt at the top of
// every line, which must call [Driver.HandleLine]. For visible lines,
// the handler swaps the line buffers, arms the pixel engine with the
// new display buffer and calls the [Producer] to draw the next line
// into the other buffer. The pixel engine starts streaming when the
// timer's trigger fires later in the line, and its completion
// interrupt must call [Driver.HandleTransferComplete] at a priority
// above the line interrupt.
package scanout

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"

	"rasterline.org/timing"
)

// Producer draws line content.
type Producer interface {
	// DrawLine fills buf with line y. It is called from the line
	// interrupt and must return before the end of the line period.
	DrawLine(y int, buf []Pixel)
}

// ProducerFunc adapts a function to a [Producer].
type ProducerFunc func(y int, buf []Pixel)

func (f ProducerFunc) DrawLine(y int, buf []Pixel) {
	f(y, buf)
}

type Config struct {
	Mode timing.Mode
	// Producer draws visible lines. If nil, lines are left as they
	// were last drawn.
	Producer Producer
	// Input is called once per line in the mode's input window.
	Input func()
	// Audio is called once per line.
	Audio func()
	// Align is the byte alignment of the line buffers. Zero means
	// the pixel size.
	Align int
	// Memory optionally holds the line buffers.
	Memory []Pixel
}

// Driver is the per-line state machine. The handlers are meant to run
// in interrupt context and must not be called concurrently with each
// other except for HandleTransferComplete preempting HandleLine.
type Driver struct {
	hw       Hardware
	cycles   CycleCounter
	mode     timing.Mode
	bufs     *Buffers
	producer Producer
	input    func()
	audio    func()

	total      int
	vsyncStart int
	vsyncEnd   int

	line  atomic.Uint32
	frame atomic.Uint32

	maxCycles atomic.Uint32
	maxLine   atomic.Uint32
}

// Stats is a snapshot of the driver progress and worst line timing.
type Stats struct {
	Frame uint32
	Line  int
	// MaxLineCycles is the longest producer call observed, in
	// hardware cycles. It is zero if the hardware doesn't implement
	// [CycleCounter].
	MaxLineCycles uint32
	// MaxLine is the line of the longest producer call.
	MaxLine int
}

// New creates a driver for hw. The hardware must have been
// bootstrapped, but not started.
func New(hw Hardware, c Config) (*Driver, error) {
	if err := c.Mode.Validate(); err != nil {
		return nil, fmt.Errorf("scanout: %w", err)
	}
	align := c.Align
	if align == 0 {
		align = 2
	}
	var bufs *Buffers
	var err error
	if c.Memory != nil {
		bufs, err = NewBuffersIn(c.Memory, c.Mode.VisiblePixels, align)
	} else {
		bufs, err = NewBuffers(c.Mode.VisiblePixels, align)
	}
	if err != nil {
		return nil, err
	}
	d := &Driver{
		hw:         hw,
		mode:       c.Mode,
		bufs:       bufs,
		producer:   c.Producer,
		input:      c.Input,
		audio:      c.Audio,
		total:      c.Mode.TotalLines(),
		vsyncStart: c.Mode.VSyncStart(),
		// Without back porch, sync ends on the first line.
		vsyncEnd:   c.Mode.VSyncEnd() % c.Mode.TotalLines(),
	}
	d.cycles, _ = hw.(CycleCounter)
	return d, nil
}

// Start resets the raster position and starts the line timer.
func (d *Driver) Start() {
	d.line.Store(0)
	d.frame.Store(0)
	d.hw.Blank()
	d.hw.SetVSync(false)
	d.hw.StartLineTimer(d.mode)
}

// HandleLine advances the raster by one line. It must be called from
// the line timer interrupt.
func (d *Driver) HandleLine() {
	d.hw.AckLineInterrupt()
	// Guard against a pixel clock left running by a late transfer.
	d.hw.Blank()

	line := int(d.line.Load()) + 1
	if line == d.total {
		line = 0
	}
	d.line.Store(uint32(line))

	if line < d.mode.VisibleLines {
		d.bufs.Swap()
		disp := d.bufs.Display()
		disp[len(disp)-1] = Blank
		d.hw.Arm(disp)
		d.drawNext(line)
	} else {
		if line == d.mode.VisibleLines {
			d.frame.Add(1)
		}
		if d.mode.InInputWindow(line) && d.input != nil {
			d.input()
		}
	}
	switch line {
	case d.vsyncStart:
		d.hw.SetVSync(true)
	case d.vsyncEnd:
		d.hw.SetVSync(false)
	}

	if d.audio != nil {
		d.audio()
	}
}

// drawNext calls the producer to fill the draw buffer with the
// visible line following line.
func (d *Driver) drawNext(line int) {
	if d.producer == nil {
		return
	}
	next := line + 1
	if next == d.mode.VisibleLines {
		next = 0
	}
	buf := d.bufs.Draw()
	if d.cycles == nil {
		d.producer.DrawLine(next, buf[:d.mode.VisiblePixels])
		return
	}
	start := d.cycles.Cycles()
	d.producer.DrawLine(next, buf[:d.mode.VisiblePixels])
	if elapsed := d.cycles.Cycles() - start; elapsed > d.maxCycles.Load() {
		d.maxCycles.Store(elapsed)
		d.maxLine.Store(uint32(line))
	}
}

// HandleTransferComplete quiesces the pixel engine after a line. It
// must be called from the transfer complete interrupt.
func (d *Driver) HandleTransferComplete() {
	d.hw.Blank()
	// The flag clears asynchronously to the write clearing it.
	for {
		d.hw.ClearTransferComplete()
		if !d.hw.TransferComplete() {
			break
		}
	}
	d.hw.StopPixelEngine()
	// Disabling the transfer raises the interrupt again.
	d.hw.DiscardTransferInterrupt()
}

// Line returns the current raster line.
func (d *Driver) Line() int {
	return int(d.line.Load())
}

// Frame returns the number of frames completed.
func (d *Driver) Frame() uint32 {
	return d.frame.Load()
}

// Mode returns the timing table of the driver.
func (d *Driver) Mode() timing.Mode {
	return d.mode
}

// Buffers returns the line buffers.
func (d *Driver) Buffers() *Buffers {
	return d.bufs
}

// Stats returns a snapshot of the driver state.
func (d *Driver) Stats() Stats {
	return Stats{
		Frame:         d.frame.Load(),
		Line:          int(d.line.Load()),
		MaxLineCycles: d.maxCycles.Load(),
		MaxLine:       int(d.maxLine.Load()),
	}
}

// ResetStats clears the worst line timing.
func (d *Driver) ResetStats() {
	d.maxCycles.Store(0)
	d.maxLine.Store(0)
}

// WaitFrame waits for the frame counter to move past frame and
// returns the new count.
func (d *Driver) WaitFrame(ctx context.Context, frame uint32) (uint32, error) {
	for {
		if f := d.frame.Load(); f != frame {
			return f, nil
		}
		select {
		case <-ctx.Done():
			return frame, ctx.Err()
		default:
		}
		runtime.Gosched()
	}
}
