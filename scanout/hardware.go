package scanout

import "rasterline.org/timing"

// Hardware is the register boundary of the scanline pipeline. The
// methods are called from interrupt context and must not block.
type Hardware interface {
	// StartLineTimer programs and starts the free running horizontal
	// timer: hsync pulse from the top of each period, the pixel
	// engine trigger at the mode's trigger offset and the per-period
	// line interrupt.
	StartLineTimer(m timing.Mode)
	// AckLineInterrupt clears the line timer interrupt flag.
	AckLineInterrupt()
	// Blank forces the pixel output port to black.
	Blank()
	// Arm configures and enables the pixel clock and transfer of buf
	// to the output port. Streaming starts at the next trigger.
	Arm(buf LineBuffer)
	// TransferComplete reports the transfer complete flag.
	TransferComplete() bool
	// ClearTransferComplete requests the transfer complete flag to
	// be cleared. The flag may not read as cleared right away.
	ClearTransferComplete()
	// StopPixelEngine disables the pixel clock and the transfer.
	StopPixelEngine()
	// DiscardTransferInterrupt clears a pending transfer complete
	// interrupt, such as the one raised by StopPixelEngine.
	DiscardTransferInterrupt()
	// SetVSync drives the vertical sync output to its active or
	// inactive level.
	SetVSync(active bool)
}

// CycleCounter is implemented by [Hardware] able to measure elapsed
// time in a free running cycle count.
type CycleCounter interface {
	Cycles() uint32
}

// ArmState is the state of the pixel streaming engine.
type ArmState uint8

const (
	Idle ArmState = iota
	Armed
	Streaming
)

func (s ArmState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Streaming:
		return "streaming"
	default:
		return "invalid"
	}
}
