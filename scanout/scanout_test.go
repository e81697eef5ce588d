package scanout

import (
	"context"
	"slices"
	"testing"
	"time"

	"rasterline.org/timing"
)

// fakeHW records the calls of the driver and models the arm state
// of the pixel engine.
type fakeHW struct {
	t *testing.T

	started   bool
	acks      int
	blanks    int
	vsync     bool
	vsyncSets []int
	line      func() int

	state     ArmState
	armed     LineBuffer
	arms      int
	flag      bool
	clearWait int
	clears    int
	pending   bool
	discards  int
	cycles    uint32
}

func (h *fakeHW) StartLineTimer(m timing.Mode) { h.started = true }
func (h *fakeHW) AckLineInterrupt()            { h.acks++ }
func (h *fakeHW) Blank()                       { h.blanks++ }

func (h *fakeHW) Arm(buf LineBuffer) {
	if h.state != Idle {
		h.t.Errorf("armed while %v", h.state)
	}
	if h.flag {
		h.t.Error("armed with transfer complete flag set")
	}
	if buf[len(buf)-1] != Blank {
		h.t.Error("trailing pixel not blank")
	}
	h.state = Armed
	h.armed = buf
	h.arms++
}

func (h *fakeHW) TransferComplete() bool { return h.flag }

func (h *fakeHW) ClearTransferComplete() {
	h.clears++
	if h.clearWait > 0 {
		h.clearWait--
		return
	}
	h.flag = false
}

func (h *fakeHW) StopPixelEngine() {
	h.state = Idle
	h.pending = true
}

func (h *fakeHW) DiscardTransferInterrupt() {
	h.pending = false
	h.discards++
}

func (h *fakeHW) SetVSync(active bool) {
	if h.line != nil {
		h.vsyncSets = append(h.vsyncSets, h.line())
	}
	h.vsync = active
}

// stream completes an armed transfer.
func (h *fakeHW) stream(d *Driver, clearWait int) {
	if h.state != Armed {
		return
	}
	h.state = Streaming
	h.flag = true
	h.clearWait = clearWait
	d.HandleTransferComplete()
	if h.state != Idle || h.flag || h.pending {
		h.t.Fatalf("transfer complete left state %v, flag %v, pending %v", h.state, h.flag, h.pending)
	}
}

type countingHW struct {
	fakeHW
}

func (h *countingHW) Cycles() uint32 {
	h.cycles += 7
	return h.cycles
}

func newDriver(t *testing.T, hw Hardware, c Config) *Driver {
	t.Helper()
	if c.Mode.LinePeriod == 0 {
		c.Mode = timing.VGA640x480
	}
	d, err := New(hw, c)
	if err != nil {
		t.Fatal(err)
	}
	d.Start()
	return d
}

func TestRasterPosition(t *testing.T) {
	hw := &fakeHW{t: t}
	d := newDriver(t, hw, Config{})
	if !hw.started {
		t.Fatal("line timer not started")
	}
	total := d.Mode().TotalLines()
	for n := 1; n <= 3*total+17; n++ {
		d.HandleLine()
		hw.stream(d, 0)
		if got, want := d.Line(), n%total; got != want {
			t.Fatalf("after %d interrupts line is %d, want %d", n, got, want)
		}
	}
	if hw.acks != 3*total+17 {
		t.Errorf("%d interrupt acknowledgements", hw.acks)
	}
	// Every line and every transfer complete blanks the output.
	if hw.blanks < hw.acks+hw.arms {
		t.Errorf("%d blanks for %d lines and %d transfers", hw.blanks, hw.acks, hw.arms)
	}
}

func TestFullFrame(t *testing.T) {
	hw := &fakeHW{t: t}
	d := newDriver(t, hw, Config{})
	m := d.Mode()
	if m.TotalLines() != 524 || m.VisibleLines != 480 || m.VSyncStart() != 490 || m.VSyncEnd() != 492 {
		t.Fatalf("unexpected mode %+v", m)
	}
	for range 524 {
		d.HandleLine()
		hw.stream(d, 0)
	}
	if f := d.Frame(); f != 1 {
		t.Errorf("frame counter %d after a frame", f)
	}
	if l := d.Line(); l != 0 {
		t.Errorf("line %d after a frame", l)
	}
}

func TestFrameCounter(t *testing.T) {
	hw := &fakeHW{t: t}
	d := newDriver(t, hw, Config{})
	m := d.Mode()
	total := m.TotalLines()
	last := d.Frame()
	for n := 1; n <= 4*total; n++ {
		d.HandleLine()
		hw.stream(d, 0)
		f := d.Frame()
		switch {
		case d.Line() == m.VisibleLines:
			if f != last+1 {
				t.Fatalf("line %d: frame %d, want %d", d.Line(), f, last+1)
			}
		case f != last:
			t.Fatalf("frame counter changed on line %d", d.Line())
		}
		last = f
	}
	if last != 4 {
		t.Errorf("%d frames after 4 frames of lines", last)
	}
}

func TestVSync(t *testing.T) {
	hw := &fakeHW{t: t}
	d := newDriver(t, hw, Config{})
	hw.line = d.Line
	hw.vsyncSets = nil
	m := d.Mode()
	for range 2 * m.TotalLines() {
		d.HandleLine()
		hw.stream(d, 0)
		inSync := m.Region(d.Line()) == timing.Sync
		if hw.vsync != inSync {
			t.Fatalf("line %d: vsync %v", d.Line(), hw.vsync)
		}
	}
	want := []int{490, 492, 490, 492}
	if !slices.Equal(hw.vsyncSets, want) {
		t.Errorf("vsync toggled on lines %v, want %v", hw.vsyncSets, want)
	}
}

func TestVSyncWithoutBackPorch(t *testing.T) {
	m := timing.VGA640x480
	m.FrontPorchLines = 10
	m.BackPorchLines = 0
	m.InputLines = 0
	hw := &fakeHW{t: t}
	d := newDriver(t, hw, Config{Mode: m})
	for range 3 * m.TotalLines() {
		d.HandleLine()
		hw.stream(d, 0)
		if inSync := m.Region(d.Line()) == timing.Sync; hw.vsync != inSync {
			t.Fatalf("line %d: vsync %v", d.Line(), hw.vsync)
		}
	}
}

func TestBufferOwnership(t *testing.T) {
	hw := &fakeHW{t: t}
	var d *Driver
	draws := make(map[int]int)
	prod := ProducerFunc(func(y int, buf []Pixel) {
		l := d.Line()
		draws[l]++
		next := l + 1
		if next == d.Mode().VisibleLines {
			next = 0
		}
		if y != next {
			t.Fatalf("line %d: drawing line %d, want %d", l, y, next)
		}
		if len(buf) != d.Mode().VisiblePixels {
			t.Fatalf("producer got %d pixels", len(buf))
		}
		disp := d.Buffers().Display()
		if &buf[0] == &disp[0] {
			t.Fatalf("line %d: producer given the display buffer", d.Line())
		}
		if &buf[0] == &hw.armed[0] {
			t.Fatalf("line %d: producer given the armed buffer", d.Line())
		}
		for i := range buf {
			buf[i] = Pixel(y)
		}
	})
	d = newDriver(t, hw, Config{Producer: prod})
	m := d.Mode()
	for range 2 * m.TotalLines() {
		d.HandleLine()
		if m.Region(d.Line()) == timing.Visible {
			// The armed buffer was drawn for this line on the
			// previous visible line, except for the first line
			// after start.
			if d.Frame() > 0 || d.Line() > 1 {
				if got := hw.armed[0]; got != Pixel(d.Line()) {
					t.Fatalf("line %d: streaming content of line %d", d.Line(), got)
				}
			}
		}
		hw.stream(d, 0)
	}
	for l := range m.TotalLines() {
		want := 0
		if m.Region(l) == timing.Visible {
			want = 2
		}
		if draws[l] != want {
			t.Errorf("line %d drawn %d times, want %d", l, draws[l], want)
		}
	}
}

func TestInputWindow(t *testing.T) {
	hw := &fakeHW{t: t}
	var d *Driver
	samples := make(map[int]int)
	d = newDriver(t, hw, Config{
		Input: func() { samples[d.Line()]++ },
	})
	m := d.Mode()
	const frames = 3
	for range frames * m.TotalLines() {
		d.HandleLine()
		hw.stream(d, 0)
	}
	n := 0
	for l, c := range samples {
		if !m.InInputWindow(l) {
			t.Errorf("input sampled on line %d", l)
		}
		if c != frames {
			t.Errorf("line %d sampled %d times in %d frames", l, c, frames)
		}
		n++
	}
	if n != m.InputLines {
		t.Errorf("%d lines sampled, want %d", n, m.InputLines)
	}
}

func TestAudioEveryLine(t *testing.T) {
	hw := &fakeHW{t: t}
	ticks := 0
	d := newDriver(t, hw, Config{Audio: func() { ticks++ }})
	n := d.Mode().TotalLines() + 100
	for range n {
		d.HandleLine()
		hw.stream(d, 0)
	}
	if ticks != n {
		t.Errorf("%d audio ticks in %d lines", ticks, n)
	}
}

func TestTransferCompleteQuiesce(t *testing.T) {
	hw := &fakeHW{t: t}
	d := newDriver(t, hw, Config{})
	for i := range 10 {
		d.HandleLine()
		clears := hw.clears
		hw.stream(d, i)
		if got, want := hw.clears-clears, i+1; got != want {
			t.Errorf("flag cleared in %d writes, want %d", got, want)
		}
	}
	// Repeated stops leave the engine idle, without a pending
	// interrupt or flag.
	for range 3 {
		d.HandleTransferComplete()
		if hw.state != Idle || hw.flag || hw.pending {
			t.Fatalf("state %v, flag %v, pending %v", hw.state, hw.flag, hw.pending)
		}
	}
	d.HandleLine()
	if hw.state != Armed {
		t.Errorf("engine %v after re-arm", hw.state)
	}
}

func TestStats(t *testing.T) {
	hw := &countingHW{fakeHW{t: t}}
	d := newDriver(t, hw, Config{
		Producer: ProducerFunc(func(y int, buf []Pixel) {
			if y == 100 {
				// Account for a slow line.
				hw.cycles += 1000
			}
		}),
	})
	for range 200 {
		d.HandleLine()
		hw.stream(d, 0)
	}
	s := d.Stats()
	if s.MaxLine != 99 {
		t.Errorf("worst line %d, want 99", s.MaxLine)
	}
	if s.MaxLineCycles < 1000 {
		t.Errorf("worst line took %d cycles", s.MaxLineCycles)
	}
	if s.Line != 200 {
		t.Errorf("stats line %d", s.Line)
	}
	d.ResetStats()
	if s := d.Stats(); s.MaxLineCycles != 0 {
		t.Errorf("stats not reset: %+v", s)
	}
}

func TestWaitFrame(t *testing.T) {
	hw := &fakeHW{t: t}
	d := newDriver(t, hw, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := d.WaitFrame(ctx, d.Frame()); err == nil {
		t.Error("WaitFrame returned without a frame")
	}
	for range d.Mode().TotalLines() {
		d.HandleLine()
		hw.stream(d, 0)
	}
	f, err := d.WaitFrame(context.Background(), 0)
	if err != nil || f != 1 {
		t.Errorf("WaitFrame = %d, %v", f, err)
	}
}

func TestInvalidMode(t *testing.T) {
	m := timing.VGA640x480
	m.SyncLines = 0
	if _, err := New(&fakeHW{t: t}, Config{Mode: m}); err == nil {
		t.Error("invalid mode accepted")
	}
}
