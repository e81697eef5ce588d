// Package diag reports the progress and worst line timing of a running
// scanline driver as a stream of CBOR encoded reports.
package diag

import (
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"rasterline.org/scanout"
	"rasterline.org/timing"
)

// Report is a snapshot of the driver.
type Report struct {
	Frame uint32 `cbor:"1,keyasint"`
	Line  int    `cbor:"2,keyasint"`
	// MaxLineCycles is the longest line producer call since the
	// previous report, in CPU cycles.
	MaxLineCycles uint32 `cbor:"3,keyasint"`
	MaxLine       int    `cbor:"4,keyasint"`
	// LineCycles is the number of CPU cycles in a line period.
	LineCycles uint32 `cbor:"5,keyasint"`
	// Buttons is the gamepad state.
	Buttons uint16 `cbor:"6,keyasint,omitempty"`
}

// Load is the worst line producer duration as a fraction of the line
// period.
func (r Report) Load() float64 {
	if r.LineCycles == 0 {
		return 0
	}
	return float64(r.MaxLineCycles) / float64(r.LineCycles)
}

// Overrun reports whether the worst line producer call took longer
// than a line period.
func (r Report) Overrun() bool {
	return r.LineCycles > 0 && r.MaxLineCycles > r.LineCycles
}

func (r Report) String() string {
	return fmt.Sprintf("frame %d line %d: worst line %d took %d of %d cycles (%.1f%%)",
		r.Frame, r.Line, r.MaxLine, r.MaxLineCycles, r.LineCycles, r.Load()*100)
}

// LineCycles returns the number of CPU cycles in a line period of m.
func LineCycles(m timing.Mode, cpuClock uint32) uint32 {
	if m.TimerClock == 0 {
		return 0
	}
	return uint32(uint64(m.LinePeriod) * uint64(cpuClock) / uint64(m.TimerClock))
}

// Source is a driver reporting its statistics, such as a
// [scanout.Driver].
type Source interface {
	Stats() scanout.Stats
	ResetStats()
}

// Reporter writes a report for every period frames.
type Reporter struct {
	src        Source
	enc        *cbor.Encoder
	period     uint32
	lineCycles uint32
	last       uint32
	started    bool

	// Buttons is sampled into each report, if set.
	Buttons func() uint16
}

func NewReporter(w io.Writer, src Source, m timing.Mode, cpuClock uint32, period uint32) *Reporter {
	if period == 0 {
		period = 1
	}
	return &Reporter{
		src:        src,
		enc:        cbor.NewEncoder(w),
		period:     period,
		lineCycles: LineCycles(m, cpuClock),
	}
}

// Poll writes a report if period frames passed since the previous
// report. It reports whether a report was written.
func (r *Reporter) Poll() (bool, error) {
	s := r.src.Stats()
	if !r.started {
		r.started = true
		r.last = s.Frame
		return false, nil
	}
	if s.Frame-r.last < r.period {
		return false, nil
	}
	r.last = s.Frame
	rep := Report{
		Frame:         s.Frame,
		Line:          s.Line,
		MaxLineCycles: s.MaxLineCycles,
		MaxLine:       s.MaxLine,
		LineCycles:    r.lineCycles,
	}
	if r.Buttons != nil {
		rep.Buttons = r.Buttons()
	}
	r.src.ResetStats()
	if err := r.enc.Encode(rep); err != nil {
		return false, fmt.Errorf("diag: %w", err)
	}
	return true, nil
}

// Reader decodes a stream of reports.
type Reader struct {
	src *countingReader
	dec *cbor.Decoder
}

func NewReader(r io.Reader) *Reader {
	src := &countingReader{r: r}
	return &Reader{src: src, dec: cbor.NewDecoder(src)}
}

// Next returns the next report, or [io.EOF] at the end of the stream.
// A stream ending inside a report is an [io.ErrUnexpectedEOF].
func (r *Reader) Next() (Report, error) {
	var rep Report
	if err := r.dec.Decode(&rep); err != nil {
		if errors.Is(err, io.EOF) {
			if r.src.n > int64(r.dec.NumBytesRead()) {
				return Report{}, fmt.Errorf("diag: %w", io.ErrUnexpectedEOF)
			}
			return Report{}, io.EOF
		}
		return Report{}, fmt.Errorf("diag: %w", err)
	}
	return rep, nil
}

// countingReader counts the bytes handed to the decoder.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
