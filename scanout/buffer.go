package scanout

import (
	"errors"
	"fmt"
	"unsafe"
)

// Pixel is a value written to the pixel output port. The low 12 bits
// drive the DAC.
type Pixel uint16

// Blank is the black level.
const Blank Pixel = 0

// LineBuffer holds the pixels of one line followed by a blank pixel
// that returns the signal to black before the line ends.
type LineBuffer []Pixel

// Buffers is the pair of line buffers. One is displayed, that is
// owned by the pixel engine, and the other is drawn by the line
// producer.
type Buffers struct {
	bufs    [2]LineBuffer
	display uint8
}

// NewBuffers allocates two line buffers of pixels visible pixels,
// each starting at an address aligned to align bytes.
func NewBuffers(pixels, align int) (*Buffers, error) {
	if pixels <= 0 {
		return nil, errors.New("scanout: no pixels")
	}
	if err := checkAlign(align); err != nil {
		return nil, err
	}
	stride := alignedStride(pixels+1, align)
	slack := align / int(unsafe.Sizeof(Pixel(0)))
	mem := make([]Pixel, 2*stride+slack)
	return NewBuffersIn(mem, pixels, align)
}

// NewBuffersIn is like NewBuffers but places the buffers in mem,
// typically a memory region reachable by the transfer engine.
func NewBuffersIn(mem []Pixel, pixels, align int) (*Buffers, error) {
	if pixels <= 0 {
		return nil, errors.New("scanout: no pixels")
	}
	if err := checkAlign(align); err != nil {
		return nil, err
	}
	if len(mem) == 0 {
		return nil, errors.New("scanout: no buffer memory")
	}
	n := pixels + 1
	stride := alignedStride(n, align)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&mem[0])) % uintptr(align)); rem != 0 {
		if rem%int(unsafe.Sizeof(Pixel(0))) != 0 {
			return nil, errors.New("scanout: buffer memory not pixel aligned")
		}
		off = (align - rem) / int(unsafe.Sizeof(Pixel(0)))
	}
	if need := off + stride + n; need > len(mem) {
		return nil, fmt.Errorf("scanout: buffer memory holds %d pixels, need %d", len(mem), need)
	}
	b := new(Buffers)
	b.bufs[0] = LineBuffer(mem[off : off+n : off+n])
	b.bufs[1] = LineBuffer(mem[off+stride : off+stride+n : off+stride+n])
	for _, buf := range b.bufs {
		clear(buf)
	}
	return b, nil
}

// Swap exchanges the display and draw buffers. It must only be
// called between lines, while the display buffer is not streaming.
func (b *Buffers) Swap() {
	b.display ^= 1
}

// Display returns the buffer owned by the pixel engine.
func (b *Buffers) Display() LineBuffer {
	return b.bufs[b.display]
}

// Draw returns the buffer owned by the line producer.
func (b *Buffers) Draw() LineBuffer {
	return b.bufs[b.display^1]
}

// DisplayIndex returns the index of the display buffer, 0 or 1.
func (b *Buffers) DisplayIndex() int {
	return int(b.display)
}

// Index returns the index of buf, or -1 if buf is not one of the
// line buffers.
func (b *Buffers) Index(buf LineBuffer) int {
	if len(buf) == 0 {
		return -1
	}
	for i, lb := range b.bufs {
		if &lb[0] == &buf[0] {
			return i
		}
	}
	return -1
}

func checkAlign(align int) error {
	if align < int(unsafe.Sizeof(Pixel(0))) || align&(align-1) != 0 {
		return fmt.Errorf("scanout: alignment %d is not a power of two pixel size", align)
	}
	return nil
}

// alignedStride rounds n pixels up to a multiple of align bytes,
// measured in pixels.
func alignedStride(n, align int) int {
	unit := align / int(unsafe.Sizeof(Pixel(0)))
	return (n + unit - 1) / unit * unit
}
