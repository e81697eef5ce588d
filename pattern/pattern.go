// Package pattern contains line producers for test and demonstration
// content.
package pattern

import (
	"fmt"
	"image"
	"image/color"
	"sync/atomic"

	"github.com/kortschak/qr"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"rasterline.org/image/rgb444"
	"rasterline.org/scanout"
)

// Palette of the bars pattern, left to right.
var Palette = [...]scanout.Pixel{
	0xfff, // White.
	0xff0, // Yellow.
	0x0ff, // Cyan.
	0x0f0, // Green.
	0xf0f, // Magenta.
	0xf00, // Red.
	0x00f, // Blue.
	0x000, // Black.
}

// Bars draws vertical color bars from [Palette].
type Bars struct{}

func (Bars) DrawLine(y int, buf []scanout.Pixel) {
	n := len(Palette)
	for x := range buf {
		buf[x] = Palette[x*n/len(buf)]
	}
}

// Solid returns a producer filling every line with c.
func Solid(c scanout.Pixel) scanout.Producer {
	return scanout.ProducerFunc(func(y int, buf []scanout.Pixel) {
		for i := range buf {
			buf[i] = c
		}
	})
}

// Gradient draws a gray ramp from left to right, inverted on every
// other band of 16 lines.
type Gradient struct{}

func (Gradient) DrawLine(y int, buf []scanout.Pixel) {
	inv := (y/16)%2 == 1
	for x := range buf {
		v := scanout.Pixel(x * 16 / len(buf))
		if inv {
			v = 15 - v
		}
		buf[x] = v<<8 | v<<4 | v
	}
}

// Frame produces lines from a frame buffer.
type Frame struct {
	Image *rgb444.Image
}

// NewFrame allocates a black frame of w×h pixels.
func NewFrame(w, h int) *Frame {
	return &Frame{Image: rgb444.New(image.Rect(0, 0, w, h))}
}

func (f *Frame) DrawLine(y int, buf []scanout.Pixel) {
	row := f.Image.Row(f.Image.Rect.Min.Y + y)
	n := min(len(row), len(buf))
	for i := range n {
		buf[i] = scanout.Pixel(row[i])
	}
	clear(buf[n:])
}

// Image returns a producer of img scaled to w×h pixels.
func Image(img image.Image, w, h int) *Frame {
	f := NewFrame(w, h)
	draw.ApproxBiLinear.Scale(f.Image, f.Image.Bounds(), img, img.Bounds(), draw.Src, nil)
	return f
}

// QR returns a producer of the QR code of content, scaled by the
// largest integer factor fitting w×h and centered on a white
// background.
func QR(content string, w, h int) (*Frame, error) {
	code, err := qr.Encode(content, qr.M)
	if err != nil {
		return nil, fmt.Errorf("pattern: %w", err)
	}
	// Leave room for the quiet zone.
	const quiet = 4
	n := code.Size + 2*quiet
	scale := min(w, h) / n
	if scale == 0 {
		return nil, fmt.Errorf("pattern: %d modules don't fit %dx%d", code.Size, w, h)
	}
	f := NewFrame(w, h)
	img := f.Image
	img.Draw(img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	off := image.Pt(w-code.Size*scale, h-code.Size*scale).Div(2)
	for y := range code.Size {
		for x := range code.Size {
			if !code.Black(x, y) {
				continue
			}
			r := image.Rect(x*scale, y*scale, (x+1)*scale, (y+1)*scale).Add(off)
			img.Draw(r, image.NewUniform(color.Black), image.Point{}, draw.Src)
		}
	}
	return f, nil
}

// Text returns a producer of lines of text in a fixed width font,
// fg on bg.
func Text(lines []string, w, h int, fg, bg color.Color) *Frame {
	f := NewFrame(w, h)
	img := f.Image
	img.Draw(img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	face := basicfont.Face7x13
	m := face.Metrics()
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(fg),
		Face: face,
	}
	lineHeight := m.Height.Ceil()
	for i, l := range lines {
		d.Dot = fixed.P(lineHeight/2, lineHeight*(i+1))
		d.DrawString(l)
	}
	return f
}

// Card returns a producer of a test card: a border, a center circle
// and cross hairs stroked over color bars.
func Card(w, h int, strokeWidth float64) *Frame {
	f := NewFrame(w, h)
	img := f.Image
	for y := range h {
		row := img.Row(y)
		buf := make([]scanout.Pixel, len(row))
		Bars{}.DrawLine(y, buf)
		for x, p := range buf {
			row[x] = rgb444.Color(p)
		}
	}
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	dasher := rasterx.NewDasher(w, h, scanner)
	dasher.SetStroke(fixed.Int26_6(strokeWidth*64), 0, rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.ArcClip, nil, 0)
	dasher.SetColor(color.Black)

	inset := strokeWidth
	fw, fh := float64(w), float64(h)
	rasterx.AddRect(inset, inset, fw-inset, fh-inset, 0, dasher)
	cx, cy := fw/2, fh/2
	r := min(fw, fh) / 3
	rasterx.AddCircle(cx, cy, r, dasher)
	dasher.Start(rasterx.ToFixedP(cx-r, cy))
	dasher.Line(rasterx.ToFixedP(cx+r, cy))
	dasher.Stop(false)
	dasher.Start(rasterx.ToFixedP(cx, cy-r))
	dasher.Line(rasterx.ToFixedP(cx, cy+r))
	dasher.Stop(false)
	dasher.Draw()
	return f
}

// ByName returns the named producer for a w×h raster.
func ByName(name string, w, h int) (scanout.Producer, error) {
	switch name {
	case "bars":
		return Bars{}, nil
	case "gradient":
		return Gradient{}, nil
	case "black":
		return Solid(scanout.Blank), nil
	case "white":
		return Solid(0xfff), nil
	case "card":
		return Card(w, h, 4), nil
	case "qr":
		return QR("rasterline", w, h)
	case "text":
		return Text([]string{
			"rasterline",
			fmt.Sprintf("%dx%d", w, h),
		}, w, h, color.White, color.Black), nil
	default:
		return nil, fmt.Errorf("pattern: unknown pattern %q", name)
	}
}

// Names lists the patterns known to [ByName].
var Names = []string{"bars", "gradient", "black", "white", "card", "qr", "text"}

// Cycle draws one of a list of producers, switchable while lines are
// being drawn.
type Cycle struct {
	producers []scanout.Producer
	current   atomic.Uint32
}

// NewCycle returns a Cycle starting at first. It panics if a producer
// is nil, so that a broken list fails before drawing any line.
func NewCycle(first scanout.Producer, rest ...scanout.Producer) *Cycle {
	producers := append([]scanout.Producer{first}, rest...)
	for i, p := range producers {
		if p == nil {
			panic(fmt.Sprintf("pattern: nil producer %d in cycle", i))
		}
	}
	return &Cycle{producers: producers}
}

func (c *Cycle) DrawLine(y int, buf []scanout.Pixel) {
	c.producers[c.current.Load()].DrawLine(y, buf)
}

// Next switches to the following producer and returns its index.
func (c *Cycle) Next() int {
	next := (c.current.Load() + 1) % uint32(len(c.producers))
	c.current.Store(next)
	return int(next)
}
