// Package rgb444 contains an [image.RGBA64Image] implementation of the
// 12-bit pixels driven onto the video DAC port.
package rgb444

import (
	"image"
	"image/color"
	"image/draw"
)

type Image struct {
	Pix    []Color
	Stride int
	Rect   image.Rectangle
}

// Color is a pixel with 4 bits per channel, laid out as 0x0RGB.
type Color uint16

const Black Color = 0

func New(r image.Rectangle) *Image {
	return &Image{
		Pix:    make([]Color, r.Dx()*r.Dy()),
		Stride: r.Dx(),
		Rect:   r,
	}
}

func (p *Image) Bounds() image.Rectangle {
	return p.Rect
}

func (p *Image) ColorModel() color.Model {
	return color.RGBAModel
}

func (p *Image) PixOffset(x, y int) int {
	off := image.Pt(x, y).Sub(p.Rect.Min)
	return off.Y*p.Stride + off.X
}

// Row returns the pixels of row y.
func (p *Image) Row(y int) []Color {
	if y < p.Rect.Min.Y || y >= p.Rect.Max.Y {
		return nil
	}
	off := p.PixOffset(p.Rect.Min.X, y)
	return p.Pix[off : off+p.Rect.Dx()]
}

func (p *Image) ColorAt(x, y int) Color {
	if !(image.Point{x, y}).In(p.Rect) {
		return Black
	}
	return p.Pix[p.PixOffset(x, y)]
}

func (p *Image) SetColor(x, y int, c Color) {
	if !(image.Point{x, y}).In(p.Rect) {
		return
	}
	p.Pix[p.PixOffset(x, y)] = c
}

func (p *Image) Set(x, y int, c color.Color) {
	p.SetColor(x, y, FromColor(c))
}

func (p *Image) At(x, y int) color.Color {
	if !(image.Point{x, y}).In(p.Rect) {
		return color.RGBA{}
	}
	r, g, b := ToRGB888(p.Pix[p.PixOffset(x, y)])
	return color.RGBA{A: 0xff, R: r, G: g, B: b}
}

func (p *Image) SetRGBA64(x, y int, c color.RGBA64) {
	p.SetColor(x, y, FromRGB888(uint8(c.R>>8), uint8(c.G>>8), uint8(c.B>>8)))
}

func (p *Image) RGBA64At(x, y int) color.RGBA64 {
	if !(image.Point{x, y}).In(p.Rect) {
		return color.RGBA64{}
	}
	r, g, b := ToRGB888(p.Pix[p.PixOffset(x, y)])
	return color.RGBA64{A: 0xffff, R: uint16(r) * 0x101, G: uint16(g) * 0x101, B: uint16(b) * 0x101}
}

func (p *Image) SubImage(r image.Rectangle) image.Image {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return new(Image)
	}
	start := p.PixOffset(r.Min.X, r.Min.Y)
	return &Image{
		Pix:    p.Pix[start:],
		Stride: p.Stride,
		Rect:   r,
	}
}

// Clone returns a copy of the image.
func (p *Image) Clone() *Image {
	c := New(p.Rect)
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		copy(c.Row(y), p.Row(y))
	}
	return c
}

func (p *Image) Draw(dr image.Rectangle, src image.Image, sp image.Point, op draw.Op) {
	dr = dr.Intersect(p.Rect)
	switch src := src.(type) {
	case *image.Uniform:
		if src.Opaque() || op == draw.Src {
			c := FromColor(src.C)
			for y := dr.Min.Y; y < dr.Max.Y; y++ {
				row := p.Row(y)[dr.Min.X-p.Rect.Min.X : dr.Max.X-p.Rect.Min.X]
				for x := range row {
					row[x] = c
				}
			}
			return
		}
	case *image.Gray:
		for y := 0; y < dr.Dy(); y++ {
			for x := 0; x < dr.Dx(); x++ {
				v := src.GrayAt(sp.X+x, sp.Y+y).Y
				p.Pix[p.PixOffset(dr.Min.X+x, dr.Min.Y+y)] = FromRGB888(v, v, v)
			}
		}
		return
	}
	draw.Draw(p, dr, src, sp, op)
}

func FromColor(c color.Color) Color {
	if c, ok := c.(Color); ok {
		return c
	}
	r, g, b, _ := c.RGBA()
	return FromRGB888(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

func FromRGB888(r, g, b uint8) Color {
	return Color(r>>4)<<8 | Color(g>>4)<<4 | Color(b>>4)
}

// ToRGB888 expands c, replicating each 4-bit channel into the low
// nibble.
func ToRGB888(c Color) (r, g, b uint8) {
	r = uint8(c>>8) & 0xf
	g = uint8(c>>4) & 0xf
	b = uint8(c) & 0xf
	return r<<4 | r, g<<4 | g, b<<4 | b
}

// RGBA implements [color.Color].
func (c Color) RGBA() (r, g, b, a uint32) {
	r8, g8, b8 := ToRGB888(c)
	return uint32(r8) * 0x101, uint32(g8) * 0x101, uint32(b8) * 0x101, 0xffff
}

// Gray returns the gray level v, scaled to 4 bits.
func Gray(v uint8) Color {
	return FromRGB888(v, v, v)
}
