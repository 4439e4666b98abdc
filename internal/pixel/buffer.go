// Package pixel provides the floating-point RGBA buffer passed between the
// renderer, the conversion transforms and the image store.
package pixel

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// Color is a straight-alpha RGBA value with components in [0, 1].
type Color [4]float32

// Buffer is a width x height image of straight-alpha RGBA float32 values,
// stored row by row from the top.
type Buffer struct {
	Width  int
	Height int
	Pix    []float32
}

// New creates a transparent buffer.
func New(width, height int) *Buffer {
	return &Buffer{Width: width, Height: height, Pix: make([]float32, width*height*4)}
}

// Filled creates a buffer where every pixel is c.
func Filled(width, height int, c Color) *Buffer {
	b := New(width, height)
	b.Fill(c)
	return b
}

func (b *Buffer) offset(x, y int) int {
	return (y*b.Width + x) * 4
}

// At returns the pixel at (x, y).
func (b *Buffer) At(x, y int) Color {
	i := b.offset(x, y)
	return Color{b.Pix[i], b.Pix[i+1], b.Pix[i+2], b.Pix[i+3]}
}

// Set writes the pixel at (x, y).
func (b *Buffer) Set(x, y int, c Color) {
	i := b.offset(x, y)
	copy(b.Pix[i:i+4], c[:])
}

// Row returns the slice holding row y.
func (b *Buffer) Row(y int) []float32 {
	i := b.offset(0, y)
	return b.Pix[i : i+b.Width*4]
}

// Fill sets every pixel to c.
func (b *Buffer) Fill(c Color) {
	for i := 0; i < len(b.Pix); i += 4 {
		copy(b.Pix[i:i+4], c[:])
	}
}

// SameSize reports whether o has the dimensions of b.
func (b *Buffer) SameSize(o *Buffer) bool {
	return b.Width == o.Width && b.Height == o.Height
}

// Over composites b over dst in place. Pixels of b with zero alpha leave dst
// untouched.
func (b *Buffer) Over(dst *Buffer) {
	for i := 0; i < len(b.Pix) && i < len(dst.Pix); i += 4 {
		sa := b.Pix[i+3]
		if sa <= 0 {
			continue
		}
		da := dst.Pix[i+3]
		oa := sa + da*(1-sa)
		for c := 0; c < 3; c++ {
			dst.Pix[i+c] = (b.Pix[i+c]*sa + dst.Pix[i+c]*da*(1-sa)) / oa
		}
		dst.Pix[i+3] = oa
	}
}

// Resize returns a copy scaled to width x height with Catmull-Rom filtering.
func (b *Buffer) Resize(width, height int) *Buffer {
	if b.Width == width && b.Height == height {
		out := New(width, height)
		copy(out.Pix, b.Pix)
		return out
	}
	src := b.ToRGBA64()
	dst := image.NewRGBA64(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return FromImage(dst)
}

// ToNRGBA converts to an 8-bit image.
func (b *Buffer) ToNRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			c := b.At(x, y)
			img.SetNRGBA(x, y, color.NRGBA{R: to8(c[0]), G: to8(c[1]), B: to8(c[2]), A: to8(c[3])})
		}
	}
	return img
}

// ToNRGBA64 converts to a 16-bit image.
func (b *Buffer) ToNRGBA64() *image.NRGBA64 {
	img := image.NewNRGBA64(image.Rect(0, 0, b.Width, b.Height))
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			c := b.At(x, y)
			img.SetNRGBA64(x, y, color.NRGBA64{R: to16(c[0]), G: to16(c[1]), B: to16(c[2]), A: to16(c[3])})
		}
	}
	return img
}

// ToRGBA64 converts to a premultiplied 16-bit image, the form the scalers
// expect.
func (b *Buffer) ToRGBA64() *image.RGBA64 {
	img := image.NewRGBA64(image.Rect(0, 0, b.Width, b.Height))
	draw.Draw(img, img.Bounds(), b.ToNRGBA64(), image.Point{}, draw.Src)
	return img
}

// FromImage converts any image to a buffer.
func FromImage(img image.Image) *Buffer {
	r := img.Bounds()
	b := New(r.Dx(), r.Dy())
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			c := color.NRGBA64Model.Convert(img.At(r.Min.X+x, r.Min.Y+y)).(color.NRGBA64)
			b.Set(x, y, Color{
				float32(c.R) / 0xffff,
				float32(c.G) / 0xffff,
				float32(c.B) / 0xffff,
				float32(c.A) / 0xffff,
			})
		}
	}
	return b
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func to8(v float32) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}

func to16(v float32) uint16 {
	return uint16(clamp01(v)*0xffff + 0.5)
}
