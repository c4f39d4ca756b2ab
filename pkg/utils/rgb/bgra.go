package rgb

import (
	"image"
	"image/color"
)

// BGRA is an image.Image over a B, G, R, A byte buffer as produced by the
// color decoder.
type BGRA struct {
	// Pix holds the image's pixels, in B, G, R, A order. The pixel at
	// (x, y) starts at Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)*4].
	Pix []byte
	// Stride is the Pix stride (in bytes) between vertically adjacent pixels.
	Stride int
	// Rect is the image's bounds.
	Rect image.Rectangle
}

func (p *BGRA) ColorModel() color.Model { return color.NRGBAModel }

func (p *BGRA) Bounds() image.Rectangle { return p.Rect }

func (p *BGRA) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.NRGBA{}
	}
	i := (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*4
	s := p.Pix[i : i+4 : i+4]
	return color.NRGBA{R: s[2], G: s[1], B: s[0], A: s[3]}
}

// ToNRGBA copies p into a new NRGBA image.
func (p *BGRA) ToNRGBA() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, p.Rect.Dx(), p.Rect.Dy()))
	for y := 0; y < p.Rect.Dy(); y++ {
		in := p.Pix[y*p.Stride:]
		o := out.Pix[y*out.Stride:]
		for x := 0; x < p.Rect.Dx(); x++ {
			o[x*4] = in[x*4+2]
			o[x*4+1] = in[x*4+1]
			o[x*4+2] = in[x*4]
			o[x*4+3] = in[x*4+3]
		}
	}
	return out
}

// NewBGRA wraps data without copying. A zero stride means width*4.
func NewBGRA(data []byte, width, height, stride int) *BGRA {
	if stride == 0 {
		stride = width * 4
	}
	return &BGRA{
		Pix:    data,
		Stride: stride,
		Rect: image.Rectangle{
			Min: image.Point{X: 0, Y: 0},
			Max: image.Point{X: width, Y: height},
		},
	}
}
