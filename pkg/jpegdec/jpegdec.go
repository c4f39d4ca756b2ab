// Package jpegdec decodes MJPEG frames straight into a caller supplied BGRA
// buffer.
package jpegdec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
)

// Decompress status codes. Zero is success.
const (
	StatusOK           = 0
	StatusCorrupt      = -1
	StatusSizeMismatch = -2
	StatusShortBuffer  = -3
	StatusBadArgs      = -4
	StatusClosed       = -5
)

// Decoder is reusable across frames but not safe for concurrent use.
type Decoder struct {
	r       bytes.Reader
	lastErr error
	closed  bool
}

func New() (*Decoder, error) {
	return &Decoder{}, nil
}

// LastError describes the last StatusCorrupt result.
func (d *Decoder) LastError() error {
	return d.lastErr
}

// Decompress decodes src into dst as BGRA with rows pitch bytes apart. A
// zero pitch means width*4. The JPEG must be exactly width x height.
func (d *Decoder) Decompress(src, dst []byte, width, pitch, height int) int {
	if d.closed {
		return StatusClosed
	}
	if pitch == 0 {
		pitch = width * 4
	}
	if width <= 0 || height <= 0 || pitch < width*4 {
		return StatusBadArgs
	}
	if len(dst) < pitch*(height-1)+width*4 {
		return StatusShortBuffer
	}

	d.r.Reset(src)
	img, err := jpeg.Decode(&d.r)
	if err != nil {
		d.lastErr = err
		return StatusCorrupt
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return StatusSizeMismatch
	}

	switch m := img.(type) {
	case *image.YCbCr:
		ycbcrToBGRA(m, dst, pitch)
	case *image.Gray:
		grayToBGRA(m, dst, pitch)
	default:
		anyToBGRA(img, dst, pitch)
	}
	return StatusOK
}

func (d *Decoder) Close() error {
	d.closed = true
	d.r.Reset(nil)
	return nil
}

func ycbcrToBGRA(m *image.YCbCr, dst []byte, pitch int) {
	b := m.Bounds()
	for y := 0; y < b.Dy(); y++ {
		o := y * pitch
		for x := 0; x < b.Dx(); x++ {
			yi := m.YOffset(b.Min.X+x, b.Min.Y+y)
			ci := m.COffset(b.Min.X+x, b.Min.Y+y)
			r, g, bl := color.YCbCrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
			dst[o] = bl
			dst[o+1] = g
			dst[o+2] = r
			dst[o+3] = 0xff
			o += 4
		}
	}
}

func grayToBGRA(m *image.Gray, dst []byte, pitch int) {
	b := m.Bounds()
	for y := 0; y < b.Dy(); y++ {
		o := y * pitch
		row := m.Pix[y*m.Stride : y*m.Stride+b.Dx()]
		for _, v := range row {
			dst[o] = v
			dst[o+1] = v
			dst[o+2] = v
			dst[o+3] = 0xff
			o += 4
		}
	}
}

func anyToBGRA(img image.Image, dst []byte, pitch int) {
	b := img.Bounds()
	for y := 0; y < b.Dy(); y++ {
		o := y * pitch
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			dst[o] = c.B
			dst[o+1] = c.G
			dst[o+2] = c.R
			dst[o+3] = c.A
			o += 4
		}
	}
}
