// Package capture holds the images handed to applications. Images and
// captures are reference counted: whoever receives one borrows it for the
// duration of a call and must IncRef to keep it longer.
package capture

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var ErrInvalidImage = errors.New("invalid image")

// Format is the pixel layout of an image.
type Format int

const (
	FormatColorMJPG Format = iota
	FormatColorNV12
	FormatColorYUY2
	FormatColorBGRA32
	FormatDepth16
	FormatIR16
	FormatCustom
)

var formatNames = map[Format]string{
	FormatColorMJPG:   "MJPG",
	FormatColorNV12:   "NV12",
	FormatColorYUY2:   "YUY2",
	FormatColorBGRA32: "BGRA32",
	FormatDepth16:     "DEPTH16",
	FormatIR16:        "IR16",
	FormatCustom:      "CUSTOM",
}

func (f Format) String() string {
	if n, ok := formatNames[f]; ok {
		return n
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat maps a name as printed by String back to a Format.
func ParseFormat(s string) (Format, error) {
	for f, n := range formatNames {
		if n == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown image format %q", s)
}

// ReleaseFunc gives a buffer back to whoever allocated it.
type ReleaseFunc func(buf []byte, ctx any)

type Image struct {
	refs atomic.Int32

	format Format
	width  int
	height int
	stride int
	buf    []byte

	release    ReleaseFunc
	releaseCtx any

	timestampUsec uint64
	exposureUsec  uint64
	isoSpeed      uint32
	whiteBalance  uint32
}

// NewImageFromBuffer wraps buf without copying it. On success the image
// owns buf and calls release exactly once, when the last reference goes
// away. On failure ownership stays with the caller.
func NewImageFromBuffer(format Format, width, height, stride int, buf []byte, size int,
	release ReleaseFunc, releaseCtx any) (*Image, error) {
	if width <= 0 || height <= 0 || stride < 0 {
		return nil, fmt.Errorf("%w: %dx%d stride %d", ErrInvalidImage, width, height, stride)
	}
	if buf == nil || size <= 0 || size > len(buf) {
		return nil, fmt.Errorf("%w: buffer of %d bytes, size %d", ErrInvalidImage, len(buf), size)
	}
	if stride > 0 && format != FormatColorMJPG && stride*height > size {
		return nil, fmt.Errorf("%w: stride %d x %d rows exceeds %d bytes", ErrInvalidImage, stride, height, size)
	}

	img := &Image{
		format:     format,
		width:      width,
		height:     height,
		stride:     stride,
		buf:        buf[:size],
		release:    release,
		releaseCtx: releaseCtx,
	}
	img.refs.Store(1)

	return img, nil
}

func (i *Image) IncRef() {
	i.refs.Add(1)
}

// Release drops one reference.
func (i *Image) Release() {
	n := i.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("capture: image released too many times")
	}
	if i.release != nil {
		i.release(i.buf, i.releaseCtx)
	}
	i.buf = nil
}

func (i *Image) Format() Format { return i.format }
func (i *Image) Width() int     { return i.width }
func (i *Image) Height() int    { return i.height }
func (i *Image) Stride() int    { return i.stride }
func (i *Image) Buffer() []byte { return i.buf }
func (i *Image) Size() int      { return len(i.buf) }

func (i *Image) TimestampUsec() uint64 { return i.timestampUsec }
func (i *Image) ExposureUsec() uint64  { return i.exposureUsec }
func (i *Image) ISOSpeed() uint32      { return i.isoSpeed }
func (i *Image) WhiteBalance() uint32  { return i.whiteBalance }

func (i *Image) SetTimestampUsec(v uint64) { i.timestampUsec = v }
func (i *Image) SetExposureUsec(v uint64)  { i.exposureUsec = v }
func (i *Image) SetISOSpeed(v uint32)      { i.isoSpeed = v }
func (i *Image) SetWhiteBalance(v uint32)  { i.whiteBalance = v }
