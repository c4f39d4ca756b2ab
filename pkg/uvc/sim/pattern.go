package sim

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"colorcam/pkg/ksmeta"
	"colorcam/pkg/uvc"
)

const deviceClock = 90000

func ticksPerFrame(fps int) uint64 {
	if fps <= 0 {
		return deviceClock
	}
	return uint64(deviceClock / fps)
}

// Metadata builds the block a camera attaches to a frame: timing plus
// exposure (100ns units) and white balance.
func Metadata(pts, exposure100ns uint64, whiteBalance uint32) []byte {
	var b ksmeta.Builder
	b.FrameAlignInfo(pts).
		CaptureStats(ksmeta.FlagExposureTime|ksmeta.FlagWhiteBalance, exposure100ns, 0, whiteBalance)
	return b.Bytes()
}

// Pattern renders color bars in the wire format of params.
func Pattern(params uvc.StreamParams) ([]byte, error) {
	w, h := params.Width, params.Height
	switch params.Format {
	case uvc.FrameFormatMJPEG:
		return JPEG(w, h, 80)
	case uvc.FrameFormatNV12:
		ycc := bars(w, h, image.YCbCrSubsampleRatio420)
		out := make([]byte, 0, w*h*3/2)
		for y := 0; y < h; y++ {
			out = append(out, ycc.Y[y*ycc.YStride:y*ycc.YStride+w]...)
		}
		for y := 0; y < (h+1)/2; y++ {
			for x := 0; x < (w+1)/2; x++ {
				i := y*ycc.CStride + x
				out = append(out, ycc.Cb[i], ycc.Cr[i])
			}
		}
		return out, nil
	case uvc.FrameFormatYUYV:
		ycc := bars(w, h, image.YCbCrSubsampleRatio422)
		out := make([]byte, 0, w*h*2)
		for y := 0; y < h; y++ {
			for x := 0; x+1 < w; x += 2 {
				ci := y*ycc.CStride + x/2
				out = append(out, ycc.Y[y*ycc.YStride+x], ycc.Cb[ci], ycc.Y[y*ycc.YStride+x+1], ycc.Cr[ci])
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: format %s", uvc.ErrInvalidMode, params.Format)
}

// JPEG renders color bars as a baseline JPEG.
func JPEG(width, height, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, bars(width, height, image.YCbCrSubsampleRatio420), &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var barColors = []color.RGBA{
	{255, 255, 255, 255},
	{255, 255, 0, 255},
	{0, 255, 255, 255},
	{0, 255, 0, 255},
	{255, 0, 255, 255},
	{255, 0, 0, 255},
	{0, 0, 255, 255},
	{0, 0, 0, 255},
}

func bars(w, h int, ratio image.YCbCrSubsampleRatio) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, w, h), ratio)
	for x := 0; x < w; x++ {
		c := barColors[x*len(barColors)/w]
		yy, cb, cr := color.RGBToYCbCr(c.R, c.G, c.B)
		for y := 0; y < h; y++ {
			img.Y[img.YOffset(x, y)] = yy
			ci := img.COffset(x, y)
			img.Cb[ci] = cb
			img.Cr[ci] = cr
		}
	}
	return img
}
