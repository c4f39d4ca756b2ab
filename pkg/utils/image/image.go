package image

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	"colorcam/pkg/capture"
	"colorcam/pkg/utils/rgb"
)

const DefaultQuality = 90

// NV12ToYCbCr converts a Y plane followed by an interleaved CbCr plane.
// stride is the row size of both planes; zero means width.
func NV12ToYCbCr(in []byte, width, height, stride int) (*image.YCbCr, error) {
	if stride == 0 {
		stride = width
	}
	ch := (height + 1) / 2
	if len(in) < stride*height+stride*(ch-1)+(width+1)/2*2 {
		return nil, fmt.Errorf("nv12 %dx%d: buffer of %d bytes too short", width, height, len(in))
	}
	out := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420)
	for y := 0; y < height; y++ {
		copy(out.Y[y*out.YStride:y*out.YStride+width], in[y*stride:])
	}
	uv := in[stride*height:]
	for y := 0; y < ch; y++ {
		row := uv[y*stride:]
		for x := 0; x < (width+1)/2; x++ {
			out.Cb[y*out.CStride+x] = row[x*2]
			out.Cr[y*out.CStride+x] = row[x*2+1]
		}
	}
	return out, nil
}

// YUY2ToYCbCr converts packed Y0 Cb Y1 Cr. stride zero means width*2.
func YUY2ToYCbCr(in []byte, width, height, stride int) (*image.YCbCr, error) {
	if stride == 0 {
		stride = width * 2
	}
	if width%2 != 0 {
		return nil, fmt.Errorf("yuy2: odd width %d", width)
	}
	if len(in) < stride*(height-1)+width*2 {
		return nil, fmt.Errorf("yuy2 %dx%d: buffer of %d bytes too short", width, height, len(in))
	}
	out := image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio422)
	for y := 0; y < height; y++ {
		row := in[y*stride:]
		for x := 0; x < width/2; x++ {
			p := row[x*4 : x*4+4]
			out.Y[y*out.YStride+x*2] = p[0]
			out.Y[y*out.YStride+x*2+1] = p[2]
			out.Cb[y*out.CStride+x] = p[1]
			out.Cr[y*out.CStride+x] = p[3]
		}
	}
	return out, nil
}

// FromCapture returns img's pixels as an image.Image. Raw formats are
// wrapped or copied, MJPG is decoded.
func FromCapture(img *capture.Image) (image.Image, error) {
	switch img.Format() {
	case capture.FormatColorBGRA32:
		if len(img.Buffer()) < img.Stride()*(img.Height()-1)+img.Width()*4 {
			return nil, fmt.Errorf("bgra %dx%d: buffer of %d bytes too short", img.Width(), img.Height(), img.Size())
		}
		return rgb.NewBGRA(img.Buffer(), img.Width(), img.Height(), img.Stride()), nil
	case capture.FormatColorNV12:
		return NV12ToYCbCr(img.Buffer(), img.Width(), img.Height(), img.Stride())
	case capture.FormatColorYUY2:
		return YUY2ToYCbCr(img.Buffer(), img.Width(), img.Height(), img.Stride())
	case capture.FormatColorMJPG:
		return jpeg.Decode(bytes.NewReader(img.Buffer()))
	}
	return nil, fmt.Errorf("unsupported image format %s", img.Format())
}

// Snapshot returns img as a JPEG. MJPG frames are copied as they are.
func Snapshot(img *capture.Image, quality int) ([]byte, error) {
	if img.Format() == capture.FormatColorMJPG {
		return append([]byte(nil), img.Buffer()...), nil
	}
	i, err := FromCapture(img)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := EncodeJPEG(i, &buf, quality); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func EncodeJPEG(img image.Image, dst io.Writer, quality int) error {
	if b, ok := img.(*rgb.BGRA); ok {
		img = b.ToNRGBA()
	}
	return jpeg.Encode(dst, img, &jpeg.Options{Quality: quality})
}

func EncodeJPEGFile(img image.Image, file string, quality int) error {
	f, err := os.OpenFile(file, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0660)
	if err != nil {
		return err
	}
	defer f.Close()

	return EncodeJPEG(img, f, quality)
}
