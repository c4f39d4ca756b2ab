package camera

import (
	"fmt"

	"colorcam/pkg/capture"
	"colorcam/pkg/uvc"
)

// USB ids of the color camera.
const (
	VendorID  uint16 = 0x045e
	ProductID uint16 = 0x097d
)

const DefaultFPS = 30

type formatMapping struct {
	input  capture.Format
	wire   uvc.FrameFormat
	decode bool
}

// formatTable maps a requested output format to what has to come over the
// wire for it.
var formatTable = map[capture.Format]formatMapping{
	capture.FormatColorMJPG:   {input: capture.FormatColorMJPG, wire: uvc.FrameFormatMJPEG},
	capture.FormatColorNV12:   {input: capture.FormatColorNV12, wire: uvc.FrameFormatNV12},
	capture.FormatColorYUY2:   {input: capture.FormatColorYUY2, wire: uvc.FrameFormatYUYV},
	capture.FormatColorBGRA32: {input: capture.FormatColorMJPG, wire: uvc.FrameFormatMJPEG, decode: true},
}

// InputFormat reports the format the camera must stream for output and
// whether frames need decoding on the way.
func InputFormat(output capture.Format) (capture.Format, bool, error) {
	m, ok := formatTable[output]
	if !ok {
		return 0, false, fmt.Errorf("%w: %s", ErrUnsupportedFormat, output)
	}
	return m.input, m.decode, nil
}

type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

var (
	Res720P  = Resolution{1280, 720}
	Res1080P = Resolution{1920, 1080}
	Res1440P = Resolution{2560, 1440}
	Res1536P = Resolution{2048, 1536}
	Res2160P = Resolution{3840, 2160}
	Res3072P = Resolution{4096, 3072}
)

// Mode is a resolution and format the camera streams at up to MaxFPS.
type Mode struct {
	Resolution
	Format capture.Format
	MaxFPS int
}

var SupportedModes = []Mode{
	{Res2160P, capture.FormatColorMJPG, 30},
	{Res1440P, capture.FormatColorMJPG, 30},
	{Res1080P, capture.FormatColorMJPG, 30},
	{Res720P, capture.FormatColorMJPG, 30},
	{Res720P, capture.FormatColorYUY2, 30},
	{Res720P, capture.FormatColorNV12, 30},
	{Res3072P, capture.FormatColorMJPG, 15},
	{Res1536P, capture.FormatColorMJPG, 30},
	{Res2160P, capture.FormatColorBGRA32, 30},
	{Res1440P, capture.FormatColorBGRA32, 30},
	{Res1080P, capture.FormatColorBGRA32, 30},
	{Res720P, capture.FormatColorBGRA32, 30},
	{Res3072P, capture.FormatColorBGRA32, 15},
	{Res1536P, capture.FormatColorBGRA32, 30},
}

// StreamConfig is what Start asks the camera for.
type StreamConfig struct {
	Width  int
	Height int
	FPS    int
	Format capture.Format
}

func (s StreamConfig) String() string {
	return fmt.Sprintf("%dx%d@%d %s", s.Width, s.Height, s.FPS, s.Format)
}

// Supported reports whether s is listed in SupportedModes.
func (s StreamConfig) Supported() bool {
	for _, m := range SupportedModes {
		if m.Width == s.Width && m.Height == s.Height && m.Format == s.Format && s.FPS > 0 && s.FPS <= m.MaxFPS {
			return true
		}
	}
	return false
}
