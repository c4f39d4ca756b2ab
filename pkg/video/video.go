package video

import (
	"fmt"

	"github.com/icza/mjpeg"

	"colorcam/pkg/capture"
	"colorcam/pkg/utils/image"
)

type Builder struct {
	width   int
	height  int
	fps     int
	quality int

	cnt int
	aw  mjpeg.AviWriter
}

// NewBuilder creates an MJPEG AVI at path. Frames must be width x height.
func NewBuilder(path string, width, height, fps int) (*Builder, error) {
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &Builder{
		width:   width,
		height:  height,
		fps:     fps,
		quality: image.DefaultQuality,
		aw:      aw,
	}, nil
}

// Add appends one JPEG frame.
func (b *Builder) Add(frame []byte) error {
	err := b.aw.AddFrame(frame)
	if err != nil {
		return err
	}
	b.cnt++

	return nil
}

// AddCapture appends the color image of c, encoding it to JPEG unless it
// already is one. c stays owned by the caller.
func (b *Builder) AddCapture(c *capture.Capture) error {
	img := c.ColorImage()
	if img == nil {
		return fmt.Errorf("capture has no color image")
	}
	defer img.Release()

	if img.Width() != b.width || img.Height() != b.height {
		return fmt.Errorf("frame is %dx%d, video is %dx%d", img.Width(), img.Height(), b.width, b.height)
	}
	frame, err := image.Snapshot(img, b.quality)
	if err != nil {
		return err
	}
	return b.Add(frame)
}

func (b *Builder) Close() error {
	return b.aw.Close()
}

func (b *Builder) GetCnt() int {
	return b.cnt
}
