//go:build linux

package v4l2

import (
	"context"
	"fmt"
	"strings"

	"github.com/vladimirvivien/go4vl/device"
	v4l "github.com/vladimirvivien/go4vl/v4l2"

	"colorcam/pkg/uvc"
)

// videoDevice is the part of *device.Device the handle uses.
type videoDevice interface {
	Fd() uintptr
	SetFrameRate(fps uint32) error
	GetPixFormat() (v4l.PixFormat, error)
	SetControlValue(id v4l.CtrlID, val v4l.CtrlValue) error
	Start(ctx context.Context) error
	GetOutput() <-chan []byte
	Close() error
}

// opener opens the capture node, in the given mode when pf is not nil.
type opener func(path string, pf *v4l.PixFormat) (videoDevice, error)

func openVideo(path string, pf *v4l.PixFormat) (videoDevice, error) {
	opts := []device.Option{device.WithBufferSize(2)}
	if pf != nil {
		opts = append(opts, device.WithPixFormat(*pf))
	}
	dev, err := device.Open(path, opts...)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "busy") {
			return nil, fmt.Errorf("%w: %s: %w", uvc.ErrBusy, path, err)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return dev, nil
}
