//go:build !linux

package v4l2

import (
	"errors"

	"colorcam/pkg/uvc"
)

var ErrUnsupported = errors.New("v4l2: only available on linux")

type Driver struct{}

func New() *Driver {
	return &Driver{}
}

func (d *Driver) OpenContext() (uvc.Context, error) {
	return nil, ErrUnsupported
}
