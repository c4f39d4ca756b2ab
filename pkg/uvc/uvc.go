// Package uvc describes the host side of a UVC camera: the pieces a camera
// session needs from whatever library actually talks to the device.
package uvc

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("uvc: device not found")
	ErrBusy         = errors.New("uvc: device busy")
	ErrNotStreaming = errors.New("uvc: not streaming")
	ErrInvalidMode  = errors.New("uvc: unsupported stream mode")
)

// FrameFormat is the on-wire format of a stream.
type FrameFormat int

const (
	FrameFormatUnknown FrameFormat = iota
	FrameFormatMJPEG
	FrameFormatNV12
	FrameFormatYUYV
)

func (f FrameFormat) String() string {
	switch f {
	case FrameFormatMJPEG:
		return "MJPEG"
	case FrameFormatNV12:
		return "NV12"
	case FrameFormatYUYV:
		return "YUYV"
	}
	return fmt.Sprintf("FrameFormat(%d)", int(f))
}

// Frame is a frame as delivered by the driver. It is only valid for the
// duration of the FrameSink call it was passed to.
type Frame struct {
	Data   []byte
	Step   int
	Width  int
	Height int
	Format FrameFormat

	// Metadata is the camera metadata block, see package ksmeta.
	Metadata []byte
}

// FrameSink receives frames on a goroutine owned by the driver.
type FrameSink interface {
	OnFrame(frame *Frame)
}

// StreamParams is the result of a successful negotiation.
type StreamParams struct {
	Format FrameFormat
	Width  int
	Height int
	FPS    int
	Step   int
}

// Driver is the entry point of a UVC host library.
type Driver interface {
	OpenContext() (Context, error)
}

type Context interface {
	// FindDevice looks up a device by USB ids. An empty serial matches any.
	FindDevice(vendorID, productID uint16, serial string) (DeviceRef, error)
	Close()
}

type DeviceRef interface {
	Open() (Handle, error)
	Unref()
}

type Handle interface {
	NegotiateStream(format FrameFormat, width, height, fps int) (StreamParams, error)
	StartStream(params StreamParams, sink FrameSink) error
	// StopStream returns only once every frame already handed to the sink
	// has returned.
	StopStream()
	Close()

	GetControl(sel Selector) (int32, error)
	SetControl(sel Selector, value int32) error
}
