package camera

import (
	"errors"

	"colorcam/pkg/capture"
	"colorcam/pkg/ksmeta"
	"colorcam/pkg/metrics"
	"colorcam/pkg/uvc"
)

// OnFrame is called by the driver for every frame while streaming. Frames
// that arrive after Stop, or before the device has a valid timestamp, are
// dropped without calling the sink.
func (c *Camera) OnFrame(f *uvc.Frame) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.state.Is(StateStreaming) || c.sink == nil {
		metrics.FrameDropped(metrics.DropNotStreaming)
		return
	}
	if f == nil {
		return
	}

	md := ksmeta.Parse(f.Metadata)
	if md.Truncated {
		metrics.MetadataTruncated()
		c.frameLog.Warnf("frame metadata truncated (%d bytes)", len(f.Metadata))
	}
	// PTS 0 means the device clock is not running yet
	if md.FramePTS == 0 {
		metrics.FrameDropped(metrics.DropNoTimestamp)
		return
	}

	capt, err := c.buildCapture(f, md)
	c.sink.OnCapture(err, capt)
	metrics.FrameDelivered(c.outputFormat.String(), resultLabel(err))

	if capt != nil {
		capt.Release()
	}
}

// buildCapture must be called with lock held.
func (c *Camera) buildCapture(f *uvc.Frame, md ksmeta.Metadata) (*capture.Capture, error) {
	decode := c.needsDecode()

	var stride, size int
	if decode {
		stride = c.width * 4
		size = stride * c.height
	} else {
		stride = f.Step
		size = len(f.Data)
	}

	buf, actx, err := c.alloc.Alloc(size)
	if err != nil {
		c.frameLog.Errorf("allocate %d byte color buffer: %s", size, err)
		return nil, err
	}

	if decode {
		if err := c.decodeMJPEG(f.Data, buf); err != nil {
			c.alloc.Free(buf, actx)
			c.frameLog.Errorf("decode color frame: %s", err)
			return nil, err
		}
	} else {
		copy(buf, f.Data)
	}

	img, err := capture.NewImageFromBuffer(c.outputFormat, c.width, c.height, stride, buf, size, c.alloc.Free, actx)
	if err != nil {
		// the image never took the buffer
		c.alloc.Free(buf, actx)
		c.frameLog.Errorf("create color image: %s", err)
		return nil, err
	}
	defer img.Release()

	img.SetTimestampUsec(ksmeta.TicksToUsec(md.FramePTS))
	img.SetExposureUsec(md.ExposureTime / 10)
	img.SetISOSpeed(md.ISOSpeed)
	img.SetWhiteBalance(md.WhiteBalance)

	capt, err := capture.New()
	if err != nil {
		c.frameLog.Errorf("create capture: %s", err)
		return nil, err
	}
	capt.SetColorImage(img)
	return capt, nil
}

// needsDecode reports whether frames arrive as MJPEG but are delivered as
// BGRA. Must be called with lock held.
func (c *Camera) needsDecode() bool {
	return c.inputFormat == capture.FormatColorMJPG && c.outputFormat == capture.FormatColorBGRA32
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAllocation):
		return "allocation"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrCapacity):
		return "capacity"
	}
	return "error"
}
