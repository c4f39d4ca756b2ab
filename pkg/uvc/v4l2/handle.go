//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	v4l "github.com/vladimirvivien/go4vl/v4l2"

	"colorcam/pkg/ksmeta"
	"colorcam/pkg/uvc"
)

const pixelFmtNV12 v4l.FourCCType = 0x3231564E // 'NV12'

var fourcc = map[uvc.FrameFormat]v4l.FourCCType{
	uvc.FrameFormatMJPEG: v4l.PixelFmtMJPEG,
	uvc.FrameFormatNV12:  pixelFmtNV12,
	uvc.FrameFormatYUYV:  v4l.PixelFmtYUYV,
}

var errClosed = errors.New("v4l2: handle closed")

type handle struct {
	path     string
	metaPath string
	open     opener

	mu     sync.Mutex
	dev    videoDevice
	meta   *metaNode
	params uvc.StreamParams
	cancel context.CancelFunc
	done   chan struct{}
}

// NegotiateStream reopens the device in the requested mode, the way the
// driver wants a format change done, and checks what it settled on.
// When the new mode is refused the device is reopened as it was, so
// controls and a later negotiation keep working.
func (h *handle) NegotiateStream(format uvc.FrameFormat, width, height, fps int) (uvc.StreamParams, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dev == nil {
		return uvc.StreamParams{}, errClosed
	}
	if h.cancel != nil {
		return uvc.StreamParams{}, uvc.ErrBusy
	}
	pf, ok := fourcc[format]
	if !ok {
		return uvc.StreamParams{}, fmt.Errorf("%w: format %s", uvc.ErrInvalidMode, format)
	}

	if err := h.dev.Close(); err != nil {
		logger.Warnf("v4l2: close %s: %s", h.path, err)
	}
	h.dev = nil
	dev, err := h.open(h.path, &v4l.PixFormat{
		PixelFormat: pf,
		Width:       uint32(width),
		Height:      uint32(height),
		Field:       v4l.FieldNone,
	})
	if err != nil {
		return uvc.StreamParams{}, h.restore(fmt.Errorf("reopen %s: %w", h.path, err))
	}

	got, err := negotiated(dev, fps)
	if err == nil && (got.PixelFormat != pf || int(got.Width) != width || int(got.Height) != height) {
		err = fmt.Errorf("%w: asked %s %dx%d, device chose %dx%d",
			uvc.ErrInvalidMode, format, width, height, got.Width, got.Height)
	}
	if err != nil {
		if cerr := dev.Close(); cerr != nil {
			logger.Warnf("v4l2: close %s: %s", h.path, cerr)
		}
		return uvc.StreamParams{}, h.restore(err)
	}
	h.dev = dev

	p := uvc.StreamParams{Format: format, Width: width, Height: height, FPS: fps, Step: int(got.BytesPerLine)}
	if format == uvc.FrameFormatMJPEG {
		p.Step = 0
	}
	h.params = p
	return p, nil
}

func negotiated(dev videoDevice, fps int) (v4l.PixFormat, error) {
	if err := dev.SetFrameRate(uint32(fps)); err != nil {
		return v4l.PixFormat{}, fmt.Errorf("%w: %d fps: %w", uvc.ErrInvalidMode, fps, err)
	}
	return dev.GetPixFormat()
}

// restore reopens the device without a mode after a failed negotiation.
// h.mu must be held.
func (h *handle) restore(cause error) error {
	dev, err := h.open(h.path, nil)
	if err != nil {
		logger.Errorf("v4l2: %s lost after failed negotiation: %s", h.path, err)
		return fmt.Errorf("%w (reopen: %w)", cause, err)
	}
	h.dev = dev
	return cause
}

func (h *handle) StartStream(params uvc.StreamParams, sink uvc.FrameSink) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dev == nil {
		return errClosed
	}
	if h.cancel != nil {
		return uvc.ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	var metas <-chan []byte
	h.meta = h.startMeta(ctx)
	if h.meta != nil {
		metas = h.meta.GetOutput()
	}
	if err := h.dev.Start(ctx); err != nil {
		cancel()
		closeMeta(h.meta)
		h.meta = nil
		return err
	}
	h.cancel = cancel
	h.done = make(chan struct{})
	go h.readLoop(h.dev.GetOutput(), metas, params, sink, h.done)

	logger.Infof("v4l2: %s streaming %s %dx%d@%d", h.path, params.Format, params.Width, params.Height, params.FPS)
	return nil
}

// startMeta streams the metadata node next to the video node. Without
// one the read loop falls back to arrival times. h.mu must be held.
func (h *handle) startMeta(ctx context.Context) *metaNode {
	if h.metaPath == "" {
		return nil
	}
	m, err := openMeta(h.metaPath)
	if err != nil {
		logger.Warnf("v4l2: no frame metadata: %s", err)
		return nil
	}
	if err := m.Start(ctx); err != nil {
		logger.Warnf("v4l2: no frame metadata: %s", err)
		_ = m.Close()
		return nil
	}
	return m
}

// closeMeta waits for the metadata loop to end and closes the node.
// The loop's context must already be done.
func closeMeta(m *metaNode) {
	if m == nil {
		return
	}
	for range m.GetOutput() {
	}
	if err := m.Close(); err != nil {
		logger.Warnf("v4l2: close %s: %s", m.path, err)
	}
}

// readLoop is the driver goroutine. Each frame takes the newest block from
// the metadata node; frames without one get a timing item built from
// their arrival time.
func (h *handle) readLoop(out <-chan []byte, metas <-chan []byte, params uvc.StreamParams, sink uvc.FrameSink, done chan<- struct{}) {
	defer close(done)

	start := time.Now()
	var md ksmeta.Builder
	for data := range out {
		if len(data) == 0 {
			continue
		}
		metadata := latestMeta(metas)
		if ksmeta.Parse(metadata).FramePTS == 0 {
			// 设备没有给出时间戳，用到达时间补一个，其余项保留
			md.Reset()
			md.FrameAlignInfo(ksmeta.UsecToTicks(uint64(time.Since(start).Microseconds())))
			metadata = append(append([]byte(nil), md.Bytes()...), metadata...)
		}

		sink.OnFrame(&uvc.Frame{
			Data:     data,
			Step:     params.Step,
			Width:    params.Width,
			Height:   params.Height,
			Format:   params.Format,
			Metadata: metadata,
		})
	}
}

// StopStream cancels the capture and waits for the read loop, and with it
// any frame being delivered, to finish.
func (h *handle) StopStream() {
	h.mu.Lock()
	cancel, done, meta := h.cancel, h.done, h.meta
	h.cancel, h.done, h.meta = nil, nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	closeMeta(meta)
}

func (h *handle) Close() {
	h.StopStream()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev != nil {
		if err := h.dev.Close(); err != nil {
			logger.Warnf("v4l2: close %s: %s", h.path, err)
		}
		h.dev = nil
	}
}
