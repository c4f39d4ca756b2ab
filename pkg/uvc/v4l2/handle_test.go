//go:build linux

package v4l2

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	v4l "github.com/vladimirvivien/go4vl/v4l2"

	"colorcam/pkg/ksmeta"
	"colorcam/pkg/uvc"
)

type fakeDevice struct {
	pf      v4l.PixFormat
	rateErr error
	closed  bool
	ctrls   map[v4l.CtrlID]v4l.CtrlValue
}

func (d *fakeDevice) Fd() uintptr                          { return ^uintptr(0) }
func (d *fakeDevice) SetFrameRate(uint32) error            { return d.rateErr }
func (d *fakeDevice) GetPixFormat() (v4l.PixFormat, error) { return d.pf, nil }
func (d *fakeDevice) Start(context.Context) error          { return errors.New("not streaming") }
func (d *fakeDevice) GetOutput() <-chan []byte             { return nil }

func (d *fakeDevice) SetControlValue(id v4l.CtrlID, val v4l.CtrlValue) error {
	if d.ctrls == nil {
		d.ctrls = make(map[v4l.CtrlID]v4l.CtrlValue)
	}
	d.ctrls[id] = val
	return nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

// fakeOpener hands out devices in the mode they were opened with. Modes
// listed in refuse fail to open, modes in shrink open at half size.
type fakeOpener struct {
	opened  []*fakeDevice
	refuse  map[v4l.FourCCType]bool
	shrink  map[v4l.FourCCType]bool
	failAll bool
}

func (o *fakeOpener) open(path string, pf *v4l.PixFormat) (videoDevice, error) {
	if o.failAll {
		return nil, errors.New("no such device")
	}
	d := &fakeDevice{}
	if pf != nil {
		if o.refuse[pf.PixelFormat] {
			return nil, errors.New("set format: invalid argument")
		}
		d.pf = *pf
		d.pf.BytesPerLine = pf.Width * 2
		if o.shrink[pf.PixelFormat] {
			d.pf.Width, d.pf.Height = pf.Width/2, pf.Height/2
		}
	}
	o.opened = append(o.opened, d)
	return d, nil
}

func newFakeHandle(o *fakeOpener) *handle {
	return &handle{path: "/dev/video0", open: o.open, dev: &fakeDevice{}}
}

func TestNegotiate(t *testing.T) {
	o := &fakeOpener{}
	h := newFakeHandle(o)
	first := h.dev.(*fakeDevice)

	p, err := h.NegotiateStream(uvc.FrameFormatYUYV, 1280, 720, 30)
	require.NoError(t, err)
	assert.Equal(t, uvc.StreamParams{Format: uvc.FrameFormatYUYV, Width: 1280, Height: 720, FPS: 30, Step: 2560}, p)
	assert.True(t, first.closed)
	require.Len(t, o.opened, 1)
	assert.Same(t, o.opened[0], h.dev)

	p, err = h.NegotiateStream(uvc.FrameFormatMJPEG, 1920, 1080, 15)
	require.NoError(t, err)
	assert.Zero(t, p.Step)
}

func TestNegotiateOpenFailureKeepsHandle(t *testing.T) {
	o := &fakeOpener{refuse: map[v4l.FourCCType]bool{pixelFmtNV12: true}}
	h := newFakeHandle(o)

	_, err := h.NegotiateStream(uvc.FrameFormatNV12, 1280, 720, 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid argument")

	// reopened without a mode
	require.Len(t, o.opened, 1)
	require.NotNil(t, h.dev)
	assert.Same(t, o.opened[0], h.dev)
	assert.Equal(t, v4l.PixFormat{}, o.opened[0].pf)

	require.NoError(t, h.SetControl(uvc.SelectorGain, 7))
	assert.EqualValues(t, 7, o.opened[0].ctrls[ctrlGain])

	_, err = h.NegotiateStream(uvc.FrameFormatMJPEG, 1280, 720, 30)
	require.NoError(t, err)
	assert.True(t, o.opened[0].closed)
}

func TestNegotiateRefusedModeKeepsHandle(t *testing.T) {
	o := &fakeOpener{shrink: map[v4l.FourCCType]bool{v4l.PixelFmtYUYV: true}}
	h := newFakeHandle(o)

	_, err := h.NegotiateStream(uvc.FrameFormatYUYV, 1280, 720, 30)
	assert.ErrorIs(t, err, uvc.ErrInvalidMode)
	require.Len(t, o.opened, 2)
	assert.True(t, o.opened[0].closed, "device in the refused mode is closed")
	assert.Same(t, o.opened[1], h.dev)
	assert.False(t, o.opened[1].closed)
}

func TestNegotiateFrameRateRefused(t *testing.T) {
	o := &fakeOpener{}
	h := newFakeHandle(o)
	h.open = func(path string, pf *v4l.PixFormat) (videoDevice, error) {
		dev, err := o.open(path, pf)
		if pf != nil {
			dev.(*fakeDevice).rateErr = errors.New("invalid argument")
		}
		return dev, err
	}

	_, err := h.NegotiateStream(uvc.FrameFormatMJPEG, 1280, 720, 120)
	assert.ErrorIs(t, err, uvc.ErrInvalidMode)
	require.Len(t, o.opened, 2)
	assert.Same(t, o.opened[1], h.dev)
}

func TestNegotiateReopenFailure(t *testing.T) {
	o := &fakeOpener{failAll: true}
	h := newFakeHandle(o)

	_, err := h.NegotiateStream(uvc.FrameFormatMJPEG, 1280, 720, 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reopen")
	assert.Nil(t, h.dev)

	_, err = h.NegotiateStream(uvc.FrameFormatMJPEG, 1280, 720, 30)
	assert.ErrorIs(t, err, errClosed)
	h.Close()
}

// metaEntry builds one uvc_meta_buf entry: ns, sof, then the payload
// header with the given flags and extension.
func metaEntry(flags byte, ext []byte) []byte {
	std := 2
	if flags&streamPTS != 0 {
		std += 4
	}
	if flags&streamSCR != 0 {
		std += 6
	}
	b := make([]byte, metaEntryHeader+std, metaEntryHeader+std+len(ext))
	binary.LittleEndian.PutUint64(b, 123456789)
	binary.LittleEndian.PutUint16(b[8:], 42)
	b[metaEntryHeader] = byte(std + len(ext))
	b[metaEntryHeader+1] = flags
	return append(b, ext...)
}

func TestPayloadMetadata(t *testing.T) {
	var md ksmeta.Builder
	md.FrameAlignInfo(900).CaptureStats(ksmeta.FlagExposureTime, 33000, 0, 0)
	ext := md.Bytes()

	got := payloadMetadata(metaEntry(streamPTS|streamSCR, ext))
	assert.Equal(t, ext, got)
	assert.EqualValues(t, 900, ksmeta.Parse(got).FramePTS)

	got = payloadMetadata(metaEntry(0, ext))
	assert.Equal(t, ext, got)

	// the first entry only carries timing
	buf := append(metaEntry(streamPTS, nil), metaEntry(streamPTS, ext)...)
	assert.Equal(t, ext, payloadMetadata(buf))

	assert.Nil(t, payloadMetadata(metaEntry(streamPTS|streamSCR, nil)))
	assert.Nil(t, payloadMetadata(nil))
	assert.Nil(t, payloadMetadata(make([]byte, metaEntryHeader+1)))

	// header length runs past the buffer
	short := metaEntry(streamPTS, ext)
	assert.Nil(t, payloadMetadata(short[:len(short)-1]))
}

func TestLatestMeta(t *testing.T) {
	assert.Nil(t, latestMeta(nil))

	ch := make(chan []byte, 3)
	ch <- []byte{1}
	ch <- []byte{2}
	assert.Equal(t, []byte{2}, latestMeta(ch))
	assert.Nil(t, latestMeta(ch))

	ch <- []byte{3}
	close(ch)
	assert.Equal(t, []byte{3}, latestMeta(ch))
	assert.Nil(t, latestMeta(ch))
}

type frameRecorder struct {
	metadata [][]byte
}

func (r *frameRecorder) OnFrame(f *uvc.Frame) {
	r.metadata = append(r.metadata, append([]byte(nil), f.Metadata...))
}

func TestReadLoopMetadata(t *testing.T) {
	var full, stats ksmeta.Builder
	full.FrameAlignInfo(9000).CaptureStats(ksmeta.FlagExposureTime|ksmeta.FlagWhiteBalance, 100000, 0, 5000)
	stats.CaptureStats(ksmeta.FlagExposureTime, 20000, 0, 0)

	out := make(chan []byte, 4)
	metas := make(chan []byte, 4)
	metas <- full.Bytes()
	out <- []byte{1}
	out <- []byte{}
	close(out)

	h := &handle{}
	r := &frameRecorder{}
	done := make(chan struct{})
	params := uvc.StreamParams{Format: uvc.FrameFormatMJPEG, Width: 1280, Height: 720, FPS: 30}
	h.readLoop(out, metas, params, r, done)
	<-done

	// empty buffers are dropped
	require.Len(t, r.metadata, 1)
	md := ksmeta.Parse(r.metadata[0])
	assert.EqualValues(t, 9000, md.FramePTS)
	assert.EqualValues(t, 100000, md.ExposureTime)
	assert.EqualValues(t, 5000, md.WhiteBalance)

	// statistics without timing keep their values behind a synthesized timing item
	out = make(chan []byte, 1)
	metas <- stats.Bytes()
	out <- []byte{1}
	close(out)
	r = &frameRecorder{}
	done = make(chan struct{})
	h.readLoop(out, metas, params, r, done)
	require.Len(t, r.metadata, 1)
	md = ksmeta.Parse(r.metadata[0])
	assert.False(t, md.Truncated)
	assert.EqualValues(t, 20000, md.ExposureTime)

	// no metadata node at all
	out = make(chan []byte, 1)
	out <- []byte{1}
	close(out)
	r = &frameRecorder{}
	done = make(chan struct{})
	h.readLoop(out, nil, params, r, done)
	require.Len(t, r.metadata, 1)
	var timing ksmeta.Builder
	timing.FrameAlignInfo(1)
	assert.Len(t, r.metadata[0], len(timing.Bytes()))
}
