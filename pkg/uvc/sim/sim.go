// Package sim is a uvc.Driver backed by a simulated camera. Frames are
// either pushed by the caller with Deliver or, for a live driver,
// generated at the negotiated frame rate.
package sim

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"colorcam/pkg/utils"
	"colorcam/pkg/uvc"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

// Step names a driver call that can be made to fail.
type Step int

const (
	StepOpenContext Step = iota
	StepOpen
	StepNegotiate
	StepStart
)

type Mode struct {
	Format uvc.FrameFormat
	Width  int
	Height int
	FPS    int
}

type Device struct {
	VendorID  uint16
	ProductID uint16
	Serial    string
	// Modes the device negotiates. Empty accepts any mode.
	Modes []Mode
}

// Call is one control access seen by a handle.
type Call struct {
	Set      bool
	Selector uvc.Selector
	Value    int32
}

func (c Call) String() string {
	if c.Set {
		return fmt.Sprintf("set %s=%d", c.Selector, c.Value)
	}
	return fmt.Sprintf("get %s", c.Selector)
}

// DefaultControls is what a freshly opened handle reports.
var DefaultControls = map[uvc.Selector]int32{
	uvc.SelectorAEMode:                uvc.AEModeAperturePriority,
	uvc.SelectorExposureAbs:           333,
	uvc.SelectorBrightness:            128,
	uvc.SelectorContrast:              5,
	uvc.SelectorSaturation:            32,
	uvc.SelectorSharpness:             2,
	uvc.SelectorWhiteBalanceTempAuto:  1,
	uvc.SelectorWhiteBalanceTemp:      4500,
	uvc.SelectorBacklightCompensation: 0,
	uvc.SelectorGain:                  0,
	uvc.SelectorPowerLineFrequency:    2,
}

type Driver struct {
	mu      sync.Mutex
	devices []Device
	live    bool
	fail    map[Step]error

	contexts int
	refs     int
	handles  []*Handle
}

// New returns a driver that only streams frames passed to Deliver.
func New(devices ...Device) *Driver {
	return &Driver{devices: devices, fail: make(map[Step]error)}
}

// NewLive returns a driver whose handles generate a test pattern at the
// negotiated frame rate.
func NewLive(devices ...Device) *Driver {
	d := New(devices...)
	d.live = true
	return d
}

// Fail makes step return err until cleared with a nil err.
func (d *Driver) Fail(step Step, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, step)
		return
	}
	d.fail[step] = err
}

func (d *Driver) failure(step Step) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fail[step]
}

// Open reports contexts, device refs and handles not yet released.
func (d *Driver) Open() (contexts, refs, handles int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, h := range d.handles {
		if !h.isClosed() {
			handles++
		}
	}
	return d.contexts, d.refs, handles
}

// Handle returns the most recently opened handle, or nil.
func (d *Driver) Handle() *Handle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

func (d *Driver) OpenContext() (uvc.Context, error) {
	if err := d.failure(StepOpenContext); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.contexts++
	d.mu.Unlock()
	return &uvcContext{d: d}, nil
}

type uvcContext struct {
	d      *Driver
	closed bool
}

func (c *uvcContext) FindDevice(vendorID, productID uint16, serial string) (uvc.DeviceRef, error) {
	c.d.mu.Lock()
	defer c.d.mu.Unlock()
	for i := range c.d.devices {
		dev := &c.d.devices[i]
		if dev.VendorID != vendorID || dev.ProductID != productID {
			continue
		}
		if serial != "" && dev.Serial != serial {
			continue
		}
		c.d.refs++
		return &deviceRef{d: c.d, dev: dev}, nil
	}
	return nil, uvc.ErrNotFound
}

func (c *uvcContext) Close() {
	if c.closed {
		logger.Warn("sim: context closed twice")
		return
	}
	c.closed = true
	c.d.mu.Lock()
	c.d.contexts--
	c.d.mu.Unlock()
}

type deviceRef struct {
	d     *Driver
	dev   *Device
	unref bool
}

func (r *deviceRef) Open() (uvc.Handle, error) {
	if err := r.d.failure(StepOpen); err != nil {
		return nil, err
	}
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, h := range r.d.handles {
		if h.dev == r.dev && !h.isClosed() {
			return nil, uvc.ErrBusy
		}
	}
	h := newHandle(r.d, r.dev)
	r.d.handles = append(r.d.handles, h)
	return h, nil
}

func (r *deviceRef) Unref() {
	if r.unref {
		logger.Warn("sim: device unref'd twice")
		return
	}
	r.unref = true
	r.d.mu.Lock()
	r.d.refs--
	r.d.mu.Unlock()
}

type Handle struct {
	d   *Driver
	dev *Device

	mu        sync.Mutex
	controls  map[uvc.Selector]int32
	calls     []Call
	closed    bool
	streaming bool
	params    uvc.StreamParams
	sink      uvc.FrameSink
	inflight  sync.WaitGroup
	stop      chan struct{}
	genDone   chan struct{}
	seq       uint64
}

func newHandle(d *Driver, dev *Device) *Handle {
	h := &Handle{d: d, dev: dev, controls: make(map[uvc.Selector]int32)}
	for k, v := range DefaultControls {
		h.controls[k] = v
	}
	return h
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) NegotiateStream(format uvc.FrameFormat, width, height, fps int) (uvc.StreamParams, error) {
	if err := h.d.failure(StepNegotiate); err != nil {
		return uvc.StreamParams{}, err
	}
	if width <= 0 || height <= 0 || fps <= 0 {
		return uvc.StreamParams{}, fmt.Errorf("%w: %dx%d@%d", uvc.ErrInvalidMode, width, height, fps)
	}
	if len(h.dev.Modes) > 0 {
		ok := false
		for _, m := range h.dev.Modes {
			if m.Format == format && m.Width == width && m.Height == height && fps <= m.FPS {
				ok = true
				break
			}
		}
		if !ok {
			return uvc.StreamParams{}, fmt.Errorf("%w: %s %dx%d@%d", uvc.ErrInvalidMode, format, width, height, fps)
		}
	}

	p := uvc.StreamParams{Format: format, Width: width, Height: height, FPS: fps}
	switch format {
	case uvc.FrameFormatNV12:
		p.Step = width
	case uvc.FrameFormatYUYV:
		p.Step = width * 2
	case uvc.FrameFormatMJPEG:
		p.Step = 0
	default:
		return uvc.StreamParams{}, fmt.Errorf("%w: format %s", uvc.ErrInvalidMode, format)
	}
	return p, nil
}

func (h *Handle) StartStream(params uvc.StreamParams, sink uvc.FrameSink) error {
	if err := h.d.failure(StepStart); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return errors.New("sim: handle closed")
	}
	if h.streaming {
		return uvc.ErrBusy
	}
	h.streaming = true
	h.params = params
	h.sink = sink
	h.seq = 0

	if h.d.live {
		h.stop = make(chan struct{})
		h.genDone = make(chan struct{})
		go h.generate(params, h.stop, h.genDone)
	}
	return nil
}

// Deliver hands f to the sink as the driver goroutine would. It reports
// false when the handle is not streaming.
func (h *Handle) Deliver(f *uvc.Frame) bool {
	h.mu.Lock()
	if !h.streaming {
		h.mu.Unlock()
		return false
	}
	sink := h.sink
	h.inflight.Add(1)
	h.mu.Unlock()

	defer h.inflight.Done()
	sink.OnFrame(f)
	return true
}

// StopStream waits for the generator and every Deliver in progress.
func (h *Handle) StopStream() {
	h.mu.Lock()
	if !h.streaming {
		h.mu.Unlock()
		return
	}
	h.streaming = false
	h.sink = nil
	stop, genDone := h.stop, h.genDone
	h.stop, h.genDone = nil, nil
	h.mu.Unlock()

	if stop != nil {
		close(stop)
		<-genDone
	}
	h.inflight.Wait()
}

func (h *Handle) Streaming() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.streaming
}

func (h *Handle) Params() uvc.StreamParams {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.params
}

func (h *Handle) Close() {
	h.StopStream()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
}

func (h *Handle) GetControl(sel uvc.Selector) (int32, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Selector: sel})
	v, ok := h.controls[sel]
	if !ok {
		return 0, fmt.Errorf("sim: no control %s", sel)
	}
	return v, nil
}

func (h *Handle) SetControl(sel uvc.Selector, value int32) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, Call{Set: true, Selector: sel, Value: value})
	if _, ok := h.controls[sel]; !ok {
		return fmt.Errorf("sim: no control %s", sel)
	}
	h.controls[sel] = value
	return nil
}

// Preset stores a control value without recording a call.
func (h *Handle) Preset(sel uvc.Selector, value int32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.controls[sel] = value
}

// Control returns the stored value of sel.
func (h *Handle) Control(sel uvc.Selector) int32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.controls[sel]
}

// Calls returns and clears the recorded control calls.
func (h *Handle) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := h.calls
	h.calls = nil
	return c
}

func (h *Handle) generate(params uvc.StreamParams, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	pattern, err := Pattern(params)
	if err != nil {
		logger.Errorf("sim: build test pattern: %s", err)
		return
	}
	interval := time.Second / time.Duration(params.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		h.mu.Lock()
		if !h.streaming {
			h.mu.Unlock()
			return
		}
		h.seq++
		seq := h.seq
		sink := h.sink
		exposure := h.controls[uvc.SelectorExposureAbs]
		wb := h.controls[uvc.SelectorWhiteBalanceTemp]
		h.mu.Unlock()

		f := &uvc.Frame{
			Data:     pattern,
			Step:     params.Step,
			Width:    params.Width,
			Height:   params.Height,
			Format:   params.Format,
			Metadata: Metadata(seq*ticksPerFrame(params.FPS), uint64(exposure)*1000, uint32(wb)),
		}
		sink.OnFrame(f)
	}
}
