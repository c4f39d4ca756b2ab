package camera

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"colorcam/pkg/allocator"
	"colorcam/pkg/capture"
	"colorcam/pkg/jpegdec"
	"colorcam/pkg/metrics"
	"colorcam/pkg/utils"
	"colorcam/pkg/uvc"
)

const (
	StateIdle        = "idle"
	StateInitialized = "initialized"
	StateStreaming   = "streaming"

	eventInit     = "init"
	eventStart    = "start"
	eventStop     = "stop"
	eventShutdown = "shutdown"
)

// Allocator provides the buffers frames are delivered in.
type Allocator interface {
	Alloc(size int) ([]byte, any, error)
	Free(buf []byte, ctx any)
}

// Decoder turns one MJPEG frame into BGRA. A non-zero status is a failure.
// A decoder that also has a LastError() error method gets that error
// attached to the resulting DecodeError.
type Decoder interface {
	Decompress(src, dst []byte, width, pitch, height int) int
	Close() error
}

type DecoderFactory func() (Decoder, error)

// CaptureSink receives every frame that made it through the pipeline, or
// the error that stopped it. The capture is only valid during the call;
// IncRef it to keep it. OnCapture runs on the driver's goroutine with the
// camera locked, so it must not call back into the Camera.
type CaptureSink interface {
	OnCapture(result error, c *capture.Capture)
}

type CaptureFunc func(result error, c *capture.Capture)

func (f CaptureFunc) OnCapture(result error, c *capture.Capture) {
	f(result, c)
}

// isNilSink also catches a typed nil, e.g. a nil *T or nil CaptureFunc
// stored in the interface.
func isNilSink(s CaptureSink) bool {
	if s == nil {
		return true
	}
	v := reflect.ValueOf(s)
	switch v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Chan, reflect.Slice, reflect.Interface:
		return v.IsNil()
	}
	return false
}

type Option func(*Camera)

func WithAllocator(a Allocator) Option {
	return func(c *Camera) { c.alloc = a }
}

func WithDecoder(f DecoderFactory) Option {
	return func(c *Camera) { c.newDecoder = f }
}

// WithDeviceIDs overrides the USB ids Init looks for.
func WithDeviceIDs(vendorID, productID uint16) Option {
	return func(c *Camera) { c.vendorID, c.productID = vendorID, productID }
}

// Camera is one opened color camera.
type Camera struct {
	driver     uvc.Driver
	vendorID   uint16
	productID  uint16
	alloc      Allocator
	newDecoder DecoderFactory

	// opLock serializes the controlling calls. The frame path never takes
	// it, so it may be held across StopStream.
	opLock sync.Mutex

	// lock guards everything below and is held by OnFrame for the whole
	// frame.
	lock    sync.Mutex
	state   *fsm.FSM
	uctx    uvc.Context
	ref     uvc.DeviceRef
	handle  uvc.Handle
	decoder Decoder

	sink         CaptureSink
	width        int
	height       int
	inputFormat  capture.Format
	outputFormat capture.Format

	frameLog *utils.LimitedLogger
}

func New(driver uvc.Driver, opts ...Option) *Camera {
	c := &Camera{
		driver:    driver,
		vendorID:  VendorID,
		productID: ProductID,
		alloc:     allocator.Default.ForSource(allocator.SourceColor),
		newDecoder: func() (Decoder, error) {
			d, err := jpegdec.New()
			if err != nil {
				return nil, err
			}
			return d, nil
		},
		state: fsm.NewFSM(
			StateIdle,
			fsm.Events{
				{Name: eventInit, Src: []string{StateIdle}, Dst: StateInitialized},
				{Name: eventStart, Src: []string{StateInitialized}, Dst: StateStreaming},
				{Name: eventStop, Src: []string{StateStreaming}, Dst: StateInitialized},
				{Name: eventShutdown, Src: []string{StateInitialized}, Dst: StateIdle},
			},
			fsm.Callbacks{},
		),
		frameLog: utils.NewLimitedLogger(logger, 5*time.Second, 3),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns one of StateIdle, StateInitialized, StateStreaming.
func (c *Camera) State() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state.Current()
}

func (c *Camera) IsStreaming() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state.Is(StateStreaming)
}

// transition must be called with lock held.
func (c *Camera) transition(event string) {
	if err := c.state.Event(context.Background(), event); err != nil {
		logger.Errorf("camera: %s from %s: %s", event, c.state.Current(), err)
	}
}

// Init opens the camera. An empty serial takes the first matching device.
func (c *Camera) Init(serial string) error {
	c.opLock.Lock()
	defer c.opLock.Unlock()

	c.lock.Lock()
	idle := c.state.Is(StateIdle)
	c.lock.Unlock()
	if !idle {
		logger.Error("camera reader is already initialized")
		return ErrAlreadyInitialized
	}
	c.shutdown()

	uctx, err := c.driver.OpenContext()
	if err != nil {
		return fmt.Errorf("open uvc context: %w", err)
	}
	ref, err := uctx.FindDevice(c.vendorID, c.productID, serial)
	if err != nil {
		uctx.Close()
		return fmt.Errorf("find device %04x:%04x serial %q: %w", c.vendorID, c.productID, serial, err)
	}
	handle, err := ref.Open()
	if err != nil {
		ref.Unref()
		uctx.Close()
		return fmt.Errorf("open device %04x:%04x: %w", c.vendorID, c.productID, err)
	}

	c.lock.Lock()
	c.uctx, c.ref, c.handle = uctx, ref, handle
	c.transition(eventInit)
	c.lock.Unlock()

	logger.Infof("camera %04x:%04x opened (serial %q)", c.vendorID, c.productID, serial)
	return nil
}

// Start begins streaming cfg and delivers every processed frame to sink.
func (c *Camera) Start(cfg StreamConfig, sink CaptureSink) error {
	if isNilSink(sink) {
		return fmt.Errorf("%w: nil sink", ErrInvalidArgument)
	}

	c.opLock.Lock()
	defer c.opLock.Unlock()

	c.lock.Lock()
	if c.state.Is(StateIdle) {
		c.lock.Unlock()
		logger.Error("camera reader is not initialized")
		return ErrNotInitialized
	}
	if c.state.Is(StateStreaming) {
		c.lock.Unlock()
		logger.Error("camera stream already started")
		return ErrAlreadyStreaming
	}

	m, ok := formatTable[cfg.Format]
	if !ok {
		c.lock.Unlock()
		logger.Errorf("unsupported format %s", cfg.Format)
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, cfg.Format)
	}

	params, err := c.handle.NegotiateStream(m.wire, cfg.Width, cfg.Height, cfg.FPS)
	if err != nil {
		c.lock.Unlock()
		logger.Errorf("failed to get stream control for %s (%s on the wire): %s", cfg, m.wire, err)
		return fmt.Errorf("%w: %s: %w", ErrNegotiationFailed, cfg, err)
	}

	c.width, c.height = cfg.Width, cfg.Height
	c.inputFormat, c.outputFormat = m.input, cfg.Format
	c.sink = sink
	c.transition(eventStart)
	handle := c.handle
	c.lock.Unlock()

	if err := handle.StartStream(params, c); err != nil {
		c.lock.Lock()
		if c.state.Is(StateStreaming) {
			c.transition(eventStop)
		}
		c.sink = nil
		c.width, c.height = 0, 0
		c.lock.Unlock()
		logger.Errorf("failed to start streaming: %s", err)
		return fmt.Errorf("start streaming: %w", err)
	}

	metrics.SetStreaming(true)
	logger.Infof("camera streaming %s", cfg)
	return nil
}

// Stop ends the stream. It returns once no frame callback is running.
func (c *Camera) Stop() {
	c.opLock.Lock()
	defer c.opLock.Unlock()
	c.stop()
}

func (c *Camera) stop() {
	c.lock.Lock()
	if !c.state.Is(StateStreaming) {
		c.lock.Unlock()
		return
	}
	if c.handle == nil {
		logger.Warn("camera reader is not initialized but in streaming state")
	}
	c.transition(eventStop)
	c.sink = nil
	handle := c.handle
	// StopStream waits for in-flight frames, which need lock.
	c.lock.Unlock()

	if handle != nil {
		handle.StopStream()
	}
	metrics.SetStreaming(false)
	logger.Info("camera stream stopped")
}

// Shutdown stops the stream and releases the device. It is safe to call
// in any state and more than once.
func (c *Camera) Shutdown() {
	c.opLock.Lock()
	defer c.opLock.Unlock()
	c.shutdown()
}

func (c *Camera) shutdown() {
	c.stop()

	c.lock.Lock()
	defer c.lock.Unlock()

	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}
	if c.ref != nil {
		c.ref.Unref()
		c.ref = nil
	}
	if c.uctx != nil {
		c.uctx.Close()
		c.uctx = nil
	}
	if c.decoder != nil {
		if err := c.decoder.Close(); err != nil {
			logger.Warnf("close mjpeg decoder: %s", err)
		}
		c.decoder = nil
	}
	if c.state.Is(StateInitialized) {
		c.transition(eventShutdown)
	}
}
