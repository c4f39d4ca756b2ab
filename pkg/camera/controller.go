package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"colorcam/pkg/capture"
	"colorcam/pkg/utils/image"
	"colorcam/pkg/uvc"
)

var (
	ErrPreviewStarted = errors.New("preview already started")
	ErrCaptureTimeout = errors.New("no frame before timeout")
)

// Controller 管理预览与拍照。
//
// 行为：
//   - StartPreview(cfg) 以给定配置启动相机，帧被编码为 JPEG 后
//     非阻塞地分发给所有订阅者；消费者处理慢时丢帧。
//   - Capture(cfg, timeout) 拍摄单帧。若预览正在运行，
//     将临时停止预览，以拍照配置获取一帧，随后恢复预览。
//     拍照期间订阅者不会收到帧。
type Controller struct {
	mu sync.Mutex

	cam     *Camera
	quality int

	// 当前预览配置（用于拍照后恢复）
	cfg        StreamConfig
	previewing bool
	frames     chan *capture.Capture
	loopDone   chan struct{}

	subsLock sync.Mutex
	subs     map[int]chan []byte
	nextID   int
}

func NewController(cam *Camera) *Controller {
	return &Controller{
		cam:     cam,
		quality: image.DefaultQuality,
		subs:    make(map[int]chan []byte),
	}
}

// SetQuality sets the JPEG quality of raw preview frames. It only takes
// effect on the next StartPreview.
func (c *Controller) SetQuality(quality int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if quality > 0 && quality <= 100 {
		c.quality = quality
	}
}

// Subscribe returns a channel of preview JPEG frames and a func that
// unsubscribes and closes it.
func (c *Controller) Subscribe() (<-chan []byte, func()) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()

	id := c.nextID
	c.nextID++
	ch := make(chan []byte, 1)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsLock.Lock()
			defer c.subsLock.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

func (c *Controller) Previewing() (StreamConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg, c.previewing
}

// StartPreview 以 cfg 启动预览。如果预览已在运行，则返回错误。
func (c *Controller) StartPreview(cfg StreamConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.previewing {
		return ErrPreviewStarted
	}
	return c.startPreview(cfg)
}

// StopPreview 停止预览。订阅者保持订阅。
func (c *Controller) StopPreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPreview()
}

// Capture 以 cfg 拍摄一帧。返回的 capture 由调用方 Release。
func (c *Controller) Capture(cfg StreamConfig, timeout time.Duration) (*capture.Capture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasPreviewing, prev := c.previewing, c.cfg
	if wasPreviewing {
		c.stopPreview()
		defer func() {
			if err := c.resumePreview(prev); err != nil {
				logger.Warnf("failed to resume preview after capture: %v", err)
			}
		}()
	}

	got := make(chan *capture.Capture, 1)
	err := c.cam.Start(cfg, CaptureFunc(func(err error, capt *capture.Capture) {
		if err != nil {
			logger.Warnf("capture frame: %s", err)
			return
		}
		capt.IncRef()
		select {
		case got <- capt:
		default:
			capt.Release()
		}
	}))
	if err != nil {
		return nil, err
	}

	var capt *capture.Capture
	select {
	case capt = <-got:
	case <-time.After(timeout):
	}
	c.cam.Stop()

	// Stop 之前可能又到达一帧
	select {
	case extra := <-got:
		if capt == nil {
			capt = extra
		} else {
			extra.Release()
		}
	default:
	}
	if capt == nil {
		return nil, fmt.Errorf("%w: %s", ErrCaptureTimeout, timeout)
	}
	return capt, nil
}

// Close stops the preview and closes every subscriber.
func (c *Controller) Close() {
	c.StopPreview()

	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}

// startPreview must be called with mu held.
func (c *Controller) startPreview(cfg StreamConfig) error {
	frames := make(chan *capture.Capture, 2)
	err := c.cam.Start(cfg, CaptureFunc(func(err error, capt *capture.Capture) {
		if err != nil {
			return
		}
		// 非阻塞转发；编码慢时丢帧
		capt.IncRef()
		select {
		case frames <- capt:
		default:
			capt.Release()
		}
	}))
	if err != nil {
		return err
	}

	c.frames = frames
	c.loopDone = make(chan struct{})
	c.cfg = cfg
	c.previewing = true
	go c.previewLoop(frames, c.quality, c.loopDone)

	return nil
}

// stopPreview must be called with mu held.
func (c *Controller) stopPreview() {
	if !c.previewing {
		return
	}
	c.previewing = false
	// Stop 返回后不会再有回调写入 frames
	c.cam.Stop()
	close(c.frames)
	<-c.loopDone
	c.frames = nil
}

func (c *Controller) previewLoop(frames <-chan *capture.Capture, quality int, done chan<- struct{}) {
	defer close(done)
	for capt := range frames {
		frame, err := encode(capt, quality)
		capt.Release()
		if err != nil {
			logger.Warnf("encode preview frame: %s", err)
			continue
		}
		c.publish(frame)
	}
}

func encode(capt *capture.Capture, quality int) ([]byte, error) {
	img := capt.ColorImage()
	if img == nil {
		return nil, errors.New("capture has no color image")
	}
	defer img.Release()
	return image.Snapshot(img, quality)
}

func (c *Controller) publish(frame []byte) {
	c.subsLock.Lock()
	defer c.subsLock.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- frame:
		default:
			// 为避免阻塞而丢帧
		}
	}
}

// resumePreview 尝试在拍照结束后恢复预览；针对驱动短暂的 EBUSY 加入重试。
func (c *Controller) resumePreview(cfg StreamConfig) error {
	var err error
	for i := 0; i < 5; i++ {
		err = c.startPreview(cfg)
		if err == nil {
			return nil
		}
		if !errors.Is(err, uvc.ErrBusy) {
			break
		}
		logger.Warnf("failed to resume preview will retry %d/5: %v", i+1, err)
		time.Sleep(150 * time.Millisecond)
	}
	return err
}
