package capture

import (
	"math"
	"sync"
	"sync/atomic"
)

// Capture groups the images taken at one instant. Only the color slot is
// filled by the color reader.
type Capture struct {
	refs atomic.Int32

	lock         sync.Mutex
	color        *Image
	temperatureC float32
}

func New() (*Capture, error) {
	c := &Capture{temperatureC: float32(math.NaN())}
	c.refs.Store(1)
	return c, nil
}

func (c *Capture) IncRef() {
	c.refs.Add(1)
}

// Release drops one reference. The last one releases the images held.
func (c *Capture) Release() {
	n := c.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("capture: capture released too many times")
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.color != nil {
		c.color.Release()
		c.color = nil
	}
}

// SetColorImage stores img, taking a reference of its own. A previous
// color image is released.
func (c *Capture) SetColorImage(img *Image) {
	if img != nil {
		img.IncRef()
	}
	c.lock.Lock()
	old := c.color
	c.color = img
	c.lock.Unlock()
	if old != nil {
		old.Release()
	}
}

// ColorImage returns the color image with a new reference the caller must
// release, or nil.
func (c *Capture) ColorImage() *Image {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.color != nil {
		c.color.IncRef()
	}
	return c.color
}

func (c *Capture) TemperatureC() float32 {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.temperatureC
}

func (c *Capture) SetTemperatureC(t float32) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.temperatureC = t
}
