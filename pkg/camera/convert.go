package camera

import (
	"fmt"
	"time"

	"colorcam/pkg/metrics"
)

// decodeMJPEG decodes src into dst as BGRA at the negotiated size with no
// row padding. Must be called with lock held.
func (c *Camera) decodeMJPEG(src, dst []byte) error {
	need := c.width * c.height * 4
	if need > len(dst) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrCapacity, need, len(dst))
	}

	if c.decoder == nil {
		d, err := c.newDecoder()
		if err != nil {
			return fmt.Errorf("%w: create decoder: %w", ErrDecode, err)
		}
		c.decoder = d
	}

	start := time.Now()
	status := c.decoder.Decompress(src, dst, c.width, c.width*4, c.height)
	metrics.ObserveDecode(time.Since(start).Seconds())
	if status != 0 {
		de := &DecodeError{Status: status}
		if le, ok := c.decoder.(interface{ LastError() error }); ok {
			de.Err = le.LastError()
		}
		return de
	}
	return nil
}
