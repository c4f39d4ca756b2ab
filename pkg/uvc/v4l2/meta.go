//go:build linux

package v4l2

import (
	"context"
	"errors"
	"fmt"

	v4l "github.com/vladimirvivien/go4vl/v4l2"
	"golang.org/x/sys/unix"
)

// V4L2_BUF_TYPE_META_CAPTURE, go4vl only names the video types.
const bufTypeMetaCapture v4l.BufType = 13

// uvc_meta_buf: __u64 ns; __u16 sof; __u8 length; __u8 flags; __u8 buf[]
// length and flags are the first two bytes of the UVC payload header,
// which is copied whole.
const metaEntryHeader = 10

// bmHeaderInfo bits of the payload header
const (
	streamPTS = 0x04
	streamSCR = 0x08
)

// payloadMetadata walks the uvc_meta_buf entries of one metadata buffer
// and returns the first payload header extension, which is where the
// camera puts its metadata items.
func payloadMetadata(buf []byte) []byte {
	for len(buf) >= metaEntryHeader+2 {
		hlen := int(buf[metaEntryHeader])
		if hlen < 2 || metaEntryHeader+hlen > len(buf) {
			return nil
		}
		flags := buf[metaEntryHeader+1]
		std := 2
		if flags&streamPTS != 0 {
			std += 4
		}
		if flags&streamSCR != 0 {
			std += 6
		}
		if hlen > std {
			return buf[metaEntryHeader+std : metaEntryHeader+hlen]
		}
		buf = buf[metaEntryHeader+hlen:]
	}
	return nil
}

// metaNode streams the uvcvideo metadata node. It satisfies
// v4l.StreamingDevice so the go4vl buffer calls can drive it.
type metaNode struct {
	path    string
	fd      uintptr
	cap     v4l.Capability
	buffers [][]byte
	count   uint32
	out     chan []byte
}

func openMeta(path string) (*metaNode, error) {
	fd, err := v4l.OpenDevice(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	c, err := v4l.GetCapability(fd)
	if err != nil {
		_ = v4l.CloseDevice(fd)
		return nil, err
	}
	if c.GetCapabilities()&v4l.CapMetadataCapture == 0 {
		_ = v4l.CloseDevice(fd)
		return nil, fmt.Errorf("%s is not a metadata node", path)
	}
	return &metaNode{path: path, fd: fd, cap: c, count: 4, out: make(chan []byte, 4)}, nil
}

func (m *metaNode) Name() string               { return m.path }
func (m *metaNode) Fd() uintptr                { return m.fd }
func (m *metaNode) Capability() v4l.Capability { return m.cap }
func (m *metaNode) MemIOType() v4l.IOType      { return v4l.IOTypeMMAP }
func (m *metaNode) GetOutput() <-chan []byte   { return m.out }
func (m *metaNode) SetInput(<-chan []byte)     {}
func (m *metaNode) Buffers() [][]byte          { return m.buffers }
func (m *metaNode) BufferType() v4l.BufType    { return bufTypeMetaCapture }
func (m *metaNode) BufferCount() uint32        { return m.count }

// Start queues the buffers and runs the dequeue loop until ctx is done.
// The output channel carries the payload header extension of each buffer
// and drops the oldest entry when the reader falls behind.
func (m *metaNode) Start(ctx context.Context) error {
	req, err := v4l.InitBuffers(m)
	if err != nil {
		return fmt.Errorf("meta %s: %w", m.path, err)
	}
	m.count = req.Count
	if m.buffers, err = v4l.MapMemoryBuffers(m); err != nil {
		return fmt.Errorf("meta %s: %w", m.path, err)
	}
	for i := uint32(0); i < m.count; i++ {
		if _, err := v4l.QueueBuffer(m.fd, m.MemIOType(), m.BufferType(), i); err != nil {
			_ = v4l.UnmapMemoryBuffers(m)
			return fmt.Errorf("meta %s: %w", m.path, err)
		}
	}
	if err := v4l.StreamOn(m); err != nil {
		_ = v4l.UnmapMemoryBuffers(m)
		return fmt.Errorf("meta %s: %w", m.path, err)
	}

	go func() {
		defer close(m.out)
		defer m.Stop()

		waitForRead := v4l.WaitForRead(m)
		for {
			select {
			case <-ctx.Done():
				return
			case <-waitForRead:
				buf, err := v4l.DequeueBuffer(m.fd, m.MemIOType(), m.BufferType())
				if err != nil {
					if errors.Is(err, unix.EAGAIN) {
						continue
					}
					logger.Warnf("v4l2: %s: %s", m.path, err)
					return
				}
				if buf.Flags&v4l.BufFlagError == 0 {
					if ext := payloadMetadata(m.buffers[buf.Index][:buf.BytesUsed]); len(ext) > 0 {
						m.push(append([]byte(nil), ext...))
					}
				}
				if _, err := v4l.QueueBuffer(m.fd, m.MemIOType(), m.BufferType(), buf.Index); err != nil {
					logger.Warnf("v4l2: %s: %s", m.path, err)
					return
				}
			}
		}
	}()
	return nil
}

func (m *metaNode) push(b []byte) {
	for {
		select {
		case m.out <- b:
			return
		default:
		}
		select {
		case <-m.out:
		default:
		}
	}
}

func (m *metaNode) Stop() error {
	if m.buffers == nil {
		return nil
	}
	if err := v4l.StreamOff(m); err != nil {
		return err
	}
	err := v4l.UnmapMemoryBuffers(m)
	m.buffers = nil
	return err
}

func (m *metaNode) Close() error {
	return v4l.CloseDevice(m.fd)
}

// latestMeta returns the newest pending metadata block, or nil.
func latestMeta(ch <-chan []byte) []byte {
	var last []byte
	for {
		select {
		case b, ok := <-ch:
			if !ok {
				return last
			}
			last = b
		default:
			return last
		}
	}
}
