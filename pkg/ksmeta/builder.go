package ksmeta

import "encoding/binary"

// Builder assembles a metadata block. Backends without a native metadata
// channel use it to describe frames in the same layout the camera uses.
type Builder struct {
	buf []byte
}

func (b *Builder) Bytes() []byte {
	return b.buf
}

func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// FrameAlignInfo appends a frame timing item carrying pts.
func (b *Builder) FrameAlignInfo(pts uint64) *Builder {
	item := make([]byte, frameAlignInfoSize)
	putHeader(item, IDFrameAlignInfo, frameAlignInfoSize)
	binary.LittleEndian.PutUint64(item[offFramePTS:], pts)
	b.buf = append(b.buf, item...)
	return b
}

// CaptureStats appends a capture statistics item. Only the values whose
// flag is set are meaningful to a reader.
func (b *Builder) CaptureStats(flags uint32, exposure100ns uint64, iso, whiteBalance uint32) *Builder {
	item := make([]byte, captureStatsSize)
	putHeader(item, IDCaptureStats, captureStatsSize)
	binary.LittleEndian.PutUint32(item[offFlags:], flags)
	binary.LittleEndian.PutUint64(item[offExposureTime:], exposure100ns)
	binary.LittleEndian.PutUint32(item[offISOSpeed:], iso)
	binary.LittleEndian.PutUint32(item[offWhiteBalance:], whiteBalance)
	b.buf = append(b.buf, item...)
	return b
}

// Raw appends an item with an arbitrary id, declared size and payload.
// The declared size is written as given, even when it does not match.
func (b *Builder) Raw(id, declaredSize uint32, payload []byte) *Builder {
	hdr := make([]byte, HeaderSize)
	putHeader(hdr, id, declaredSize)
	b.buf = append(b.buf, hdr...)
	b.buf = append(b.buf, payload...)
	return b
}

func putHeader(dst []byte, id, size uint32) {
	binary.LittleEndian.PutUint32(dst[0:], id)
	binary.LittleEndian.PutUint32(dst[4:], size)
}
