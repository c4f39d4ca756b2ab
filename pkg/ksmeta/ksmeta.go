// Package ksmeta reads and writes the camera metadata block that the color
// camera appends to every frame. The block is a chain of items, each one
// starting with a little endian {id uint32, size uint32} header where size
// covers the header and the payload.
package ksmeta

import (
	"encoding/binary"
)

const HeaderSize = 8

const (
	IDCaptureStats   uint32 = 3
	IDFrameAlignInfo uint32 = 0x80000000
)

// capture stats flags
const (
	FlagExposureTime         uint32 = 0x00000001
	FlagExposureCompensation uint32 = 0x00000002
	FlagISOSpeed             uint32 = 0x00000004
	FlagFocusState           uint32 = 0x00000008
	FlagLensPosition         uint32 = 0x00000010
	FlagWhiteBalance         uint32 = 0x00000020
)

const (
	captureStatsSize   = 80
	frameAlignInfoSize = 40

	offFlags        = 8
	offExposureTime = 16
	offISOSpeed     = 36
	offWhiteBalance = 48
	offFramePTS     = 16
)

// Metadata is what the frame path needs out of the chain.
type Metadata struct {
	// FramePTS is in 90 kHz device ticks.
	FramePTS uint64
	// ExposureTime is in 100ns units.
	ExposureTime uint64
	ISOSpeed     uint32
	WhiteBalance uint32

	// Truncated is set when the walk stopped on a zero sized or
	// overlong item rather than at the end of the buffer.
	Truncated bool
}

// Parse walks buf and returns the fields it found. Missing fields are zero.
func Parse(buf []byte) Metadata {
	var m Metadata
	m.Decode(buf)
	return m
}

// Decode walks buf and overwrites only the fields present in it.
func (m *Metadata) Decode(buf []byte) {
	m.Truncated = false
	c := cursor{buf: buf}
	for c.remaining() >= HeaderSize {
		id, _ := c.uint32(0)
		size, _ := c.uint32(4)

		if size == 0 {
			m.Truncated = true
			return
		}
		if uint64(size) > uint64(c.remaining()) {
			m.Truncated = true
			return
		}

		item := cursor{buf: c.buf[c.off : c.off+int(size)]}
		switch id {
		case IDFrameAlignInfo:
			m.decodeFrameAlignInfo(item)
		case IDCaptureStats:
			m.decodeCaptureStats(item)
		}

		c.off += int(size)
	}
}

func (m *Metadata) decodeFrameAlignInfo(item cursor) {
	if pts, ok := item.uint64(offFramePTS); ok {
		m.FramePTS = pts
	}
}

func (m *Metadata) decodeCaptureStats(item cursor) {
	flags, ok := item.uint32(offFlags)
	if !ok {
		return
	}
	if flags&FlagExposureTime != 0 {
		if v, ok := item.uint64(offExposureTime); ok {
			m.ExposureTime = v
		}
	}
	if flags&FlagISOSpeed != 0 {
		if v, ok := item.uint32(offISOSpeed); ok {
			m.ISOSpeed = v
		}
	}
	if flags&FlagWhiteBalance != 0 {
		if v, ok := item.uint32(offWhiteBalance); ok {
			m.WhiteBalance = v
		}
	}
}

// cursor is a read position over a borrowed slice. Every read is checked
// against the bytes left after off.
type cursor struct {
	buf []byte
	off int
}

func (c cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c cursor) uint32(at int) (uint32, bool) {
	if at < 0 || c.remaining()-at < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(c.buf[c.off+at:]), true
}

func (c cursor) uint64(at int) (uint64, bool) {
	if at < 0 || c.remaining()-at < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(c.buf[c.off+at:]), true
}

// TicksToUsec converts 90 kHz device ticks to microseconds.
func TicksToUsec(ticks uint64) uint64 {
	return ticks * 100 / 9
}

// UsecToTicks is the inverse of TicksToUsec, truncating.
func UsecToTicks(usec uint64) uint64 {
	return usec * 9 / 100
}
