package ksmeta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEmptyAndShort(t *testing.T) {
	assert.Equal(t, Metadata{}, Parse(nil))
	assert.Equal(t, Metadata{}, Parse([]byte{1, 2, 3}))
	assert.Equal(t, Metadata{}, Parse(make([]byte, HeaderSize-1)))
}

func TestParseFrameAlignAndStats(t *testing.T) {
	var b Builder
	b.FrameAlignInfo(90000).
		CaptureStats(FlagExposureTime|FlagISOSpeed|FlagWhiteBalance, 5000, 400, 4500)

	m := Parse(b.Bytes())
	assert.Equal(t, uint64(90000), m.FramePTS)
	assert.Equal(t, uint64(5000), m.ExposureTime)
	assert.Equal(t, uint32(400), m.ISOSpeed)
	assert.Equal(t, uint32(4500), m.WhiteBalance)
	assert.False(t, m.Truncated)
}

func TestDecodeOnlyFlaggedFields(t *testing.T) {
	var b Builder
	b.CaptureStats(FlagExposureTime, 1234, 800, 6500)

	m := Metadata{ISOSpeed: 100, WhiteBalance: 3200}
	m.Decode(b.Bytes())
	assert.Equal(t, uint64(1234), m.ExposureTime)
	assert.Equal(t, uint32(100), m.ISOSpeed)
	assert.Equal(t, uint32(3200), m.WhiteBalance)
}

func TestZeroSizeStopsWalk(t *testing.T) {
	var b Builder
	b.Raw(IDCaptureStats, 0, make([]byte, 64)).FrameAlignInfo(42)

	m := Parse(b.Bytes())
	assert.Zero(t, m.FramePTS)
	assert.True(t, m.Truncated)
}

func TestZeroSizeAfterTiming(t *testing.T) {
	var b Builder
	b.FrameAlignInfo(42).Raw(7, 0, nil).CaptureStats(FlagISOSpeed, 0, 200, 0)

	m := Parse(b.Bytes())
	assert.Equal(t, uint64(42), m.FramePTS)
	assert.Zero(t, m.ISOSpeed)
}

func TestOverlongItemStopsWalk(t *testing.T) {
	var b Builder
	b.Raw(IDFrameAlignInfo, 4096, make([]byte, 32))

	m := Parse(b.Bytes())
	assert.Zero(t, m.FramePTS)
	assert.True(t, m.Truncated)
}

func TestUndersizedItemIsNotInterpreted(t *testing.T) {
	// declared size only covers the header, the pts bytes that follow belong
	// to the next item and must not be read as part of this one
	var b Builder
	payload := make([]byte, 24)
	payload[8] = 0xff
	b.Raw(IDFrameAlignInfo, HeaderSize, nil).Raw(99, HeaderSize+24, payload)

	m := Parse(b.Bytes())
	assert.Zero(t, m.FramePTS)
	assert.False(t, m.Truncated)
}

func TestUnknownItemsSkipped(t *testing.T) {
	var b Builder
	b.Raw(1, HeaderSize+4, []byte{9, 9, 9, 9}).FrameAlignInfo(7)

	assert.Equal(t, uint64(7), Parse(b.Bytes()).FramePTS)
}

func TestTrailingBytesShorterThanHeader(t *testing.T) {
	var b Builder
	b.FrameAlignInfo(11)
	buf := append(b.Bytes(), 0xde, 0xad, 0xbe)

	m := Parse(buf)
	assert.Equal(t, uint64(11), m.FramePTS)
	assert.False(t, m.Truncated)
}

func TestTicksToUsec(t *testing.T) {
	assert.Equal(t, uint64(1000000), TicksToUsec(90000))
	assert.Equal(t, uint64(11), TicksToUsec(1))
	assert.Equal(t, uint64(90000), UsecToTicks(1000000))
}
