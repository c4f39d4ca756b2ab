package capture

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type releaseCounter struct {
	calls int
	ctx   any
}

func (r *releaseCounter) release(_ []byte, ctx any) {
	r.calls++
	r.ctx = ctx
}

func TestImageRelease(t *testing.T) {
	var rc releaseCounter
	img, err := NewImageFromBuffer(FormatColorBGRA32, 2, 2, 8, make([]byte, 16), 16, rc.release, "ctx")
	require.NoError(t, err)
	assert.Equal(t, 16, img.Size())
	assert.Equal(t, 8, img.Stride())

	img.IncRef()
	img.Release()
	assert.Zero(t, rc.calls)

	img.Release()
	assert.Equal(t, 1, rc.calls)
	assert.Equal(t, "ctx", rc.ctx)
	assert.Panics(t, img.Release)
}

func TestImageInvalid(t *testing.T) {
	var rc releaseCounter
	_, err := NewImageFromBuffer(FormatColorBGRA32, 0, 2, 8, make([]byte, 16), 16, rc.release, nil)
	assert.True(t, errors.Is(err, ErrInvalidImage))
	_, err = NewImageFromBuffer(FormatColorBGRA32, 2, 2, 8, make([]byte, 8), 16, rc.release, nil)
	assert.True(t, errors.Is(err, ErrInvalidImage))
	_, err = NewImageFromBuffer(FormatColorBGRA32, 2, 4, 8, make([]byte, 16), 16, rc.release, nil)
	assert.True(t, errors.Is(err, ErrInvalidImage))
	assert.Zero(t, rc.calls, "failed construction must not release")
}

func TestCaptureOwnsColorImage(t *testing.T) {
	var rc releaseCounter
	img, err := NewImageFromBuffer(FormatColorMJPG, 4, 4, 0, make([]byte, 10), 10, rc.release, nil)
	require.NoError(t, err)
	c, err := New()
	require.NoError(t, err)
	assert.True(t, math.IsNaN(float64(c.TemperatureC())))

	c.SetColorImage(img)
	img.Release()
	assert.Zero(t, rc.calls)

	got := c.ColorImage()
	require.NotNil(t, got)
	got.Release()

	c.Release()
	assert.Equal(t, 1, rc.calls)
}

func TestCaptureOutlivesCallerReference(t *testing.T) {
	var rc releaseCounter
	img, err := NewImageFromBuffer(FormatColorYUY2, 2, 1, 4, make([]byte, 4), 4, rc.release, nil)
	require.NoError(t, err)
	c, _ := New()
	c.SetColorImage(img)
	img.Release()

	c.IncRef()
	c.Release()
	assert.Zero(t, rc.calls)
	c.Release()
	assert.Equal(t, 1, rc.calls)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("BGRA32")
	require.NoError(t, err)
	assert.Equal(t, FormatColorBGRA32, f)
	_, err = ParseFormat("RGB")
	assert.Error(t, err)
}
