package video

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorcam/pkg/capture"
)

func yuy2Capture(t *testing.T, w, h int) *capture.Capture {
	buf := make([]byte, w*h*2)
	img, err := capture.NewImageFromBuffer(capture.FormatColorYUY2, w, h, w*2, buf, len(buf), nil, nil)
	require.NoError(t, err)
	c, err := capture.New()
	require.NoError(t, err)
	c.SetColorImage(img)
	img.Release()
	return c
}

func TestBuilder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.avi")
	b, err := NewBuilder(path, 16, 8, 30)
	require.NoError(t, err)

	c := yuy2Capture(t, 16, 8)
	defer c.Release()
	require.NoError(t, b.AddCapture(c))
	require.NoError(t, b.AddCapture(c))

	other := yuy2Capture(t, 8, 8)
	defer other.Release()
	assert.Error(t, b.AddCapture(other))

	empty, err := capture.New()
	require.NoError(t, err)
	defer empty.Release()
	assert.Error(t, b.AddCapture(empty))

	assert.Equal(t, 2, b.GetCnt())
	require.NoError(t, b.Close())

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, st.Size())
}
