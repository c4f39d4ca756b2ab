package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorcam/pkg/camera"
	"colorcam/pkg/capture"
	"colorcam/pkg/uvc/sim"
)

func TestGrab(t *testing.T) {
	drv := sim.NewLive(sim.Device{VendorID: camera.VendorID, ProductID: camera.ProductID})
	cam := camera.New(drv)
	require.NoError(t, cam.Init(""))
	defer cam.Shutdown()

	cfg := camera.StreamConfig{Width: 1280, Height: 720, FPS: 30, Format: capture.FormatColorNV12}
	frames, err := grab(cam, cfg, 2, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.False(t, cam.IsStreaming())

	dir := t.TempDir()
	for i, c := range frames {
		path := filepath.Join(dir, "frame.jpg")
		require.NoError(t, writeJPEG(c, path, 80), i)
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
		c.Release()
	}
}
