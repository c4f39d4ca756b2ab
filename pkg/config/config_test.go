package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorcam/pkg/camera"
	"colorcam/pkg/capture"
)

func TestAllDefaults(t *testing.T) {
	conf, err := Parse([]byte(""))
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, Default(), conf)

	limit, err := conf.AllocatorLimit()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000*1000*1000), limit)

	sc, err := conf.StreamConfig()
	require.NoError(t, err)
	assert.Equal(t, camera.StreamConfig{Width: 1920, Height: 1080, FPS: 30, Format: capture.FormatColorMJPG}, sc)
}

func TestAllSet(t *testing.T) {
	conf, err := Parse([]byte(`
[log]
level = "debug"

[camera]
backend = "sim"
serial = "SN123"
width = 4096
height = 3072
fps = 15
format = "bgra32"

[allocator]
limit = "512MiB"

[server]
port = 8080
quality = 75

[controls.exposure_time_absolute]
mode = "manual"
value = 20000

[controls.white_balance]
mode = "auto"
`))
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	assert.Equal(t, "SN123", conf.Camera.Serial)
	assert.Equal(t, 8080, conf.Server.Port)

	sc, err := conf.StreamConfig()
	require.NoError(t, err)
	assert.Equal(t, capture.FormatColorBGRA32, sc.Format)

	limit, err := conf.AllocatorLimit()
	require.NoError(t, err)
	assert.Equal(t, uint64(512<<20), limit)

	s, err := conf.Settings()
	require.NoError(t, err)
	assert.Equal(t, camera.Settings{
		camera.ControlExposureTimeAbsolute: {Mode: camera.ControlModeManual, Value: 20000},
		camera.ControlWhiteBalance:         {Mode: camera.ControlModeAuto},
	}, s)
}

func TestInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"mode":      "[camera]\nfps = 60",
		"format":    "[camera]\nformat = \"h264\"",
		"backend":   "[camera]\nbackend = \"usb\"",
		"limit":     "[allocator]\nlimit = \"lots\"",
		"port":      "[server]\nport = 0",
		"quality":   "[server]\nquality = 101",
		"level":     "[log]\nlevel = \"loud\"",
		"control":   "[controls.zoom]\nmode = \"manual\"",
		"ctrl mode": "[controls.gain]\nmode = \"sometimes\"",
	} {
		conf, err := Parse([]byte(doc))
		require.NoError(t, err, name)
		assert.Error(t, conf.Validate(), name)
	}

	_, err := Parse([]byte("[camera\n"))
	assert.Error(t, err)
}

func TestEnv(t *testing.T) {
	conf := Default()
	env := map[string]string{
		EnvSerial:   "ENV1",
		EnvBackend:  "SIM",
		EnvLogLevel: "w",
	}
	conf.ApplyEnv(func(k string) string { return env[k] })
	assert.Equal(t, "ENV1", conf.Camera.Serial)
	assert.Equal(t, BackendSim, conf.Camera.Backend)
	assert.Equal(t, "w", conf.Log.Level)
	assert.NoError(t, conf.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv(EnvSerial, "")
	t.Setenv(EnvBackend, "")
	t.Setenv(EnvLogLevel, "")

	conf, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), conf)

	path := filepath.Join(t.TempDir(), "colorcam.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 1234\n"), 0644))
	conf, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, conf.Server.Port)

	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = -1\n"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}
