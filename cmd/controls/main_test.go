package main

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorcam/pkg/camera"
)

func TestParseSet(t *testing.T) {
	cmd, s, err := parseSet("gain=manual:10")
	require.NoError(t, err)
	assert.Equal(t, camera.ControlGain, cmd)
	assert.Equal(t, camera.ControlSetting{Mode: camera.ControlModeManual, Value: 10}, s)

	cmd, s, err = parseSet("White_Balance=auto")
	require.NoError(t, err)
	assert.Equal(t, camera.ControlWhiteBalance, cmd)
	assert.Equal(t, camera.ControlModeAuto, s.Mode)

	for _, bad := range []string{"gain", "zoom=manual:1", "gain=sometimes", "gain=manual:x", "gain=manual:99999999999"} {
		_, _, err := parseSet(bad)
		assert.Error(t, err, bad)
	}
}

func TestSettingsJSON(t *testing.T) {
	in := camera.Settings{
		camera.ControlGain:         {Mode: camera.ControlModeManual, Value: 10},
		camera.ControlWhiteBalance: {Mode: camera.ControlModeAuto, Value: 4500},
	}
	data, err := json.Marshal(named(in))
	require.NoError(t, err)
	assert.JSONEq(t, `{"gain":{"mode":"manual","value":10},"white_balance":{"mode":"auto","value":4500}}`, string(data))

	var out camera.ControlSetting
	require.NoError(t, json.Unmarshal([]byte(`{"mode":"manual","value":7}`), &out))
	assert.Equal(t, camera.ControlSetting{Mode: camera.ControlModeManual, Value: 7}, out)
	assert.Error(t, json.Unmarshal([]byte(`{"mode":"never"}`), &out))
}
