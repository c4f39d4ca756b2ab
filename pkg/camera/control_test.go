package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorcam/pkg/uvc"
	"colorcam/pkg/uvc/sim"
)

func initialized(t *testing.T) (*Camera, *sim.Handle) {
	drv := newSim()
	cam := New(drv)
	require.NoError(t, cam.Init(testSerial))
	t.Cleanup(cam.Shutdown)
	h := drv.Handle()
	h.Calls()
	return cam, h
}

func set(sel uvc.Selector, v int32) sim.Call {
	return sim.Call{Set: true, Selector: sel, Value: v}
}

func get(sel uvc.Selector) sim.Call {
	return sim.Call{Selector: sel}
}

func TestControlsBeforeInit(t *testing.T) {
	cam := New(newSim())
	_, _, err := cam.GetControl(ControlBrightness)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, cam.SetControl(ControlBrightness, ControlModeManual, 1), ErrNotInitialized)
}

func TestExposure(t *testing.T) {
	cam, h := initialized(t)

	require.NoError(t, cam.SetControl(ControlExposureTimeAbsolute, ControlModeManual, 12345))
	assert.Equal(t, []sim.Call{
		set(uvc.SelectorAEMode, uvc.AEModeManual),
		set(uvc.SelectorExposureAbs, 123),
	}, h.Calls())

	mode, v, err := cam.GetControl(ControlExposureTimeAbsolute)
	require.NoError(t, err)
	assert.Equal(t, ControlModeManual, mode)
	assert.Equal(t, int32(12300), v)

	require.NoError(t, cam.SetControl(ControlExposureTimeAbsolute, ControlModeAuto, 0))
	h.Calls()
	mode, _, err = cam.GetControl(ControlExposureTimeAbsolute)
	require.NoError(t, err)
	assert.Equal(t, ControlModeAuto, mode)
	assert.Equal(t, int32(uvc.AEModeAperturePriority), h.Control(uvc.SelectorAEMode))

	h.Calls()
	assert.ErrorIs(t, cam.SetControl(ControlExposureTimeAbsolute, ControlMode(7), 0), ErrInvalidMode)
	assert.Empty(t, h.Calls())
}

func TestExposureModes(t *testing.T) {
	cam, h := initialized(t)

	for ae, want := range map[int32]ControlMode{
		uvc.AEModeManual:           ControlModeManual,
		uvc.AEModeShutterPriority:  ControlModeManual,
		uvc.AEModeAuto:             ControlModeAuto,
		uvc.AEModeAperturePriority: ControlModeAuto,
	} {
		h.Preset(uvc.SelectorAEMode, ae)
		mode, _, err := cam.GetControl(ControlExposureTimeAbsolute)
		require.NoError(t, err)
		assert.Equal(t, want, mode, "ae mode %d", ae)
	}

	for _, ae := range []int32{0, 3, 16} {
		h.Preset(uvc.SelectorAEMode, ae)
		_, _, err := cam.GetControl(ControlExposureTimeAbsolute)
		assert.ErrorIs(t, err, ErrProtocolAnomaly, "ae mode %d", ae)
	}
}

func TestWhiteBalance(t *testing.T) {
	cam, h := initialized(t)

	require.NoError(t, cam.SetControl(ControlWhiteBalance, ControlModeManual, 5000))
	assert.Equal(t, []sim.Call{
		set(uvc.SelectorWhiteBalanceTempAuto, 0),
		set(uvc.SelectorWhiteBalanceTemp, 5000),
	}, h.Calls())

	mode, v, err := cam.GetControl(ControlWhiteBalance)
	require.NoError(t, err)
	assert.Equal(t, ControlModeManual, mode)
	assert.Equal(t, int32(5000), v)
	h.Calls()

	require.NoError(t, cam.SetControl(ControlWhiteBalance, ControlModeAuto, 3000))
	assert.Equal(t, []sim.Call{set(uvc.SelectorWhiteBalanceTempAuto, 1)}, h.Calls())
	assert.Equal(t, int32(5000), h.Control(uvc.SelectorWhiteBalanceTemp))

	mode, _, err = cam.GetControl(ControlWhiteBalance)
	require.NoError(t, err)
	assert.Equal(t, ControlModeAuto, mode)

	h.Calls()
	assert.ErrorIs(t, cam.SetControl(ControlWhiteBalance, ControlMode(7), 4000), ErrInvalidMode)
	assert.Empty(t, h.Calls())

	h.Preset(uvc.SelectorWhiteBalanceTempAuto, 2)
	_, _, err = cam.GetControl(ControlWhiteBalance)
	assert.ErrorIs(t, err, ErrProtocolAnomaly)
}

func TestSimpleControls(t *testing.T) {
	cam, h := initialized(t)

	for _, cmd := range []ControlCommand{
		ControlBrightness, ControlContrast, ControlSaturation, ControlSharpness,
		ControlBacklightCompensation, ControlGain, ControlPowerlineFrequency,
	} {
		err := cam.SetControl(cmd, ControlModeAuto, 1)
		assert.ErrorIs(t, err, ErrInvalidMode, cmd.String())
		assert.Empty(t, h.Calls(), cmd.String())

		require.NoError(t, cam.SetControl(cmd, ControlModeManual, 1))
		mode, v, err := cam.GetControl(cmd)
		require.NoError(t, err)
		assert.Equal(t, ControlModeManual, mode)
		assert.Equal(t, int32(1), v)
		h.Calls()
	}

	require.NoError(t, cam.SetControl(ControlBrightness, ControlModeManual, -5))
	_, v, err := cam.GetControl(ControlBrightness)
	require.NoError(t, err)
	assert.Equal(t, int32(-5), v)

	require.NoError(t, cam.SetControl(ControlGain, ControlModeManual, 70000))
	assert.Equal(t, int32(70000-65536), h.Control(uvc.SelectorGain))

	require.NoError(t, cam.SetControl(ControlPowerlineFrequency, ControlModeManual, 257))
	assert.Equal(t, int32(1), h.Control(uvc.SelectorPowerLineFrequency))
}

func TestDeprecatedControl(t *testing.T) {
	cam, h := initialized(t)

	mode, v, err := cam.GetControl(ControlAutoExposurePriority)
	require.NoError(t, err)
	assert.Equal(t, ControlModeManual, mode)
	assert.Zero(t, v)

	require.NoError(t, cam.SetControl(ControlAutoExposurePriority, ControlModeAuto, 1))
	assert.Empty(t, h.Calls())
}

func TestUnknownControl(t *testing.T) {
	cam, _ := initialized(t)

	_, _, err := cam.GetControl(ControlCommand(42))
	assert.ErrorIs(t, err, ErrUnsupportedControl)
	assert.ErrorIs(t, cam.SetControl(ControlCommand(42), ControlModeManual, 0), ErrUnsupportedControl)

	_, err = ParseControl("zoom")
	assert.ErrorIs(t, err, ErrUnsupportedControl)
	cmd, err := ParseControl(" Gain ")
	require.NoError(t, err)
	assert.Equal(t, ControlGain, cmd)

	_, err = ParseControlMode("semi")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestSettings(t *testing.T) {
	cam, h := initialized(t)

	require.NoError(t, cam.ApplySettings(Settings{
		ControlExposureTimeAbsolute: {Mode: ControlModeManual, Value: 30000},
		ControlGain:                 {Mode: ControlModeManual, Value: 12},
	}))
	assert.Equal(t, []sim.Call{
		set(uvc.SelectorAEMode, uvc.AEModeManual),
		set(uvc.SelectorExposureAbs, 300),
		set(uvc.SelectorGain, 12),
	}, h.Calls())

	s, err := cam.ReadSettings()
	require.NoError(t, err)
	assert.Len(t, s, len(Controls))
	assert.Equal(t, ControlSetting{Mode: ControlModeManual, Value: 30000}, s[ControlExposureTimeAbsolute])
	assert.Equal(t, ControlSetting{Mode: ControlModeManual, Value: 12}, s[ControlGain])

	err = cam.ApplySettings(Settings{ControlContrast: {Mode: ControlModeAuto, Value: 1}})
	assert.ErrorIs(t, err, ErrInvalidMode)

	h.Preset(uvc.SelectorAEMode, 3)
	s, err = cam.ReadSettings()
	assert.ErrorIs(t, err, ErrProtocolAnomaly)
	assert.Len(t, s, len(Controls)-1)

	_, err = New(newSim()).ReadSettings()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Contains(t, ControlToString(ControlGain, ControlSetting{Value: 3}), "gain")
}
