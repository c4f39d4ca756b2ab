package camera

import (
	"fmt"
	"strings"

	"colorcam/pkg/uvc"
)

type ControlCommand int

const (
	ControlExposureTimeAbsolute ControlCommand = iota
	// ControlAutoExposurePriority is deprecated. It reads as 0 and writes
	// are ignored.
	ControlAutoExposurePriority
	ControlBrightness
	ControlContrast
	ControlSaturation
	ControlSharpness
	ControlWhiteBalance
	ControlBacklightCompensation
	ControlGain
	ControlPowerlineFrequency
)

var controlNames = []string{
	"exposure_time_absolute",
	"auto_exposure_priority",
	"brightness",
	"contrast",
	"saturation",
	"sharpness",
	"white_balance",
	"backlight_compensation",
	"gain",
	"powerline_frequency",
}

// Controls lists every command in order.
var Controls = []ControlCommand{
	ControlExposureTimeAbsolute,
	ControlAutoExposurePriority,
	ControlBrightness,
	ControlContrast,
	ControlSaturation,
	ControlSharpness,
	ControlWhiteBalance,
	ControlBacklightCompensation,
	ControlGain,
	ControlPowerlineFrequency,
}

func (c ControlCommand) String() string {
	if c >= 0 && int(c) < len(controlNames) {
		return controlNames[c]
	}
	return fmt.Sprintf("ControlCommand(%d)", int(c))
}

func ParseControl(s string) (ControlCommand, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range controlNames {
		if n == s {
			return ControlCommand(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedControl, s)
}

func (c ControlCommand) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(controlNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedControl, int(c))
	}
	return []byte(controlNames[c]), nil
}

func (c *ControlCommand) UnmarshalText(b []byte) error {
	v, err := ParseControl(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

type ControlMode int

const (
	ControlModeAuto ControlMode = iota
	ControlModeManual
)

func (m ControlMode) String() string {
	switch m {
	case ControlModeAuto:
		return "auto"
	case ControlModeManual:
		return "manual"
	}
	return fmt.Sprintf("ControlMode(%d)", int(m))
}

func ParseControlMode(s string) (ControlMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto":
		return ControlModeAuto, nil
	case "manual":
		return ControlModeManual, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

func (m ControlMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *ControlMode) UnmarshalText(b []byte) error {
	v, err := ParseControlMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// simpleControls are manual only and map straight to one selector. The
// narrow func truncates to the width of the device field.
var simpleControls = map[ControlCommand]struct {
	sel    uvc.Selector
	narrow func(int32) int32
}{
	ControlBrightness:            {uvc.SelectorBrightness, func(v int32) int32 { return int32(int16(v)) }},
	ControlContrast:              {uvc.SelectorContrast, narrowU16},
	ControlSaturation:            {uvc.SelectorSaturation, narrowU16},
	ControlSharpness:             {uvc.SelectorSharpness, narrowU16},
	ControlBacklightCompensation: {uvc.SelectorBacklightCompensation, narrowU16},
	ControlGain:                  {uvc.SelectorGain, narrowU16},
	ControlPowerlineFrequency:    {uvc.SelectorPowerLineFrequency, func(v int32) int32 { return int32(uint8(v)) }},
}

func narrowU16(v int32) int32 {
	return int32(uint16(v))
}

// GetControl reads cmd from the device. Exposure is in microseconds.
func (c *Camera) GetControl(cmd ControlCommand) (ControlMode, int32, error) {
	c.opLock.Lock()
	defer c.opLock.Unlock()

	h, err := c.controlHandle()
	if err != nil {
		return 0, 0, err
	}

	switch cmd {
	case ControlExposureTimeAbsolute:
		ae, err := h.GetControl(uvc.SelectorAEMode)
		if err != nil {
			return 0, 0, fmt.Errorf("get %s: %w", cmd, err)
		}
		var mode ControlMode
		switch ae {
		case uvc.AEModeManual, uvc.AEModeShutterPriority:
			mode = ControlModeManual
		case uvc.AEModeAuto, uvc.AEModeAperturePriority:
			mode = ControlModeAuto
		default:
			logger.Errorf("unknown auto exposure mode %d", ae)
			return 0, 0, fmt.Errorf("%w: auto exposure mode %d", ErrProtocolAnomaly, ae)
		}
		exp, err := h.GetControl(uvc.SelectorExposureAbs)
		if err != nil {
			return 0, 0, fmt.Errorf("get %s: %w", cmd, err)
		}
		// device unit is 100us
		return mode, int32(uint32(exp) * 100), nil

	case ControlAutoExposurePriority:
		logger.Warnf("%s is deprecated and reads as 0", cmd)
		return ControlModeManual, 0, nil

	case ControlWhiteBalance:
		auto, err := h.GetControl(uvc.SelectorWhiteBalanceTempAuto)
		if err != nil {
			return 0, 0, fmt.Errorf("get %s: %w", cmd, err)
		}
		var mode ControlMode
		switch auto {
		case 0:
			mode = ControlModeManual
		case 1:
			mode = ControlModeAuto
		default:
			logger.Errorf("unknown white balance auto flag %d", auto)
			return 0, 0, fmt.Errorf("%w: white balance auto flag %d", ErrProtocolAnomaly, auto)
		}
		temp, err := h.GetControl(uvc.SelectorWhiteBalanceTemp)
		if err != nil {
			return 0, 0, fmt.Errorf("get %s: %w", cmd, err)
		}
		return mode, int32(uint16(temp)), nil
	}

	sc, ok := simpleControls[cmd]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", ErrUnsupportedControl, cmd)
	}
	v, err := h.GetControl(sc.sel)
	if err != nil {
		return 0, 0, fmt.Errorf("get %s: %w", cmd, err)
	}
	return ControlModeManual, sc.narrow(v), nil
}

// SetControl writes cmd. Exposure is in microseconds and is truncated to
// the device's 100us steps.
func (c *Camera) SetControl(cmd ControlCommand, mode ControlMode, value int32) error {
	c.opLock.Lock()
	defer c.opLock.Unlock()

	h, err := c.controlHandle()
	if err != nil {
		return err
	}

	switch cmd {
	case ControlExposureTimeAbsolute:
		switch mode {
		case ControlModeManual:
			if err := h.SetControl(uvc.SelectorAEMode, uvc.AEModeManual); err != nil {
				return fmt.Errorf("set %s mode: %w", cmd, err)
			}
			if err := h.SetControl(uvc.SelectorExposureAbs, value/100); err != nil {
				return fmt.Errorf("set %s: %w", cmd, err)
			}
		case ControlModeAuto:
			if err := h.SetControl(uvc.SelectorAEMode, uvc.AEModeAperturePriority); err != nil {
				return fmt.Errorf("set %s mode: %w", cmd, err)
			}
		default:
			return fmt.Errorf("%w: %s for %s", ErrInvalidMode, mode, cmd)
		}
		return nil

	case ControlAutoExposurePriority:
		logger.Warnf("%s is deprecated, ignoring write", cmd)
		return nil

	case ControlWhiteBalance:
		switch mode {
		case ControlModeManual:
			if err := h.SetControl(uvc.SelectorWhiteBalanceTempAuto, 0); err != nil {
				return fmt.Errorf("set %s mode: %w", cmd, err)
			}
			if err := h.SetControl(uvc.SelectorWhiteBalanceTemp, int32(uint16(value))); err != nil {
				return fmt.Errorf("set %s: %w", cmd, err)
			}
		case ControlModeAuto:
			if err := h.SetControl(uvc.SelectorWhiteBalanceTempAuto, 1); err != nil {
				return fmt.Errorf("set %s mode: %w", cmd, err)
			}
		default:
			return fmt.Errorf("%w: %s for %s", ErrInvalidMode, mode, cmd)
		}
		return nil
	}

	sc, ok := simpleControls[cmd]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedControl, cmd)
	}
	if mode != ControlModeManual {
		logger.Errorf("%s only supports manual mode", cmd)
		return fmt.Errorf("%w: %s for %s", ErrInvalidMode, mode, cmd)
	}
	if err := h.SetControl(sc.sel, sc.narrow(value)); err != nil {
		return fmt.Errorf("set %s: %w", cmd, err)
	}
	return nil
}

// controlHandle must be called with opLock held.
func (c *Camera) controlHandle() (uvc.Handle, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.handle == nil {
		return nil, ErrNotInitialized
	}
	return c.handle, nil
}
