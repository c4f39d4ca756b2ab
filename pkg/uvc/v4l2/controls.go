//go:build linux

package v4l2

import (
	"fmt"

	v4l "github.com/vladimirvivien/go4vl/v4l2"

	"colorcam/pkg/uvc"
)

// V4L2 control ids, see linux/v4l2-controls.h
const (
	ctrlBrightness            v4l.CtrlID = 0x980900
	ctrlContrast              v4l.CtrlID = 0x980901
	ctrlSaturation            v4l.CtrlID = 0x980902
	ctrlAutoWhiteBalance      v4l.CtrlID = 0x98090c
	ctrlGain                  v4l.CtrlID = 0x980913
	ctrlPowerLineFrequency    v4l.CtrlID = 0x980918
	ctrlWhiteBalanceTemp      v4l.CtrlID = 0x98091a
	ctrlSharpness             v4l.CtrlID = 0x98091b
	ctrlBacklightCompensation v4l.CtrlID = 0x98091c
	ctrlExposureAuto          v4l.CtrlID = 0x9a0901 // 10094849
	ctrlExposureAbsolute      v4l.CtrlID = 0x9a0902
)

var controlIDs = map[uvc.Selector]v4l.CtrlID{
	uvc.SelectorAEMode:                ctrlExposureAuto,
	uvc.SelectorExposureAbs:           ctrlExposureAbsolute,
	uvc.SelectorBrightness:            ctrlBrightness,
	uvc.SelectorContrast:              ctrlContrast,
	uvc.SelectorSaturation:            ctrlSaturation,
	uvc.SelectorSharpness:             ctrlSharpness,
	uvc.SelectorWhiteBalanceTempAuto:  ctrlAutoWhiteBalance,
	uvc.SelectorWhiteBalanceTemp:      ctrlWhiteBalanceTemp,
	uvc.SelectorBacklightCompensation: ctrlBacklightCompensation,
	uvc.SelectorGain:                  ctrlGain,
	uvc.SelectorPowerLineFrequency:    ctrlPowerLineFrequency,
}

// uvcvideo exposes the AE mode bitmap as a menu:
// 0 auto, 1 manual, 2 shutter priority, 3 aperture priority.
var aeToMenu = map[int32]v4l.CtrlValue{
	uvc.AEModeAuto:             0,
	uvc.AEModeManual:           1,
	uvc.AEModeShutterPriority:  2,
	uvc.AEModeAperturePriority: 3,
}

func menuToAE(v v4l.CtrlValue) int32 {
	for ae, m := range aeToMenu {
		if m == v {
			return ae
		}
	}
	// unknown entries are passed through for the caller to reject
	return int32(v) << 8
}

func (h *handle) GetControl(sel uvc.Selector) (int32, error) {
	id, ok := controlIDs[sel]
	if !ok {
		return 0, fmt.Errorf("v4l2: no control for %s", sel)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return 0, errClosed
	}
	ctrl, err := v4l.GetControl(h.dev.Fd(), id)
	if err != nil {
		return 0, fmt.Errorf("get %s (%d): %w", sel, id, err)
	}
	if sel == uvc.SelectorAEMode {
		return menuToAE(ctrl.Value), nil
	}
	return int32(ctrl.Value), nil
}

func (h *handle) SetControl(sel uvc.Selector, value int32) error {
	id, ok := controlIDs[sel]
	if !ok {
		return fmt.Errorf("v4l2: no control for %s", sel)
	}
	v := v4l.CtrlValue(value)
	if sel == uvc.SelectorAEMode {
		if v, ok = aeToMenu[value]; !ok {
			return fmt.Errorf("%w: auto exposure mode %d", uvc.ErrInvalidMode, value)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dev == nil {
		return errClosed
	}
	if err := h.dev.SetControlValue(id, v); err != nil {
		return fmt.Errorf("set %s (%d) to %d: %w", sel, id, value, err)
	}
	return nil
}
