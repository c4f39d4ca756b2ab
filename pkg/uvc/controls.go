package uvc

// Selector names a UVC processing unit or camera terminal control.
type Selector int

const (
	SelectorAEMode Selector = iota
	SelectorExposureAbs
	SelectorBrightness
	SelectorContrast
	SelectorSaturation
	SelectorSharpness
	SelectorWhiteBalanceTempAuto
	SelectorWhiteBalanceTemp
	SelectorBacklightCompensation
	SelectorGain
	SelectorPowerLineFrequency
)

var selectorNames = map[Selector]string{
	SelectorAEMode:                "ae_mode",
	SelectorExposureAbs:           "exposure_abs",
	SelectorBrightness:            "brightness",
	SelectorContrast:              "contrast",
	SelectorSaturation:            "saturation",
	SelectorSharpness:             "sharpness",
	SelectorWhiteBalanceTempAuto:  "white_balance_temperature_auto",
	SelectorWhiteBalanceTemp:      "white_balance_temperature",
	SelectorBacklightCompensation: "backlight_compensation",
	SelectorGain:                  "gain",
	SelectorPowerLineFrequency:    "power_line_frequency",
}

func (s Selector) String() string {
	if n, ok := selectorNames[s]; ok {
		return n
	}
	return "unknown"
}

// Auto exposure mode bitmap values of the camera terminal.
const (
	AEModeManual           = 1
	AEModeAuto             = 2
	AEModeShutterPriority  = 4
	AEModeAperturePriority = 8
)
