package camera

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"colorcam/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

type ControlSetting struct {
	Mode  ControlMode `json:"mode"`
	Value int32       `json:"value"`
}

// Settings holds a value per control, keyed by command.
type Settings map[ControlCommand]ControlSetting

// ApplySettings writes every setting, in command order. It stops at the
// first failure.
func (c *Camera) ApplySettings(s Settings) error {
	for _, cmd := range Controls {
		v, ok := s[cmd]
		if !ok {
			continue
		}
		if err := c.SetControl(cmd, v.Mode, v.Value); err != nil {
			return err
		}
		logger.Infof("set ctrl(%s) to %s %d", cmd, v.Mode, v.Value)
	}
	return nil
}

// ReadSettings reads all controls. Controls the device rejects are skipped
// and reported in the returned error.
func (c *Camera) ReadSettings() (Settings, error) {
	s := make(Settings, len(Controls))
	var errs []error
	for _, cmd := range Controls {
		mode, v, err := c.GetControl(cmd)
		if err != nil {
			if errors.Is(err, ErrNotInitialized) {
				return nil, err
			}
			errs = append(errs, err)
			continue
		}
		s[cmd] = ControlSetting{Mode: mode, Value: v}
	}
	return s, errors.Join(errs...)
}

func ControlToString(cmd ControlCommand, s ControlSetting) string {
	return fmt.Sprintf("Control %s\t[mode: %s; value: %d]\n", cmd, s.Mode, s.Value)
}
