// Package config loads the service configuration from a TOML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"

	"colorcam/pkg/camera"
	"colorcam/pkg/capture"
	"colorcam/pkg/utils"
)

const DefaultPath = "/etc/colorcam.toml"

// Environment overrides.
const (
	EnvLogLevel = utils.LogLevelEnv
	EnvSerial   = "COLORCAM_SERIAL"
	EnvBackend  = "COLORCAM_BACKEND"
)

const (
	BackendV4L2 = "v4l2"
	BackendSim  = "sim"
)

type Config struct {
	Log       LogConfig                `toml:"log"`
	Camera    CameraConfig             `toml:"camera"`
	Allocator AllocatorConfig          `toml:"allocator"`
	Server    ServerConfig             `toml:"server"`
	Controls  map[string]ControlConfig `toml:"controls"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type CameraConfig struct {
	Backend string `toml:"backend"`
	Serial  string `toml:"serial"`
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	FPS     int    `toml:"fps"`
	Format  string `toml:"format"`
}

type AllocatorConfig struct {
	// Limit caps the bytes held by frame buffers, e.g. "512MiB". Empty or
	// "0" means no limit.
	Limit string `toml:"limit"`
}

type ServerConfig struct {
	Port    int `toml:"port"`
	Quality int `toml:"quality"`
}

type ControlConfig struct {
	Mode  string `toml:"mode"`
	Value int32  `toml:"value"`
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Camera: CameraConfig{
			Backend: BackendV4L2,
			Width:   1920,
			Height:  1080,
			FPS:     camera.DefaultFPS,
			Format:  capture.FormatColorMJPG.String(),
		},
		Allocator: AllocatorConfig{Limit: "1GB"},
		Server:    ServerConfig{Port: 9999, Quality: 90},
	}
}

// Parse reads data over the defaults. Fields missing from data keep their
// default value.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

// Load reads path, applies the environment and validates the result. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.ApplyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvSerial); v != "" {
		c.Camera.Serial = v
	}
	if v := getenv(EnvBackend); v != "" {
		c.Camera.Backend = strings.ToLower(v)
	}
}

func (c *Config) Validate() error {
	if _, ok := utils.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Camera.Backend {
	case BackendV4L2, BackendSim:
	default:
		return fmt.Errorf("unknown camera backend %q", c.Camera.Backend)
	}
	sc, err := c.StreamConfig()
	if err != nil {
		return err
	}
	if !sc.Supported() {
		return fmt.Errorf("%s is not a supported camera mode", sc)
	}
	if _, err := c.AllocatorLimit(); err != nil {
		return err
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.Quality < 1 || c.Server.Quality > 100 {
		return fmt.Errorf("jpeg quality %d out of range 1-100", c.Server.Quality)
	}
	if _, err := c.Settings(); err != nil {
		return err
	}
	return nil
}

func (c *Config) StreamConfig() (camera.StreamConfig, error) {
	f, err := capture.ParseFormat(strings.ToUpper(c.Camera.Format))
	if err != nil {
		return camera.StreamConfig{}, err
	}
	return camera.StreamConfig{
		Width:  c.Camera.Width,
		Height: c.Camera.Height,
		FPS:    c.Camera.FPS,
		Format: f,
	}, nil
}

func (c *Config) AllocatorLimit() (uint64, error) {
	if c.Allocator.Limit == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.Allocator.Limit)
	if err != nil {
		return 0, fmt.Errorf("allocator limit %q: %w", c.Allocator.Limit, err)
	}
	return n, nil
}

// Settings converts the [controls] table, keyed by control name.
func (c *Config) Settings() (camera.Settings, error) {
	s := make(camera.Settings, len(c.Controls))
	for name, cc := range c.Controls {
		cmd, err := camera.ParseControl(name)
		if err != nil {
			return nil, err
		}
		mode, err := camera.ParseControlMode(cc.Mode)
		if err != nil {
			return nil, fmt.Errorf("control %s: %w", name, err)
		}
		s[cmd] = camera.ControlSetting{Mode: mode, Value: cc.Value}
	}
	return s, nil
}
