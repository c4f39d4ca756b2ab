package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"colorcam/pkg/camera"
	"colorcam/pkg/config"
	"colorcam/pkg/uvc"
	"colorcam/pkg/uvc/sim"
	"colorcam/pkg/uvc/v4l2"
)

type setFlags []string

func (s *setFlags) String() string { return strings.Join(*s, ",") }

func (s *setFlags) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var sets setFlags
	backend := flag.String("backend", config.BackendV4L2, "camera backend (v4l2 or sim)")
	serial := flag.String("serial", "", "camera serial number")
	text := flag.Bool("text", false, "print one line per control instead of json")
	flag.Var(&sets, "set", "name=mode[:value], may be repeated, e.g. -set gain=manual:10")
	flag.Parse()

	var drv uvc.Driver
	switch *backend {
	case config.BackendSim:
		drv = sim.New(sim.Device{VendorID: camera.VendorID, ProductID: camera.ProductID, Serial: *serial})
	case config.BackendV4L2:
		drv = v4l2.New()
	default:
		log.Fatalf("unknown backend %q", *backend)
	}

	cam := camera.New(drv)
	if err := cam.Init(*serial); err != nil {
		log.Fatalf("failed to open camera: %s", err)
	}
	defer cam.Shutdown()

	settings := make(camera.Settings, len(sets))
	for _, s := range sets {
		cmd, setting, err := parseSet(s)
		if err != nil {
			log.Fatal(err)
		}
		settings[cmd] = setting
	}
	if err := cam.ApplySettings(settings); err != nil {
		log.Fatal(err)
	}

	current, err := cam.ReadSettings()
	if err != nil {
		log.Println(err)
	}

	if *text {
		for _, cmd := range camera.Controls {
			if s, ok := current[cmd]; ok {
				fmt.Print(camera.ControlToString(cmd, s))
			}
		}
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(named(current)); err != nil {
		panic(err)
	}
}

func named(s camera.Settings) map[string]camera.ControlSetting {
	m := make(map[string]camera.ControlSetting, len(s))
	for cmd, v := range s {
		m[cmd.String()] = v
	}
	return m
}

func parseSet(s string) (camera.ControlCommand, camera.ControlSetting, error) {
	name, rest, ok := strings.Cut(s, "=")
	if !ok {
		return 0, camera.ControlSetting{}, fmt.Errorf("invalid -set %q, want name=mode[:value]", s)
	}
	cmd, err := camera.ParseControl(name)
	if err != nil {
		return 0, camera.ControlSetting{}, err
	}
	modeStr, valueStr, hasValue := strings.Cut(rest, ":")
	mode, err := camera.ParseControlMode(modeStr)
	if err != nil {
		return 0, camera.ControlSetting{}, err
	}
	var value int64
	if hasValue {
		if value, err = strconv.ParseInt(valueStr, 10, 32); err != nil {
			return 0, camera.ControlSetting{}, fmt.Errorf("invalid value for %s: %w", cmd, err)
		}
	}
	return cmd, camera.ControlSetting{Mode: mode, Value: int32(value)}, nil
}
