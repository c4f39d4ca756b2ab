package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"colorcam/pkg/camera"
	"colorcam/pkg/capture"
	"colorcam/pkg/config"
	"colorcam/pkg/utils/image"
	"colorcam/pkg/uvc"
	"colorcam/pkg/uvc/sim"
	"colorcam/pkg/uvc/v4l2"
	"colorcam/pkg/video"
)

func main() {
	backend := flag.String("backend", config.BackendV4L2, "camera backend (v4l2 or sim)")
	serial := flag.String("serial", "", "camera serial number")
	width := flag.Int("width", 1280, "")
	height := flag.Int("height", 720, "")
	fps := flag.Int("fps", camera.DefaultFPS, "")
	format := flag.String("format", "mjpg", "mjpg, nv12, yuy2 or bgra32")
	n := flag.Int("n", 2, "number of frames")
	out := flag.String("out", ".", "output directory for jpeg files")
	avi := flag.String("avi", "", "also write the frames to this avi file")
	quality := flag.Int("quality", image.DefaultQuality, "jpeg quality")
	flag.Parse()

	f, err := capture.ParseFormat(strings.ToUpper(*format))
	if err != nil {
		log.Fatal(err)
	}
	cfg := camera.StreamConfig{Width: *width, Height: *height, FPS: *fps, Format: f}
	if !cfg.Supported() {
		log.Fatalf("%s is not a supported camera mode", cfg)
	}

	var drv uvc.Driver
	switch *backend {
	case config.BackendSim:
		drv = sim.NewLive(sim.Device{VendorID: camera.VendorID, ProductID: camera.ProductID, Serial: *serial})
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

	frames, err := grab(cam, cfg, *n, 5*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		for _, c := range frames {
			c.Release()
		}
	}()

	for i, c := range frames {
		path := filepath.Join(*out, fmt.Sprintf("%d.jpg", i+1))
		if err := writeJPEG(c, path, *quality); err != nil {
			log.Fatal(err)
		}
	}

	if *avi != "" {
		b, err := video.NewBuilder(*avi, cfg.Width, cfg.Height, cfg.FPS)
		if err != nil {
			log.Fatal(err)
		}
		for _, c := range frames {
			if err := b.AddCapture(c); err != nil {
				log.Println(err)
			}
		}
		if err := b.Close(); err != nil {
			log.Fatal(err)
		}
		log.Printf("wrote %d frames to %s", b.GetCnt(), *avi)
	}
}

// grab streams cfg until n frames arrived or timeout passed. Frames that
// failed to process are logged and skipped.
func grab(cam *camera.Camera, cfg camera.StreamConfig, n int, timeout time.Duration) ([]*capture.Capture, error) {
	got := make(chan *capture.Capture, n)
	err := cam.Start(cfg, camera.CaptureFunc(func(err error, c *capture.Capture) {
		if err != nil {
			log.Printf("frame: %s", err)
			return
		}
		c.IncRef()
		select {
		case got <- c:
		default:
			c.Release()
		}
	}))
	if err != nil {
		return nil, err
	}

	var frames []*capture.Capture
	deadline := time.After(timeout)
loop:
	for len(frames) < n {
		select {
		case c := <-got:
			frames = append(frames, c)
		case <-deadline:
			break loop
		}
	}
	cam.Stop()

	close(got)
	for c := range got {
		c.Release()
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frame within %s", timeout)
	}
	return frames, nil
}

func writeJPEG(c *capture.Capture, path string, quality int) error {
	img := c.ColorImage()
	if img == nil {
		return fmt.Errorf("capture has no color image")
	}
	defer img.Release()

	log.Printf("%s: %dx%d %s ts=%dus exposure=%dus wb=%dK",
		path, img.Width(), img.Height(), img.Format(), img.TimestampUsec(), img.ExposureUsec(), img.WhiteBalance())

	if img.Format() == capture.FormatColorMJPG {
		return os.WriteFile(path, img.Buffer(), 0660)
	}
	i, err := image.FromCapture(img)
	if err != nil {
		return err
	}
	return image.EncodeJPEGFile(i, path, quality)
}
