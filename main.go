package main

import (
	"errors"
	"flag"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vincent-vinf/go-jsend"
	"go.uber.org/zap"

	"colorcam/pkg/allocator"
	"colorcam/pkg/camera"
	"colorcam/pkg/capture"
	"colorcam/pkg/config"
	"colorcam/pkg/metrics"
	"colorcam/pkg/utils"
	"colorcam/pkg/utils/image"
	"colorcam/pkg/utils/ps"
	"colorcam/pkg/uvc"
	"colorcam/pkg/uvc/sim"
	"colorcam/pkg/uvc/v4l2"
)

const captureTimeout = 3 * time.Second

var (
	configPath = flag.String("config", config.DefaultPath, "config file")
	port       = flag.Int("port", 0, "ui port, overrides the config")
	backend    = flag.String("backend", "", "camera backend (v4l2 or sim), overrides the config")
	serial     = flag.String("serial", "", "camera serial number, overrides the config")

	conf  *config.Config
	alloc *allocator.Allocator
	cam   *camera.Camera
	ctl   *camera.Controller

	logger *zap.SugaredLogger
)

func init() {
	logger = utils.GetLogger()
}

func main() {
	flag.Parse()
	defer logger.Sync()
	var err error

	conf, err = config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}
	if *port != 0 {
		conf.Server.Port = *port
	}
	if *backend != "" {
		conf.Camera.Backend = *backend
	}
	if *serial != "" {
		conf.Camera.Serial = *serial
	}
	if err = conf.Validate(); err != nil {
		logger.Fatal(err)
	}
	level, _ := utils.ParseLevel(conf.Log.Level)
	utils.SetLevel(level)

	// init allocator
	limit, _ := conf.AllocatorLimit()
	alloc = allocator.New(limit)
	alloc.Initialize()
	if err = metrics.RegisterAllocator(prometheus.DefaultRegisterer, alloc.OutstandingBytes); err != nil {
		logger.Fatal(err)
	}

	// init camera
	drv, err := newDriver(conf)
	if err != nil {
		logger.Fatal(err)
	}
	cam = camera.New(drv, camera.WithAllocator(alloc.ForSource(allocator.SourceColor)))
	if err = cam.Init(conf.Camera.Serial); err != nil {
		logger.Fatal(err)
	}
	settings, _ := conf.Settings()
	if err = cam.ApplySettings(settings); err != nil {
		logger.Warnf("apply controls: %s", err)
	}

	ctl = camera.NewController(cam)
	ctl.SetQuality(conf.Server.Quality)
	sc, _ := conf.StreamConfig()
	if err = ctl.StartPreview(sc); err != nil {
		logger.Fatal(err)
	}
	logger.Infof("preview started with %s", sc)

	utils.ListenAndServe(newRouter(), conf.Server.Port, ctl.Close, cam.Shutdown, func() {
		if n := alloc.TestForLeaks(); n > 0 {
			logger.Warnf("%d frame buffers were not released", n)
		}
		alloc.Deinitialize()
	})
}

func newDriver(conf *config.Config) (uvc.Driver, error) {
	switch conf.Camera.Backend {
	case config.BackendSim:
		return sim.NewLive(sim.Device{
			VendorID:  camera.VendorID,
			ProductID: camera.ProductID,
			Serial:    conf.Camera.Serial,
		}), nil
	case config.BackendV4L2:
		return v4l2.New(), nil
	}
	return nil, fmt.Errorf("unknown camera backend %q", conf.Camera.Backend)
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(utils.Cors())
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, jsend.SimpleErr("page not found"))
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiRouter := r.Group("/api")

	deviceRouter := apiRouter.Group("/device")
	deviceRouter.GET("/realtime/video", realtimeVideo)
	deviceRouter.GET("/snapshot", snapshot)
	deviceRouter.GET("/status", status)
	deviceRouter.GET("/controls", listControls)
	deviceRouter.PUT("/controls", updateControls)
	deviceRouter.GET("/controls/:name", getControl)
	deviceRouter.PUT("/controls/:name", setControl)

	return r
}

func realtimeVideo(c *gin.Context) {
	frames, unsubscribe := ctl.Subscribe()
	defer unsubscribe()

	mimeWriter := multipart.NewWriter(c.Writer)
	c.Header("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mimeWriter.Boundary()))
	partHeader := make(textproto.MIMEHeader)
	partHeader.Add("Content-Type", "image/jpeg")

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			partWriter, err := mimeWriter.CreatePart(partHeader)
			if err != nil {
				logger.Warnf("failed to create multi-part writer: %s", err)
				return
			}
			if _, err := partWriter.Write(frame); err != nil {
				logger.Warnf("failed to write image: %s", err)
				return
			}
			c.Writer.Flush()
		}
	}
}

// snapshot grabs one frame. width, height, fps and format default to the
// configured stream.
func snapshot(c *gin.Context) {
	sc, err := queryStreamConfig(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}

	capt, err := ctl.Capture(sc, captureTimeout)
	if err != nil {
		cameraErr(c, err)
		return
	}
	defer capt.Release()

	img := capt.ColorImage()
	if img == nil {
		internalErr(c, errors.New("capture has no color image"))
		return
	}
	defer img.Release()

	data, err := image.Snapshot(img, conf.Server.Quality)
	if err != nil {
		internalErr(c, err)
		return
	}
	c.Header("X-Timestamp-Usec", strconv.FormatUint(img.TimestampUsec(), 10))
	c.Header("X-Exposure-Usec", strconv.FormatUint(img.ExposureUsec(), 10))
	c.Data(http.StatusOK, "image/jpeg", data)
}

func queryStreamConfig(c *gin.Context) (camera.StreamConfig, error) {
	sc, err := conf.StreamConfig()
	if err != nil {
		return sc, err
	}
	for key, dst := range map[string]*int{"width": &sc.Width, "height": &sc.Height, "fps": &sc.FPS} {
		v, ok := c.GetQuery(key)
		if !ok {
			continue
		}
		if *dst, err = strconv.Atoi(v); err != nil {
			return sc, fmt.Errorf("invalid %s %q", key, v)
		}
	}
	if v, ok := c.GetQuery("format"); ok {
		if sc.Format, err = capture.ParseFormat(strings.ToUpper(v)); err != nil {
			return sc, err
		}
	}
	if !sc.Supported() {
		return sc, fmt.Errorf("%s is not a supported camera mode", sc)
	}
	return sc, nil
}

type cameraStatus struct {
	State      string `json:"state"`
	Streaming  bool   `json:"streaming"`
	Previewing bool   `json:"previewing"`
	Stream     string `json:"stream,omitempty"`
}

type allocatorStatus struct {
	Outstanding      int64  `json:"outstanding"`
	OutstandingBytes int64  `json:"outstandingBytes"`
	OutstandingHuman string `json:"outstandingHuman"`
}

type statusResponse struct {
	Camera    cameraStatus    `json:"camera"`
	Allocator allocatorStatus `json:"allocator"`
	Host      ps.Status       `json:"host"`
}

func status(c *gin.Context) {
	sc, previewing := ctl.Previewing()
	s := statusResponse{
		Camera: cameraStatus{
			State:      cam.State(),
			Streaming:  cam.IsStreaming(),
			Previewing: previewing,
		},
		Host: ps.HostStatus(),
	}
	if previewing {
		s.Camera.Stream = sc.String()
	}
	n := alloc.OutstandingBytes()
	s.Allocator = allocatorStatus{
		Outstanding:      alloc.Outstanding(allocator.SourceColor),
		OutstandingBytes: n,
		OutstandingHuman: humanize.IBytes(uint64(n)),
	}
	c.JSON(http.StatusOK, jsend.Success(s))
}

func listControls(c *gin.Context) {
	s, err := cam.ReadSettings()
	if err != nil {
		if s == nil {
			cameraErr(c, err)
			return
		}
		// 部分控制项读取失败时仍返回其余的
		logger.Warnf("read controls: %s", err)
	}
	c.JSON(http.StatusOK, jsend.Success(s))
}

func updateControls(c *gin.Context) {
	var s camera.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	if err := cam.ApplySettings(s); err != nil {
		cameraErr(c, err)
		return
	}
	c.JSON(http.StatusOK, jsend.Success(s))
}

func getControl(c *gin.Context) {
	cmd, err := camera.ParseControl(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
		return
	}
	mode, value, err := cam.GetControl(cmd)
	if err != nil {
		cameraErr(c, err)
		return
	}
	c.JSON(http.StatusOK, jsend.Success(camera.ControlSetting{Mode: mode, Value: value}))
}

func setControl(c *gin.Context) {
	cmd, err := camera.ParseControl(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, jsend.SimpleErr(err.Error()))
		return
	}
	var s camera.ControlSetting
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
		return
	}
	if err := cam.SetControl(cmd, s.Mode, s.Value); err != nil {
		cameraErr(c, err)
		return
	}
	logger.Infof("set ctrl(%s) to %s %d", cmd, s.Mode, s.Value)
	c.JSON(http.StatusOK, jsend.Success(s))
}

func cameraErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, camera.ErrInvalidArgument),
		errors.Is(err, camera.ErrUnsupportedFormat),
		errors.Is(err, camera.ErrUnsupportedControl),
		errors.Is(err, camera.ErrInvalidMode):
		c.JSON(http.StatusBadRequest, jsend.SimpleErr(err.Error()))
	case errors.Is(err, camera.ErrState), errors.Is(err, uvc.ErrBusy):
		c.JSON(http.StatusConflict, jsend.SimpleErr(err.Error()))
	case errors.Is(err, camera.ErrCaptureTimeout):
		c.JSON(http.StatusGatewayTimeout, jsend.SimpleErr(err.Error()))
	default:
		internalErr(c, err)
	}
}

func internalErr(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, jsend.SimpleErr(err.Error()))
}
