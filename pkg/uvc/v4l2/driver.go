//go:build linux

// Package v4l2 implements uvc.Driver on top of the kernel's uvcvideo
// driver. Devices are found through udev and streamed with go4vl.
package v4l2

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jochenvg/go-udev"
	"go.uber.org/zap"

	"colorcam/pkg/utils"
	"colorcam/pkg/uvc"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger()
}

type Driver struct{}

func New() *Driver {
	return &Driver{}
}

func (d *Driver) OpenContext() (uvc.Context, error) {
	return &udevContext{u: &udev.Udev{}}, nil
}

type udevContext struct {
	u *udev.Udev
}

// FindDevice returns the first video capture node whose USB parent has
// the given ids and, if set, serial number, together with the metadata
// node of the same camera when there is one.
func (c *udevContext) FindDevice(vendorID, productID uint16, serial string) (uvc.DeviceRef, error) {
	e := c.u.NewEnumerate()
	if err := e.AddMatchSubsystem("video4linux"); err != nil {
		return nil, fmt.Errorf("udev match subsystem: %w", err)
	}
	if err := e.AddMatchIsInitialized(); err != nil {
		return nil, fmt.Errorf("udev match initialized: %w", err)
	}
	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("udev enumerate: %w", err)
	}

	vid := fmt.Sprintf("%04x", vendorID)
	pid := fmt.Sprintf("%04x", productID)
	var nodes []string
	// usb syspath -> nodes without video capture
	others := make(map[string][]string)
	parent := make(map[string]string)
	for _, d := range devices {
		usb := d.ParentWithSubsystemDevtype("usb", "usb_device")
		if usb == nil {
			continue
		}
		if !strings.EqualFold(usb.SysattrValue("idVendor"), vid) || !strings.EqualFold(usb.SysattrValue("idProduct"), pid) {
			continue
		}
		if serial != "" && usb.SysattrValue("serial") != serial {
			continue
		}
		node := d.Devnode()
		if node == "" {
			continue
		}
		// the metadata node reports no video capabilities
		if !strings.Contains(d.PropertyValue("ID_V4L_CAPABILITIES"), ":capture:") {
			others[usb.Syspath()] = append(others[usb.Syspath()], node)
			continue
		}
		nodes = append(nodes, node)
		parent[node] = usb.Syspath()
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s:%s serial %q", uvc.ErrNotFound, vid, pid, serial)
	}
	sort.Strings(nodes)
	logger.Debugf("v4l2: %s:%s found at %v", vid, pid, nodes)

	ref := &deviceRef{path: nodes[0]}
	if metas := others[parent[ref.path]]; len(metas) > 0 {
		sort.Strings(metas)
		ref.metaPath = metas[0]
	}
	return ref, nil
}

func (c *udevContext) Close() {
	c.u = nil
}

type deviceRef struct {
	path     string
	metaPath string
}

func (r *deviceRef) Open() (uvc.Handle, error) {
	dev, err := openVideo(r.path, nil)
	if err != nil {
		return nil, err
	}
	logger.Infof("v4l2: opened %s (metadata %q)", r.path, r.metaPath)
	return &handle{path: r.path, metaPath: r.metaPath, open: openVideo, dev: dev}, nil
}

func (r *deviceRef) Unref() {}
