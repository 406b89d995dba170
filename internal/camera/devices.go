package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
)

// VideoDevice is a local capture device.
type VideoDevice struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Label string `json:"label,omitempty"`
}

// DeviceAction is the kind of a hotplug event.
type DeviceAction string

const (
	DeviceAdded   DeviceAction = "add"
	DeviceRemoved DeviceAction = "remove"
)

// DeviceEvent reports a video device appearing or disappearing.
type DeviceEvent struct {
	Action DeviceAction
	Device VideoDevice
}

// ListVideoDevices enumerates the video4linux devices currently present by
// crawling the uevent files under /sys/devices. A machine without sysfs
// yields an empty list.
func ListVideoDevices(ctx context.Context) ([]VideoDevice, error) {
	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawler.ExistingDevices(queue, errs, videoMatcher(""))
	return collectVideoDevices(ctx, queue, errs, quit)
}

// collectVideoDevices drains a crawl until queue is closed or ctx is done.
func collectVideoDevices(ctx context.Context, queue <-chan crawler.Device, errs <-chan error, quit chan<- struct{}) ([]VideoDevice, error) {
	var devices []VideoDevice
	for {
		select {
		case <-ctx.Done():
			select {
			case quit <- struct{}{}:
			default:
			}
			go func() {
				for range queue {
				}
			}()
			return nil, ctx.Err()
		case d, ok := <-queue:
			if !ok {
				slices.SortFunc(devices, func(a, b VideoDevice) int { return strings.Compare(a.Name, b.Name) })
				return devices, crawlError(errs)
			}
			if vd, ok := videoDeviceFrom(d.Env); ok {
				vd.Label = sysfsLabel(d.KObj, vd.Label)
				devices = append(devices, vd)
			}
		}
	}
}

// crawlError reports the error left by a finished crawl. Missing paths are
// either an absent sysfs or a device unplugged mid-walk.
func crawlError(errs <-chan error) error {
	select {
	case err := <-errs:
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("list video devices: %w", err)
	default:
		return nil
	}
}

// sysfsLabel prefers the driver-reported name attribute of kobj.
func sysfsLabel(kobj, fallback string) string {
	//nolint:gosec // G304: kobject path comes from the sysfs crawl
	data, err := os.ReadFile(filepath.Join(kobj, "name"))
	if err != nil {
		return fallback
	}
	if label := strings.TrimSpace(string(data)); label != "" {
		return label
	}
	return fallback
}

// WatchVideoDevices streams hotplug events for video4linux devices until ctx
// is done. The returned channel is closed on exit.
func WatchVideoDevices(ctx context.Context) (<-chan DeviceEvent, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, fmt.Errorf("connect to udev netlink socket: %w", err)
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	quit := conn.Monitor(queue, errs, videoMatcher("add|remove"))

	out := make(chan DeviceEvent)
	go func() {
		defer close(out)
		defer func() { _ = conn.Close() }()
		defer close(quit)

		for {
			select {
			case <-ctx.Done():
				return
			case uevent := <-queue:
				ev, ok := deviceEventFrom(uevent)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case err := <-errs:
				slog.Warn("Video device monitor error", "error", err)
			}
		}
	}()
	return out, nil
}

// videoMatcher matches the video4linux subsystem, restricted to actions
// when it is not empty.
func videoMatcher(actions string) netlink.Matcher {
	rule := netlink.RuleDefinition{
		Env: map[string]string{
			"SUBSYSTEM": "^video4linux$",
		},
	}
	if actions != "" {
		rule.Action = &actions
	}
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(rule)
	return rules
}

// videoDeviceFrom builds a capture device from uevent variables. Sub-devices
// and other non-capture nodes of the subsystem are skipped.
func videoDeviceFrom(env map[string]string) (VideoDevice, bool) {
	path := env["DEVNAME"]
	if path == "" {
		return VideoDevice{}, false
	}
	if !strings.HasPrefix(path, "/") {
		path = "/dev/" + path
	}
	name := filepath.Base(path)
	if !strings.HasPrefix(name, "video") {
		return VideoDevice{}, false
	}
	return VideoDevice{Name: name, Path: path, Label: env["ID_V4L_PRODUCT"]}, true
}

func deviceEventFrom(uevent netlink.UEvent) (DeviceEvent, bool) {
	device, ok := videoDeviceFrom(uevent.Env)
	if !ok {
		return DeviceEvent{}, false
	}

	var action DeviceAction
	switch uevent.Action {
	case netlink.ADD:
		action = DeviceAdded
	case netlink.REMOVE:
		action = DeviceRemoved
	default:
		return DeviceEvent{}, false
	}
	return DeviceEvent{Action: action, Device: device}, true
}
