// Package hotplug watches kernel uevents for camera arrivals and removals
// without cgo, by listening on a NETLINK_KOBJECT_UEVENT socket.
package hotplug

import (
	"bytes"
	"strings"
)

// Kernel actions of interest.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"
	ActionBind   = "bind"
	ActionUnbind = "unbind"
)

// SubsystemUSB is the subsystem camera hubs report under.
const SubsystemUSB = "usb"

// DefaultVendorID is the USB vendor of the supported depth cameras.
const DefaultVendorID = "45e"

// Event is one parsed kernel uevent.
type Event struct {
	Action    string
	KObj      string
	Subsystem string
	DevType   string
	Env       map[string]string
}

// VendorID returns the vendor part of the PRODUCT key ("vid/pid/rev"),
// or "" if the event carries none.
func (e *Event) VendorID() string {
	product := e.Env["PRODUCT"]
	vid, _, ok := strings.Cut(product, "/")
	if !ok {
		return ""
	}
	return vid
}

// Matches reports whether the event is an arrival or removal of a USB
// device from vendor. An empty vendor matches any USB device.
func (e *Event) Matches(vendor string) bool {
	if e.Subsystem != SubsystemUSB || e.DevType != "usb_device" {
		return false
	}
	switch e.Action {
	case ActionAdd, ActionRemove, ActionBind, ActionUnbind:
	default:
		return false
	}
	return vendor == "" || strings.EqualFold(e.VendorID(), vendor)
}

var libudevPrefix = []byte("libudev")

// ParseUEvent parses a message of the form "ACTION@KOBJ\0KEY=VALUE\0...".
// It returns nil when the header is malformed.
func ParseUEvent(data []byte) *Event {
	if bytes.HasPrefix(data, libudevPrefix) {
		data = skipLibudevHeader(data)
	}

	fields := bytes.Split(data, []byte{0})
	if len(fields) == 0 {
		return nil
	}
	action, kobj, ok := strings.Cut(string(fields[0]), "@")
	if !ok || action == "" {
		return nil
	}

	ev := &Event{Action: action, KObj: kobj, Env: make(map[string]string)}
	for _, field := range fields[1:] {
		key, value, found := strings.Cut(string(field), "=")
		if !found || key == "" {
			continue
		}
		ev.Env[key] = value
	}
	ev.Subsystem = ev.Env["SUBSYSTEM"]
	ev.DevType = ev.Env["DEVTYPE"]
	return ev
}

// skipLibudevHeader drops the binary header udevd prepends to forwarded
// events, leaving the message starting at "ACTION@".
func skipLibudevHeader(data []byte) []byte {
	for i := 0; i < len(data)-1; i++ {
		if data[i] != 0 {
			continue
		}
		rest := data[i+1:]
		if at := bytes.IndexByte(rest, '@'); at > 0 && at < 20 {
			return rest
		}
	}
	return data
}
