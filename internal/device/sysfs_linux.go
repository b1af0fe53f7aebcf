//go:build linux

package device

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultSysfsRoot is where the kernel lists HID devices.
const DefaultSysfsRoot = "/sys/bus/hid/devices"

// SysfsEnumerator lists HID devices from sysfs uevent files.
type SysfsEnumerator struct {
	// Root defaults to DefaultSysfsRoot.
	Root string
}

// NewPlatformEnumerator returns the sysfs enumerator.
func NewPlatformEnumerator() Enumerator {
	return SysfsEnumerator{}
}

// Enumerate reads every <root>/*/uevent.
func (s SysfsEnumerator) Enumerate(ctx context.Context) ([]Info, error) {
	root := s.Root
	if root == "" {
		root = DefaultSysfsRoot
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	devices := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(root, entry.Name(), "uevent"))
		if err != nil {
			continue
		}
		info, ok := parseUevent(string(data))
		if !ok {
			continue
		}
		info.Path = entry.Name()
		devices = append(devices, info)
	}
	return devices, nil
}

// parseUevent reads HID_ID and HID_NAME from a uevent file.
//
// HID_ID has the form BBBB:VVVVVVVV:PPPPPPPP (bus, vendor, product).
func parseUevent(content string) (Info, bool) {
	var info Info
	found := false
	for _, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, "HID_ID="):
			parts := strings.Split(strings.TrimPrefix(line, "HID_ID="), ":")
			if len(parts) < 3 {
				continue
			}
			vid, err := strconv.ParseUint(parts[1], 16, 16)
			if err != nil {
				continue
			}
			pid, err := strconv.ParseUint(parts[2], 16, 16)
			if err != nil {
				continue
			}
			info.ID = ID{Vendor: uint16(vid), Product: uint16(pid)}
			found = true
		case strings.HasPrefix(line, "HID_NAME="):
			info.Name = strings.TrimPrefix(line, "HID_NAME=")
		}
	}
	return info, found
}
