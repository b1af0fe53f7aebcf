//go:build linux

package agent

import (
	"hidwatch/internal/config"
	"hidwatch/internal/device"
)

// PlatformEnumerator returns the sysfs enumerator, rooted at cfg.SysfsRoot
// when set.
func PlatformEnumerator(cfg config.DevicesConfig) device.Enumerator {
	if cfg.SysfsRoot != "" {
		return device.SysfsEnumerator{Root: cfg.SysfsRoot}
	}
	return device.NewPlatformEnumerator()
}
