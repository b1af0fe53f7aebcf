//go:build !linux

package agent

import (
	"hidwatch/internal/config"
	"hidwatch/internal/device"
)

// PlatformEnumerator returns the native enumerator. sysfs_root only applies
// on Linux.
func PlatformEnumerator(config.DevicesConfig) device.Enumerator {
	return device.NewPlatformEnumerator()
}
