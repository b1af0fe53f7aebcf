//go:build windows

package device

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

// SetupAPIEnumerator lists present devices under the HID enumerator.
type SetupAPIEnumerator struct{}

// NewPlatformEnumerator returns the SetupAPI enumerator.
func NewPlatformEnumerator() Enumerator {
	return SetupAPIEnumerator{}
}

// Enumerate walks the device information set and extracts VID/PID from each
// device instance ID.
func (SetupAPIEnumerator) Enumerate(ctx context.Context) ([]Info, error) {
	devInfo, err := windows.SetupDiGetClassDevsEx(nil, "HID", 0,
		windows.DIGCF_PRESENT|windows.DIGCF_ALLCLASSES, 0, "")
	if err != nil {
		return nil, fmt.Errorf("SetupDiGetClassDevsEx: %w", err)
	}
	defer devInfo.Close()

	var devices []Info
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := devInfo.EnumDeviceInfo(i)
		if err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_ITEMS) {
				break
			}
			continue
		}

		instanceID, err := devInfo.DeviceInstanceID(data)
		if err != nil {
			continue
		}
		id, ok := ParseDevicePath(instanceID)
		if !ok {
			continue
		}

		info := Info{ID: id, Path: instanceID}
		if desc, err := devInfo.DeviceRegistryProperty(data, windows.SPDRP_DEVICEDESC); err == nil {
			if s, ok := desc.(string); ok {
				info.Name = s
			}
		}
		devices = append(devices, info)
	}
	return devices, nil
}
