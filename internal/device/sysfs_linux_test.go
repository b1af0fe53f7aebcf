//go:build linux

package device

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUevent(t *testing.T, root, entry, content string) {
	t.Helper()
	dir := filepath.Join(root, entry)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uevent"), []byte(content), 0644))
}

func TestSysfsEnumerator(t *testing.T) {
	root := t.TempDir()
	writeUevent(t, root, "0003:046D:C52B.0001",
		"DRIVER=hid-generic\nHID_ID=0003:0000046D:0000C52B\nHID_NAME=Logitech USB Receiver\nHID_PHYS=usb-0000:00:14.0-2/input0\n")
	writeUevent(t, root, "0005:05AC:024F.0002",
		"HID_ID=0005:000005AC:0000024F\nHID_NAME=Apple Keyboard\n")
	writeUevent(t, root, "broken", "HID_NAME=No ID here\n")
	writeUevent(t, root, "bad-hex", "HID_ID=0003:ZZZZZZZZ:0000024F\n")

	devices, err := SysfsEnumerator{Root: root}.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, ID{0x046D, 0xC52B}, devices[0].ID)
	assert.Equal(t, "Logitech USB Receiver", devices[0].Name)
	assert.Equal(t, "0003:046D:C52B.0001", devices[0].Path)
	assert.Equal(t, ID{0x05AC, 0x024F}, devices[1].ID)
}

func TestSysfsEnumeratorMissingRoot(t *testing.T) {
	_, err := SysfsEnumerator{Root: filepath.Join(t.TempDir(), "none")}.Enumerate(context.Background())
	assert.Error(t, err)
}

func TestSysfsEnumeratorCancelled(t *testing.T) {
	root := t.TempDir()
	writeUevent(t, root, "0003:046D:C52B.0001", "HID_ID=0003:0000046D:0000C52B\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SysfsEnumerator{Root: root}.Enumerate(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
